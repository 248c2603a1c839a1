package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/http/response"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
)

// uuidParam writes a 400 and reports false when the path segment is not a uuid.
func uuidParam(c *gin.Context, name string, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param(name)))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, code, fmt.Errorf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// limitQuery reads ?limit, falling back to def when absent or invalid and capping at max.
func limitQuery(c *gin.Context, def int, max int) int {
	v, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	switch {
	case err != nil || v < 1:
		return def
	case v > max:
		return max
	default:
		return v
	}
}

// timeQuery accepts RFC3339; an empty value is nil.
func timeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apierr.BadRequest("invalid_"+name, fmt.Errorf("%s must be RFC3339", name))
	}
	t = t.UTC()
	return &t, nil
}
