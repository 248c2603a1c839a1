package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/ctxutil"
)

func testContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	c.Request = req.WithContext(ctxutil.WithTraceData(req.Context(), &ctxutil.TraceData{RequestID: "req-1"}))
	return c, rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env.Error
}

func TestRespondErrTyped(t *testing.T) {
	c, rec := testContext(t)
	RespondErr(c, "fallback", apierr.NotFound("conflict_not_found", errors.New("conflict not found")))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode(t, rec)
	if got.Code != "conflict_not_found" || got.RequestID != "req-1" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if !c.IsAborted() {
		t.Fatalf("expected aborted context")
	}
}

func TestRespondErrHidesInternalMessage(t *testing.T) {
	c, rec := testContext(t)
	RespondErr(c, "capture_conflict_failed", errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	got := decode(t, rec)
	if got.Message != "internal error" || got.Code != "capture_conflict_failed" {
		t.Fatalf("unexpected body: %+v", got)
	}
	if len(c.Errors) != 1 {
		t.Fatalf("expected the cause recorded on the context")
	}
}
