package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/attune-backend/internal/http"
	httpH "github.com/yungbote/attune-backend/internal/http/handlers"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Handlers struct {
	Health       *httpH.HealthHandler
	Relationship *httpH.RelationshipHandler
	Conflict     *httpH.ConflictHandler
	Insight      *httpH.InsightHandler
	Job          *httpH.JobHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	var pinger httpH.Pinger
	if sqlDB, err := db.DB(); err == nil {
		pinger = sqlDB
	}
	return Handlers{
		Health:       httpH.NewHealthHandler(pinger),
		Relationship: httpH.NewRelationshipHandler(services.Relationship),
		Conflict:     httpH.NewConflictHandler(services.Conflict, services.Insight),
		Insight:      httpH.NewInsightHandler(services.Insight),
		Job:          httpH.NewJobHandler(services.JobService),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		ServiceName:         cfg.ServiceName,
		CORSOrigins:         cfg.CORSOrigins,
		HealthHandler:       handlers.Health,
		RelationshipHandler: handlers.Relationship,
		ConflictHandler:     handlers.Conflict,
		InsightHandler:      handlers.Insight,
		JobHandler:          handlers.Job,
	})
}
