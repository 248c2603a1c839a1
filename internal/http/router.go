package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/attune-backend/internal/http/handlers"
	httpMW "github.com/yungbote/attune-backend/internal/http/middleware"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins string

	HealthHandler       *httpH.HealthHandler
	RelationshipHandler *httpH.RelationshipHandler
	ConflictHandler     *httpH.ConflictHandler
	InsightHandler      *httpH.InsightHandler
	JobHandler          *httpH.JobHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Relationships + profiles
		if cfg.RelationshipHandler != nil {
			api.POST("/relationships", cfg.RelationshipHandler.Create)
			api.GET("/relationships/:id", cfg.RelationshipHandler.Get)
			api.GET("/relationships/:id/profiles", cfg.RelationshipHandler.ListProfiles)
			api.PUT("/relationships/:id/partners/:partner_id/profile", cfg.RelationshipHandler.UpsertProfile)
		}

		// Conflicts
		if cfg.ConflictHandler != nil {
			api.POST("/relationships/:id/conflicts", cfg.ConflictHandler.Capture)
			api.GET("/relationships/:id/conflicts", cfg.ConflictHandler.List)
			api.GET("/conflicts/:id", cfg.ConflictHandler.Get)
			api.GET("/conflicts/:id/chain", cfg.ConflictHandler.Chain)
			api.POST("/conflicts/:id/enrich", cfg.ConflictHandler.Enrich)
			api.POST("/conflicts/:id/resolve", cfg.ConflictHandler.Resolve)
			api.DELETE("/conflicts/:id", cfg.ConflictHandler.Delete)
		}

		// Cross-fight intelligence
		if cfg.InsightHandler != nil {
			api.GET("/relationships/:id/risk", cfg.InsightHandler.Risk)
			api.GET("/relationships/:id/chronic-needs", cfg.InsightHandler.ChronicNeeds)
			api.GET("/relationships/:id/triggers", cfg.InsightHandler.Triggers)
			api.GET("/relationships/:id/patterns", cfg.InsightHandler.Patterns)
			api.GET("/relationships/:id/health", cfg.InsightHandler.Health)
			api.GET("/relationships/:id/health/history", cfg.InsightHandler.HealthHistory)
		}

		// Jobs
		if cfg.JobHandler != nil {
			api.GET("/relationships/:id/jobs", cfg.JobHandler.ListForRelationship)
			api.GET("/jobs/:id", cfg.JobHandler.GetJob)
			api.POST("/jobs/:id/cancel", cfg.JobHandler.CancelJob)
			api.POST("/jobs/:id/restart", cfg.JobHandler.RestartJob)
		}
	}

	return r
}
