package conflict_enrich

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/attune-backend/internal/modules/insight/enrichment"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Enricher interface {
	Enrich(ctx context.Context, conflictID uuid.UUID) (*enrichment.Result, error)
}

type Pipeline struct {
	log      *logger.Logger
	enricher Enricher
}

func New(baseLog *logger.Logger, enricher Enricher) *Pipeline {
	return &Pipeline{
		log:      baseLog.With("job", "conflict_enrich"),
		enricher: enricher,
	}
}

func (p *Pipeline) Type() string { return "conflict_enrich" }
