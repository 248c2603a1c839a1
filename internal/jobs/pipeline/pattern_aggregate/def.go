package pattern_aggregate

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/platform/logger"
)

type Aggregator interface {
	Aggregate(ctx context.Context, relationshipID uuid.UUID) (*types.PatternSet, error)
}

type Pipeline struct {
	log        *logger.Logger
	aggregator Aggregator
}

func New(baseLog *logger.Logger, aggregator Aggregator) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("job", "pattern_aggregate"),
		aggregator: aggregator,
	}
}

func (p *Pipeline) Type() string { return "pattern_aggregate" }
