package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/prospecthq/prospect-engine/pkg/models"
)

// Notifier receives newly qualified opportunities at the end of a pass: every
// record whose classification reached ready_to_go during that pass.
type Notifier interface {
	NotifyQualified(ctx context.Context, properties []*models.Property) error
}

type logNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns the default notifier, which only logs. Real delivery
// channels implement Notifier and replace it at wiring time.
func NewLogNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger.Named("notifier")}
}

var _ Notifier = (*logNotifier)(nil)

func (n *logNotifier) NotifyQualified(_ context.Context, properties []*models.Property) error {
	for _, p := range properties {
		score := 0.0
		if p.DealScore != nil {
			score = *p.DealScore
		}
		n.logger.Info("Qualified opportunity",
			zap.String("property_id", p.ID),
			zap.String("postcode", p.Postcode),
			zap.Float64("deal_score", score))
	}
	return nil
}
