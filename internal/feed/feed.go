// Package feed delivers typed event records to a handler from a JSONL file,
// a NATS subject or the chain itself.
package feed

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"lpAnalytics/internal/aggregate"
	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
)

// Handler consumes one record. Errors wrapping aggregate.ErrMalformed are
// counted and skipped; any other error is reported by the source.
type Handler func(ctx context.Context, rec model.TypedEventRecord) error

// Source produces records until it is exhausted or ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// deliver calls h and reports whether the record was consumed. Malformed
// records are logged and swallowed.
func deliver(ctx context.Context, source string, h Handler, rec model.TypedEventRecord, logger *zap.Logger, m *metrics.Metrics) error {
	err := h(ctx, rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, aggregate.ErrMalformed) {
		logger.Warn("skip malformed record", zap.String("source", source), zap.String("id", rec.ID()), zap.Error(err))
		m.FeedError(source)
		return nil
	}
	return err
}
