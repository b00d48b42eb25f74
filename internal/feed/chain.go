package feed

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"lpAnalytics/internal/indexer"
	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
	"lpAnalytics/internal/storage"
)

const sourceChain = "chain"

// LogDecoder is satisfied by *dex.Registry.
type LogDecoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord) (*model.TypedEvent, error)
}

// ChainSource polls chain logs through an indexer.Runner, decodes them and
// hands the records to the handler. A block range is checkpointed only after
// every record in it was handled.
type ChainSource struct {
	runner  *indexer.Runner
	decoder LogDecoder
	sink    storage.Sink
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewChainSource builds a chain source. sink may be nil; when set, raw logs,
// decoded events and decode failures of each range are written to it before
// the handler runs.
func NewChainSource(runner *indexer.Runner, decoder LogDecoder, sink storage.Sink, logger *zap.Logger, m *metrics.Metrics) *ChainSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChainSource{runner: runner, decoder: decoder, sink: sink, logger: logger, metrics: m}
}

func (s *ChainSource) Name() string { return sourceChain }

// Run scans until the runner stops. h may be nil to only fill the sink.
func (s *ChainSource) Run(ctx context.Context, h Handler) error {
	if s.runner == nil || s.decoder == nil {
		return errors.New("chain source needs a runner and a decoder")
	}
	return s.runner.Run(ctx, func(ctx context.Context, r indexer.BlockRange, logs []model.LogRecord) error {
		return s.batch(ctx, r, logs, h)
	})
}

func (s *ChainSource) batch(ctx context.Context, r indexer.BlockRange, logs []model.LogRecord, h Handler) error {
	events := make([]*model.TypedEvent, 0, len(logs))
	records := make([]model.TypedEventRecord, 0, len(logs))
	var decodeErrs []model.DecodeError

	for _, log := range logs {
		if !s.decoder.CanDecode(log.Topic0()) {
			continue
		}
		ev, err := s.decoder.Decode(log)
		if err != nil {
			s.logger.Warn("decode log", zap.String("id", log.ID()), zap.String("topic0", log.Topic0()), zap.Error(err))
			s.metrics.FeedError(sourceChain)
			decodeErrs = append(decodeErrs, model.NewDecodeError(log, err))
			continue
		}
		rec, err := ev.Record()
		if err != nil {
			decodeErrs = append(decodeErrs, model.NewDecodeError(log, err))
			s.metrics.FeedError(sourceChain)
			continue
		}
		events = append(events, ev)
		records = append(records, rec)
	}

	if s.sink != nil {
		if err := s.sink.PutLogBatch(logs); err != nil {
			return fmt.Errorf("write logs: %w", err)
		}
		if err := s.sink.PutEventBatch(events); err != nil {
			return fmt.Errorf("write events: %w", err)
		}
		if err := s.sink.PutDecodeErrors(decodeErrs); err != nil {
			return fmt.Errorf("write decode errors: %w", err)
		}
	}

	if h != nil {
		for _, rec := range records {
			if err := deliver(ctx, sourceChain, h, rec, s.logger, s.metrics); err != nil {
				return fmt.Errorf("handle %s: %w", rec.ID(), err)
			}
		}
	}

	if len(decodeErrs) > 0 {
		s.logger.Info("range decoded with errors", zap.Uint64("from", r.From), zap.Uint64("to", r.To), zap.Int("events", len(records)), zap.Int("errors", len(decodeErrs)))
	}
	return nil
}
