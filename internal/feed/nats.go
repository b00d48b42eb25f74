package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
)

const sourceNATS = "nats"

// NATSConfig selects the server and subject. Records published on the
// subject are JSON typed event records.
type NATSConfig struct {
	URL     string
	Subject string
	// Queue joins a queue group so several ingesters share the subject.
	Queue string
	Name  string
}

// NATSSource consumes typed event records from a NATS subject. Messages are
// handled one at a time in arrival order.
type NATSSource struct {
	cfg     NATSConfig
	nc      *nats.Conn
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewNATSSource connects to the server. The connection retries and
// reconnects forever.
func NewNATSSource(cfg NATSConfig, logger *zap.Logger, m *metrics.Metrics) (*NATSSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	if cfg.Subject == "" {
		return nil, errors.New("nats subject is required")
	}
	if cfg.Name == "" {
		cfg.Name = "lpagg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSSource{cfg: cfg, nc: nc, logger: logger, metrics: m}, nil
}

func (s *NATSSource) Name() string { return sourceNATS }

// Run subscribes and handles messages until ctx is done. Records that fail
// to decode or apply are logged and dropped.
func (s *NATSSource) Run(ctx context.Context, h Handler) error {
	var (
		sub *nats.Subscription
		err error
	)
	if s.cfg.Queue != "" {
		sub, err = s.nc.QueueSubscribeSync(s.cfg.Subject, s.cfg.Queue)
	} else {
		sub, err = s.nc.SubscribeSync(s.cfg.Subject)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	defer sub.Unsubscribe()

	s.logger.Info("nats subscribed", zap.String("subject", s.cfg.Subject), zap.String("queue", s.cfg.Queue))

	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("next message: %w", err)
		}

		var rec model.TypedEventRecord
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			s.logger.Warn("decode typed event", zap.String("subject", msg.Subject), zap.Error(err))
			s.metrics.FeedError(sourceNATS)
			continue
		}
		if err := deliver(ctx, sourceNATS, h, rec, s.logger, s.metrics); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("handle record", zap.String("id", rec.ID()), zap.Error(err))
			s.metrics.FeedError(sourceNATS)
		}
	}
}

// Ready reports whether the connection is up.
func (s *NATSSource) Ready() bool {
	return s.nc != nil && s.nc.Status() == nats.CONNECTED
}

// Close drains the connection.
func (s *NATSSource) Close() error {
	if s.nc == nil || s.nc.Status() == nats.CLOSED {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
