package feed

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"lpAnalytics/internal/metrics"
	"lpAnalytics/internal/model"
)

const sourceJSONL = "jsonl"

// JSONLSource replays typed event records from a file, one JSON object per
// line, in file order.
type JSONLSource struct {
	path    string
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewJSONLSource(path string, logger *zap.Logger, m *metrics.Metrics) *JSONLSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONLSource{path: path, logger: logger, metrics: m}
}

func (s *JSONLSource) Name() string { return sourceJSONL }

// Run reads the whole file. Unparseable lines are skipped; a handler error
// stops the replay.
func (s *JSONLSource) Run(ctx context.Context, h Handler) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var total, failed int
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var rec model.TypedEventRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			failed++
			s.logger.Warn("decode typed event", zap.Int("line", lineNo), zap.Error(err))
			s.metrics.FeedError(sourceJSONL)
			continue
		}
		if err := deliver(ctx, sourceJSONL, h, rec, s.logger, s.metrics); err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	s.logger.Info("jsonl replay done", zap.String("path", s.path), zap.Int("records", total), zap.Int("failed", failed))
	return nil
}
