package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lpAnalytics/internal/model"
)

// JsonlStorage appends records to JSONL files. An empty path discards that
// kind of record.
type JsonlStorage struct {
	logsPath   string
	eventsPath string
	errorsPath string
	mu         sync.Mutex
}

func NewJsonlStorage(logsPath, eventsPath, errorsPath string) *JsonlStorage {
	return &JsonlStorage{logsPath: logsPath, eventsPath: eventsPath, errorsPath: errorsPath}
}

// PutLogBatch appends raw log records.
func (s *JsonlStorage) PutLogBatch(logs []model.LogRecord) error {
	return appendLines(s, s.logsPath, logs)
}

// PutEventBatch appends decoded events in the form feeds read back.
func (s *JsonlStorage) PutEventBatch(events []*model.TypedEvent) error {
	return appendLines(s, s.eventsPath, events)
}

// PutDecodeErrors appends decode failures.
func (s *JsonlStorage) PutDecodeErrors(errs []model.DecodeError) error {
	return appendLines(s, s.errorsPath, errs)
}

func appendLines[T any](s *JsonlStorage, path string, records []T) error {
	if path == "" || len(records) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return file.Close()
}
