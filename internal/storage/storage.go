// Package storage holds file sinks for fetched chain data. Relational
// storage lives in the postgres and memory subpackages.
package storage

import "lpAnalytics/internal/model"

// Sink receives raw logs, decoded events and decode failures.
type Sink interface {
	PutLogBatch(logs []model.LogRecord) error
	PutEventBatch(events []*model.TypedEvent) error
	PutDecodeErrors(errs []model.DecodeError) error
}
