package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// HistoryStore records gate decisions for later inspection.
type HistoryStore interface {
	Append(ctx context.Context, rec DecisionRecord) error
	Query(ctx context.Context, filter HistoryFilter) ([]DecisionRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// HistoryFilter defines criteria for querying decision records. Zero fields
// match everything.
type HistoryFilter struct {
	State     string
	Action    Action
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}
