// Package store defines storage interfaces for the fetched payload cache and
// the fetch journal, with file-backed and SQLite implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// ErrExists is returned by Cache.Write when the key is already cached.
var ErrExists = errors.New("cache entry already exists")

// Cache persists raw vendor payloads, one file per data type and key.
type Cache interface {
	// Exists reports whether a payload is cached for dataType and key.
	Exists(dataType domain.DataType, key string) bool

	// Write stores payload once. It returns ErrExists if the key is present.
	Write(dataType domain.DataType, key string, payload json.RawMessage) error

	// Read returns the cached payload for dataType and key.
	Read(dataType domain.DataType, key string) (json.RawMessage, error)

	// Keys returns every cached key for dataType in ascending order.
	Keys(dataType domain.DataType) ([]string, error)

	// ScanLatest returns the greatest cached date for dataType. ok is false
	// when nothing dated is cached.
	ScanLatest(dataType domain.DataType) (latest time.Time, ok bool, err error)
}

// FetchQuery filters journal fetch records.
type FetchQuery struct {
	RunID  string
	Status domain.FetchStatus
	Limit  int
}

// Journal records fetch runs and the outcome of every fetch.
type Journal interface {
	// StartRun inserts a new run and returns its generated ID.
	StartRun(ctx context.Context, mode domain.RunMode, startDate string) (string, error)

	// FinishRun marks the run finished with the given status.
	FinishRun(ctx context.Context, runID, status string) error

	// RecordFetch appends one fetch outcome.
	RecordFetch(ctx context.Context, rec domain.FetchRecord) error

	// ListRuns returns the most recent runs, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// ListFetches returns fetch records matching q, newest first.
	ListFetches(ctx context.Context, q FetchQuery) ([]domain.FetchRecord, error)
}
