// Package garmin talks to the Garmin Connect wellness API. The Client
// interface is what the fetcher depends on; HTTPClient is the production
// implementation.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// Client supplies raw vendor payloads. Errors should be *APIError values so
// callers can tell throttling from permanent failures.
type Client interface {
	// FetchDaily returns the payload of a per-day metric for date.
	FetchDaily(ctx context.Context, dataType domain.DataType, date time.Time) (json.RawMessage, error)

	// FetchRange returns the payload of a range metric covering [start, end].
	FetchRange(ctx context.Context, dataType domain.DataType, start, end time.Time) (json.RawMessage, error)
}

// HasData reports whether a payload carries anything: null, empty strings,
// empty arrays and empty objects do not.
func HasData(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return false
	}
	switch string(trimmed) {
	case "null", `""`, "[]", "{}":
		return false
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return false
		}
		return len(items) > 0
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return false
		}
		return len(fields) > 0
	}
	return true
}
