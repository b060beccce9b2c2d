package gather

import (
	"context"
	"time"

	"github.com/tuckwoor/garmin-analysis/internal/domain"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns early if ctx is cancelled.
	Run(ctx context.Context) error
}

// PlanWindows splits [start, today] into consecutive windows of windowDays
// calendar days. The last window ends at today. It returns nil when start is
// after today.
func PlanWindows(start, today time.Time, windowDays int) []domain.FetchWindow {
	if windowDays < 1 {
		windowDays = 1
	}

	var windows []domain.FetchWindow
	for ws := start; !ws.After(today); {
		we := ws.AddDate(0, 0, windowDays-1)
		if we.After(today) {
			we = today
		}
		windows = append(windows, domain.FetchWindow{Start: ws, End: we})
		ws = we.AddDate(0, 0, 1)
	}
	return windows
}
