package pipeline

import (
	"context"
	"errors"
	"time"
)

// DefaultPollInterval matches the dashboard's fallback cadence.
const DefaultPollInterval = 4 * time.Second

// FetchFunc returns the current run status.
type FetchFunc func(ctx context.Context) (Progress, error)

// Poll calls fetch every interval until the run reaches a terminal status or
// ctx is done. Fetch errors are passed to onUpdate with the last good
// progress and polling continues. The terminal progress is returned.
func Poll(ctx context.Context, fetch FetchFunc, interval time.Duration, onUpdate func(Progress, error)) (Progress, error) {
	if fetch == nil {
		return Progress{}, errors.New("pipeline: nil fetch func")
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Progress
	for {
		p, err := fetch(ctx)
		if err == nil {
			last = p
		}
		if onUpdate != nil {
			onUpdate(last, err)
		}
		if err == nil && Terminal(p.Status) {
			return p, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
