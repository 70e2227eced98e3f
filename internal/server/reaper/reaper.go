// Package reaper periodically purges expired and consumed artifacts whose
// bytes are still in the storage backend.
package reaper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/buzzdrop/internal/logging"
)

// DefaultBatch is the page size one sweep reads candidates in.
const DefaultBatch = 100

// Reaper is the subset of services.ArtifactService the loop drives.
type Reaper interface {
	Reap(ctx context.Context, limit int) (int, error)
}

type Loop struct {
	target   Reaper
	interval time.Duration
	batch    int
	logger   logging.Logger
}

func New(target Reaper, interval time.Duration, logger logging.Logger) *Loop {
	return &Loop{
		target:   target,
		interval: interval,
		batch:    DefaultBatch,
		logger:   logger.With("module", "reaper"),
	}
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables the loop and Run returns at once.
func (l *Loop) Run(ctx context.Context) {
	if l.interval <= 0 {
		l.logger.Info(ctx, "reaper disabled")
		return
	}

	l.logger.Info(ctx, "starting reaper", "interval", l.interval.String())
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info(ctx, "stopping reaper")
			return
		case <-ticker.C:
			l.Sweep(ctx)
		}
	}
}

// Sweep runs one reap pass. The target pages through every candidate
// itself, so a single call clears the backlog.
func (l *Loop) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	n, err := l.target.Reap(ctx, l.batch)
	if err != nil && ctx.Err() == nil {
		l.logger.Error(ctx, "reap failed", "error", err)
	}
	if n > 0 {
		l.logger.Info(ctx, "reaped artifacts", "count", n)
	}
	return n
}
