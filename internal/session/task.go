package session

import (
	"context"
	"log/slog"
	"time"
)

const defaultTaskTimeout = 5 * time.Second

// BestEffort is a persistence call whose failure is logged and otherwise
// ignored. Local session state never waits on or rolls back for it.
type BestEffort struct {
	Name    string
	Timeout time.Duration
	Fn      func(ctx context.Context) error
}

// Run executes the task on a fresh context bounded by its timeout.
func (t BestEffort) Run(logger *slog.Logger) {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := t.Fn(ctx); err != nil {
		logger.Warn("best-effort session task failed", "task", t.Name, "err", err)
	}
}
