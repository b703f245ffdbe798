// Package connwatch monitors the skill's external dependencies (the
// IoT database and the MQTT broker) and logs reachability transitions.
//
// The watcher is purely observational: the request path keeps its own
// error handling and the user always gets a spoken fallback when a
// dependency is down. connwatch exists so an operator reading the logs
// can tell a broker outage from a database outage without waiting for
// the next voice query to fail.
//
// While a dependency is down, probes back off exponentially from
// [initialRetryDelay] up to [maxRetryDelay]; while it is up, a fixed
// [pollInterval] applies.
package connwatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 60 * time.Second
	pollInterval      = 60 * time.Second
	probeTimeout      = 10 * time.Second
)

// Probe checks whether a dependency is reachable. Return nil if
// healthy. Must be safe for concurrent use.
type Probe func(ctx context.Context) error

// Watcher tracks reachability of one dependency.
type Watcher struct {
	name   string
	probe  Probe
	logger *slog.Logger
	ready  atomic.Bool

	// Interval fields exist so tests can shrink the schedule.
	initialDelay time.Duration
	maxDelay     time.Duration
	poll         time.Duration
}

// NewWatcher creates a watcher for the named dependency. Call
// [Watcher.Start] to begin probing.
func NewWatcher(name string, probe Probe, logger *slog.Logger) *Watcher {
	return &Watcher{
		name:         name,
		probe:        probe,
		logger:       logger,
		initialDelay: initialRetryDelay,
		maxDelay:     maxRetryDelay,
		poll:         pollInterval,
	}
}

// IsReady reports whether the dependency was reachable at the last
// probe.
func (w *Watcher) IsReady() bool {
	return w.ready.Load()
}

// Start probes the dependency until ctx is cancelled, logging every
// up/down transition. It blocks; run it in its own goroutine.
func (w *Watcher) Start(ctx context.Context) {
	delay := w.initialDelay
	for {
		err := w.runProbe(ctx)
		if ctx.Err() != nil {
			return
		}

		wasReady := w.ready.Load()
		switch {
		case err == nil && !wasReady:
			w.ready.Store(true)
			w.logger.Info("dependency reachable", "dependency", w.name)
		case err != nil && wasReady:
			w.ready.Store(false)
			w.logger.Warn("dependency became unreachable",
				"dependency", w.name,
				"error", err,
			)
		case err != nil:
			w.logger.Debug("dependency still unreachable",
				"dependency", w.name,
				"retry_in", delay.String(),
				"error", err,
			)
		}

		if err == nil {
			delay = w.initialDelay
			if !sleepCtx(ctx, w.poll) {
				return
			}
			continue
		}

		if !sleepCtx(ctx, delay) {
			return
		}
		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}

func (w *Watcher) runProbe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return w.probe(probeCtx)
}

// sleepCtx waits for d or until ctx is cancelled. Returns false if the
// context was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
