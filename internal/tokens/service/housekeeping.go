package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/copperline/tokensmith/internal/tokens/manager"
)

// Housekeeping periodically purges expired token records so the store
// doesn't grow without bound.
type Housekeeping[T any] struct {
	Manager  *manager.Manager[T]
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeping creates the purge worker. An interval of zero or less
// defaults to one hour.
func NewHousekeeping[T any](mgr *manager.Manager[T], logger *slog.Logger, interval time.Duration) *Housekeeping[T] {
	if interval <= 0 {
		interval = time.Hour
	}

	return &Housekeeping[T]{
		Manager:  mgr,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut
// it down.
func (h *Housekeeping[T]) Start() {
	go h.run()
	h.Logger.Info("housekeeping started", "interval", h.Interval)
}

// Stop shuts the worker down and waits for any in-progress purge.
func (h *Housekeeping[T]) Stop() {
	close(h.stopCh)
	<-h.doneCh
	h.Logger.Info("housekeeping stopped")
}

func (h *Housekeeping[T]) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	// First purge right away so a restart doesn't wait a full interval.
	h.purge()

	for {
		select {
		case <-ticker.C:
			h.purge()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeping[T]) purge() {
	n, err := h.Manager.PurgeExpired(context.Background())
	if err != nil {
		h.Logger.Error("expired token purge failed", "error", err)
		return
	}
	h.Logger.Info("expired tokens purged", "removed", n)
}
