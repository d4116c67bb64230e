package session

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically finalizes sessions whose client never came back:
// anything left paused longer than maxPausedAge is stopped so its transcript
// and summary are not lost.
type Reaper struct {
	controller   *Controller
	interval     time.Duration
	maxPausedAge time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewReaper(controller *Controller, interval, maxPausedAge time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	if maxPausedAge <= 0 {
		maxPausedAge = 30 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reaper{
		controller:   controller,
		interval:     interval,
		maxPausedAge: maxPausedAge,
		logger:       logger,
		now:          time.Now,
	}
}

// Run sweeps until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	now := r.now()
	r.controller.Registry().ForEach(func(st *State) {
		pausedAt, paused := st.PausedSince()
		if !paused || now.Sub(pausedAt) < r.maxPausedAge {
			return
		}

		r.logger.Info("reaping idle paused session",
			"session_id", st.ID, "paused_for", now.Sub(pausedAt))
		if err := r.controller.Stop(st.ID); err != nil {
			r.logger.Warn("reap stop failed", "session_id", st.ID, "error", err)
		}
	})
}
