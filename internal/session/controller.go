package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpetrov/recap/internal/metrics"
	"github.com/mpetrov/recap/internal/storage"
	"github.com/mpetrov/recap/internal/summary"
)

// Controller drives sessions through their lifecycle:
// recording → paused → processing → completed/failed, including auto-pause
// recovery when a client disconnects mid-recording.
type Controller struct {
	registry      *Registry
	store         Store
	summarizer    Summarizer
	archiver      Archiver
	hub           EventBroadcaster
	metrics       *metrics.Metrics
	logger        *slog.Logger
	finalizeGrace time.Duration
	now           func() time.Time

	finalizes sync.WaitGroup
}

// ControllerConfig holds all dependencies for a [Controller]. Store,
// Summarizer, Archiver, Hub and Metrics are optional; a nil summarizer
// finalizes sessions with an empty summary.
type ControllerConfig struct {
	Registry      *Registry
	Store         Store
	Summarizer    Summarizer
	Archiver      Archiver
	Hub           EventBroadcaster
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	FinalizeGrace time.Duration
}

func NewController(cfg ControllerConfig) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.FinalizeGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	return &Controller{
		registry:      cfg.Registry,
		store:         cfg.Store,
		summarizer:    cfg.Summarizer,
		archiver:      cfg.Archiver,
		hub:           cfg.Hub,
		metrics:       cfg.Metrics,
		logger:        logger,
		finalizeGrace: grace,
		now:           time.Now,
	}
}

// Registry returns the controller's session table.
func (c *Controller) Registry() *Registry {
	return c.registry
}

// Start creates a session and begins recording in one atomic operation.
// An empty id asks the server to assign one.
func (c *Controller) Start(id, ownerID string, source AudioSource, title string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}

	now := c.now()
	st, err := c.registry.Create(id, ownerID, source, title, now)
	if err != nil {
		return "", err
	}

	if c.store != nil {
		err := c.store.CreateSession(storage.Session{
			ID:          id,
			OwnerID:     ownerID,
			AudioSource: string(source),
			Title:       title,
			Status:      string(StatusRecording),
			StartedAt:   now,
		})
		if err != nil {
			c.registry.Remove(id)
			return "", fmt.Errorf("persist session start: %w", err)
		}
	}

	if c.archiver != nil {
		if err := c.archiver.StartSession(id); err != nil {
			c.logger.Warn("audio archive unavailable for session",
				"session_id", id, "error", err)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordSessionStarted()
	}
	c.logger.Info("session started",
		"session_id", id, "owner_id", ownerID, "audio_source", string(source))

	c.broadcastStatus(st, StatusRecording, now)
	return id, nil
}

// Pause transitions a recording session to paused.
func (c *Controller) Pause(id string) error {
	st, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	now := c.now()
	if err := st.Pause(now); err != nil {
		return err
	}

	c.persistStatus(id, StatusPaused)
	c.broadcastStatus(st, StatusPaused, now)
	return nil
}

// Resume transitions a paused session back to recording, folding the elapsed
// pause into the session's paused-duration total.
func (c *Controller) Resume(id string) error {
	st, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	now := c.now()
	if err := st.Resume(now); err != nil {
		return err
	}

	c.persistStatus(id, StatusRecording)
	c.broadcastStatus(st, StatusRecording, now)
	return nil
}

// Stop transitions the session to processing and kicks off finalization in
// the background: wait for in-flight transcriptions (bounded by the grace
// period), reconstruct the transcript, summarize, persist, complete.
func (c *Controller) Stop(id string) error {
	st, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	now := c.now()
	duration, err := st.BeginProcessing(now)
	if err != nil {
		return err
	}

	c.persistStatus(id, StatusProcessing)
	c.broadcastStatus(st, StatusProcessing, now)

	c.finalizes.Add(1)
	go func() {
		defer c.finalizes.Done()
		c.finalize(st, now, duration)
	}()
	return nil
}

// HandleDisconnect auto-pauses every session still recording, so orphaned
// sessions stop accumulating duration after their client vanished. Sessions
// already paused, processing or terminal are untouched. The session stays in
// the registry and remains addressable if the client reconnects.
// It never fails: one bad entry must not block the rest of the scan.
func (c *Controller) HandleDisconnect() {
	now := c.now()
	c.registry.ForEach(func(st *State) {
		if err := st.Pause(now); err != nil {
			return
		}

		c.logger.Info("auto-paused orphaned session", "session_id", st.ID)
		c.persistStatus(st.ID, StatusPaused)
		c.broadcastStatus(st, StatusPaused, now)
	})
}

// StopAll stops every session that can still be stopped. Used at shutdown.
func (c *Controller) StopAll() {
	c.registry.ForEach(func(st *State) {
		if err := c.Stop(st.ID); err != nil && !errors.Is(err, ErrInvalidState) {
			c.logger.Warn("stop session at shutdown failed",
				"session_id", st.ID, "error", err)
		}
	})
}

// Drain waits for all in-flight finalizations, bounded by ctx.
func (c *Controller) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.finalizes.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) finalize(st *State, stoppedAt time.Time, duration time.Duration) {
	start := c.now()

	if drained := st.WaitForChunks(c.finalizeGrace); !drained {
		// Chunks still pending after the grace period are treated as absent,
		// equivalent to failed.
		c.logger.Warn("finalize grace elapsed with chunks pending",
			"session_id", st.ID, "pending", st.PendingChunks())
	}

	fullText := st.FullText()

	audioPath := ""
	if c.archiver != nil {
		path, err := c.archiver.EndSession(st.ID)
		if err != nil {
			c.logger.Warn("close audio archive failed", "session_id", st.ID, "error", err)
		} else {
			audioPath = path
		}
	}

	var sum summary.Result
	if c.summarizer != nil {
		var err error
		sum, err = c.summarizer.Summarize(context.Background(), fullText)
		if err != nil {
			c.fail(st, fmt.Errorf("generate summary: %w", err))
			return
		}
	}

	if c.store != nil {
		if err := c.store.InsertTranscript(st.ID, fullText, sum); err != nil {
			c.fail(st, fmt.Errorf("persist transcript: %w", err))
			return
		}
		if err := c.store.FinishSession(st.ID, string(StatusCompleted), stoppedAt, duration, audioPath); err != nil {
			c.fail(st, fmt.Errorf("persist session completion: %w", err))
			return
		}
	}

	st.finish(StatusCompleted)
	c.registry.Remove(st.ID)

	if c.metrics != nil {
		c.metrics.RecordSessionCompleted(duration.Seconds())
		c.metrics.RecordFinalize(c.now().Sub(start).Seconds())
	}
	c.logger.Info("session completed",
		"session_id", st.ID, "duration", duration, "transcript_chars", len(fullText))

	if c.hub != nil {
		c.hub.BroadcastSessionComplete(st.ID, duration, fullText, sum, c.now())
	}
}

// fail marks the session terminally failed, persists the status, notifies
// subscribers and cleans up the registry entry. The transcript record is not
// written on this path; chunk rows persisted during recording remain.
func (c *Controller) fail(st *State, cause error) {
	st.finish(StatusFailed)
	c.persistStatus(st.ID, StatusFailed)
	c.registry.Remove(st.ID)

	if c.metrics != nil {
		c.metrics.RecordSessionFailed()
	}
	c.logger.Error("session failed", "session_id", st.ID, "error", cause)

	if c.hub != nil {
		c.hub.BroadcastSessionError(st.ID, cause.Error())
	}
}

func (c *Controller) persistStatus(id string, status Status) {
	if c.store == nil {
		return
	}
	if err := c.store.UpdateStatus(id, string(status)); err != nil {
		c.logger.Warn("persist status failed",
			"session_id", id, "status", string(status), "error", err)
	}
}

func (c *Controller) broadcastStatus(st *State, status Status, at time.Time) {
	if c.hub != nil {
		c.hub.BroadcastStatusChanged(st.ID, status, at)
	}
}
