package session

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a session. There is no server-side idle
// state: creation and first recording start are one atomic operation.
type Status string

const (
	StatusRecording  Status = "recording"
	StatusPaused     Status = "paused"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// AudioSource identifies where the client captures audio from.
type AudioSource string

const (
	SourceMicrophone AudioSource = "microphone"
	SourceTabShare   AudioSource = "tab_share"
)

// State is the mutable record of one active recording session. The scalar
// fields and the result map are guarded by a single per-session mutex so
// status transitions and duration bookkeeping are serialized per session
// while independent sessions stay fully concurrent.
type State struct {
	ID      string
	OwnerID string
	Source  AudioSource
	Title   string

	mu          sync.Mutex
	status      Status
	startedAt   time.Time
	pausedAt    time.Time // zero unless currently paused
	totalPaused time.Duration
	nextSeq     int
	pending     int
	results     map[int]string

	// tasks tracks dispatched transcriptions so finalization can wait for
	// in-flight work with a bounded grace period.
	tasks sync.WaitGroup
}

func newState(id, ownerID string, source AudioSource, title string, now time.Time) *State {
	return &State{
		ID:        id,
		OwnerID:   ownerID,
		Source:    source,
		Title:     title,
		status:    StatusRecording,
		startedAt: now,
		results:   make(map[int]string),
	}
}

// Status returns the current lifecycle status.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartedAt returns the instant recording first started.
func (s *State) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// PausedSince reports the instant of the most recent pause, if the session
// is currently paused.
func (s *State) PausedSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPaused {
		return time.Time{}, false
	}
	return s.pausedAt, true
}

// TotalPaused returns the cumulative time spent paused.
func (s *State) TotalPaused() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalPaused
}

// NextSequence returns the sequence number the next accepted chunk would get.
func (s *State) NextSequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSeq
}

// PendingChunks returns the number of chunks dispatched but not yet resolved.
func (s *State) PendingChunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// RecordingDuration returns the effective recording duration at now:
// wall-clock elapsed minus all time spent paused. Never negative.
func (s *State) RecordingDuration(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordingDurationLocked(now)
}

func (s *State) recordingDurationLocked(now time.Time) time.Duration {
	d := now.Sub(s.startedAt) - s.totalPaused
	if s.status == StatusPaused {
		d -= now.Sub(s.pausedAt)
	}
	if d < 0 {
		d = 0
	}
	return d
}

// Pause transitions recording → paused. Pausing an already-paused session is
// rejected rather than silently ignored, surfacing caller bugs.
func (s *State) Pause(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRecording {
		return fmt.Errorf("pause session %s while %s: %w", s.ID, s.status, ErrInvalidState)
	}
	s.status = StatusPaused
	s.pausedAt = now
	return nil
}

// Resume transitions paused → recording, folding the elapsed pause into
// totalPaused.
func (s *State) Resume(now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPaused {
		return fmt.Errorf("resume session %s while %s: %w", s.ID, s.status, ErrInvalidState)
	}
	s.totalPaused += now.Sub(s.pausedAt)
	s.pausedAt = time.Time{}
	s.status = StatusRecording
	return nil
}

// BeginProcessing transitions recording/paused → processing and returns the
// final effective duration, computed from a single now capture.
func (s *State) BeginProcessing(now time.Time) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case StatusRecording:
	case StatusPaused:
	default:
		return 0, fmt.Errorf("stop session %s while %s: %w", s.ID, s.status, ErrInvalidState)
	}

	duration := s.recordingDurationLocked(now)
	if s.status == StatusPaused {
		s.totalPaused += now.Sub(s.pausedAt)
		s.pausedAt = time.Time{}
	}
	s.status = StatusProcessing
	return duration, nil
}

func (s *State) finish(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// acceptChunk assigns the next sequence number to an inbound chunk. Chunks
// arriving outside recording state are rejected, not buffered.
func (s *State) acceptChunk() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRecording {
		return 0, fmt.Errorf("ingest chunk for session %s while %s: %w", s.ID, s.status, ErrInvalidState)
	}

	seq := s.nextSeq
	s.nextSeq++
	s.pending++
	s.tasks.Add(1)
	return seq, nil
}

// completeChunk resolves a dispatched chunk. On success the text is recorded
// under the chunk's sequence number; on failure the slot stays absent.
func (s *State) completeChunk(seq int, text string, ok bool) {
	s.mu.Lock()
	if ok && text != "" {
		s.results[seq] = text
	}
	s.pending--
	s.mu.Unlock()
	s.tasks.Done()
}

// FullText reconstructs the transcript from all resolved chunks, ordered by
// sequence number regardless of completion order.
func (s *State) FullText() string {
	s.mu.Lock()
	snapshot := make(map[int]string, len(s.results))
	for seq, text := range s.results {
		snapshot[seq] = text
	}
	s.mu.Unlock()

	return ReconstructText(snapshot)
}

// WaitForChunks blocks until all dispatched transcriptions resolve or the
// grace period elapses. It reports whether the session fully drained.
// Callers must have moved the session out of recording state first so no new
// chunks can be accepted while waiting.
func (s *State) WaitForChunks(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
