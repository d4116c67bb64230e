package session

import (
	"context"
	"time"

	"github.com/mpetrov/recap/internal/storage"
	"github.com/mpetrov/recap/internal/summary"
)

// Store persists session records, per-chunk transcriptions and the final
// transcript.
type Store interface {
	CreateSession(sess storage.Session) error
	UpdateStatus(id, status string) error
	FinishSession(id, status string, endedAt time.Time, duration time.Duration, audioPath string) error
	InsertChunk(sessionID string, seq int, text string, confidence float64, at time.Time) error
	InsertTranscript(sessionID, fullText string, sum summary.Result) error
}

// Summarizer produces a structured summary from the reconstructed transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (summary.Result, error)
}

// Archiver persists raw chunk audio per session and yields the final audio
// path at finalization.
type Archiver interface {
	StartSession(sessionID string) error
	AppendChunk(sessionID string, audio []byte) error
	EndSession(sessionID string) (string, error)
}

// EventBroadcaster delivers session notifications to subscribers.
type EventBroadcaster interface {
	BroadcastStatusChanged(sessionID string, status Status, at time.Time)
	BroadcastChunkProcessing(sessionID string, seq int, at time.Time)
	BroadcastTranscriptionUpdate(sessionID string, seq int, text string, confidence float64, at time.Time)
	BroadcastTranscriptionFailed(sessionID string, seq int, errDetail string)
	BroadcastSessionComplete(sessionID string, duration time.Duration, fullText string, sum summary.Result, at time.Time)
	BroadcastSessionError(sessionID string, errDetail string)
}
