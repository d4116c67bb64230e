package server

import (
	"time"

	"github.com/mpetrov/recap/internal/summary"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type StatusChangedEvent struct {
	Event
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

type ChunkProcessingEvent struct {
	Event
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
}

type TranscriptionUpdateEvent struct {
	Event
	SessionID  string  `json:"session_id"`
	Sequence   int     `json:"sequence"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type TranscriptionFailedEvent struct {
	Event
	SessionID string `json:"session_id"`
	Sequence  int    `json:"sequence"`
	Error     string `json:"error"`
}

type SessionCompleteEvent struct {
	Event
	SessionID string         `json:"session_id"`
	Duration  float64        `json:"duration"`
	FullText  string         `json:"full_text"`
	Summary   summary.Result `json:"summary"`
}

type SessionErrorEvent struct {
	Event
	SessionID string `json:"session_id"`
	Error     string `json:"error"`
}

type AckEvent struct {
	Event
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Sequence  *int   `json:"sequence,omitempty"`
}

type CommandErrorEvent struct {
	Event
	SessionID string `json:"session_id,omitempty"`
	Action    string `json:"action"`
	Error     string `json:"error"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
