package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mpetrov/recap/internal/metrics"
	"github.com/mpetrov/recap/internal/session"
	"github.com/mpetrov/recap/internal/summary"
)

// Hub fans session events out to every connected websocket client. Slow
// clients are skipped rather than blocking the broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHub(m *metrics.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[chan []byte]struct{}),
		metrics: m,
		logger:  logger,
	}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
	if h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastStatusChanged(sessionID string, status session.Status, at time.Time) {
	h.broadcastEvent(StatusChangedEvent{
		Event:     newEvent("status_changed", at),
		SessionID: sessionID,
		Status:    string(status),
	})
}

func (h *Hub) BroadcastChunkProcessing(sessionID string, seq int, at time.Time) {
	h.broadcastEvent(ChunkProcessingEvent{
		Event:     newEvent("chunk_processing", at),
		SessionID: sessionID,
		Sequence:  seq,
	})
}

func (h *Hub) BroadcastTranscriptionUpdate(sessionID string, seq int, text string, confidence float64, at time.Time) {
	h.broadcastEvent(TranscriptionUpdateEvent{
		Event:      newEvent("transcription_update", at),
		SessionID:  sessionID,
		Sequence:   seq,
		Text:       text,
		Confidence: confidence,
	})
}

func (h *Hub) BroadcastTranscriptionFailed(sessionID string, seq int, errDetail string) {
	h.broadcastEvent(TranscriptionFailedEvent{
		Event:     newEvent("transcription_failed", time.Now().UTC()),
		SessionID: sessionID,
		Sequence:  seq,
		Error:     errDetail,
	})
}

func (h *Hub) BroadcastSessionComplete(sessionID string, duration time.Duration, fullText string, sum summary.Result, at time.Time) {
	h.broadcastEvent(SessionCompleteEvent{
		Event:     newEvent("session_complete", at),
		SessionID: sessionID,
		Duration:  duration.Seconds(),
		FullText:  fullText,
		Summary:   sum,
	})
}

func (h *Hub) BroadcastSessionError(sessionID, errDetail string) {
	h.broadcastEvent(SessionErrorEvent{
		Event:     newEvent("session_error", time.Now().UTC()),
		SessionID: sessionID,
		Error:     errDetail,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("event marshal failed", "error", err)
		return
	}
	h.Broadcast(payload)
}
