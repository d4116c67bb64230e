package session

import (
	"context"
	"sync"
	"time"

	"github.com/mpetrov/recap/internal/storage"
	"github.com/mpetrov/recap/internal/summary"
	"github.com/mpetrov/recap/internal/transcribe"
)

type storeMock struct {
	mu          sync.Mutex
	sessions    map[string]storage.Session
	status      map[string]string
	chunks      map[string]map[int]string
	transcripts map[string]string
	summaries   map[string]summary.Result
	durations   map[string]time.Duration

	createErr           error
	insertTranscriptErr error
	finishErr           error
}

func newStoreMock() *storeMock {
	return &storeMock{
		sessions:    map[string]storage.Session{},
		status:      map[string]string{},
		chunks:      map[string]map[int]string{},
		transcripts: map[string]string{},
		summaries:   map[string]summary.Result{},
		durations:   map[string]time.Duration{},
	}
}

func (s *storeMock) CreateSession(sess storage.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.sessions[sess.ID] = sess
	s.status[sess.ID] = sess.Status
	return nil
}

func (s *storeMock) UpdateStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = status
	return nil
}

func (s *storeMock) FinishSession(id, status string, _ time.Time, duration time.Duration, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	s.status[id] = status
	s.durations[id] = duration
	return nil
}

func (s *storeMock) InsertChunk(sessionID string, seq int, text string, _ float64, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks[sessionID] == nil {
		s.chunks[sessionID] = map[int]string{}
	}
	s.chunks[sessionID][seq] = text
	return nil
}

func (s *storeMock) InsertTranscript(sessionID, fullText string, sum summary.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertTranscriptErr != nil {
		return s.insertTranscriptErr
	}
	s.transcripts[sessionID] = fullText
	s.summaries[sessionID] = sum
	return nil
}

func (s *storeMock) statusOf(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

func (s *storeMock) transcriptOf(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.transcripts[id]
	return text, ok
}

type summarizerMock struct {
	mu         sync.Mutex
	result     summary.Result
	err        error
	transcript string
	calls      int
}

func (s *summarizerMock) Summarize(_ context.Context, transcript string) (summary.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.transcript = transcript
	if s.err != nil {
		return summary.Result{}, s.err
	}
	return s.result, nil
}

type transcriberMock struct {
	fn func(audio []byte) (transcribe.Result, error)
}

func (t *transcriberMock) Transcribe(_ context.Context, audio []byte) (transcribe.Result, error) {
	return t.fn(audio)
}

type hubMock struct {
	mu sync.Mutex

	statusChanges  []Status
	chunkSeqs      []int
	updates        map[int]string
	failedSeqs     []int
	completeCount  int
	completeText   string
	completeTotal  time.Duration
	errorCount     int
	latestErrorMsg string
}

func newHubMock() *hubMock {
	return &hubMock{updates: map[int]string{}}
}

func (h *hubMock) BroadcastStatusChanged(_ string, status Status, _ time.Time) {
	h.mu.Lock()
	h.statusChanges = append(h.statusChanges, status)
	h.mu.Unlock()
}

func (h *hubMock) BroadcastChunkProcessing(_ string, seq int, _ time.Time) {
	h.mu.Lock()
	h.chunkSeqs = append(h.chunkSeqs, seq)
	h.mu.Unlock()
}

func (h *hubMock) BroadcastTranscriptionUpdate(_ string, seq int, text string, _ float64, _ time.Time) {
	h.mu.Lock()
	h.updates[seq] = text
	h.mu.Unlock()
}

func (h *hubMock) BroadcastTranscriptionFailed(_ string, seq int, _ string) {
	h.mu.Lock()
	h.failedSeqs = append(h.failedSeqs, seq)
	h.mu.Unlock()
}

func (h *hubMock) BroadcastSessionComplete(_ string, duration time.Duration, fullText string, _ summary.Result, _ time.Time) {
	h.mu.Lock()
	h.completeCount++
	h.completeText = fullText
	h.completeTotal = duration
	h.mu.Unlock()
}

func (h *hubMock) BroadcastSessionError(_ string, errDetail string) {
	h.mu.Lock()
	h.errorCount++
	h.latestErrorMsg = errDetail
	h.mu.Unlock()
}

func (h *hubMock) statusCount(status Status) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, s := range h.statusChanges {
		if s == status {
			n++
		}
	}
	return n
}

// fakeClock serializes time for lifecycle tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{t: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
