package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mpetrov/recap/internal/metrics"
	"github.com/mpetrov/recap/internal/transcribe"
)

// Pipeline accepts inbound audio chunks, assigns sequence numbers and
// dispatches transcription work. Completion order is unconstrained; the
// sequence number assigned at ingestion is the canonical chunk order.
type Pipeline struct {
	registry    *Registry
	transcriber transcribe.Transcriber
	store       Store
	archiver    Archiver
	hub         EventBroadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
	timeout     time.Duration
	now         func() time.Time
}

// PipelineConfig holds the collaborators for a [Pipeline]. Store, Archiver,
// Hub and Metrics are optional.
type PipelineConfig struct {
	Registry          *Registry
	Transcriber       transcribe.Transcriber
	Store             Store
	Archiver          Archiver
	Hub               EventBroadcaster
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	TranscribeTimeout time.Duration
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.TranscribeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Pipeline{
		registry:    cfg.Registry,
		transcriber: cfg.Transcriber,
		store:       cfg.Store,
		archiver:    cfg.Archiver,
		hub:         cfg.Hub,
		metrics:     cfg.Metrics,
		logger:      logger,
		timeout:     timeout,
		now:         time.Now,
	}
}

// Ingest accepts one audio chunk for the session, assigns its sequence
// number and launches the transcription task. It returns the assigned
// sequence before transcription completes.
func (p *Pipeline) Ingest(sessionID string, audio []byte, arrival time.Time) (int, error) {
	st, err := p.registry.Get(sessionID)
	if err != nil {
		return 0, err
	}

	seq, err := st.acceptChunk()
	if err != nil {
		if p.metrics != nil && errors.Is(err, ErrInvalidState) {
			p.metrics.RecordChunkRejected()
		}
		return 0, err
	}

	if p.metrics != nil {
		p.metrics.RecordChunkIngested(len(audio))
	}

	if p.archiver != nil {
		if err := p.archiver.AppendChunk(sessionID, audio); err != nil {
			p.logger.Warn("archive chunk audio failed",
				"session_id", sessionID, "seq", seq, "error", err)
		}
	}

	if p.hub != nil {
		p.hub.BroadcastChunkProcessing(sessionID, seq, arrival)
	}

	go p.transcribeChunk(st, seq, audio)
	return seq, nil
}

// transcribeChunk runs on its own goroutine, one per in-flight chunk.
// Failures are isolated: the chunk's slot stays absent and the session
// continues.
func (p *Pipeline) transcribeChunk(st *State, seq int, audio []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := p.now()
	res, err := p.transcriber.Transcribe(ctx, audio)
	elapsed := p.now().Sub(start)

	if err != nil {
		st.completeChunk(seq, "", false)
		if p.metrics != nil {
			p.metrics.RecordTranscription(false, elapsed.Seconds())
		}
		p.logger.Warn("chunk transcription failed",
			"session_id", st.ID, "seq", seq, "error", err)
		if p.hub != nil {
			p.hub.BroadcastTranscriptionFailed(st.ID, seq, err.Error())
		}
		return
	}

	st.completeChunk(seq, res.Text, true)
	if p.metrics != nil {
		p.metrics.RecordTranscription(true, elapsed.Seconds())
	}

	// Chunk rows are best-effort: a failed write must not abort the session.
	if p.store != nil {
		if err := p.store.InsertChunk(st.ID, seq, res.Text, res.Confidence, p.now()); err != nil {
			p.logger.Warn("persist chunk failed",
				"session_id", st.ID, "seq", seq, "error", err)
		}
	}

	if p.hub != nil {
		p.hub.BroadcastTranscriptionUpdate(st.ID, seq, res.Text, res.Confidence, p.now())
	}
}
