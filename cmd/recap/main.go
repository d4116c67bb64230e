package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mpetrov/recap/internal/audio"
	"github.com/mpetrov/recap/internal/config"
	"github.com/mpetrov/recap/internal/gdrive"
	"github.com/mpetrov/recap/internal/metrics"
	"github.com/mpetrov/recap/internal/server"
	"github.com/mpetrov/recap/internal/session"
	"github.com/mpetrov/recap/internal/storage"
	"github.com/mpetrov/recap/internal/summary"
	"github.com/mpetrov/recap/internal/transcribe"
)

func main() {
	configPath := flag.String("config", "recap.yaml", "path to config file")
	flag.Parse()

	cfg, warnings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("recap starting", "listen_addr", cfg.ListenAddr, "transcriber", cfg.Transcriber)
	for _, w := range warnings {
		logger.Warn(w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	hub := server.NewHub(m, logger)
	registry := session.NewRegistry()
	archiver := audio.NewArchiver(cfg.AudioDir)

	var transcriber transcribe.Transcriber
	switch cfg.Transcriber {
	case "deepgram":
		if cfg.DeepgramAPIKey != "" {
			transcriber = transcribe.NewDeepgram(cfg.DeepgramAPIKey, "nova-2")
		}
	default:
		if cfg.OpenAIAPIKey != "" {
			transcriber = transcribe.NewWhisper(cfg.OpenAIAPIKey, cfg.WhisperModel)
		}
	}
	if transcriber == nil {
		logger.Warn("no transcriber configured, chunks will fail transcription")
		transcriber = unconfiguredTranscriber{}
	}

	var summarizer session.Summarizer
	if cfg.OpenAIAPIKey != "" {
		summarizer = summary.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	}

	var syncer *gdrive.Syncer
	if cfg.GDriveFolderID != "" {
		syncer, err = gdrive.NewSyncer(context.Background(), cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if err != nil {
			logger.Warn("gdrive sync disabled", "error", err)
			syncer = nil
		}
	}

	var broadcaster session.EventBroadcaster = hub
	if syncer != nil {
		broadcaster = &transcriptPublisher{Hub: hub, syncer: syncer, logger: logger}
	}

	controller := session.NewController(session.ControllerConfig{
		Registry:      registry,
		Store:         store,
		Summarizer:    summarizer,
		Archiver:      archiver,
		Hub:           broadcaster,
		Metrics:       m,
		Logger:        logger,
		FinalizeGrace: cfg.ParsedFinalizeGrace(),
	})

	pipeline := session.NewPipeline(session.PipelineConfig{
		Registry:          registry,
		Transcriber:       transcriber,
		Store:             store,
		Archiver:          archiver,
		Hub:               hub,
		Metrics:           m,
		Logger:            logger,
		TranscribeTimeout: cfg.ParsedTranscribeTimeout(),
	})

	reaper := session.NewReaper(controller, cfg.ParsedReapInterval(), cfg.ParsedIdleSessionTimeout(), logger)

	handler := server.Handler(server.Config{
		Hub:      hub,
		Store:    store,
		Controls: controller,
		Ingester: pipeline,
		Status: server.StatusHooks{
			ActiveSessions: registry.Len,
			Warnings:       func() []string { return warnings },
		},
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		reaper.Run(gctx)
		return nil
	})

	if syncer != nil {
		g.Go(func() error {
			runGDriveSync(gctx, syncer, cfg.DBPath, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("recap shutting down")
		controller.StopAll()

		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := controller.Drain(drainCtx); err != nil {
			logger.Warn("session drain incomplete", "error", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	logger.Info("recap listening", "addr", cfg.ListenAddr)
	if err := g.Wait(); err != nil {
		logger.Error("recap exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("recap stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func runGDriveSync(ctx context.Context, syncer *gdrive.Syncer, dbPath string, logger *slog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := syncer.SyncDatabase(dbPath); err != nil {
				logger.Warn("gdrive sync failed", "error", err)
			}
		}
	}
}

// unconfiguredTranscriber stands in when no API key is present so the rest of
// the service keeps running; every chunk resolves as failed.
type unconfiguredTranscriber struct{}

func (unconfiguredTranscriber) Transcribe(context.Context, []byte) (transcribe.Result, error) {
	return transcribe.Result{}, errors.New("no transcriber configured")
}

// transcriptPublisher forwards all events to the websocket hub and
// additionally uploads completed transcripts to Google Drive.
type transcriptPublisher struct {
	*server.Hub
	syncer *gdrive.Syncer
	logger *slog.Logger
}

func (p *transcriptPublisher) BroadcastSessionComplete(sessionID string, duration time.Duration, fullText string, sum summary.Result, at time.Time) {
	p.Hub.BroadcastSessionComplete(sessionID, duration, fullText, sum, at)

	go func() {
		if err := p.syncer.UploadTranscript(sessionID, fullText, sum); err != nil {
			p.logger.Warn("gdrive transcript upload failed", "session_id", sessionID, "error", err)
		}
	}()
}
