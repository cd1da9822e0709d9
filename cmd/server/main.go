package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"avatar-live/internal/journal"
	"avatar-live/internal/media"
	"avatar-live/internal/platform/config"
	"avatar-live/internal/platform/logger"
	"avatar-live/internal/platform/metrics"
	"avatar-live/internal/stream"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	if err := config.Load(); err != nil {
		logger.New("info", "json").Error("config load failed", logger.Err(err))
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("info", "json").Error("invalid configuration", logger.Err(err))
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	met := metrics.New()

	ctx := context.Background()
	jr, err := journal.Open(ctx, cfg.JournalPath, log)
	if err != nil {
		log.Error("journal open failed", logger.Err(err))
		os.Exit(1)
	}

	engine, err := media.NewEngine(media.Options{
		FFmpegBin:      cfg.FFmpegBin,
		FFprobeBin:     cfg.FFprobeBin,
		Preset:         cfg.FFmpegPreset,
		TTSCommand:     cfg.TTSCommand,
		PiperBin:       cfg.PiperBin,
		PiperModel:     cfg.PiperModel,
		EspeakBin:      cfg.EspeakBin,
		MaxTextChars:   cfg.MaxTextChars,
		SegmentSeconds: cfg.SegmentSeconds,
		TempDir:        cfg.TempDir,
	})
	if err != nil {
		log.Error("media engine setup failed", logger.Err(err))
		os.Exit(1)
	}
	if err := engine.Check(ctx); err != nil {
		// Not fatal: sessions fail to start until the tools are installed.
		log.Warn("media tools unavailable", logger.Err(err))
	}

	store, err := stream.NewStore(cfg.OutputRoot, cfg.UploadRoot, cfg.MaxUploadBytes)
	if err != nil {
		log.Error("storage setup failed", logger.Err(err))
		os.Exit(1)
	}
	reg := stream.NewRegistry(store, engine, stream.Options{
		SegmentSeconds:     cfg.SegmentSeconds,
		PlaceholderSeconds: cfg.PlaceholderSeconds,
		MaxQueueDepth:      cfg.MaxQueueDepth,
		MaxTextChars:       cfg.MaxTextChars,
	}, log, met, jr)
	h := stream.NewHandler(reg, log, met, cfg.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(reg.Count()) }).ServeHTTP(w, r)
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", logger.Err(err))
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"output_root", cfg.OutputRoot,
		"segment_seconds", cfg.SegmentSeconds,
		"max_queue_depth", cfg.MaxQueueDepth,
		"journal", cfg.JournalPath != "",
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", logger.Err(err))
	}

	// Each session finishes its current unit; queued texts are dropped.
	reg.Close()
	if err := jr.Close(); err != nil {
		log.Error("journal close failed", logger.Err(err))
	}

	log.Info("server stopped")
}
