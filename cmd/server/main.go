package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/NoteTaker/internal/adapters/http"
	"github.com/dkeye/NoteTaker/internal/adapters/ingest"
	"github.com/dkeye/NoteTaker/internal/ai"
	"github.com/dkeye/NoteTaker/internal/app"
	"github.com/dkeye/NoteTaker/internal/audio"
	"github.com/dkeye/NoteTaker/internal/config"
	"github.com/dkeye/NoteTaker/internal/core"
	"github.com/dkeye/NoteTaker/internal/export"
	"github.com/dkeye/NoteTaker/internal/storage"
	"github.com/dkeye/NoteTaker/internal/transcription"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	deps := app.Deps{Emitter: core.NewEventEmitter()}

	hub := ingest.NewHub()
	deps.Recorder = audio.NewRecorder(hub, audio.RecorderOptions{
		SampleRate:       cfg.Audio.SampleRate,
		Channels:         cfg.Audio.Channels,
		BufferDuration:   cfg.Audio.BufferDuration,
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		FlushInterval:    cfg.Audio.FlushInterval,
	})

	if cfg.Whisper.URL != "" {
		transcriber, err := transcription.NewClient(transcription.Options{
			BaseURL:    cfg.Whisper.URL,
			Timeout:    cfg.Whisper.Timeout,
			MaxRetries: cfg.Whisper.MaxRetries,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build transcription client")
		}
		deps.Transcriber = transcriber
	} else {
		log.Warn().Msg("whisper.url not set, transcription disabled")
	}

	if cfg.AI.BaseURL != "" {
		summarizer, err := ai.NewClient(ai.Options{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build AI client")
		}
		deps.Summarizer = summarizer
	} else {
		log.Warn().Msg("ai.base_url not set, summarization disabled")
	}

	if cfg.Redis.Addr != "" {
		store, err := storage.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect redis")
		}
		deps.Storage = store
	} else {
		log.Info().Msg("redis.addr not set, using in-memory storage")
		deps.Storage = storage.NewMemory()
	}

	exporter, err := export.NewService(cfg.Export.Dir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init export service")
	}
	deps.Exporter = exporter

	manager := app.NewManager(deps, app.Config{
		AutoSummarize:    cfg.Summary.AutoSummarize,
		SummaryInterval:  cfg.Summary.Interval,
		BufferDuration:   cfg.Audio.BufferDuration,
		SilenceThreshold: cfg.Audio.SilenceThreshold,
		Language:         cfg.Summary.Language,
		SampleRate:       cfg.Audio.SampleRate,
		SaveAudioDir:     cfg.Audio.SaveDir,
	})

	r := router.SetupRouter(ctx, cfg, manager, hub)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("NoteTaker server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	manager.Cleanup(shutdownCtx)
	if deps.Storage != nil {
		_ = deps.Storage.Close()
	}
	if deps.Transcriber != nil {
		_ = deps.Transcriber.Close()
	}
	if deps.Summarizer != nil {
		_ = deps.Summarizer.Close()
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
