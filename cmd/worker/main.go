// Package main provides the intervue worker: the HTTP service that runs
// interviews and serves the interviewer dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/intervue/internal/ai"
	"github.com/thebtf/intervue/internal/config"
	"github.com/thebtf/intervue/internal/interview"
	"github.com/thebtf/intervue/internal/llm"
	"github.com/thebtf/intervue/internal/llm/gemini"
	"github.com/thebtf/intervue/internal/metrics"
	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/internal/storage"
	"github.com/thebtf/intervue/internal/watcher"
	"github.com/thebtf/intervue/internal/worker"
	"github.com/thebtf/intervue/internal/worker/sse"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "Enable debug logging")
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before configuration")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", *envFile).Msg("Failed to read env file")
	}

	if err := config.EnsureAll(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure data directories")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load config, using defaults")
		cfg = config.Default()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if *debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Worker failed")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	backend, err := storage.Open(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	store := roster.NewStore(backend, roster.WithNamespace(cfg.Namespace))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), worker.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Failed to flush roster on exit")
		}
	}()
	if err := store.Load(ctx); err != nil {
		log.Error().Err(err).Str("driver", backend.Driver).Msg("Failed to load roster, starting empty")
	}

	m, err := metrics.NewGlobal()
	if err != nil {
		return err
	}

	var provider llm.Provider
	if cfg.GeminiAPIKey != "" {
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini unavailable, using built-in questions and scoring")
		} else {
			provider = client
		}
	} else {
		log.Info().Msg("No GEMINI_API_KEY set, using built-in questions and scoring")
	}

	bank := ai.DefaultBank()
	if cfg.QuestionBankPath != "" {
		loaded, err := ai.LoadBank(cfg.QuestionBankPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.QuestionBankPath).Msg("Failed to load question bank, using default")
		} else {
			bank = loaded
		}
	}

	aiOpts := ai.Options{
		Provider:          provider,
		Bank:              bank,
		Metrics:           m,
		Timeout:           cfg.GenerationTimeoutDuration(),
		ResumeTokenBudget: cfg.ResumeTokenBudget,
	}
	summaries := ai.NewSummaryService(aiOpts)

	bc := sse.NewBroadcaster()
	machine := interview.NewMachine(store, interview.WithIDGenerator(uuid.NewString))
	flow := interview.NewFlow(machine, ai.NewQuestionService(aiOpts), summaries,
		interview.WithMetrics(m),
		interview.WithTickInterval(cfg.TickInterval()),
		interview.WithTimerListener(worker.TimerListener(bc)))

	svc := worker.NewService(worker.Options{
		Config:      cfg,
		Store:       store,
		Flow:        flow,
		Evaluator:   summaries,
		Broadcaster: bc,
		Version:     Version,
	})

	if err := flow.Recover(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover active session")
	}
	svc.SetReady(true)

	if w := startStateWatcher(ctx, cfg, backend, store); w != nil {
		defer func() { _ = w.Stop() }()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return flow.Run(gctx) })
	return g.Wait()
}

// startStateWatcher follows external edits of the file payload: a rewrite
// reloads the roster, a deletion writes it back.
func startStateWatcher(ctx context.Context, cfg *config.Config, backend *storage.Backend, store *roster.Store) *watcher.Watcher {
	if backend.Files == nil || !cfg.WatchState {
		return nil
	}
	path := backend.Files.PathFor(store.Namespace())
	w, err := watcher.New(path, func(op watcher.Op) {
		switch op {
		case watcher.OpModified:
			if err := store.Reload(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to reload roster after external edit")
			}
		case watcher.OpRemoved:
			log.Warn().Str("path", path).Msg("Roster file deleted, writing it back")
			if err := store.Rewrite(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to rewrite roster")
			}
		}
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create roster watcher")
		return nil
	}
	if err := w.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start roster watcher")
		return nil
	}
	log.Info().Str("path", path).Msg("Roster file watcher started")
	return w
}
