// Package worker provides the HTTP service for intervue: the candidate chat
// intents and the interviewer dashboard over one roster.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/intervue/internal/config"
	"github.com/thebtf/intervue/internal/interview"
	"github.com/thebtf/intervue/internal/roster"
	"github.com/thebtf/intervue/internal/worker/sse"
	"github.com/thebtf/intervue/pkg/models"
)

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second

// AnswerEvaluator scores a single answered question.
type AnswerEvaluator interface {
	EvaluateAnswer(ctx context.Context, q models.Question, answer string) models.AnswerEvaluation
}

// Options wires the service dependencies.
type Options struct {
	Config      *config.Config
	Store       *roster.Store
	Flow        *interview.Flow
	Evaluator   AnswerEvaluator
	Broadcaster *sse.Broadcaster
	Version     string
}

// Service is the worker HTTP service.
type Service struct {
	startTime      time.Time
	config         *config.Config
	store          *roster.Store
	flow           *interview.Flow
	evaluator      AnswerEvaluator
	sseBroadcaster *sse.Broadcaster
	router         *chi.Mux
	evaluations    singleflight.Group
	version        string
	ready          atomic.Bool
}

// NewService builds the router and subscribes the SSE stream to roster
// changes. The service starts not ready; call SetReady once startup work
// such as recovery is done.
func NewService(opts Options) *Service {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	bc := opts.Broadcaster
	if bc == nil {
		bc = sse.NewBroadcaster()
	}

	svc := &Service{
		version:        opts.Version,
		config:         cfg,
		store:          opts.Store,
		flow:           opts.Flow,
		evaluator:      opts.Evaluator,
		sseBroadcaster: bc,
		router:         chi.NewRouter(),
		startTime:      time.Now(),
	}
	svc.setupRoutes()

	svc.store.OnChange(func(ev roster.Event) {
		// Listeners run on the mutating goroutine; publish off it.
		go bc.Publish(sse.EventRoster, ev)
	})

	return svc
}

// TimerListener returns a callback for interview.WithTimerListener that
// pushes countdown updates to connected views.
func TimerListener(bc *sse.Broadcaster) func(interview.TimerState) {
	return func(st interview.TimerState) {
		bc.Publish(sse.EventTimer, st)
	}
}

// Handler returns the root HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.router
}

// SetReady marks the service as ready to serve API requests.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.config.WorkerHost, strconv.Itoa(s.config.WorkerPort))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("version", s.version).Msg("Worker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("Worker stopped")
	return nil
}

func (s *Service) setupRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.Get("/api/version", s.handleVersion)

	r.Group(func(r chi.Router) {
		r.Use(s.requireReady)

		r.Get("/api/events", s.sseBroadcaster.HandleSSE)

		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Post("/sample", s.handleSampleSession)
			r.Post("/{id}/activate", s.handleActivateSession)
			r.Route("/active", func(r chi.Router) {
				r.Get("/", s.handleActiveSession)
				r.Post("/input", s.handleInput)
				r.Put("/draft", s.handleDraft)
				r.Post("/submit", s.handleSubmit)
				r.Post("/deactivate", s.handleDeactivate)
			})
		})

		r.Route("/api/candidates", func(r chi.Router) {
			r.Get("/", s.handleListCandidates)
			r.Get("/{id}", s.handleGetCandidate)
			r.Post("/{id}/questions/{qid}/evaluate", s.handleEvaluateAnswer)
		})

		r.Get("/api/dashboard", s.handleDashboard)
		r.Post("/api/reset", s.handleReset)
	})
}

// requireReady rejects API calls until startup has finished.
func (s *Service) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			writeError(w, http.StatusServiceUnavailable, "service not ready")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request at debug level with zerolog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
