package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"karmacash/internal/auth"
	"karmacash/internal/cache"
	"karmacash/internal/log"
	"karmacash/internal/middleware/trace"
	"karmacash/internal/services"
	"karmacash/internal/storage"
)

// Server is the HTTP front of the budget service. It owns the response
// cache for summary reads and delegates everything else to the services.
type Server struct {
	http.Server

	repo         *storage.SQLiteRepository
	expander     *services.Expander
	recalculator *services.Recalculator
	provider     auth.Provider
	logger       *log.Logger
	tracer       *trace.Middleware

	summaryCache     *cache.TTLCache[summaryResponse]
	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, repo *storage.SQLiteRepository, expander *services.Expander, recalculator *services.Recalculator, provider auth.Provider, cacheTTL time.Duration, logger *log.Logger) *Server {
	s := &Server{
		repo:             repo,
		expander:         expander,
		recalculator:     recalculator,
		provider:         provider,
		logger:           logger.WithComponent(log.ComponentHTTP),
		tracer:           trace.NewMiddleware(logger),
		summaryCache:     cache.New[summaryResponse](200, cacheTTL),
		stopCacheCleanup: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(s.tracer.Handler)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/metrics", s.handleMetrics)
		r.Route("/budgets/{budgetID}", func(r chi.Router) {
			r.Post("/rules", s.handleCreateRule)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleID}", s.handleGetRule)
			r.Put("/rules/{ruleID}", s.handleUpdateRule)
			r.Delete("/rules/{ruleID}", s.handleDeleteRule)
			r.Post("/rules/{ruleID}/instances", s.handleRuleInstances)
			r.Post("/expand", s.handleExpandAll)
			r.Get("/months/{month}", s.handleGetSummary)
			r.Get("/months/{month}/summary", s.handleGetSummary)
			r.Post("/months/{month}/recalculate", s.handleRecalculate)
			r.Put("/months/{month}/allocations", s.handleSetAllocations)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.cacheCleanupLoop()

	return s
}

// requireAuth authenticates the request and stores the caller identity in
// the context for handlers and audit logs.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := s.provider.Authenticate(r)
		if err != nil {
			writeError(w, KindUnauthenticated, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) cacheCleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.summaryCache.CleanExpired(); n > 0 {
				s.logger.Debug("cache cleanup", "expired", n)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutine and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.tracer.GetMetrics())
}
