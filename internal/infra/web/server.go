package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	derror "goalforge-async/internal/error"
	"goalforge-async/internal/infra/logging"
	"goalforge-async/internal/infra/metrics"
	"goalforge-async/internal/usecase"
)

type Server struct {
	genUC usecase.GenerationUseCase
	auth  *AuthManager
	log   *zerolog.Logger
}

func NewServer(genUC usecase.GenerationUseCase, auth *AuthManager, logger *zerolog.Logger) *Server {
	return &Server{genUC: genUC, auth: auth, log: logger}
}

// Router builds the full HTTP surface: the authenticated async job API plus
// the unauthenticated health and metrics probes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracing)

	r.Get("/health", healthHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/async", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/generate", s.observed("generate", generateHandler(s.genUC, s.log)))
		r.Get("/status/{processID}", s.observed("status", statusHandler(s.genUC, s.log)))
		r.Post("/cancel/{processID}", s.observed("cancel", cancelHandler(s.genUC, s.log)))
		r.Post("/retry/{processID}", s.observed("retry", retryHandler(s.genUC, s.log)))
	})
	return r
}

// authMiddleware extracts the caller identity from a Bearer token and stores
// it in the request context. Requests without a usable identity never reach
// the handlers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		if hdr == "" {
			writeError(w, s.loggerFor(r), derror.Authentication("missing authorization header"))
			return
		}
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			writeError(w, s.loggerFor(r), derror.Authentication("malformed authorization header"))
			return
		}
		identity, err := s.auth.Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			writeError(w, s.loggerFor(r), err)
			return
		}
		ctx := WithIdentity(r.Context(), identity)
		ctx = logging.WithUserID(ctx, identity.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tracing stamps every request with a trace id carried into all log lines.
func (s *Server) tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observed wraps a handler with latency and status-code metrics per route.
func (s *Server) observed(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.ObserveHTTP(route, ww.Status(), float64(time.Since(start).Milliseconds()))
	}
}

func (s *Server) loggerFor(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), s.log)
}
