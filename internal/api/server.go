package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/billix-app/scored/internal/audit"
	"github.com/billix-app/scored/internal/service"
)

type Server struct {
	router  *chi.Mux
	port    int
	svc     *service.Service
	auditor *audit.Auditor
}

func NewServer(port int, apiToken string, svc *service.Service, auditor *audit.Auditor) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		svc:     svc,
		auditor: auditor,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/scored/status", s.status)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1/scores", func(r chi.Router) {
		r.Get("/{userID}", s.getScore)
		r.Get("/{userID}/history", s.getHistory)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))
			r.Post("/{userID}/events", s.applyEvent)
			r.Post("/{userID}/audit", s.auditScore)
		})
	})

	if apiToken == "" {
		slog.Warn("API token not set — mutating endpoints are unauthenticated")
	}

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests without the configured bearer token.
// An empty configured token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				auth := r.Header.Get("Authorization")
				if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
					http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"service": "scored",
		"status":  "serving",
	})
}
