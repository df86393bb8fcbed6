// Package httpadmin exposes the operational HTTP surface of a running
// render service: health probing of the external toolchain and cache
// administration. It is not the document render API; rendering is a
// library call, not an HTTP one.
package httpadmin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	tgrender "github.com/rmolchanov/go-tgrender"
)

// CacheAdmin is the slice of the render service the admin surface needs.
type CacheAdmin interface {
	ClearCache(ctx context.Context) tgrender.ClearResult
}

// Server wires the admin endpoints onto a chi router.
type Server struct {
	svc   CacheAdmin
	token string
	log   *slog.Logger

	httpServer *http.Server
}

// New creates an admin server for svc. An empty token disables auth;
// intended only for loopback deployments.
func New(addr string, svc CacheAdmin, token string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{svc: svc, token: token, log: log.With("component", "admin")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.With(s.requireToken).Delete("/cache", s.handleClearCache)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the admin surface until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("admin server listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// requireToken enforces bearer-token auth on mutating endpoints.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// healthResponse reports toolchain availability.
type healthResponse struct {
	Status string            `json:"status"` // "ok" or "degraded"
	Tools  []toolStatusEntry `json:"tools"`
}

type toolStatusEntry struct {
	Name  string `json:"name"`
	Found bool   `json:"found"`
	Path  string `json:"path,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	statuses, err := tgrender.CheckTools()
	resp := healthResponse{Status: "ok"}
	if err != nil {
		resp.Status = "degraded"
	}
	for _, st := range statuses {
		resp.Tools = append(resp.Tools, toolStatusEntry{Name: st.Name, Found: st.Found, Path: st.Path})
	}

	code := http.StatusOK
	if err != nil {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// clearResponse reports the per-tier outcome of a cache clear.
type clearResponse struct {
	MemoryCleared  bool   `json:"memoryCleared"`
	DurableCleared bool   `json:"durableCleared"`
	DurableError   string `json:"durableError,omitempty"`
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	result := s.svc.ClearCache(r.Context())
	resp := clearResponse{
		MemoryCleared:  result.MemoryCleared,
		DurableCleared: result.DurableCleared,
	}
	if result.DurableErr != nil {
		resp.DurableError = result.DurableErr.Error()
	}
	s.log.Info("cache cleared",
		"memory", resp.MemoryCleared, "durable", resp.DurableCleared)

	// A failed durable purge is still a successful clear of the memory
	// tier; 207 tells the operator to look at the per-tier detail.
	code := http.StatusOK
	if result.DurableErr != nil {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
