package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"recoverd/internal/core"
	"recoverd/internal/recovery"
	"recoverd/internal/scan"
	"recoverd/internal/scanners"
	"recoverd/internal/syscmd"
	"recoverd/internal/system"
)

// Server is the HTTP API server for recoverd.
type Server struct {
	host   string
	port   int
	logger *log.Logger
	mux    *http.ServeMux
	server *http.Server

	registry  *scanners.Registry
	scans     *scan.Manager
	recovery  *recovery.Manager
	inspector *system.Inspector
	runner    *syscmd.Runner

	maxPreviewBytes int64

	// Dashboard system info is expensive to gather (several external
	// commands), so it is cached until an explicit refresh or a credential
	// change.
	sysInfoMu sync.Mutex
	sysInfo   *core.SystemInfo
}

// Config carries the server's wiring.
type Config struct {
	Host            string
	Port            int
	Logger          *log.Logger
	Registry        *scanners.Registry
	Scans           *scan.Manager
	Recovery        *recovery.Manager
	Inspector       *system.Inspector
	Runner          *syscmd.Runner
	MaxPreviewBytes int64
}

// NewServer creates the API server and sets up its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		logger:          cfg.Logger,
		registry:        cfg.Registry,
		scans:           cfg.Scans,
		recovery:        cfg.Recovery,
		inspector:       cfg.Inspector,
		runner:          cfg.Runner,
		maxPreviewBytes: cfg.MaxPreviewBytes,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux = http.NewServeMux()

	s.mux.HandleFunc("/api/health", s.handleHealth)

	s.mux.HandleFunc("/api/system/info", s.handleSystemInfo)
	s.mux.HandleFunc("/api/system/refresh", s.handleSystemRefresh)
	s.mux.HandleFunc("/api/system/sudo", s.handleSudo)
	s.mux.HandleFunc("/api/system/sudo/status", s.handleSudoStatus)

	s.mux.HandleFunc("/api/sources", s.handleSources)

	s.mux.HandleFunc("/api/scan/start", s.handleScanStart)
	s.mux.HandleFunc("/api/scan/jobs/", s.handleScanJob) // /api/scan/jobs/{id} and /{id}/cancel
	s.mux.HandleFunc("/api/scan/load-photorec", s.handleLoadPhotoRec)

	s.mux.HandleFunc("/api/results/", s.handleResults) // /api/results/{id} and /{id}/stats

	s.mux.HandleFunc("/api/recovery/start", s.handleRecoveryStart)
	s.mux.HandleFunc("/api/recovery/jobs/", s.handleRecoveryJob)

	s.mux.HandleFunc("/api/preview/", s.handlePreview) // /api/preview/{jobId}/{fileId}

	s.mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns the fully wrapped HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.loggingMiddleware(s.mux))
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.host, s.port),
		Handler: s.Handler(),
	}

	s.logger.Printf("[API] Starting HTTP server on %s:%d", s.host, s.port)
	return s.server.ListenAndServe()
}

// StartBackground starts the server in a goroutine and shuts it down when ctx
// is cancelled.
func (s *Server) StartBackground(ctx context.Context) {
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("[API] Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.logger.Printf("[API] Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Printf("[API] Shutdown error: %v", err)
		}
	}()
}

// loggingMiddleware logs all requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("[API] %s %s (took %v)", r.Method, r.URL.Path, time.Since(start))
	})
}

// corsMiddleware adds CORS headers for cross-origin requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// cachedSystemInfo returns the cached dashboard snapshot, gathering it on
// first use or when force is set.
func (s *Server) cachedSystemInfo(ctx context.Context, force bool) core.SystemInfo {
	s.sysInfoMu.Lock()
	defer s.sysInfoMu.Unlock()
	if s.sysInfo == nil || force {
		info := s.inspector.Inspect(ctx)
		s.sysInfo = &info
	}
	return *s.sysInfo
}

// Helper functions for responses

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Data:    data,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}
