package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"mediadupes/internal/decode"
	"mediadupes/internal/finder"
	"mediadupes/internal/match"
	"mediadupes/internal/models"
	"mediadupes/internal/storage"
)

// Server exposes stored duplicate pairs and live scans over HTTP
type Server struct {
	storage     *storage.Storage
	finder      *finder.Finder
	opts        finder.Options
	port        int
	idleTimeout time.Duration
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	logger      *slog.Logger

	// Idle timeout management
	mu            sync.Mutex
	lastActivity  time.Time
	activeClients int
	shutdownChan  chan struct{}
	shutdownOnce  sync.Once
}

// New creates a Server backed by store. Scans started over the websocket
// use opts.
func New(store *storage.Storage, opts finder.Options, port int, idleTimeout time.Duration) (*Server, error) {
	f, err := finder.New(store, opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		storage:      store,
		finder:       f,
		opts:         opts,
		port:         port,
		idleTimeout:  idleTimeout,
		logger:       logger,
		lastActivity: time.Now(),
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	return s, nil
}

// Router returns the HTTP routes
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.trackActivity)

	r.Get("/api/pairs", s.handlePairs)
	r.Get("/api/groups", s.handleGroups)
	r.Get("/api/history", s.handleHistory)
	r.Post("/api/skip", s.handleSkip)
	r.Delete("/api/skip", s.handleUnskipAll)
	r.Get("/api/image", s.handleImage)

	// Live scan stream
	r.Get("/ws/scan", s.handleScan)

	return r
}

// Start listens until a signal arrives or the server has been idle for
// idleTimeout
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	if s.idleTimeout > 0 {
		go s.idleTimeoutChecker()
	}

	go s.handleShutdownSignals()

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) handleShutdownSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		s.logger.Info("server: shutting down")
	case <-s.shutdownChan:
		s.logger.Info("server: idle timeout reached, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.httpServer.Shutdown(ctx)
}

func (s *Server) idleTimeoutChecker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.idleFor() >= s.idleTimeout {
				s.shutdownOnce.Do(func() { close(s.shutdownChan) })
				return
			}
		case <-s.shutdownChan:
			return
		}
	}
}

// idleFor returns how long the server has had no requests and no open
// scan streams
func (s *Server) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Don't time out while a scan is streaming
	if s.activeClients > 0 {
		s.lastActivity = time.Now()
		return 0
	}
	return time.Since(s.lastActivity)
}

func (s *Server) recordActivity() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Server) trackActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.recordActivity()
		next.ServeHTTP(w, r)
	})
}

// API Handlers

func (s *Server) handlePairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.storage.GetPairs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if pairs == nil {
		pairs = []models.DuplicatePair{}
	}
	writeJSON(w, http.StatusOK, pairs)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.storage.GetPairs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	groups := match.GroupPairs(pairs)
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.storage.GetScanHistory(r.Context(), 20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []models.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, history)
}

type skipRequest struct {
	IDA string `json:"id_a"`
	IDB string `json:"id_b"`
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.IDA == "" || req.IDB == "" || req.IDA == req.IDB {
		http.Error(w, "id_a and id_b must be two different ids", http.StatusBadRequest)
		return
	}

	if err := s.finder.SkipDuplicatePair(r.Context(), req.IDA, req.IDB); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"skipped": models.PairKey(req.IDA, req.IDB)})
}

func (s *Server) handleUnskipAll(w http.ResponseWriter, r *http.Request) {
	if err := s.finder.ClearSkippedPairs(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImage serves an image that appears in a stored pair
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		http.Error(w, "path required", http.StatusBadRequest)
		return
	}
	if !decode.IsSupportedImage(path) {
		http.Error(w, "not an image", http.StatusBadRequest)
		return
	}

	pairs, err := s.storage.GetPairs(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	known := false
	for _, p := range pairs {
		if p.IDA == path || p.IDB == path {
			known = true
			break
		}
	}
	if !known {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
