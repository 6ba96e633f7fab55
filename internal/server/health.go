// Package server implements the HTTP status surface of the relay: liveness,
// readiness and the supported protocol versions listing.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaykit/relay/internal/logging"
)

// ReadinessChecker is an interface for components that can report their readiness.
type ReadinessChecker interface {
	// Name returns the name of the component for display in health status.
	Name() string

	// CheckReady returns nil if the component is ready, or an error
	// describing why it's not ready.
	CheckReady(ctx context.Context) error
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// DefaultReadinessTimeout is the default timeout for readiness checks.
const DefaultReadinessTimeout = 5 * time.Second

// StatusServer serves /healthz, /readyz and any extra handlers registered
// before Start, such as /versions and /metrics.
type StatusServer struct {
	mu               sync.RWMutex
	addr             string
	boundAddr        string
	server           *http.Server
	logger           *logging.Logger
	shutDown         atomic.Bool
	readinessChecks  []ReadinessChecker
	readinessTimeout time.Duration
	extraHandlers    map[string]http.Handler
}

// NewStatusServer creates a new StatusServer.
func NewStatusServer(addr string, logger *logging.Logger) *StatusServer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StatusServer{
		addr:             addr,
		logger:           logger,
		readinessTimeout: DefaultReadinessTimeout,
		extraHandlers:    make(map[string]http.Handler),
	}
}

// RegisterHandler registers an extra HTTP handler.
// Call before Start so the handler is mounted on the server mux.
func (s *StatusServer) RegisterHandler(pattern string, handler http.Handler) {
	if pattern == "" || handler == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraHandlers[pattern] = handler
}

// RegisterReadinessCheck registers a component for readiness checking.
// The component will be checked on each /readyz request.
func (s *StatusServer) RegisterReadinessCheck(checker ReadinessChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readinessChecks = append(s.readinessChecks, checker)
}

// SetReadinessTimeout sets the timeout for individual readiness checks.
func (s *StatusServer) SetReadinessTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readinessTimeout = d
}

// SetShuttingDown marks the server as shutting down.
// After this is called, /healthz and /readyz return 503.
func (s *StatusServer) SetShuttingDown() {
	s.shutDown.Store(true)
}

// Handler builds the mux serving every registered endpoint.
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for pattern, handler := range s.extraHandlers {
		mux.Handle(pattern, handler)
	}
	return mux
}

// Start starts the HTTP status server.
func (s *StatusServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second, // Longer to accommodate readiness checks
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.server = srv
	s.mu.Unlock()

	s.logger.Infof("status server listening", map[string]any{"addr": ln.Addr().String()})

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("status server error", map[string]any{"error": err.Error()})
		}
	}()

	return nil
}

// Addr returns the actual bound address of the server.
// Returns the configured address if the server hasn't started yet.
func (s *StatusServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// Close shuts down the status server.
func (s *StatusServer) Close() error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeStatus(w, r, s.checkLiveness())
}

func (s *StatusServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeStatus(w, r, s.CheckReadiness(r.Context()))
}

func writeStatus(w http.ResponseWriter, r *http.Request, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	if status.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if r.Method != http.MethodHead {
		_ = json.NewEncoder(w).Encode(status)
	}
}

func (s *StatusServer) shutdownCheck(status *HealthStatus) bool {
	if s.shutDown.Load() {
		status.Status = "shutting_down"
		status.Checks["shutdown"] = CheckResult{Healthy: false, Message: "relay is shutting down"}
		return false
	}
	status.Checks["shutdown"] = CheckResult{Healthy: true, Message: "relay is running"}
	return true
}

func (s *StatusServer) checkLiveness() HealthStatus {
	status := HealthStatus{Status: "ok", Checks: make(map[string]CheckResult)}
	s.shutdownCheck(&status)
	return status
}

// CheckReadiness runs every registered readiness check without an HTTP request.
func (s *StatusServer) CheckReadiness(ctx context.Context) HealthStatus {
	status := HealthStatus{Status: "ok", Checks: make(map[string]CheckResult)}
	if !s.shutdownCheck(&status) {
		return status
	}

	s.mu.RLock()
	checks := make([]ReadinessChecker, len(s.readinessChecks))
	copy(checks, s.readinessChecks)
	timeout := s.readinessTimeout
	s.mu.RUnlock()

	for _, checker := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := checker.CheckReady(checkCtx)
		cancel()

		if err != nil {
			status.Status = "not_ready"
			status.Checks[checker.Name()] = CheckResult{Healthy: false, Message: err.Error()}
		} else {
			status.Checks[checker.Name()] = CheckResult{Healthy: true, Message: "healthy"}
		}
	}

	return status
}
