// Package web implements fisher's concrete HTTP front-end: routes, the
// proxy-trust-depth source-IP resolution, and the RWMutex-based lock the
// Processor Facade's reload uses to hold off new hook invocations while a
// reload is in flight.
package web

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"

	"fisher/internal/job"
	"fisher/internal/logging"
	"fisher/internal/metrics"
	"fisher/internal/processor"
)

// Pipeline is the subset of *processor.Pipeline the front-end calls.
type Pipeline interface {
	Submit(req *job.Request, hookName string) (processor.Outcome, error)
}

// HealthSource is the subset of *processor.Facade the front-end calls for
// GET /health.
type HealthSource interface {
	Health() processor.Health
}

// Server is fisher's HTTP front-end. Its zero value is not usable; build
// one with NewServer.
type Server struct {
	mu            sync.RWMutex // the front-end half of the reload interlock
	pipeline      Pipeline
	health        HealthSource
	behindProxies int
	enableHealth  bool
	log           *logging.Logger
	mux           *http.ServeMux
	limiter       *RateLimiter
	handler       http.Handler
}

// NewServer builds the front-end, its routes, and its middleware chain
// (rate limiting then security headers, innermost to outermost).
func NewServer(pipeline Pipeline, health HealthSource, behindProxies int, enableHealth bool, limiter *RateLimiter, log *logging.Logger) *Server {
	s := &Server{
		pipeline:      pipeline,
		health:        health,
		behindProxies: behindProxies,
		enableHealth:  enableHealth,
		limiter:       limiter,
		log:           log,
	}
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST /hook/{name}", s.handleHook)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = SecurityHeaders(h)
	s.handler = h
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Lock is the FrontEndLock the Processor Facade's Reload acquires first and
// releases last: while held for writing, handleHook parks on RLock.
func (s *Server) Lock() { s.mu.Lock() }

// Unlock releases the front-end lock.
func (s *Server) Unlock() { s.mu.Unlock() }

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	name := r.PathValue("name")
	body, err := readLimited(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request_invalid", err.Error())
		metrics.ObserveWebhookRequest(name, "invalid")
		return
	}

	req := &job.Request{
		SourceIP: resolveSourceIP(r, s.behindProxies),
		Header:   r.Header.Clone(),
		Query:    map[string][]string(r.URL.Query()),
		Body:     body,
	}

	outcome, err := s.pipeline.Submit(req, name)
	if err != nil {
		status, kind := errorStatus(err)
		writeError(w, status, kind, err.Error())
		metrics.ObserveWebhookRequest(name, kind)
		return
	}

	switch outcome {
	case processor.OutcomeEnqueued:
		w.WriteHeader(http.StatusOK)
		metrics.ObserveWebhookRequest(name, "enqueued")
	case processor.OutcomeIgnored:
		w.WriteHeader(http.StatusOK)
		metrics.ObserveWebhookRequest(name, "ignored")
	default:
		writeError(w, http.StatusBadRequest, "request_invalid", "request was not accepted")
		metrics.ObserveWebhookRequest(name, "invalid")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !s.enableHealth {
		http.NotFound(w, r)
		return
	}
	h := s.health.Health()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"queued":       h.Queued,
		"executing":    h.Executing,
		"workers_busy": h.WorkersBusy,
	})
}

const maxBodyBytes = 10 << 20 // 10 MiB

func readLimited(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	lr := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return io.ReadAll(lr)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: kind, Message: message})
}

// errorStatus extracts the HTTP status and wire-level error kind string from
// a *processor.Error, falling back to 500/internal for anything else.
func errorStatus(err error) (int, string) {
	type kinded interface {
		HTTPStatusAndKind() (int, string)
	}
	if k, ok := err.(kinded); ok {
		return k.HTTPStatusAndKind()
	}
	return http.StatusInternalServerError, "internal"
}

// resolveSourceIP applies proxy trust depth: depth 0 uses the TCP peer;
// depth N>0 uses the N-th rightmost entry of X-Forwarded-For.
func resolveSourceIP(r *http.Request, depth int) string {
	if depth <= 0 {
		return peerIP(r.RemoteAddr)
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peerIP(r.RemoteAddr)
	}
	parts := strings.Split(xff, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	idx := len(parts) - depth
	if idx < 0 {
		idx = 0
	}
	return parts[idx]
}

func peerIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
