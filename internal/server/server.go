package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SmitUplenchwar2687/Shield/internal/clock"
	"github.com/SmitUplenchwar2687/Shield/internal/limiter"
	"github.com/SmitUplenchwar2687/Shield/internal/policy"
	"github.com/SmitUplenchwar2687/Shield/internal/recorder"
	"github.com/SmitUplenchwar2687/Shield/internal/storage"
)

// Options configures a Server.
type Options struct {
	// Policy and Tokens fill in whatever a request leaves out.
	Policy policy.Policy
	Tokens int64

	Hub      *Hub               // optional live decision feed
	Recorder *recorder.Recorder // optional traffic capture
	Clock    clock.Clock
}

// Server exposes the executor over HTTP.
type Server struct {
	httpServer *http.Server
	exec       *limiter.Executor
	policy     policy.Policy
	tokens     int64
	hub        *Hub
	recorder   *recorder.Recorder
	clock      clock.Clock
	mux        *http.ServeMux
}

// New creates a new Shield server.
func New(addr string, exec *limiter.Executor, opts Options) *Server {
	s := &Server{
		exec:     exec,
		policy:   opts.Policy,
		tokens:   opts.Tokens,
		hub:      opts.Hub,
		recorder: opts.Recorder,
		clock:    opts.Clock,
		mux:      http.NewServeMux(),
	}
	if s.tokens <= 0 {
		s.tokens = policy.DefaultTokens
	}
	if s.clock == nil {
		s.clock = clock.NewRealClock()
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           requestID(accessLog(s.mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/absorb", s.handleAbsorb)
	s.mux.HandleFunc("GET /api/absorb/{key}", s.handleAbsorbKey)
	if s.hub != nil {
		s.mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	}
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":   "shield",
		"status":    "running",
		"algorithm": s.policy.Algorithm.String(),
		"time":      s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// absorbRequest is the POST body. Args, when present, is a full argument
// list and wins over the structured fields. Zero fields take the server
// defaults. Period is in seconds, PeriodMS takes precedence.
type absorbRequest struct {
	Args      []string          `json:"args,omitempty"`
	Key       string            `json:"key,omitempty"`
	Algorithm *policy.Algorithm `json:"algorithm,omitempty"`
	Capacity  int64             `json:"capacity,omitempty"`
	Period    int64             `json:"period,omitempty"`
	PeriodMS  int64             `json:"period_ms,omitempty"`
	Tokens    int64             `json:"tokens,omitempty"`
}

func (s *Server) handleAbsorb(w http.ResponseWriter, r *http.Request) {
	var req absorbRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: decoding body: %w", policy.ErrInvalidArgument, err))
		return
	}

	var (
		d   limiter.Decision
		err error
	)
	if len(req.Args) > 0 {
		d, err = s.exec.Absorb(r.Context(), req.Args)
	} else {
		var inv policy.Invocation
		inv, err = s.invocation(req)
		if err == nil {
			d, err = s.exec.Execute(r.Context(), inv)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.respond(w, r, d)
}

// handleAbsorbKey decides one request for the key in the path.
// Query parameters override the defaults: capacity, period (seconds),
// tokens, algorithm.
func (s *Server) handleAbsorbKey(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := absorbRequest{Key: r.PathValue("key")}

	var err error
	if req.Capacity, err = queryInt(q.Get("capacity"), "capacity"); err != nil {
		writeError(w, err)
		return
	}
	if req.Period, err = queryInt(q.Get("period"), "period"); err != nil {
		writeError(w, err)
		return
	}
	if req.Tokens, err = queryInt(q.Get("tokens"), "tokens"); err != nil {
		writeError(w, err)
		return
	}
	if name := q.Get("algorithm"); name != "" {
		a, err := policy.ParseAlgorithm(name)
		if err != nil {
			writeError(w, err)
			return
		}
		req.Algorithm = &a
	}

	inv, err := s.invocation(req)
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := s.exec.Execute(r.Context(), inv)
	if err != nil {
		writeError(w, err)
		return
	}
	s.respond(w, r, d)
}

func (s *Server) invocation(req absorbRequest) (policy.Invocation, error) {
	if req.Key == "" {
		return policy.Invocation{}, fmt.Errorf("%w: key is required", policy.ErrInvalidArgument)
	}

	p := s.policy
	if req.Algorithm != nil {
		p.Algorithm = *req.Algorithm
	}
	if req.Capacity != 0 {
		p.Capacity = req.Capacity
	}
	switch {
	case req.PeriodMS != 0:
		p.PeriodMS = req.PeriodMS
	case req.Period != 0:
		ms, err := policy.SecondsToMillis(req.Period)
		if err != nil {
			return policy.Invocation{}, err
		}
		p.PeriodMS = ms
	}
	tokens := s.tokens
	if req.Tokens != 0 {
		tokens = req.Tokens
	}
	return policy.NewInvocation(req.Key, p, tokens)
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, d limiter.Decision) {
	s.publish(d, r.Method+" "+r.URL.Path)

	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Capacity, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	h.Set("X-RateLimit-Algorithm", d.Algorithm.String())

	status := http.StatusOK
	if !d.Allowed {
		h.Set("Retry-After", strconv.FormatInt(d.RetryAfter(), 10))
		status = http.StatusTooManyRequests
	}
	writeJSON(w, status, d)
}

func (s *Server) publish(d limiter.Decision, endpoint string) {
	if s.hub == nil && s.recorder == nil {
		return
	}
	ev := recorder.NewDecisionEvent(d, endpoint)
	if s.recorder != nil {
		if err := s.recorder.Record(ev.Record); err != nil {
			log.Warn().Err(err).Str("key", d.Key).Msg("recording request failed")
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(ev)
	}
}

func queryInt(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", policy.ErrInvalidArgument, field, raw)
	}
	return n, nil
}

// statusFor maps executor errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, policy.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("request_id", w.Header().Get(requestIDHeader)).Msg("absorb failed")
	}
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": w.Header().Get(requestIDHeader),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing response")
	}
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("shield server listening")
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and disconnects feed clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.httpServer.Shutdown(ctx)
	if s.hub != nil {
		s.hub.Close()
	}
	return err
}
