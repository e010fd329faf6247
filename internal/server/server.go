// Package server exposes a small control API: health, metrics and campaign runs started
// on demand.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"zkminter/internal/campaign"
	"zkminter/internal/config"
	"zkminter/internal/hmacauth"
	"zkminter/internal/ledger"
	"zkminter/internal/logger"
	"zkminter/internal/metrics"
	"zkminter/internal/mint"
)

// RunRequest overrides the configured campaign for one run. Zero fields keep the
// configured values.
type RunRequest struct {
	Campaign     string     `json:"campaign,omitempty"`
	MintNetworks [][]string `json:"mint_networks,omitempty"`
}

// RunFunc executes one campaign run until it finishes or ctx is cancelled.
type RunFunc func(ctx context.Context, req RunRequest) (*campaign.Summary, error)

// Probe is one health dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	cfg        config.ServerConfig
	run        RunFunc
	probes     []Probe
	dead       ledger.DeadLetters
	metrics    *metrics.Registry
	hmac       *hmacauth.Verifier
	httpServer *http.Server

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*runState
	active string
}

type Option func(*Server)

func WithProbe(name string, check func(ctx context.Context) error) Option {
	return func(s *Server) { s.probes = append(s.probes, Probe{Name: name, Check: check}) }
}

func WithDeadLetters(d ledger.DeadLetters) Option { return func(s *Server) { s.dead = d } }

// WithMetrics shares a registry with the runner; otherwise the server makes its own.
func WithMetrics(m *metrics.Registry) Option { return func(s *Server) { s.metrics = m } }

func NewServer(cfg config.ServerConfig, run RunFunc, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		run:     run,
		baseCtx: ctx,
		cancel:  cancel,
		runs:    make(map[string]*runState),
		hmac: &hmacauth.Verifier{
			Secret:  cfg.HMACSecret,
			MaxSkew: cfg.HMACClockSkew,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if cfg.HMACSecret == "" {
		logger.Warn("server.hmac_secret is empty, control requests are not authenticated")
	}

	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler is the full routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/runs", s.hmac.Middleware(http.HandlerFunc(s.handleStartRun)))
	mux.Handle("GET /api/v1/runs/{id}", s.hmac.Middleware(http.HandlerFunc(s.handleGetRun)))
	mux.Handle("GET /api/v1/metrics", s.metrics.Handler())
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	return requestIDMiddleware(mux)
}

func (s *Server) Start() error {
	logger.Info("API listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, cancels an active run and waits for it to unwind.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

type runStatus string

const (
	statusRunning   runStatus = "running"
	statusCompleted runStatus = "completed"
	statusFailed    runStatus = "failed"
	statusCancelled runStatus = "cancelled"
)

type attemptView struct {
	Account string `json:"account"`
	Address string `json:"address,omitempty"`
	Network string `json:"network"`
	Outcome string `json:"outcome"`
	TxHash  string `json:"tx_hash,omitempty"`
	TxURL   string `json:"tx_url,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

type runState struct {
	ID         string         `json:"id"`
	Status     runStatus      `json:"status"`
	Campaign   string         `json:"campaign,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Error      string         `json:"error,omitempty"`
	Totals     map[string]int `json:"totals,omitempty"`
	Attempts   []attemptView  `json:"attempts,omitempty"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json payload")
			return
		}
	}

	s.mu.Lock()
	if s.active != "" {
		active := s.active
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "a run is already active",
			"run_id": active,
		})
		return
	}
	state := &runState{
		ID:        uuid.NewString(),
		Status:    statusRunning,
		Campaign:  req.Campaign,
		StartedAt: time.Now().UTC(),
	}
	s.runs[state.ID] = state
	s.active = state.ID
	s.wg.Add(1)
	s.mu.Unlock()

	logger.Info("run started",
		zap.String("run_id", state.ID),
		zap.String("request_id", r.Header.Get("X-Request-Id")))
	go s.execute(state.ID, req)

	w.Header().Set("Location", "/api/v1/runs/"+state.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": state.ID,
		"status": string(statusRunning),
	})
}

func (s *Server) execute(id string, req RunRequest) {
	defer s.wg.Done()

	sum, err := s.run(s.baseCtx, req)

	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.runs[id]
	finished := time.Now().UTC()
	state.FinishedAt = &finished
	s.active = ""

	switch {
	case err == nil:
		state.Status = statusCompleted
	case errors.Is(err, context.Canceled):
		state.Status = statusCancelled
		state.Error = err.Error()
	default:
		state.Status = statusFailed
		state.Error = err.Error()
	}
	if sum != nil {
		if state.Campaign == "" {
			state.Campaign = sum.Campaign
		}
		state.Totals = totals(sum)
		state.Attempts = attempts(sum)
	}
	s.metrics.IncRun(string(state.Status))
	if depth, err := s.dead.Depth(); err == nil {
		s.metrics.SetDeadLetterDepth(depth)
	}

	logger.Info("run finished",
		zap.String("run_id", id),
		zap.String("status", string(state.Status)),
		zap.Any("totals", state.Totals))
}

func totals(sum *campaign.Summary) map[string]int {
	return map[string]int{
		mint.Minted.String():      sum.Count(mint.Minted),
		mint.Failed.String():      sum.Count(mint.Failed),
		mint.Unconfirmed.String(): sum.Count(mint.Unconfirmed),
		mint.Unsupported.String(): sum.Count(mint.Unsupported),
		"skipped":                 sum.Skipped(),
	}
}

func attempts(sum *campaign.Summary) []attemptView {
	var out []attemptView
	for _, a := range sum.Attempts() {
		v := attemptView{
			Account: a.Account,
			Address: a.Address,
			Network: a.Result.Network,
			Outcome: a.Result.Outcome.String(),
			TxURL:   a.Result.TxURL,
			Skipped: a.Skipped,
		}
		if a.Result.TxHash != (common.Hash{}) {
			v.TxHash = a.Result.TxHash.Hex()
		}
		if a.Result.Err != nil {
			v.Error = a.Result.Err.Error()
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	state, ok := s.runs[id]
	var snapshot runState
	if ok {
		snapshot = *state
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type checkInfo struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	overallHealthy := true

	checks := make(map[string]checkInfo, len(s.probes))
	for _, p := range s.probes {
		start := time.Now()
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.Check(probeCtx)
		cancel()

		info := checkInfo{
			Connected: err == nil,
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
		if err != nil {
			info.Error = err.Error()
			overallHealthy = false
		}
		checks[p.Name] = info
	}

	depth, err := s.dead.Depth()
	if err != nil {
		logger.Warn("dead letter read error", zap.Error(err))
	}
	s.metrics.SetDeadLetterDepth(depth)

	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	status := "healthy"
	code := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status      string               `json:"status"`
		Checks      map[string]checkInfo `json:"checks"`
		DeadLetters int                  `json:"dead_letters"`
		ActiveRun   string               `json:"active_run,omitempty"`
	}{
		Status:      status,
		Checks:      checks,
		DeadLetters: depth,
		ActiveRun:   active,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-Id", id)
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}
