package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/xhad/askdocs/pkg/dedup"
	"github.com/xhad/askdocs/pkg/logger"
	"github.com/xhad/askdocs/pkg/metrics"
	"github.com/xhad/askdocs/pkg/orchestrator"
	"github.com/xhad/askdocs/pkg/platform"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 1 << 20

// QueryHandler is satisfied by *orchestrator.Orchestrator.
type QueryHandler interface {
	HandleQuery(ctx context.Context, qc orchestrator.PlatformQueryContext) orchestrator.Result
}

// HealthChecker is satisfied by the vector store.
type HealthChecker interface {
	Health(ctx context.Context) bool
}

// Deliverer sends a finished answer back to the originating platform.
type Deliverer interface {
	Deliver(ctx context.Context, qc orchestrator.PlatformQueryContext, res orchestrator.Result) error
}

// LogDeliverer writes answers to the log instead of a chat platform.
type LogDeliverer struct {
	Logger *zap.Logger
}

func (d LogDeliverer) Deliver(_ context.Context, qc orchestrator.PlatformQueryContext, res orchestrator.Result) error {
	logger.OrNop(d.Logger).Info("answer ready",
		zap.String("platform", string(qc.Platform)),
		zap.String("channel_id", qc.ChannelID),
		zap.String("thread_id", qc.ThreadID),
		zap.String("context_id", res.Metadata.ContextID),
		zap.String("summary", res.Summary),
		zap.Float64("confidence", res.Confidence))
	return nil
}

type Config struct {
	Addr      string
	RateLimit float64
	Burst     int
	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration
}

type Server struct {
	config    Config
	handler   QueryHandler
	guards    map[orchestrator.Platform]*dedup.Guard
	deliverer Deliverer
	health    HealthChecker
	metrics   *metrics.Recorder
	limiter   *rate.Limiter
	logger    *zap.Logger

	// baseCtx outlives individual webhook requests and the serving context;
	// answers are produced after the platform has been acknowledged.
	baseCtx context.Context
	work    sync.WaitGroup
}

func New(config Config, handler QueryHandler, guards map[orchestrator.Platform]*dedup.Guard, deliverer Deliverer, health HealthChecker, rec *metrics.Recorder, log *zap.Logger) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 20
	}
	if config.Burst <= 0 {
		config.Burst = int(config.RateLimit * 2)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if deliverer == nil {
		deliverer = LogDeliverer{Logger: log}
	}
	return &Server{
		config:    config,
		handler:   handler,
		guards:    guards,
		deliverer: deliverer,
		health:    health,
		metrics:   rec,
		limiter:   rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		logger:    logger.OrNop(log).Named("server"),
		baseCtx:   context.Background(),
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/slack/events", s.limit(http.HandlerFunc(s.handleSlack)))
	mux.Handle("/teams/messages", s.limit(http.HandlerFunc(s.handleTeams)))
	mux.Handle("/ws", s.limit(http.HandlerFunc(s.handleWebSocket)))
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down.
// Answers already accepted keep running on a context that outlives ctx and
// are given ShutdownTimeout to finish before that context is cancelled too.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	work, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	s.baseCtx = work

	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	drained := make(chan struct{})
	go func() {
		s.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		s.logger.Warn("shutdown timeout reached, cancelling in-flight answers")
		cancelWork()
		<-drained
	}
	return err
}

// Wait blocks until every accepted event has been answered.
func (s *Server) Wait() {
	s.work.Wait()
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			s.logger.Warn("rate limited", zap.String("path", r.URL.Path))
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSlack(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	in, err := platform.ParseSlackEvent(body)
	if err != nil {
		s.logger.Warn("bad slack payload", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if in.Kind == platform.KindChallenge {
		writeJSON(w, http.StatusOK, map[string]string{"challenge": in.Challenge})
		return
	}
	s.accept(w, in, http.StatusOK)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	in, err := platform.ParseTeamsActivity(body)
	if err != nil {
		s.logger.Warn("bad teams activity", zap.Error(err))
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.accept(w, in, http.StatusAccepted)
}

type ackResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// accept acknowledges the event right away and answers it in the background
// when the platform's dedup guard lets it through.
func (s *Server) accept(w http.ResponseWriter, in platform.Inbound, status int) {
	if in.Kind != platform.KindQuery {
		s.logger.Debug("event ignored", zap.String("event_type", in.EventType), zap.String("reason", in.Reason))
		writeJSON(w, http.StatusOK, ackResponse{Status: "ignored", Reason: in.Reason})
		return
	}

	qc := in.Query
	normalized := orchestrator.Normalize(qc.Query)
	guard := s.guards[qc.Platform]

	key := ""
	if guard != nil {
		var d dedup.Decision
		key, d = guard.TryAcquire(qc.UserID, normalized, in.EventType, in.EventID)
		if !d.Proceed {
			writeJSON(w, http.StatusOK, ackResponse{Status: "skipped", Reason: string(d.Reason)})
			return
		}
	}

	ctx := s.baseCtx
	s.work.Add(1)
	go func() {
		defer s.work.Done()
		if guard != nil {
			defer guard.MarkCompleted(key, qc.UserID, normalized)
		}
		res := s.handler.HandleQuery(ctx, qc)
		if err := s.deliverer.Deliver(ctx, qc, res); err != nil {
			s.logger.Error("delivery failed",
				zap.String("platform", string(qc.Platform)),
				zap.String("context_id", res.Metadata.ContextID),
				zap.Error(err))
		}
	}()

	writeJSON(w, status, ackResponse{Status: "accepted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy := s.health == nil || s.health.Health(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": statusText(healthy), "vectorStore": healthy})
}

func statusText(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
