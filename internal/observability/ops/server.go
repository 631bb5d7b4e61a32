// Package ops serves the local health, metrics and profiling endpoints.
package ops

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rosterbot/internal/relay"
	rtsup "rosterbot/internal/runtime/supervisor"
	"rosterbot/internal/storage"
	logx "rosterbot/pkg/logx"
)

// Config controls the ops listener. A non-loopback Addr needs a Token.
type Config struct {
	Addr  string
	Pprof bool
	Token string
}

type RelayStatus interface {
	Snapshot() relay.Snapshot
	Listening() bool
}

type Server struct {
	cfg   Config
	log   logx.Logger
	relay RelayStatus
	store storage.Store
	tasks func() map[string]rtsup.Snapshot

	busDropped func() uint64
}

type Option func(*Server)

// WithBusDropped exports the event bus drop counter on /metrics.
func WithBusDropped(fn func() uint64) Option { return func(s *Server) { s.busDropped = fn } }

// WithStore adds GET /deliveries.
func WithStore(st storage.Store) Option { return func(s *Server) { s.store = st } }

// WithTasks adds supervisor stats to /healthz.
func WithTasks(fn func() map[string]rtsup.Snapshot) Option {
	return func(s *Server) { s.tasks = fn }
}

func New(cfg Config, rs RelayStatus, log logx.Logger, opts ...Option) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6061"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, log: log, relay: rs}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.auth)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(newRegistry(s.relay, s.busDropped), promhttp.HandlerOpts{}))
	if s.store != nil {
		r.Get("/deliveries", s.deliveries)
	}
	if s.cfg.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

type healthReport struct {
	Status string                    `json:"status"`
	Relay  relay.Snapshot            `json:"relay"`
	Tasks  map[string]rtsup.Snapshot `json:"tasks,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	rep := healthReport{Status: "ok"}
	code := http.StatusOK
	if s.relay != nil {
		rep.Relay = s.relay.Snapshot()
		if !s.relay.Listening() {
			rep.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if s.tasks != nil {
		rep.Tasks = s.tasks()
	}
	writeJSON(w, code, rep)
}

func (s *Server) deliveries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	out, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn("read deliveries", logx.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})
		return
	}
	if out == nil {
		out = []storage.Delivery{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// auth accepts "Authorization: Bearer <token>" or ?token=<token>.
func (s *Server) auth(next http.Handler) http.Handler {
	tok := strings.TrimSpace(s.cfg.Token)
	if tok == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var ErrInsecureBind = errors.New("ops: non-loopback addr requires a token")

// CheckBind rejects a public listen address without a token.
func (s *Server) CheckBind() error {
	if s.cfg.Token == "" && !isLoopbackAddr(s.cfg.Addr) {
		return ErrInsecureBind
	}
	return nil
}

// Run listens on cfg.Addr and serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	if err := s.CheckBind(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.log.Info("ops server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("ops server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
