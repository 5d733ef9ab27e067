package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/xvm/internal/config"
	"github.com/vango-dev/xvm/pkg/vm"
)

const (
	tracerName      = "github.com/vango-dev/xvm/pkg/server"
	shutdownTimeout = 5 * time.Second
)

// SessionObserver is told about connected sessions.
type SessionObserver interface {
	SessionOpened()
	SessionClosed()
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer serves the metrics of g on the metrics path. Without it
// the path is not routed.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithTracerProvider sets the tracer provider. Default: the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithSessionObserver sets the session observer.
func WithSessionObserver(o SessionObserver) Option {
	return func(s *Server) {
		s.observer = o
	}
}

// Server hosts pages for websocket clients.
type Server struct {
	app      *vm.App
	cfg      config.ServerConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	gatherer prometheus.Gatherer
	observer SessionObserver
	proxies  *proxyMatcher
	upgrader websocket.Upgrader
	router   chi.Router

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// New creates a server for app.
func New(app *vm.App, cfg config.ServerConfig, opts ...Option) *Server {
	s := &Server{
		app:      app,
		cfg:      cfg,
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.WSPath == "" {
		s.cfg.WSPath = "/ws"
	}
	if s.cfg.MetricsPath == "" {
		s.cfg.MetricsPath = "/metrics"
	}
	if s.cfg.QueueSize <= 0 {
		s.cfg.QueueSize = 256
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.proxies = newProxyMatcher(cfg.TrustedProxies, s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, s.cfg.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get(path.Join(s.cfg.WSPath, "{component}"), s.handleConnect)
	s.router = r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the number of connected sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ListenAndServe serves on the configured address until ctx is done, then
// shuts down and closes every session.
func (s *Server) ListenAndServe(ctx context.Context) error {
	hs := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.cfg.Addr, "ws_path", s.cfg.WSPath)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := hs.Shutdown(shutdownCtx)
	s.Close()
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return err
}

// Close disconnects every session and waits for their pages to be
// destroyed.
func (s *Server) Close() {
	s.cancel()
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
	s.wg.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "component")
	if _, err := s.app.Definition(name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if s.ctx.Err() != nil {
		http.Error(w, "server closing", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := newSession(s, conn, name, remoteIP(r, s.proxies))
	s.add(sess)
	defer s.remove(sess)
	sess.serve(s.ctx, queryMap(r.URL.Query()))
}

func (s *Server) add(sess *Session) {
	s.wg.Add(1)
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.SessionOpened()
	}
	sess.logger.Info("session opened", "remote", sess.remote)
}

func (s *Server) remove(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.SessionClosed()
	}
	sess.logger.Info("session closed")
	s.wg.Done()
}

// checkOrigin accepts same-origin upgrades, or the configured origins
// when there are any.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) > 0 {
		return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// queryMap keeps the first value of each query parameter.
func queryMap(q url.Values) map[string]any {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]any, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
