// Package gateway is the WebSocket front door: it authenticates trusted
// clients, dispatches named methods, streams chat deltas, and pumps
// channel traffic into the agent runtime.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/config"
	"github.com/hayahq/haya/internal/cron"
	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/internal/sessions"
	"github.com/hayahq/haya/internal/tokens"
)

// Version is stamped at build time.
var Version = "dev"

// Options wires the server's collaborators.
type Options struct {
	Config     *config.Config
	History    *sessions.Manager
	Runtime    agent.Runtime
	Summarizer sessions.Summarizer
	Channels   *channels.Registry
	Dock       *channels.Dock
	Cron       *cron.Scheduler
	Counter    tokens.Counter
	Logger     *observability.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// Server owns the HTTP listener and all connected WebSocket clients.
type Server struct {
	cfg        *config.Config
	history    *sessions.Manager
	runtime    agent.Runtime
	summarizer sessions.Summarizer
	channels   *channels.Registry
	dock       *channels.Dock
	cron       *cron.Scheduler
	counter    tokens.Counter
	auth       *Authenticator
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer

	httpServer *http.Server
	startedAt  time.Time

	mu      sync.Mutex
	addr    string
	clients map[string]*wsClient
}

// NewServer validates options and builds the server.
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.History == nil {
		return nil, errors.New("history manager is required")
	}
	if opts.Runtime == nil {
		return nil, errors.New("runtime is required")
	}
	if opts.Counter == nil {
		opts.Counter = tokens.NewSimpleCounter()
	}
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.LogConfig{})
	}
	if opts.Tracer == nil {
		opts.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}

	auth, err := NewAuthenticator(opts.Config.Gateway.Auth)
	if err != nil {
		return nil, err
	}

	return &Server{
		cfg:        opts.Config,
		history:    opts.History,
		runtime:    opts.Runtime,
		summarizer: opts.Summarizer,
		channels:   opts.Channels,
		dock:       opts.Dock,
		cron:       opts.Cron,
		counter:    opts.Counter,
		auth:       auth,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		clients:    make(map[string]*wsClient),
	}, nil
}

// bindAddr resolves the listen address from the bind policy.
func (s *Server) bindAddr() (string, error) {
	gw := s.cfg.Gateway
	switch gw.Bind {
	case config.BindLoopback, "":
		return fmt.Sprintf("127.0.0.1:%d", gw.Port), nil
	case config.BindLAN:
		return fmt.Sprintf("0.0.0.0:%d", gw.Port), nil
	case config.BindCustom:
		if gw.BindInterface == "" {
			return "", errors.New("custom bind requires bindInterface")
		}
		return fmt.Sprintf("%s:%d", gw.BindInterface, gw.Port), nil
	default:
		return "", fmt.Errorf("unknown bind policy %q", gw.Bind)
	}
}

// Start binds the listener and serves until Stop. It returns once the
// listener is accepting, so tests can read Addr immediately.
func (s *Server) Start(ctx context.Context) error {
	addr, err := s.bindAddr()
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/chat", s.handleChatPage)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/", s.handleRoot)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.startedAt = time.Now()

	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	tls := s.cfg.Gateway.TLS
	go func() {
		var serveErr error
		if tls.Enabled {
			serveErr = s.httpServer.ServeTLS(listener, tls.CertPath, tls.KeyPath)
		} else {
			serveErr = s.httpServer.Serve(listener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error(ctx, "gateway server ended", "error", serveErr)
		}
	}()

	s.logger.Info(ctx, "gateway listening", "addr", s.Addr(), "tls", tls.Enabled)
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop closes all clients and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) addClient(c *wsClient) {
	s.mu.Lock()
	s.clients[c.id] = c
	count := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveConnections.Set(float64(count))
	}
}

func (s *Server) removeClient(c *wsClient) {
	s.mu.Lock()
	delete(s.clients, c.id)
	count := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ActiveConnections.Set(float64(count))
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": "haya", "status": "running"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
