// Package webhook exposes a plain HTTP channel: inbound messages arrive
// as JSON POSTs, outbound messages are POSTed to a configured URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/observability"
)

// Config holds the webhook plugin settings.
type Config struct {
	// Port for the inbound listener. 0 picks a random port.
	Port int

	// Path for inbound posts. Defaults to /webhook.
	Path string

	// OutboundURL receives outbound messages as JSON POSTs. Empty
	// disables outbound delivery.
	OutboundURL string

	// MaxPayloadBytes bounds inbound request bodies. Defaults to 1 MiB.
	MaxPayloadBytes int64
}

type inboundPayload struct {
	SenderID string `json:"senderId"`
	ChatID   string `json:"chatId"`
	Content  string `json:"content"`
}

// Plugin implements channels.Plugin over plain HTTP.
type Plugin struct {
	cfg    Config
	logger *observability.Logger
	client *http.Client

	mu      sync.Mutex
	server  *http.Server
	addr    string
	handler channels.Handler
}

// New creates the plugin.
func New(cfg Config, logger *observability.Logger) *Plugin {
	if cfg.Path == "" {
		cfg.Path = "/webhook"
	}
	if cfg.MaxPayloadBytes <= 0 {
		cfg.MaxPayloadBytes = 1 << 20
	}
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Plugin{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Plugin) ID() string   { return "webhook" }
func (p *Plugin) Name() string { return "Webhook" }

// SetHandler wires the inbound sink.
func (p *Plugin) SetHandler(h channels.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Addr returns the bound listener address once started.
func (p *Plugin) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addr
}

// Start binds the inbound listener.
func (p *Plugin) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(p.cfg.Path, p.handleInbound)

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p.cfg.Port))
	if err != nil {
		return fmt.Errorf("webhook listen: %w", err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	p.mu.Lock()
	p.server = server
	p.addr = listener.Addr().String()
	p.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error(context.Background(), "webhook server ended", "error", err)
		}
	}()
	return nil
}

// Stop shuts down the listener.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	server := p.server
	p.server = nil
	p.addr = ""
	p.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

// Send POSTs the message to the configured outbound URL.
func (p *Plugin) Send(ctx context.Context, msg channels.OutboundMessage) error {
	if p.cfg.OutboundURL == "" {
		return errors.New("webhook outbound url not configured")
	}
	body, err := json.Marshal(map[string]string{
		"chatId":  msg.ChatID,
		"content": msg.Content,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.OutboundURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook delivery failed: status %d", resp.StatusCode)
	}
	return nil
}

func (p *Plugin) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload inboundPayload
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, p.cfg.MaxPayloadBytes))
	if err := decoder.Decode(&payload); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if payload.Content == "" {
		http.Error(w, `{"error":"content is required"}`, http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(r.Context(), channels.InboundMessage{
			ChannelID: p.ID(),
			SenderID:  payload.SenderID,
			ChatID:    payload.ChatID,
			Content:   payload.Content,
			Timestamp: time.Now(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"accepted"}`))
}
