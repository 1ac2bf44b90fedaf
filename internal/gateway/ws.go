package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hayahq/haya/pkg/protocol"
)

const (
	// sendQueueSize bounds the outbound queue per client. A client that
	// falls further behind is dropped with RATE_LIMITED.
	sendQueueSize = 1024

	wsWriteWait       = 10 * time.Second
	wsPongWait        = 60 * time.Second
	wsPingInterval    = 45 * time.Second
	wsMaxPayloadBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Trusted-client protocol; browser clients go through /chat which
	// is same-origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsClient struct {
	server *Server
	conn   *websocket.Conn
	id     string

	send      chan []byte
	overflow  chan []byte
	dropped   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	authed    atomic.Bool
	closeOnce sync.Once

	// cancels tracks in-flight chat.send turns by request id so a second
	// send on the same session cannot clobber the first turn's cancel.
	cancelMu sync.Mutex
	cancels  map[string]chatCancel
}

type chatCancel struct {
	sessionID string
	cancel    context.CancelFunc
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &wsClient{
		server:   s,
		conn:     conn,
		id:       uuid.NewString(),
		send:     make(chan []byte, sendQueueSize),
		overflow: make(chan []byte, 1),
		ctx:      ctx,
		cancel:   cancel,
		cancels:  make(map[string]chatCancel),
	}
	if !s.auth.Enabled() || s.verifyUpgradeAuth(r) {
		client.authed.Store(true)
	}

	s.addClient(client)
	defer s.removeClient(client)

	go client.writeLoop()
	client.readLoop()
	client.close()
}

// verifyUpgradeAuth accepts credentials carried on the upgrade request
// itself, so clients can skip the connect handshake.
func (s *Server) verifyUpgradeAuth(r *http.Request) bool {
	params := map[string]any{}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		bearer := strings.TrimPrefix(auth, "Bearer ")
		params["token"] = bearer
		params["jwt"] = bearer
	}
	query := r.URL.Query()
	if token := query.Get("token"); token != "" {
		params["token"] = token
	}
	if password := query.Get("password"); password != "" {
		params["password"] = password
	}
	if len(params) == 0 {
		return false
	}
	return s.auth.Verify(params) == nil
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.cancelAllChats()
		_ = c.conn.Close()
	})
}

// enqueue serializes a frame onto the outbound queue. Overflow drops
// the client: the write loop sends a final RATE_LIMITED error and
// closes the socket. All conn writes stay on the write loop.
func (c *wsClient) enqueue(frame any) {
	if c.dropped.Load() {
		return
	}
	data, err := protocol.SerializeFrame(frame)
	if err != nil {
		c.server.logger.Error(c.ctx, "frame serialization failed", "error", err)
		return
	}
	select {
	case c.send <- data:
		if c.server.metrics != nil {
			c.server.metrics.FrameCounter.WithLabelValues("outbound", frameKind(frame)).Inc()
		}
	default:
		if !c.dropped.CompareAndSwap(false, true) {
			return
		}
		c.server.logger.Warn(c.ctx, "client send queue overflow, dropping client", "client", c.id)
		limited, _ := protocol.SerializeFrame(protocol.BuildErrorResponse("", protocol.CodeRateLimited, "send queue overflow"))
		c.overflow <- limited
	}
}

func frameKind(frame any) string {
	switch frame.(type) {
	case *protocol.Event, protocol.Event:
		return "event"
	default:
		return "response"
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.overflow:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = c.conn.WriteMessage(websocket.TextMessage, data)
			c.close()
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) readLoop() {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		req, perr := protocol.ParseRequest(data)
		if perr != nil {
			c.enqueue(&protocol.Response{Err: perr})
			continue
		}
		if c.server.metrics != nil {
			c.server.metrics.FrameCounter.WithLabelValues("inbound", "request").Inc()
		}

		if !c.authed.Load() {
			if req.Method != "connect" {
				c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeUnauthorized, "not authenticated"))
				// Give the writer a moment to flush the rejection.
				time.Sleep(50 * time.Millisecond)
				return
			}
			if !c.handleConnect(req) {
				return
			}
			continue
		}

		c.server.dispatch(c, req)
	}
}

// handleConnect verifies credentials. Returns false when the socket
// must close.
func (c *wsClient) handleConnect(req *protocol.Request) bool {
	if err := c.server.auth.Verify(req.Params); err != nil {
		c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeUnauthorized, "invalid credentials"))
		// Give the writer a moment to flush the rejection.
		time.Sleep(50 * time.Millisecond)
		return false
	}
	c.authed.Store(true)

	result := map[string]any{"ok": true, "version": Version}
	if jwtToken, err := c.server.auth.IssueJWT(); err == nil && jwtToken != "" {
		result["jwt"] = jwtToken
	}
	c.enqueue(protocol.BuildResponse(req.ID, result))
	return true
}

func (c *wsClient) registerChatCancel(requestID, sessionID string, cancel context.CancelFunc) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	c.cancels[requestID] = chatCancel{sessionID: sessionID, cancel: cancel}
}

func (c *wsClient) unregisterChatCancel(requestID string) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	delete(c.cancels, requestID)
}

// cancelChat aborts every in-flight chat.send targeting the session.
// Reports whether any was running.
func (c *wsClient) cancelChat(sessionID string) bool {
	c.cancelMu.Lock()
	var cancels []context.CancelFunc
	for requestID, entry := range c.cancels {
		if entry.sessionID == sessionID {
			cancels = append(cancels, entry.cancel)
			delete(c.cancels, requestID)
		}
	}
	c.cancelMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels) > 0
}

func (c *wsClient) cancelAllChats() {
	c.cancelMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, entry := range c.cancels {
		cancels = append(cancels, entry.cancel)
	}
	c.cancels = make(map[string]chatCancel)
	c.cancelMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
