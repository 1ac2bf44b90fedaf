package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/cron"
	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/pkg/protocol"
)

// methodTimeout bounds non-streaming method handlers.
const methodTimeout = 60 * time.Second

// dispatch routes one authenticated request. chat.send streams and runs
// on its own goroutine so the read loop keeps serving chat.cancel.
func (s *Server) dispatch(c *wsClient, req *protocol.Request) {
	start := time.Now()
	if req.Method == "chat.send" {
		go func() {
			s.handleChatSend(c, req)
			s.recordMethod(req.Method, start)
		}()
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, methodTimeout)
	defer cancel()

	sessionID, _ := req.Params["sessionId"].(string)
	ctx, span := s.tracer.StartMethod(ctx, req.Method, sessionID)
	defer span.End()

	var result any
	var perr *protocol.Error
	switch req.Method {
	case "connect":
		// Repeated connect after auth is a no-op acknowledgment.
		result = map[string]any{"ok": true, "version": Version}
	case "ping":
		result = map[string]any{"pong": true, "ts": time.Now().UnixMilli()}
	case "chat.cancel":
		result, perr = s.handleChatCancel(c, req)
	case "channels.list":
		result, perr = s.handleChannelsList()
	case "channels.start":
		result, perr = s.handleChannelsStart(ctx, req)
	case "channels.stop":
		result, perr = s.handleChannelsStop(ctx, req)
	case "cron.list":
		result, perr = s.handleCronList()
	case "cron.status":
		result, perr = s.handleCronStatus(req)
	case "gateway.status":
		result, perr = s.handleGatewayStatus()
	case "gateway.config":
		result, perr = s.handleGatewayConfig()
	default:
		perr = protocol.NewError(protocol.CodeMethodNotFound, "method not found: "+req.Method)
	}

	if perr != nil {
		observability.RecordError(span, errors.New(perr.Message))
		c.enqueue(protocol.BuildErrorResponse(req.ID, perr.Code, perr.Message))
	} else {
		c.enqueue(protocol.BuildResponse(req.ID, result))
	}
	s.recordMethod(req.Method, start)
}

func (s *Server) recordMethod(method string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordMethod(method, "ok", time.Since(start).Seconds())
	}
}

func (s *Server) handleChatCancel(c *wsClient, req *protocol.Request) (any, *protocol.Error) {
	sessionID, _ := req.Params["sessionId"].(string)
	if sessionID == "" {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "sessionId is required")
	}
	cancelled := c.cancelChat(sessionID)
	return map[string]any{"sessionId": sessionID, "cancelled": cancelled}, nil
}

func (s *Server) handleChannelsList() (any, *protocol.Error) {
	if s.dock == nil {
		return []channels.ChannelStatus{}, nil
	}
	return s.dock.Status(), nil
}

func (s *Server) handleChannelsStart(ctx context.Context, req *protocol.Request) (any, *protocol.Error) {
	id, _ := req.Params["id"].(string)
	if id == "" {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "id is required")
	}
	if s.dock == nil {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "no channels configured")
	}
	if err := s.dock.StartChannel(ctx, id); err != nil {
		return nil, protocol.NewError(protocol.CodeInternalError, err.Error())
	}
	return map[string]any{"id": id, "started": true}, nil
}

func (s *Server) handleChannelsStop(ctx context.Context, req *protocol.Request) (any, *protocol.Error) {
	id, _ := req.Params["id"].(string)
	if id == "" {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "id is required")
	}
	if s.dock == nil {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "no channels configured")
	}
	if err := s.dock.StopChannel(ctx, id); err != nil {
		return nil, protocol.NewError(protocol.CodeInternalError, err.Error())
	}
	return map[string]any{"id": id, "stopped": true}, nil
}

func (s *Server) handleCronList() (any, *protocol.Error) {
	if s.cron == nil {
		return []cron.JobStatus{}, nil
	}
	return s.cron.List(), nil
}

func (s *Server) handleCronStatus(req *protocol.Request) (any, *protocol.Error) {
	name, _ := req.Params["name"].(string)
	if name == "" {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "name is required")
	}
	if s.cron == nil {
		return nil, protocol.NewError(protocol.CodeInvalidParams, "no cron jobs configured")
	}
	status, err := s.cron.Status(name)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidParams, err.Error())
	}
	return status, nil
}

func (s *Server) handleGatewayStatus() (any, *protocol.Error) {
	status := map[string]any{
		"name":          "haya",
		"version":       Version,
		"uptimeSeconds": int(time.Since(s.startedAt).Seconds()),
		"connections":   s.clientCount(),
	}
	if s.dock != nil {
		status["channels"] = s.dock.Status()
	}
	return status, nil
}

// handleGatewayConfig returns the running configuration with secrets
// withheld.
func (s *Server) handleGatewayConfig() (any, *protocol.Error) {
	gw := s.cfg.Gateway
	return map[string]any{
		"gateway": map[string]any{
			"port":     gw.Port,
			"bind":     gw.Bind,
			"authMode": gw.Auth.Mode,
			"tls":      gw.TLS.Enabled,
		},
		"agent": map[string]any{
			"defaultModel":        s.cfg.Agent.DefaultModel,
			"maxHistoryMessages":  s.cfg.Agent.MaxHistoryMessages,
			"contextWindowTokens": s.cfg.Agent.ContextWindowTokens,
		},
		"memory": map[string]any{
			"enabled": s.cfg.Memory.Enabled,
		},
		"logging": map[string]any{
			"level":  s.cfg.Logging.Level,
			"format": s.cfg.Logging.Format,
		},
	}, nil
}
