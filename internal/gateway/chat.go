package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/internal/sessions"
	"github.com/hayahq/haya/pkg/models"
	"github.com/hayahq/haya/pkg/protocol"
)

// Flush defaults used when the config leaves them zero.
const (
	defaultFlushReserveTokens = 4096
	defaultFlushSoftThreshold = 2048
)

// chatIdleTimeout aborts a streaming turn when no delta arrives for this
// long. Streaming turns have no overall deadline.
const chatIdleTimeout = 120 * time.Second

// chatDelta is the payload of a chat.delta event.
type chatDelta struct {
	SessionID string `json:"sessionId"`
	Delta     string `json:"delta,omitempty"`
	Done      bool   `json:"done"`
	Error     string `json:"error,omitempty"`
}

// handleChatSend runs one chat turn: history, optional memory-flush
// pre-turn, the streamed model call, and persistence.
func (s *Server) handleChatSend(c *wsClient, req *protocol.Request) {
	sessionID, _ := req.Params["sessionId"].(string)
	message, _ := req.Params["message"].(string)
	model, _ := req.Params["model"].(string)
	systemPrompt, _ := req.Params["systemPrompt"].(string)
	if sessionID == "" || message == "" {
		c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeInvalidParams, "sessionId and message are required"))
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	c.registerChatCancel(req.ID, sessionID, cancel)
	defer c.unregisterChatCancel(req.ID)

	ctx = observability.WithSessionID(observability.WithRequestID(ctx, req.ID), sessionID)
	ctx, span := s.tracer.StartMethod(ctx, req.Method, sessionID)
	defer span.End()

	history, err := s.history.GetHistory(ctx, sessionID, s.historyOptions())
	if err != nil {
		s.logger.Error(ctx, "history read failed", "error", err)
		observability.RecordError(span, err)
		c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeInternalError, "failed to load history"))
		return
	}

	s.maybeRunMemoryFlush(ctx, sessionID, history)

	chatReq := agent.ChatRequest{
		SessionID:    sessionID,
		Message:      message,
		Model:        model,
		SystemPrompt: systemPrompt,
	}
	idle := time.AfterFunc(chatIdleTimeout, cancel)
	defer idle.Stop()
	result, err := s.runtime.Chat(ctx, chatReq, history, func(delta string) {
		idle.Reset(chatIdleTimeout)
		c.enqueue(protocol.BuildEvent("chat.delta", chatDelta{SessionID: sessionID, Delta: delta}))
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			c.enqueue(protocol.BuildEvent("chat.delta", chatDelta{SessionID: sessionID, Done: true, Error: "cancelled"}))
			c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeInternalError, "cancelled"))
			return
		}
		s.logger.Error(ctx, "chat turn failed", "error", err)
		observability.RecordError(span, err)
		c.enqueue(protocol.BuildEvent("chat.delta", chatDelta{SessionID: sessionID, Done: true, Error: "provider error"}))
		c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeInternalError, "provider error"))
		return
	}

	c.enqueue(protocol.BuildEvent("chat.delta", chatDelta{SessionID: sessionID, Done: true}))

	userMsg := models.NewMessage(models.RoleUser, message)
	assistantMsg := models.NewMessage(models.RoleAssistant, result.Content)
	if err := s.history.AddMessages(ctx, sessionID, []models.Message{userMsg, assistantMsg}); err != nil {
		s.logger.Error(ctx, "failed to persist chat turn", "error", err)
		observability.RecordError(span, err)
		c.enqueue(protocol.BuildErrorResponse(req.ID, protocol.CodeInternalError, "failed to persist conversation"))
		return
	}

	c.enqueue(protocol.BuildResponse(req.ID, map[string]any{
		"sessionId": sessionID,
		"message":   result.Content,
		"usage": map[string]int{
			"inputTokens":  result.Usage.InputTokens,
			"outputTokens": result.Usage.OutputTokens,
		},
	}))
}

func (s *Server) historyOptions() sessions.HistoryOptions {
	agentCfg := s.cfg.Agent
	opts := sessions.HistoryOptions{
		Summarizer: s.summarizer,
	}
	if agentCfg.ContextWindowTokens > 0 {
		opts.MaxTokens = agentCfg.ContextWindowTokens
		opts.ContextPruning = true
		opts.SystemPromptTokens = s.counter.Count(agentCfg.SystemPrompt)
	}
	return opts
}

// maybeRunMemoryFlush runs a silent agent turn asking the model to save
// durable memories when the session is close to compaction. Failures
// never block the user's turn.
func (s *Server) maybeRunMemoryFlush(ctx context.Context, sessionID string, history []models.Message) {
	agentCfg := s.cfg.Agent
	if agentCfg.ContextWindowTokens <= 0 {
		return
	}
	totalTokens, err := s.history.TotalTokens(ctx, sessionID)
	if err != nil {
		s.logger.Warn(ctx, "token total unavailable, skipping flush check", "error", err)
		return
	}

	reserve := agentCfg.MemoryFlush.ReserveTokens
	if reserve <= 0 {
		reserve = defaultFlushReserveTokens
	}
	soft := agentCfg.MemoryFlush.SoftThresholdTokens
	if soft <= 0 {
		soft = defaultFlushSoftThreshold
	}

	should := agent.ShouldRunMemoryFlush(agent.FlushParams{
		TotalTokens:         totalTokens,
		ContextWindowTokens: agentCfg.ContextWindowTokens,
		ReserveTokens:       reserve,
		SoftThresholdTokens: soft,
		HasRunForCycle:      s.history.FlushHasRun(sessionID),
	})
	if !should {
		return
	}

	systemMsg, userMsg := agent.BuildFlushMessages(agent.FlushPrompts{
		SystemPrompt: agentCfg.MemoryFlush.SystemPrompt,
		UserMessage:  agentCfg.MemoryFlush.UserMessage,
	})

	s.logger.Info(ctx, "running memory flush turn", "totalTokens", totalTokens)
	flushReq := agent.ChatRequest{
		SessionID:    sessionID,
		Message:      userMsg.Content,
		SystemPrompt: systemMsg.Content,
	}
	if _, err := s.runtime.Chat(ctx, flushReq, history, nil); err != nil {
		s.logger.Warn(ctx, "memory flush turn failed", "error", err)
	}
	// The flush counts as run for this cycle even when the model call
	// failed; retrying every turn would stall the session.
	s.history.MarkFlushRun(sessionID)
}
