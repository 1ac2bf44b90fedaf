// Package slack bridges Slack Socket Mode into the channel plane.
package slack

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/observability"
)

// Config holds the Slack plugin settings. Socket Mode needs both the
// bot token (xoxb-) and the app-level token (xapp-).
type Config struct {
	BotToken string
	AppToken string
}

// Plugin implements channels.Plugin over Slack Socket Mode.
type Plugin struct {
	cfg    Config
	logger *observability.Logger

	mu      sync.Mutex
	api     *slack.Client
	socket  *socketmode.Client
	cancel  context.CancelFunc
	handler channels.Handler
	botID   string
}

// New creates the plugin. Tokens are validated at Start.
func New(cfg Config, logger *observability.Logger) *Plugin {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Plugin{cfg: cfg, logger: logger}
}

func (p *Plugin) ID() string   { return "slack" }
func (p *Plugin) Name() string { return "Slack" }

// SetHandler wires the inbound sink.
func (p *Plugin) SetHandler(h channels.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Start authenticates and runs the Socket Mode event loop.
func (p *Plugin) Start(ctx context.Context) error {
	if p.cfg.BotToken == "" || p.cfg.AppToken == "" {
		return errors.New("slack bot token and app token are required")
	}

	api := slack.New(p.cfg.BotToken, slack.OptionAppLevelToken(p.cfg.AppToken))
	auth, err := api.AuthTestContext(ctx)
	if err != nil {
		return err
	}
	socket := socketmode.New(api)

	runCtx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.api = api
	p.socket = socket
	p.cancel = cancel
	p.botID = auth.UserID
	p.mu.Unlock()

	go func() {
		if err := socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			p.logger.Error(runCtx, "slack socket loop ended", "error", err)
		}
	}()
	go p.eventLoop(runCtx, socket)
	return nil
}

// Stop cancels the Socket Mode loop.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.api = nil
	p.socket = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Send posts a message to the chat's Slack channel.
func (p *Plugin) Send(ctx context.Context, msg channels.OutboundMessage) error {
	p.mu.Lock()
	api := p.api
	p.mu.Unlock()
	if api == nil {
		return errors.New("slack channel not started")
	}
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	_, _, err := api.PostMessageContext(ctx, msg.ChatID, opts...)
	return err
}

func (p *Plugin) eventLoop(ctx context.Context, socket *socketmode.Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				p.logger.Info(ctx, "slack connected")
			case socketmode.EventTypeConnectionError:
				p.logger.Warn(ctx, "slack connection error")
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				if evt.Request != nil {
					socket.Ack(*evt.Request)
				}
				p.handleEventsAPI(ctx, apiEvent)
			}
		}
	}
}

func (p *Plugin) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Skip bot echoes and non-message subtypes (edits, joins).
	if msg.BotID != "" || msg.SubType != "" || msg.User == p.botID {
		return
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}

	handler(ctx, channels.InboundMessage{
		ChannelID: p.ID(),
		SenderID:  msg.User,
		ChatID:    msg.Channel,
		Content:   msg.Text,
		Metadata: map[string]string{
			"ts":       msg.TimeStamp,
			"threadTs": msg.ThreadTimeStamp,
		},
		Timestamp: time.Now(),
	})
}
