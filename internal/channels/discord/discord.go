// Package discord bridges the Discord gateway into the channel plane.
package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/observability"
)

// Config holds the Discord plugin settings.
type Config struct {
	// BotToken is the raw bot token, without the "Bot " prefix.
	BotToken string
}

// Plugin implements channels.Plugin over a discordgo session.
type Plugin struct {
	token  string
	logger *observability.Logger

	mu      sync.Mutex
	session *discordgo.Session
	handler channels.Handler
}

// New creates the plugin. The token is validated at Start.
func New(cfg Config, logger *observability.Logger) *Plugin {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Plugin{token: cfg.BotToken, logger: logger}
}

func (p *Plugin) ID() string   { return "discord" }
func (p *Plugin) Name() string { return "Discord" }

// SetHandler wires the inbound sink.
func (p *Plugin) SetHandler(h channels.Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

// Start opens the gateway connection and subscribes to message events.
func (p *Plugin) Start(ctx context.Context) error {
	if p.token == "" {
		return errors.New("discord bot token is required")
	}

	session, err := discordgo.New("Bot " + p.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	session.AddHandler(p.handleMessageCreate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}

	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	return nil
}

// Stop closes the gateway connection.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

// Send posts a message to the chat's Discord channel.
func (p *Plugin) Send(ctx context.Context, msg channels.OutboundMessage) error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()
	if session == nil {
		return errors.New("discord channel not started")
	}
	_, err := session.ChannelMessageSend(msg.ChatID, msg.Content)
	return err
}

func (p *Plugin) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore our own messages and other bots.
	if m.Author == nil || m.Author.Bot {
		return
	}
	if s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler == nil {
		return
	}

	handler(context.Background(), channels.InboundMessage{
		ChannelID: p.ID(),
		SenderID:  m.Author.ID,
		ChatID:    m.ChannelID,
		Content:   m.Content,
		Metadata: map[string]string{
			"messageId": m.ID,
			"guildId":   m.GuildID,
			"username":  m.Author.Username,
		},
		Timestamp: time.Now(),
	})
}
