package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hayahq/haya/internal/agent"
	"github.com/hayahq/haya/internal/channels"
	"github.com/hayahq/haya/internal/channels/discord"
	"github.com/hayahq/haya/internal/channels/slack"
	"github.com/hayahq/haya/internal/channels/webhook"
	"github.com/hayahq/haya/internal/config"
	"github.com/hayahq/haya/internal/observability"
	"github.com/hayahq/haya/internal/profile"
	"github.com/hayahq/haya/internal/sessions"
	"github.com/hayahq/haya/internal/tokens"
	"github.com/hayahq/haya/pkg/models"
)

// registerChannelPlugins builds one plugin per configured channel section.
// Sections with no usable credentials are skipped with a warning so a
// half-configured file still starts.
func registerChannelPlugins(registry *channels.Registry, cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	if cfg.Channels.Discord != nil {
		token := resolveChannelSecret(cfg.Channels.Discord, "botToken", "botTokenEnvVar", "DISCORD_BOT_TOKEN")
		if token == "" {
			logger.Warn(ctx, "discord channel configured without a bot token, skipping")
		} else if err := registry.Register(discord.New(discord.Config{BotToken: token}, logger)); err != nil {
			return err
		}
	}

	if cfg.Channels.Slack != nil {
		botToken := resolveChannelSecret(cfg.Channels.Slack, "botToken", "botTokenEnvVar", "SLACK_BOT_TOKEN")
		appToken := resolveChannelSecret(cfg.Channels.Slack, "appToken", "appTokenEnvVar", "SLACK_APP_TOKEN")
		if botToken == "" || appToken == "" {
			logger.Warn(ctx, "slack channel configured without both tokens, skipping")
		} else if err := registry.Register(slack.New(slack.Config{BotToken: botToken, AppToken: appToken}, logger)); err != nil {
			return err
		}
	}

	if cfg.Channels.Webhook != nil {
		whCfg := webhook.Config{
			Port:        intSetting(cfg.Channels.Webhook, "port"),
			Path:        stringSetting(cfg.Channels.Webhook, "path"),
			OutboundURL: stringSetting(cfg.Channels.Webhook, "outboundUrl"),
		}
		if err := registry.Register(webhook.New(whCfg, logger)); err != nil {
			return err
		}
	}

	return nil
}

// resolveChannelSecret reads an inline secret or falls back to an env var.
func resolveChannelSecret(section map[string]any, inlineKey, envVarKey, defaultEnvVar string) string {
	if inline := stringSetting(section, inlineKey); inline != "" {
		return inline
	}
	envVar := stringSetting(section, envVarKey)
	if envVar == "" {
		envVar = defaultEnvVar
	}
	return strings.TrimSpace(os.Getenv(envVar))
}

func stringSetting(section map[string]any, key string) string {
	v, _ := section[key].(string)
	return v
}

func intSetting(section map[string]any, key string) int {
	switch v := section[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// channelBridge turns inbound channel messages into agent turns and sends
// the reply back through the originating channel. Channel sessions are
// keyed by channel and chat so each conversation gets its own history.
func channelBridge(
	cfg *config.Config,
	history *sessions.Manager,
	runtime agent.Runtime,
	summarizer sessions.Summarizer,
	registry *channels.Registry,
	profiles *profile.Store,
	counter tokens.Counter,
	logger *observability.Logger,
) channels.Handler {
	return func(ctx context.Context, msg channels.InboundMessage) {
		ctx = observability.WithSessionID(ctx, msg.ChannelID+":"+msg.ChatID)
		sessionID := fmt.Sprintf("chan:%s:%s", msg.ChannelID, msg.ChatID)

		rememberSender(ctx, profiles, msg, logger)

		opts := sessions.HistoryOptions{Summarizer: summarizer}
		if cfg.Agent.ContextWindowTokens > 0 {
			opts.MaxTokens = cfg.Agent.ContextWindowTokens
			opts.ContextPruning = true
			opts.SystemPromptTokens = counter.Count(cfg.Agent.SystemPrompt)
		}
		msgs, err := history.GetHistory(ctx, sessionID, opts)
		if err != nil {
			logger.Error(ctx, "channel history read failed", "error", err)
			return
		}

		result, err := runtime.Chat(ctx, agent.ChatRequest{SessionID: sessionID, Message: msg.Content}, msgs, nil)
		if err != nil {
			logger.Error(ctx, "channel turn failed", "channel", msg.ChannelID, "error", err)
			return
		}

		turn := []models.Message{
			models.NewMessage(models.RoleUser, msg.Content),
			models.NewMessage(models.RoleAssistant, result.Content),
		}
		if err := history.AddMessages(ctx, sessionID, turn); err != nil {
			logger.Error(ctx, "channel turn persist failed", "error", err)
		}

		reply := channels.OutboundMessage{ChatID: msg.ChatID, Content: result.Content, ReplyTo: msg.Metadata["messageId"]}
		if err := registry.Send(ctx, msg.ChannelID, reply); err != nil {
			logger.Error(ctx, "channel reply failed", "channel", msg.ChannelID, "error", err)
		}
	}
}

// rememberSender records who we last heard from on which channel.
func rememberSender(ctx context.Context, profiles *profile.Store, msg channels.InboundMessage, logger *observability.Logger) {
	if profiles == nil {
		return
	}
	senderID := msg.ChannelID + ":" + msg.SenderID
	p, err := profiles.Get(senderID)
	if err != nil {
		p = &profile.Profile{Fields: map[string]any{}}
	}
	if p.Fields == nil {
		p.Fields = map[string]any{}
	}
	p.Fields["channel"] = msg.ChannelID
	p.Fields["lastChatId"] = msg.ChatID
	if username := msg.Metadata["username"]; username != "" {
		p.Fields["username"] = username
	}
	if err := profiles.Put(senderID, p); err != nil {
		logger.Warn(ctx, "profile update failed", "sender", senderID, "error", err)
	}
}
