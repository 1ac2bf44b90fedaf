// Package channels multiplexes external chat transports into one
// message-routing plane. Plugins wrap vendor connections; the registry
// fans their inbound traffic into a single handler and the dock drives
// their lifecycle.
package channels

import (
	"context"
	"time"
)

// InboundMessage is one message arriving from a channel.
type InboundMessage struct {
	ChannelID string            `json:"channelId"`
	SenderID  string            `json:"senderId"`
	ChatID    string            `json:"chatId"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// OutboundMessage is one message to deliver through a channel.
type OutboundMessage struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	ReplyTo string `json:"replyTo,omitempty"`
}

// Handler receives every inbound message from every registered channel.
type Handler func(ctx context.Context, msg InboundMessage)

// Plugin is one channel transport. Implementations wrap a vendor
// connection (Discord gateway, Slack socket mode, an HTTP listener) and
// push inbound messages through the handler set by SetHandler.
type Plugin interface {
	// ID is the unique registry key, e.g. "discord".
	ID() string

	// Name is the human-readable label reported in status snapshots.
	Name() string

	// Start connects and begins receiving. It returns once the channel
	// is ready or the connection attempt failed.
	Start(ctx context.Context) error

	// Stop disconnects and releases resources. Stopping an already
	// stopped plugin is a no-op.
	Stop(ctx context.Context) error

	// Send delivers one outbound message.
	Send(ctx context.Context, msg OutboundMessage) error

	// SetHandler wires the inbound sink. Called by the registry before
	// Start; a nil handler drops inbound traffic.
	SetHandler(h Handler)
}
