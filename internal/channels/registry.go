package channels

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hayahq/haya/internal/observability"
)

// Registry holds the set of channel plugins and routes their inbound
// messages into a single handler.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	handler Handler
	metrics *observability.Metrics
}

// NewRegistry creates an empty registry.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{plugins: make(map[string]Plugin), metrics: metrics}
}

// Register adds a plugin. Registering a duplicate id fails. The plugin's
// inbound sink is wired immediately so messages flow as soon as it starts.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := p.ID()
	if _, exists := r.plugins[id]; exists {
		return fmt.Errorf("channel already registered: %s", id)
	}
	r.plugins[id] = p
	p.SetHandler(r.dispatch)
	return nil
}

// Unregister removes a plugin by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.plugins[id]; ok {
		p.SetHandler(nil)
		delete(r.plugins, id)
	}
}

// Get returns a plugin by id.
func (r *Registry) Get(id string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// Has reports whether a plugin is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns all plugins sorted by id.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	plugins := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		plugins = append(plugins, p)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].ID() < plugins[j].ID() })
	return plugins
}

// Size returns the number of registered plugins.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// OnMessage sets the handler receiving every inbound message from every
// channel. Only one handler is active; setting replaces the previous one.
func (r *Registry) OnMessage(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// dispatch is the sink handed to every plugin.
func (r *Registry) dispatch(ctx context.Context, msg InboundMessage) {
	r.mu.RLock()
	handler := r.handler
	r.mu.RUnlock()
	if r.metrics != nil {
		r.metrics.RecordChannelMessage(msg.ChannelID, "inbound")
	}
	if handler != nil {
		handler(ctx, msg)
	}
}

// Send delivers an outbound message through the named channel.
func (r *Registry) Send(ctx context.Context, channelID string, msg OutboundMessage) error {
	p, ok := r.Get(channelID)
	if !ok {
		return fmt.Errorf("channel not found: %s", channelID)
	}
	if err := p.Send(ctx, msg); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordChannelMessage(channelID, "outbound")
	}
	return nil
}
