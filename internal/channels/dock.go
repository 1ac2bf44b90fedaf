package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/hayahq/haya/internal/observability"
)

// State is a channel's lifecycle state as tracked by the dock.
type State string

const (
	StateDisconnected State = "disconnected"
	StateStarting     State = "starting"
	StateRunning      State = "running"
	StateStopping     State = "stopping"
	StateFailed       State = "failed"
)

// ChannelStatus is one entry of a dock status snapshot.
type ChannelStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     State  `json:"state"`
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

type dockEntry struct {
	state State
	err   error
	// inflight is non-nil while a start is running; waiters block on it.
	inflight chan struct{}
}

// Dock drives channel lifecycle. Starts are idempotent on Running and
// coalesce on Starting; a failed start leaves the channel in Failed with
// the error captured, and a later start may retry.
type Dock struct {
	registry *Registry
	logger   *observability.Logger
	mu       sync.Mutex
	entries  map[string]*dockEntry
}

// NewDock creates a dock over the registry.
func NewDock(registry *Registry, logger *observability.Logger) *Dock {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Dock{
		registry: registry,
		logger:   logger,
		entries:  make(map[string]*dockEntry),
	}
}

func (d *Dock) entry(id string) *dockEntry {
	e, ok := d.entries[id]
	if !ok {
		e = &dockEntry{state: StateDisconnected}
		d.entries[id] = e
	}
	return e
}

// StartChannel brings a channel to Running. Already Running is a no-op;
// a concurrent start is awaited rather than duplicated.
func (d *Dock) StartChannel(ctx context.Context, id string) error {
	plugin, ok := d.registry.Get(id)
	if !ok {
		return fmt.Errorf("channel not found: %s", id)
	}

	d.mu.Lock()
	e := d.entry(id)
	switch e.state {
	case StateRunning:
		d.mu.Unlock()
		return nil
	case StateStarting:
		wait := e.inflight
		d.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		d.mu.Lock()
		err := e.err
		d.mu.Unlock()
		return err
	}
	e.state = StateStarting
	e.err = nil
	done := make(chan struct{})
	e.inflight = done
	d.mu.Unlock()

	d.logger.Info(ctx, "starting channel", "channel", id)
	err := plugin.Start(ctx)

	d.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
		d.logger.Error(ctx, "channel start failed", "channel", id, "error", err)
	} else {
		e.state = StateRunning
		d.logger.Info(ctx, "channel running", "channel", id)
	}
	e.inflight = nil
	close(done)
	d.mu.Unlock()
	return err
}

// StopChannel brings a channel to Disconnected. Already Disconnected is
// a no-op.
func (d *Dock) StopChannel(ctx context.Context, id string) error {
	plugin, ok := d.registry.Get(id)
	if !ok {
		return fmt.Errorf("channel not found: %s", id)
	}

	d.mu.Lock()
	e := d.entry(id)
	if e.state == StateDisconnected {
		d.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	d.mu.Unlock()

	d.logger.Info(ctx, "stopping channel", "channel", id)
	err := plugin.Stop(ctx)

	d.mu.Lock()
	if err != nil {
		e.state = StateFailed
		e.err = err
	} else {
		e.state = StateDisconnected
		e.err = nil
	}
	d.mu.Unlock()
	return err
}

// StartAll starts every registered channel, continuing past failures.
// The last failure is returned.
func (d *Dock) StartAll(ctx context.Context) error {
	var lastErr error
	for _, p := range d.registry.List() {
		if err := d.StartChannel(ctx, p.ID()); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// StopAll stops every registered channel, continuing past failures.
func (d *Dock) StopAll(ctx context.Context) error {
	var lastErr error
	for _, p := range d.registry.List() {
		if err := d.StopChannel(ctx, p.ID()); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Status snapshots every registered channel.
func (d *Dock) Status() []ChannelStatus {
	plugins := d.registry.List()
	d.mu.Lock()
	defer d.mu.Unlock()

	statuses := make([]ChannelStatus, 0, len(plugins))
	for _, p := range plugins {
		e := d.entry(p.ID())
		status := ChannelStatus{
			ID:        p.ID(),
			Name:      p.Name(),
			State:     e.state,
			Connected: e.state == StateRunning,
		}
		if e.err != nil {
			status.Error = e.err.Error()
		}
		statuses = append(statuses, status)
	}
	return statuses
}
