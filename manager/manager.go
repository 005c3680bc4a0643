// Package manager holds the authoritative table of live server connections
// and orchestrates discovery across a configured server list. It is the only
// owner of client handles: callers address servers by name and receive
// snapshots, never processes or streams.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcp-lens/mcp-lens/client"
	"github.com/mcp-lens/mcp-lens/mcp"
)

// ErrDuplicateStart rejects a start for a server that already has a live
// connection. The existing connection is left untouched.
var ErrDuplicateStart = errors.New("manager: server already started")

// ErrUnknownServer rejects operations addressing a name the manager has
// never seen a configuration for.
var ErrUnknownServer = errors.New("manager: unknown server")

// ErrStartAborted reports that a stop for the same name arrived while the
// start was still in flight; the fresh connection was discarded.
var ErrStartAborted = errors.New("manager: start aborted by stop")

// DefaultSettleDelay is the pause between stop and start during a restart,
// giving the old process a moment to release its resources.
const DefaultSettleDelay = 500 * time.Millisecond

// Manager serializes lifecycle operations per server name and guarantees at
// most one live connection per name at any instant.
type Manager struct {
	log         *slog.Logger
	listener    Listener
	settleDelay time.Duration
	clientOpts  []client.Option

	mu      sync.Mutex
	conns   map[string]*client.Client
	configs map[string]client.ServerConfig
	tools   map[string][]mcp.Tool
	failed  map[string]error
	// starting holds in-flight start attempts; the value flips to true when
	// a Stop lands mid-start, telling the attempt to discard its result.
	starting map[string]bool
	order    []string
}

// New builds an empty manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		log:         slog.Default(),
		settleDelay: DefaultSettleDelay,
		conns:       make(map[string]*client.Client),
		configs:     make(map[string]client.ServerConfig),
		tools:       make(map[string][]mcp.Tool),
		failed:      make(map[string]error),
		starting:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start connects the described server. A live or in-flight connection for
// the same name is rejected with ErrDuplicateStart and no side effects; a
// failed start leaves no table entry behind.
func (m *Manager) Start(ctx context.Context, cfg client.ServerConfig) error {
	if cfg.Transport != "" && cfg.Transport != client.TransportStdio {
		return fmt.Errorf("manager: unsupported transport %q for %q", cfg.Transport, cfg.Name)
	}

	m.mu.Lock()
	if _, inFlight := m.starting[cfg.Name]; inFlight {
		m.mu.Unlock()
		return ErrDuplicateStart
	}
	if existing, ok := m.conns[cfg.Name]; ok && existing.IsRunning() {
		m.mu.Unlock()
		return ErrDuplicateStart
	}
	m.starting[cfg.Name] = false
	m.rememberLocked(cfg)
	m.mu.Unlock()

	opts := append([]client.Option{client.WithLogger(m.log)}, m.clientOpts...)
	c := client.New(cfg, opts...)
	err := c.Start(ctx)

	m.mu.Lock()
	aborted := m.starting[cfg.Name]
	delete(m.starting, cfg.Name)
	if aborted {
		m.mu.Unlock()
		if err == nil {
			c.Stop()
		}
		m.notify()
		return ErrStartAborted
	}
	if err == nil {
		m.conns[cfg.Name] = c
		delete(m.failed, cfg.Name)
	} else {
		m.failed[cfg.Name] = err
	}
	m.mu.Unlock()

	m.notify()
	return err
}

// Stop tears down the named connection and removes its table entry
// regardless of outcome. Stopping an absent or already-stopped server is a
// no-op; stopping a server whose start is still in flight marks the attempt
// so its connection is discarded on completion.
func (m *Manager) Stop(name string) {
	m.mu.Lock()
	if _, inFlight := m.starting[name]; inFlight {
		m.starting[name] = true
	}
	c := m.conns[name]
	delete(m.conns, name)
	delete(m.tools, name)
	delete(m.failed, name)
	m.mu.Unlock()

	if c == nil {
		return
	}
	c.Stop()
	m.notify()
}

// Restart stops the named server if present, waits out the settling delay,
// and starts it from its remembered configuration. With no existing
// connection it degrades to a plain start.
func (m *Manager) Restart(ctx context.Context, name string) error {
	m.mu.Lock()
	cfg, known := m.configs[name]
	_, present := m.conns[name]
	m.mu.Unlock()

	if !known {
		return fmt.Errorf("%w: %q", ErrUnknownServer, name)
	}

	if present {
		m.Stop(name)
		select {
		case <-time.After(m.settleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.Start(ctx, cfg)
}

// StopAll best-effort signals every live connection and clears the table.
// It does not await graceful exits and does not retry.
func (m *Manager) StopAll() {
	m.mu.Lock()
	conns := make([]*client.Client, 0, len(m.conns))
	for name, c := range m.conns {
		conns = append(conns, c)
		delete(m.conns, name)
		delete(m.tools, name)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Stop()
	}
	if len(conns) > 0 {
		m.notify()
	}
}

// ListTools queries the named server's tool inventory and caches the result
// for snapshots. Discovery is advisory: any failure reports an empty list.
func (m *Manager) ListTools(ctx context.Context, name string) []mcp.Tool {
	m.mu.Lock()
	c := m.conns[name]
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	tools := c.ListTools(ctx)

	m.mu.Lock()
	m.tools[name] = tools
	m.mu.Unlock()

	return tools
}

// Status derives the presentation status for the named server.
func (m *Manager) Status(name string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(name)
}

func (m *Manager) statusLocked(name string) Status {
	if c, ok := m.conns[name]; ok {
		switch c.State() {
		case client.StateReady:
			return StatusRunning
		case client.StateErrored:
			return StatusError
		case client.StateStopping, client.StateStopped:
			return StatusStopped
		default:
			return StatusUnknown
		}
	}
	if m.failed[name] != nil {
		return StatusError
	}
	if _, known := m.configs[name]; known {
		return StatusStopped
	}
	return StatusUnknown
}

// Snapshot assembles the full per-server state in configuration order.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{Servers: make([]ServerSnapshot, 0, len(m.order))}
	for _, name := range m.order {
		tools := m.tools[name]
		snap.Servers = append(snap.Servers, ServerSnapshot{
			Name:      name,
			Status:    m.statusLocked(name),
			ToolCount: len(tools),
			Tools:     tools,
		})
	}
	return snap
}

// rememberLocked records the configuration and its position. Remembered
// configs survive Stop so a later Restart can find them.
func (m *Manager) rememberLocked(cfg client.ServerConfig) {
	if _, known := m.configs[cfg.Name]; !known {
		m.order = append(m.order, cfg.Name)
	}
	m.configs[cfg.Name] = cfg
}

func (m *Manager) notify() {
	if m.listener == nil {
		return
	}
	m.listener.ServersUpdated(m.Snapshot())
}
