package manager

import (
	"context"

	"github.com/mcp-lens/mcp-lens/client"
	"github.com/mcp-lens/mcp-lens/mcp"
)

// Sync drives the full discovery pass: existing connections are stopped and
// discarded, then each configuration is started and queried for tools in
// order. A failing entry is recorded with an error status and an empty tool
// set; it never aborts the remaining list. The listener is notified after
// every entry settles, so consumers see progressive updates rather than one
// big-bang result at the end.
func (m *Manager) Sync(ctx context.Context, configs []client.ServerConfig) Snapshot {
	m.StopAll()

	// Rebuild the roster from the incoming list so servers removed from the
	// configuration disappear from snapshots.
	m.mu.Lock()
	m.configs = make(map[string]client.ServerConfig, len(configs))
	m.tools = make(map[string][]mcp.Tool, len(configs))
	m.failed = make(map[string]error)
	m.order = nil
	for _, cfg := range configs {
		m.rememberLocked(cfg)
	}
	m.mu.Unlock()

	for _, cfg := range configs {
		if err := m.Start(ctx, cfg); err != nil {
			m.log.Warn("server failed to start during sync", "server", cfg.Name, "err", err)
			continue
		}
		m.ListTools(ctx, cfg.Name)
		m.notify()
	}

	return m.Snapshot()
}
