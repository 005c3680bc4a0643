package manager

import (
	"log/slog"
	"time"

	"github.com/mcp-lens/mcp-lens/client"
)

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger overrides the logger. It is also handed to every client the
// manager builds.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithListener installs the snapshot consumer notified after every state
// change.
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listener = l
	}
}

// WithSettleDelay adjusts the pause between stop and start during restart.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.settleDelay = d
		}
	}
}

// WithClientOptions appends options applied to every client the manager
// builds, such as request timeouts or a test transport factory.
func WithClientOptions(opts ...client.Option) Option {
	return func(m *Manager) {
		m.clientOpts = append(m.clientOpts, opts...)
	}
}
