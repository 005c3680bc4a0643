package manager

import "github.com/mcp-lens/mcp-lens/mcp"

// Status is the presentation-facing condition of one configured server. It
// is derived from connection lifecycle outcomes; raw protocol errors never
// reach the presentation layer.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// ServerSnapshot is the per-server slice of a snapshot.
type ServerSnapshot struct {
	Name      string
	Status    Status
	ToolCount int
	Tools     []mcp.Tool
}

// Snapshot is the full state pushed to the listener after every change.
// Servers appear in configuration order.
type Snapshot struct {
	Servers []ServerSnapshot
}

// Listener receives snapshots. Implementations must not block for long; they
// are invoked synchronously on the mutating goroutine.
type Listener interface {
	ServersUpdated(Snapshot)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Snapshot)

func (f ListenerFunc) ServersUpdated(s Snapshot) { f(s) }
