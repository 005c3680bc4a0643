package client

// TransportKind names the mechanism used to reach a server.
type TransportKind string

// TransportStdio is the only transport in scope: a child process speaking
// newline-delimited JSON-RPC over its standard streams.
const TransportStdio TransportKind = "stdio"

// ServerConfig is the immutable descriptor of one configured server. It is
// supplied by the configuration source; the runtime never mutates or
// persists it.
type ServerConfig struct {
	// Name is the unique key identifying the server.
	Name string
	// Command is the executable to spawn.
	Command string
	// Args are passed to the executable verbatim.
	Args []string
	// Env is overlaid on top of the parent process environment.
	Env map[string]string
	// Transport selects the connection mechanism. Empty means stdio.
	Transport TransportKind
}
