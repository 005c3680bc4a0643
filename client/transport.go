package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/mcp-lens/mcp-lens/internal/jsonrpc"
)

// Transport carries framed JSON-RPC traffic to and from one server. The
// production implementation spawns a child process; tests substitute a
// pipe-backed fake so no OS process is involved.
type Transport interface {
	// Start establishes the connection. It must be called exactly once.
	Start() error
	// Send writes one message followed by a newline terminator. Writes are
	// synchronous and unbounded; there is no backpressure.
	Send(msg *jsonrpc.Request) error
	// Output is the raw byte stream the frame reader consumes.
	Output() io.Reader
	// Stop tears the connection down. It is idempotent.
	Stop()
	// Done is closed once the peer is gone; ExitErr then reports why.
	Done() <-chan struct{}
	// ExitErr is valid after Done is closed.
	ExitErr() error
}

// StdioTransport runs a server as a child process and exchanges messages
// over its standard streams. Stderr is drained and logged so a chatty or
// crashing server cannot block on a full pipe.
type StdioTransport struct {
	cfg ServerConfig
	log *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex

	done     chan struct{}
	exitErr  error
	stopOnce sync.Once
}

// NewStdioTransport builds a transport for the given server descriptor.
func NewStdioTransport(cfg ServerConfig, log *slog.Logger) *StdioTransport {
	if log == nil {
		log = slog.Default()
	}
	return &StdioTransport{
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}
}

// Start spawns the configured command with the parent environment overlaid
// by the server's env entries. A failure to launch is reported as a
// *SpawnError and leaves no process behind.
func (t *StdioTransport) Start() error {
	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	if len(t.cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range t.cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SpawnError{Command: t.cfg.Command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return &SpawnError{Command: t.cfg.Command, Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return &SpawnError{Command: t.cfg.Command, Err: err}
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return &SpawnError{Command: t.cfg.Command, Err: err}
	}

	t.cmd = cmd
	t.stdin = stdin
	t.stdout = stdout

	go t.drainStderr(stderr)
	go func() {
		err := cmd.Wait()
		t.exitErr = err
		close(t.done)
	}()

	return nil
}

func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.log.Debug("server stderr", "server", t.cfg.Name, "line", scanner.Text())
	}
}

// Send marshals the message and writes it as one line.
func (t *StdioTransport) Send(msg *jsonrpc.Request) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.stdin.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Output returns the process stdout stream.
func (t *StdioTransport) Output() io.Reader { return t.stdout }

// Stop closes stdin and signals the process to terminate. There is no wire
// message for this; any work the server had in flight is simply abandoned.
func (t *StdioTransport) Stop() {
	t.stopOnce.Do(func() {
		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.cmd != nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	})
}

// Done is closed once the process has exited.
func (t *StdioTransport) Done() <-chan struct{} { return t.done }

// ExitErr reports the process exit outcome after Done is closed.
func (t *StdioTransport) ExitErr() error { return t.exitErr }
