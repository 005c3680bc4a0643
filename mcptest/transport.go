// Package mcptest provides an in-process counterparty for exercising the
// connection runtime without spawning OS processes: a pipe-backed transport
// whose far end a test scripts frame by frame, and a Server that plays a
// well-behaved MCP server on top of it.
package mcptest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mcp-lens/mcp-lens/client"
	"github.com/mcp-lens/mcp-lens/internal/jsonrpc"
)

// Request is a decoded client-to-server message as observed by the test.
type Request struct {
	Method string
	ID     int64
	HasID  bool
	Params json.RawMessage
}

// Transport implements client.Transport over in-memory pipes. The test side
// reads the client's requests and writes raw frames back, with full control
// over chunking, ordering, and malformed data.
type Transport struct {
	startErr error

	// client -> server
	reqR *io.PipeReader
	reqW *io.PipeWriter
	// server -> client
	respR *io.PipeReader
	respW *io.PipeWriter

	requests chan Request

	mu      sync.Mutex
	done    chan struct{}
	exitErr error
	ended   bool
}

// NewTransport builds a connected transport pair.
func NewTransport() *Transport {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	t := &Transport{
		reqR:     reqR,
		reqW:     reqW,
		respR:    respR,
		respW:    respW,
		requests: make(chan Request, 32),
		done:     make(chan struct{}),
	}
	go t.collectRequests()
	return t
}

// NewFailingTransport builds a transport whose Start fails, simulating a
// process that could not be spawned.
func NewFailingTransport(err error) *Transport {
	t := NewTransport()
	t.startErr = err
	return t
}

// Factory adapts the transport to the client's transport-factory option so a
// single prepared transport backs the next client built from it.
func (t *Transport) Factory() func(client.ServerConfig, *slog.Logger) client.Transport {
	return func(client.ServerConfig, *slog.Logger) client.Transport { return t }
}

func (t *Transport) collectRequests() {
	scanner := bufio.NewScanner(t.reqR)
	for scanner.Scan() {
		var msg jsonrpc.AnyMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}
		req := Request{Method: msg.Method, Params: msg.Params}
		if id, ok := msg.ID.Int64(); ok {
			req.ID = id
			req.HasID = true
		}
		select {
		case t.requests <- req:
		default:
		}
	}
	close(t.requests)
}

// Start implements client.Transport.
func (t *Transport) Start() error {
	if t.startErr != nil {
		return &client.SpawnError{Command: "mcptest", Err: t.startErr}
	}
	return nil
}

// Send implements client.Transport.
func (t *Transport) Send(msg *jsonrpc.Request) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := t.reqW.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("mcptest: write request: %w", err)
	}
	return nil
}

// Output implements client.Transport.
func (t *Transport) Output() io.Reader { return t.respR }

// Stop implements client.Transport.
func (t *Transport) Stop() { t.terminate(nil) }

// Done implements client.Transport.
func (t *Transport) Done() <-chan struct{} { return t.done }

// ExitErr implements client.Transport.
func (t *Transport) ExitErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitErr
}

// Exit simulates the peer process terminating with the given cause. The
// client observes EOF on the output stream and then the exit outcome.
func (t *Transport) Exit(err error) { t.terminate(err) }

func (t *Transport) terminate(err error) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	t.exitErr = err
	t.mu.Unlock()

	t.respW.Close()
	t.reqW.Close()
	t.reqR.Close()
	close(t.done)
}

// WriteFrame writes one raw line, terminator included, to the client's
// input. Use WriteChunk to control where chunk boundaries fall.
func (t *Transport) WriteFrame(line string) error {
	return t.WriteChunk(line + "\n")
}

// WriteChunk writes raw bytes verbatim.
func (t *Transport) WriteChunk(chunk string) error {
	if _, err := t.respW.Write([]byte(chunk)); err != nil {
		return fmt.Errorf("mcptest: write chunk: %w", err)
	}
	return nil
}

// RespondResult writes a successful response for id.
func (t *Transport) RespondResult(id int64, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return t.WriteFrame(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, id, raw))
}

// RespondError writes an error response for id.
func (t *Transport) RespondError(id int64, code int, message string) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return t.WriteFrame(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":%d,"message":%s}}`, id, code, raw))
}

// Notify writes a server-initiated notification.
func (t *Transport) Notify(method string, params any) error {
	msg, err := jsonrpc.NewNotification(method, params)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.WriteChunk(string(data) + "\n")
}

// NextRequest returns the next decoded client request, waiting up to
// timeout.
func (t *Transport) NextRequest(timeout time.Duration) (Request, error) {
	select {
	case req, ok := <-t.requests:
		if !ok {
			return Request{}, fmt.Errorf("mcptest: request stream closed")
		}
		return req, nil
	case <-time.After(timeout):
		return Request{}, fmt.Errorf("mcptest: timeout waiting for request")
	}
}
