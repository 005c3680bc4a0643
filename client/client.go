// Package client owns a single child-process server connection: it spawns
// the process, performs the initialize/initialized handshake, correlates
// requests with responses by id, and tracks lifecycle state. Callers never
// see the process or the stream; they see typed results or typed errors.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcp-lens/mcp-lens/internal/framing"
	"github.com/mcp-lens/mcp-lens/internal/jsonrpc"
	"github.com/mcp-lens/mcp-lens/internal/logctx"
	"github.com/mcp-lens/mcp-lens/mcp"
)

// State is the lifecycle phase of a connection.
type State string

const (
	StateIdle      State = "idle"
	StateStarting  State = "starting"
	StateHandshake State = "handshake"
	StateReady     State = "ready"
	StateStopping  State = "stopping"
	StateStopped   State = "stopped"
	StateErrored   State = "errored"
)

const (
	// DefaultRequestTimeout bounds every correlated request.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultHandshakeTimeout bounds the initialize exchange.
	DefaultHandshakeTimeout = 10 * time.Second

	// sweepInterval is how often pending deadlines are checked. Expiry is a
	// sweep over explicit deadlines rather than one timer per request.
	sweepInterval = 100 * time.Millisecond

	clientName    = "mcp-lens"
	clientVersion = "0.1.0"
)

// settled carries the outcome of a pending request: a response frame or a
// terminal error, never both.
type settled struct {
	resp *jsonrpc.Response
	err  error
}

// pendingRequest is one sent-but-unsettled request. It leaves the pending
// map exactly once: on response arrival, deadline expiry, or teardown.
type pendingRequest struct {
	id       int64
	ch       chan settled
	deadline time.Time
}

// Client is the protocol client for one server connection. A Client is
// single-use: after it leaves Ready it cannot be restarted; callers build a
// fresh one.
type Client struct {
	cfg ServerConfig
	log *slog.Logger
	id  string

	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	newTransport     func(ServerConfig, *slog.Logger) Transport

	mu         sync.Mutex
	state      State
	tr         Transport
	pending    map[int64]*pendingRequest
	lastID     int64
	serverInfo *mcp.ImplementationInfo
	caps       *mcp.ServerCapabilities

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New builds an idle client for the given server descriptor.
func New(cfg ServerConfig, opts ...Option) *Client {
	c := &Client{
		cfg:              cfg,
		log:              slog.Default(),
		id:               uuid.NewString(),
		requestTimeout:   DefaultRequestTimeout,
		handshakeTimeout: DefaultHandshakeTimeout,
		state:            StateIdle,
		pending:          make(map[int64]*pendingRequest),
		stopSweep:        make(chan struct{}),
	}
	c.newTransport = func(cfg ServerConfig, log *slog.Logger) Transport {
		return NewStdioTransport(cfg, log)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID is the connection identity used for log correlation.
func (c *Client) ID() string { return c.id }

// Name is the configured server name.
func (c *Client) Name() string { return c.cfg.Name }

// State reports the current lifecycle phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsRunning reports whether the connection is Ready.
func (c *Client) IsRunning() bool { return c.State() == StateReady }

// ServerInfo returns the identity the server reported during the handshake,
// or nil before the handshake completed.
func (c *Client) ServerInfo() *mcp.ImplementationInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

// Capabilities returns the server capabilities negotiated during the
// handshake, or nil before the handshake completed.
func (c *Client) Capabilities() *mcp.ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Start spawns the process, wires its output into the frame reader, and
// drives the handshake. On failure the process (if any) is torn down and the
// client ends up Errored; a retry requires a fresh Client.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("client: start on %s connection", state)
	}
	c.state = StateStarting
	tr := c.newTransport(c.cfg, c.log)
	c.tr = tr
	c.mu.Unlock()

	if err := tr.Start(); err != nil {
		c.mu.Lock()
		c.state = StateErrored
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.state = StateHandshake
	c.mu.Unlock()

	go c.readLoop(tr)
	go c.sweepExpired()

	if err := c.handshake(ctx); err != nil {
		c.fail(&ProcessExitError{Err: err})
		return &HandshakeError{Err: err}
	}

	// Teardown that raced the tail of the handshake wins: a stopped or
	// errored connection never re-enters Ready.
	c.mu.Lock()
	if c.state != StateHandshake {
		state := c.state
		c.mu.Unlock()
		return &HandshakeError{Err: fmt.Errorf("connection %s before becoming ready", state)}
	}
	c.state = StateReady
	c.mu.Unlock()

	c.log.Info("connection ready", "server", c.cfg.Name, "conn_id", c.id)
	return nil
}

func (c *Client) handshake(ctx context.Context) error {
	params := &mcp.InitializeRequest{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      mcp.ImplementationInfo{Name: clientName, Version: clientVersion},
	}

	var res mcp.InitializeResult
	if err := c.call(ctx, mcp.InitializeMethod, params, &res); err != nil {
		return err
	}

	c.mu.Lock()
	c.serverInfo = &res.ServerInfo
	c.caps = &res.Capabilities
	tr := c.tr
	c.mu.Unlock()

	note, err := jsonrpc.NewNotification(string(mcp.InitializedNotificationMethod), mcp.InitializedNotification{})
	if err != nil {
		return err
	}
	return tr.Send(note)
}

// ListTools queries the server's tool inventory. Tool discovery is advisory:
// any failure, including a connection that is not Ready, reports an empty
// list instead of propagating.
func (c *Client) ListTools(ctx context.Context) []mcp.Tool {
	var res mcp.ListToolsResult
	if err := c.call(ctx, mcp.ToolsListMethod, nil, &res); err != nil {
		c.log.WarnContext(ctx, "tools/list failed, reporting empty inventory",
			"server", c.cfg.Name, "err", err)
		return nil
	}
	return res.Tools
}

// CallTool invokes a named tool. Unlike ListTools, failures propagate.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	params := &mcp.CallToolRequest{Name: name, Arguments: args}
	var res mcp.CallToolResult
	if err := c.call(ctx, mcp.ToolsCallMethod, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ping issues a protocol-level ping.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, mcp.PingMethod, nil, nil)
}

// call sends a correlated request and waits for its settlement. Calls are
// rejected unless the connection is Ready; the initialize request itself is
// the one exception, allowed while the handshake is in flight.
func (c *Client) call(ctx context.Context, method mcp.Method, params, out any) error {
	timeout := c.requestTimeout
	if method == mcp.InitializeMethod {
		timeout = c.handshakeTimeout
	}

	c.mu.Lock()
	ok := c.state == StateReady || (c.state == StateHandshake && method == mcp.InitializeMethod)
	if !ok {
		c.mu.Unlock()
		return ErrNotReady
	}
	c.lastID++
	id := c.lastID
	p := &pendingRequest{
		id:       id,
		ch:       make(chan settled, 1),
		deadline: time.Now().Add(timeout),
	}
	c.pending[id] = p
	tr := c.tr
	c.mu.Unlock()

	req, err := jsonrpc.NewRequest(id, string(method), params)
	if err != nil {
		c.takePending(id)
		return err
	}

	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: string(method),
		ID:     strconv.FormatInt(id, 10),
		Type:   string(jsonrpc.TypeRequest),
	})
	c.log.DebugContext(ctx, "sending request", "server", c.cfg.Name)

	if err := tr.Send(req); err != nil {
		c.takePending(id)
		return err
	}

	select {
	case s := <-p.ch:
		if s.err != nil {
			return s.err
		}
		if s.resp.Error != nil {
			return s.resp.Error
		}
		if out != nil && len(s.resp.Result) > 0 {
			if err := json.Unmarshal(s.resp.Result, out); err != nil {
				return fmt.Errorf("decode %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.takePending(id)
		return ctx.Err()
	}
}

// Stop signals the process to terminate and synchronously rejects every
// pending request. Stopping an already-stopped connection is a no-op.
func (c *Client) Stop() {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateStopping, StateStopped:
		c.mu.Unlock()
		return
	}
	c.state = StateStopping
	tr := c.tr
	taken := c.takeAllPendingLocked()
	c.mu.Unlock()

	for _, p := range taken {
		p.ch <- settled{err: &ProcessExitError{}}
	}
	if tr != nil {
		tr.Stop()
	}
	c.stopSweeper()

	c.mu.Lock()
	c.state = StateStopped
	c.mu.Unlock()

	c.log.Info("connection stopped", "server", c.cfg.Name, "conn_id", c.id)
}

// fail invalidates the whole connection: every pending request settles with
// cause and the state moves to Errored. Teardown initiated by Stop wins over
// a concurrent failure.
func (c *Client) fail(cause error) {
	c.mu.Lock()
	switch c.state {
	case StateStopping, StateStopped, StateErrored:
		c.mu.Unlock()
		return
	}
	c.state = StateErrored
	tr := c.tr
	taken := c.takeAllPendingLocked()
	c.mu.Unlock()

	for _, p := range taken {
		p.ch <- settled{err: cause}
	}
	if tr != nil {
		tr.Stop()
	}
	c.stopSweeper()

	c.log.Warn("connection errored", "server", c.cfg.Name, "conn_id", c.id, "err", cause)
}

// readLoop is the single ordered consumer for this connection: frames and
// the process-exit event are handled strictly in arrival order on one
// goroutine, so the correlation path needs no further synchronization.
func (c *Client) readLoop(tr Transport) {
	ctx := logctx.WithConnData(context.Background(), &logctx.ConnData{
		Server: c.cfg.Name,
		ConnID: c.id,
	})
	fr := framing.NewReader(tr.Output(), framing.WithLogger(c.log))

	for {
		msg, err := fr.Next(ctx)
		if err != nil {
			<-tr.Done()
			c.fail(&ProcessExitError{Err: tr.ExitErr()})
			return
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg *jsonrpc.AnyMessage) {
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{
		Method: msg.Method,
		ID:     msg.ID.String(),
		Type:   string(msg.Type()),
	})

	switch msg.Type() {
	case jsonrpc.TypeResponse:
		id, ok := msg.ID.Int64()
		if !ok {
			c.log.DebugContext(ctx, "ignoring response with non-numeric id")
			return
		}
		p := c.takePending(id)
		if p == nil {
			// Either a stray id or a response that lost the race against
			// its own timeout.
			c.log.DebugContext(ctx, "discarding response with no pending request", "id", id)
			return
		}
		p.ch <- settled{resp: msg.AsResponse()}
	case jsonrpc.TypeNotification:
		c.log.DebugContext(ctx, "ignoring server notification")
	case jsonrpc.TypeRequest:
		c.log.DebugContext(ctx, "ignoring server-initiated request")
	}
}

// sweepExpired settles requests whose deadline passed. A late response for a
// swept id finds no pending entry and is discarded by dispatch.
func (c *Client) sweepExpired() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case now := <-ticker.C:
			var expired []*pendingRequest
			c.mu.Lock()
			for id, p := range c.pending {
				if now.After(p.deadline) {
					delete(c.pending, id)
					expired = append(expired, p)
				}
			}
			c.mu.Unlock()
			for _, p := range expired {
				p.ch <- settled{err: ErrRequestTimeout}
			}
		}
	}
}

func (c *Client) stopSweeper() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

// takePending removes and returns the pending entry for id. Removal happens
// exactly once; a second caller gets nil and treats it as a no-op.
func (c *Client) takePending(id int64) *pendingRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pending[id]
	if p != nil {
		delete(c.pending, id)
	}
	return p
}

func (c *Client) takeAllPendingLocked() []*pendingRequest {
	taken := make([]*pendingRequest, 0, len(c.pending))
	for id, p := range c.pending {
		delete(c.pending, id)
		taken = append(taken, p)
	}
	return taken
}
