package manager_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mcp-lens/mcp-lens/client"
	"github.com/mcp-lens/mcp-lens/manager"
	"github.com/mcp-lens/mcp-lens/mcp"
	"github.com/mcp-lens/mcp-lens/mcptest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoFactory hands every new client a fresh scripted server advertising one
// echo tool. Names listed in failing get a transport whose start fails.
func echoFactory(failing ...string) func(client.ServerConfig, *slog.Logger) client.Transport {
	bad := map[string]bool{}
	for _, name := range failing {
		bad[name] = true
	}
	return func(cfg client.ServerConfig, _ *slog.Logger) client.Transport {
		if bad[cfg.Name] {
			return mcptest.NewFailingTransport(errors.New("executable not found"))
		}
		srv := mcptest.NewServer(mcptest.WithTools(
			mcptest.NewTool("echo", "echoes its input", func(args struct {
				Text string `json:"text"`
			}) (*mcp.CallToolResult, error) {
				return mcptest.TextResult(args.Text), nil
			}),
		))
		return srv.Transport()
	}
}

func newManager(t *testing.T, opts ...manager.Option) *manager.Manager {
	t.Helper()
	opts = append([]manager.Option{
		manager.WithLogger(discardLogger()),
		manager.WithSettleDelay(10 * time.Millisecond),
		manager.WithClientOptions(client.WithTransportFactory(echoFactory())),
	}, opts...)
	m := manager.New(opts...)
	t.Cleanup(m.StopAll)
	return m
}

func serverConfig(name string) client.ServerConfig {
	return client.ServerConfig{Name: name, Command: "unused", Transport: client.TransportStdio}
}

func TestStartAndDiscover(t *testing.T) {
	m := newManager(t)

	if err := m.Start(context.Background(), serverConfig("alpha")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := m.Status("alpha"); got != manager.StatusRunning {
		t.Fatalf("expected running, got %s", got)
	}

	tools := m.ListTools(context.Background(), "alpha")
	if len(tools) != 1 || tools[0].Name != "echo" {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	snap := m.Snapshot()
	if len(snap.Servers) != 1 {
		t.Fatalf("expected 1 server in snapshot, got %d", len(snap.Servers))
	}
	if srv := snap.Servers[0]; srv.Name != "alpha" || srv.Status != manager.StatusRunning || srv.ToolCount != 1 {
		t.Fatalf("unexpected snapshot entry: %+v", srv)
	}
}

func TestDuplicateStartRejected(t *testing.T) {
	m := newManager(t)

	if err := m.Start(context.Background(), serverConfig("alpha")); err != nil {
		t.Fatalf("first start: %v", err)
	}
	err := m.Start(context.Background(), serverConfig("alpha"))
	if !errors.Is(err, manager.ErrDuplicateStart) {
		t.Fatalf("expected ErrDuplicateStart, got %v", err)
	}
	// The original connection is untouched.
	if got := m.Status("alpha"); got != manager.StatusRunning {
		t.Fatalf("duplicate start disturbed the connection: %s", got)
	}
}

func TestFailedStartReportsError(t *testing.T) {
	rec := &snapshotRecorder{}
	m := manager.New(
		manager.WithLogger(discardLogger()),
		manager.WithListener(rec),
		manager.WithClientOptions(client.WithTransportFactory(echoFactory("alpha"))),
	)
	t.Cleanup(m.StopAll)

	err := m.Start(context.Background(), serverConfig("alpha"))
	var spawnErr *client.SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if got := m.Status("alpha"); got != manager.StatusError {
		t.Fatalf("expected error status, got %s", got)
	}

	// The failure is a state change; the listener sees it even though the
	// start was imperative rather than part of a sync pass.
	snaps := rec.all()
	if len(snaps) == 0 {
		t.Fatal("listener never notified of the failed start")
	}
	last := snaps[len(snaps)-1]
	if len(last.Servers) != 1 || last.Servers[0].Status != manager.StatusError {
		t.Fatalf("unexpected final snapshot: %+v", last.Servers)
	}
}

// gatedTransport holds the connection attempt open until the test releases
// it.
type gatedTransport struct {
	client.Transport
	gate chan struct{}
}

func (t *gatedTransport) Start() error {
	<-t.gate
	return t.Transport.Start()
}

func TestStopDuringInFlightStartDiscardsConnection(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	calls := 0
	factory := func(cfg client.ServerConfig, _ *slog.Logger) client.Transport {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		tr := mcptest.NewServer().Transport()
		if n == 1 {
			close(entered)
			return &gatedTransport{Transport: tr, gate: release}
		}
		return tr
	}

	m := manager.New(
		manager.WithLogger(discardLogger()),
		manager.WithClientOptions(client.WithTransportFactory(factory)),
	)
	t.Cleanup(m.StopAll)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(context.Background(), serverConfig("alpha")) }()

	<-entered
	m.Stop("alpha")
	close(release)

	if err := <-errCh; !errors.Is(err, manager.ErrStartAborted) {
		t.Fatalf("expected ErrStartAborted, got %v", err)
	}
	if got := m.Status("alpha"); got != manager.StatusStopped {
		t.Fatalf("expected stopped after aborted start, got %s", got)
	}

	// The name is free again and a fresh start succeeds.
	if err := m.Start(context.Background(), serverConfig("alpha")); err != nil {
		t.Fatalf("fresh start after aborted start: %v", err)
	}
	if got := m.Status("alpha"); got != manager.StatusRunning {
		t.Fatalf("expected running, got %s", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := newManager(t)

	if err := m.Start(context.Background(), serverConfig("alpha")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop("alpha")
	if got := m.Status("alpha"); got != manager.StatusStopped {
		t.Fatalf("expected stopped, got %s", got)
	}

	m.Stop("alpha")
	m.Stop("never-started")
	if got := m.Status("alpha"); got != manager.StatusStopped {
		t.Fatalf("repeated stop changed status to %s", got)
	}
}

func TestRestart(t *testing.T) {
	m := newManager(t)

	if err := m.Start(context.Background(), serverConfig("alpha")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Restart(context.Background(), "alpha"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := m.Status("alpha"); got != manager.StatusRunning {
		t.Fatalf("expected running after restart, got %s", got)
	}
}

func TestRestartAfterStop(t *testing.T) {
	m := newManager(t)

	if err := m.Start(context.Background(), serverConfig("alpha")); err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Stop("alpha")

	// With no live connection a restart degrades to a plain start from the
	// remembered configuration.
	if err := m.Restart(context.Background(), "alpha"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if got := m.Status("alpha"); got != manager.StatusRunning {
		t.Fatalf("expected running, got %s", got)
	}
}

func TestRestartUnknownServer(t *testing.T) {
	m := newManager(t)
	if err := m.Restart(context.Background(), "ghost"); !errors.Is(err, manager.ErrUnknownServer) {
		t.Fatalf("expected ErrUnknownServer, got %v", err)
	}
}

func TestStopAll(t *testing.T) {
	m := newManager(t)

	for _, name := range []string{"alpha", "beta"} {
		if err := m.Start(context.Background(), serverConfig(name)); err != nil {
			t.Fatalf("Start %s: %v", name, err)
		}
	}
	m.StopAll()

	for _, name := range []string{"alpha", "beta"} {
		if got := m.Status(name); got != manager.StatusStopped {
			t.Fatalf("%s: expected stopped, got %s", name, got)
		}
	}
}

// snapshotRecorder collects every snapshot pushed to the listener.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []manager.Snapshot
}

func (r *snapshotRecorder) ServersUpdated(s manager.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *snapshotRecorder) all() []manager.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]manager.Snapshot(nil), r.snaps...)
}

func TestSyncProgressiveUpdates(t *testing.T) {
	rec := &snapshotRecorder{}
	m := manager.New(
		manager.WithLogger(discardLogger()),
		manager.WithListener(rec),
		manager.WithClientOptions(client.WithTransportFactory(echoFactory("bad"))),
	)
	t.Cleanup(m.StopAll)

	configs := []client.ServerConfig{
		serverConfig("alpha"),
		serverConfig("bad"),
		serverConfig("zeta"),
	}
	final := m.Sync(context.Background(), configs)

	if len(final.Servers) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(final.Servers))
	}
	// Configuration order is preserved.
	for i, want := range []string{"alpha", "bad", "zeta"} {
		if final.Servers[i].Name != want {
			t.Fatalf("position %d: got %s, want %s", i, final.Servers[i].Name, want)
		}
	}
	if final.Servers[0].Status != manager.StatusRunning || final.Servers[0].ToolCount != 1 {
		t.Fatalf("alpha: %+v", final.Servers[0])
	}
	if final.Servers[1].Status != manager.StatusError || final.Servers[1].ToolCount != 0 {
		t.Fatalf("bad: %+v", final.Servers[1])
	}
	if final.Servers[2].Status != manager.StatusRunning || final.Servers[2].ToolCount != 1 {
		t.Fatalf("zeta: %+v", final.Servers[2])
	}

	// One notification per settled entry at minimum; the listener saw the
	// inventory grow rather than a single final result.
	snaps := rec.all()
	if len(snaps) < 3 {
		t.Fatalf("expected at least 3 progressive snapshots, got %d", len(snaps))
	}
}

func TestSyncReplacesPreviousRoster(t *testing.T) {
	m := newManager(t)

	m.Sync(context.Background(), []client.ServerConfig{serverConfig("old")})
	final := m.Sync(context.Background(), []client.ServerConfig{serverConfig("new")})

	if len(final.Servers) != 1 || final.Servers[0].Name != "new" {
		t.Fatalf("expected roster [new], got %+v", final.Servers)
	}
	if got := m.Status("old"); got != manager.StatusUnknown {
		t.Fatalf("removed server should be unknown, got %s", got)
	}
}
