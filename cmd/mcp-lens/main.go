// Command mcp-lens connects to every server in the configuration file,
// discovers their tools, and prints the inventory as it builds up. With
// --watch it keeps running and re-syncs whenever the file changes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcp-lens/mcp-lens/client"
	"github.com/mcp-lens/mcp-lens/config"
	"github.com/mcp-lens/mcp-lens/internal/logctx"
	"github.com/mcp-lens/mcp-lens/manager"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mcp-lens:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to the mcpServers config file (default: per-OS location)")
		watch      = flag.Bool("watch", false, "keep running and re-sync when the config file changes")
	)
	flag.Parse()

	settings, err := config.SettingsFromEnv()
	if err != nil {
		return err
	}

	log := slog.New(logctx.Handler{
		Handler: slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.SlogLevel()}),
	})

	path := *configPath
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := manager.New(
		manager.WithLogger(log),
		manager.WithListener(manager.ListenerFunc(printSnapshot)),
		manager.WithSettleDelay(settings.SettleDelay),
		manager.WithClientOptions(
			client.WithRequestTimeout(settings.RequestTimeout),
			client.WithHandshakeTimeout(settings.HandshakeTimeout),
		),
	)
	defer mgr.StopAll()

	if err := sync(ctx, log, mgr, path); err != nil {
		return err
	}
	if !*watch {
		return nil
	}

	watcher, err := config.NewWatcher(path, config.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	defer watcher.Close()

	log.Info("watching for config changes", "path", path)
	err = watcher.Run(ctx, func() {
		if err := sync(ctx, log, mgr, path); err != nil {
			log.Error("re-sync failed", "err", err)
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sync reloads the configuration and runs one orchestration pass over it.
func sync(ctx context.Context, log *slog.Logger, mgr *manager.Manager, path string) error {
	f, err := config.Load(path)
	if err != nil {
		return err
	}
	servers := f.Servers()
	log.Info("syncing servers", "path", path, "count", len(servers))
	mgr.Sync(ctx, servers)
	return nil
}

func printSnapshot(snap manager.Snapshot) {
	fmt.Println()
	for _, srv := range snap.Servers {
		fmt.Printf("%-24s %-8s %d tools\n", srv.Name, srv.Status, srv.ToolCount)
		for _, tool := range srv.Tools {
			fmt.Printf("    %-20s %s\n", tool.Name, tool.Description)
		}
	}
}
