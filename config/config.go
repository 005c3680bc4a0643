// Package config supplies server configurations to the connection runtime.
// It reads the mcpServers JSON file, resolves its default location per
// operating system, decodes runtime settings from the environment, and
// watches the file for changes. The runtime only consumes the result; it
// never writes configuration back to disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/mcp-lens/mcp-lens/client"
)

// File is the parsed configuration document:
//
//	{"mcpServers": {"name": {"command": ..., "args": [...], "env": {...}}}}
type File struct {
	McpServers map[string]*ServerEntry `json:"mcpServers"`
}

// ServerEntry is one server record as it appears on disk.
type ServerEntry struct {
	Command   string            `json:"command"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	Transport string            `json:"transport,omitempty"`
	Disabled  bool              `json:"disabled,omitempty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("config: path cannot be empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse JSON: %w", err)
	}
	if f.McpServers == nil {
		return nil, fmt.Errorf("config: mcpServers section is required")
	}
	for name, entry := range f.McpServers {
		if err := validateEntry(name, entry); err != nil {
			return nil, err
		}
	}
	return &f, nil
}

func validateEntry(name string, entry *ServerEntry) error {
	if entry == nil {
		return fmt.Errorf("config: mcpServers.%s: entry is empty", name)
	}
	transport := entry.Transport
	if transport == "" {
		transport = string(client.TransportStdio)
	}
	if transport != string(client.TransportStdio) {
		return fmt.Errorf("config: mcpServers.%s.transport: unsupported transport type: %s", name, transport)
	}
	if entry.Command == "" {
		return fmt.Errorf("config: mcpServers.%s.command is required for stdio transport", name)
	}
	return nil
}

// Servers returns the enabled entries as runtime descriptors, ordered by
// name so repeated orchestration passes see a stable sequence.
func (f *File) Servers() []client.ServerConfig {
	names := make([]string, 0, len(f.McpServers))
	for name, entry := range f.McpServers {
		if entry.Disabled {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	configs := make([]client.ServerConfig, 0, len(names))
	for _, name := range names {
		entry := f.McpServers[name]
		configs = append(configs, client.ServerConfig{
			Name:      name,
			Command:   entry.Command,
			Args:      entry.Args,
			Env:       entry.Env,
			Transport: client.TransportStdio,
		})
	}
	return configs
}

// DefaultPath resolves the conventional configuration location for the
// current operating system.
func DefaultPath() (string, error) {
	const fileName = "config.json"

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "mcp-lens", fileName), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("config: APPDATA is not set")
		}
		return filepath.Join(appData, "mcp-lens", fileName), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "mcp-lens", fileName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("config: resolve home: %w", err)
		}
		return filepath.Join(home, ".config", "mcp-lens", fileName), nil
	}
}
