// Package mcp discovers and invokes tools hosted by remote Model Context
// Protocol servers. Servers are declared in an mcp_config.json file:
//
//	{
//	  "mcpServers": {
//	    "weather": {"command": "python", "args": ["weather_server.py"], "env": {"UNITS": "metric"}},
//	    "docs":    {"url": "http://localhost:8000/sse", "transport": "sse"}
//	  }
//	}
//
// Every discovered tool is exposed as a tool.Tool and can be merged into the
// supervisor's registry.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// DefaultConfigFile is the conventional config file name.
const DefaultConfigFile = "mcp_config.json"

// Transport kinds.
const (
	TransportStdio      = "stdio"
	TransportSSE        = "sse"
	TransportStreamable = "streamable_http"
)

// ServerConfig describes one remote server. Either Command (stdio) or URL
// (sse / streamable_http) must be set.
type ServerConfig struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
}

// Config is the decoded config file.
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads path. A missing file yields an empty config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{Servers: map[string]ServerConfig{}}, nil
		}
		return Config{}, fmt.Errorf("read mcp config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates a config document.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode mcp config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every server entry.
func (c Config) Validate() error {
	for _, name := range c.Names() {
		if err := c.Servers[name].validate(); err != nil {
			return fmt.Errorf("mcp server %q: %w", name, err)
		}
	}
	return nil
}

// Names returns server names sorted for deterministic discovery order.
func (c Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind resolves the effective transport.
func (s ServerConfig) Kind() string {
	if t := strings.ToLower(strings.TrimSpace(s.Transport)); t != "" {
		if t == "http" || t == "streamable-http" {
			return TransportStreamable
		}
		return t
	}
	if s.Command != "" {
		return TransportStdio
	}
	return TransportSSE
}

func (s ServerConfig) validate() error {
	switch s.Kind() {
	case TransportStdio:
		if strings.TrimSpace(s.Command) == "" {
			return fmt.Errorf("stdio transport requires a command")
		}
	case TransportSSE, TransportStreamable:
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("%s transport requires a url", s.Kind())
		}
	default:
		return fmt.Errorf("unsupported transport %q", s.Transport)
	}
	return nil
}
