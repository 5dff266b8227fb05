package config

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/embedding"
	embeddingopenai "github.com/hupe1980/crewmesh/embedding/openai"
	"github.com/hupe1980/crewmesh/logging"
	"github.com/hupe1980/crewmesh/mcp"
	"github.com/hupe1980/crewmesh/memory"
	"github.com/hupe1980/crewmesh/model"
	modelanthropic "github.com/hupe1980/crewmesh/model/anthropic"
	modelopenai "github.com/hupe1980/crewmesh/model/openai"
	"github.com/hupe1980/crewmesh/tool/websearch"
)

// NewLogger builds the process logger.
func (c *Config) NewLogger() logging.Logger {
	level, _ := logging.ParseLevel(c.Log.Level)
	return logging.New(logging.Config{Level: level, Format: c.Log.Format, Output: os.Stderr})
}

// NewModel builds the configured chat model.
func (c *Config) NewModel() (model.Model, error) {
	m := c.Model
	switch m.Provider {
	case "openai":
		return modelopenai.NewModel(func(o *modelopenai.Options) {
			if m.Name != "" {
				o.Model = m.Name
			}
			o.APIKey = m.APIKey
			o.BaseURL = m.BaseURL
			o.Temperature = m.Temperature
			if m.MaxTokens > 0 {
				o.MaxCompletionTokens = m.MaxTokens
			}
		}), nil
	case "anthropic":
		return modelanthropic.NewModel(func(o *modelanthropic.Options) {
			if m.Name != "" {
				o.Model = anthropic.Model(m.Name)
			}
			o.APIKey = m.APIKey
			o.Temperature = m.Temperature
			if m.MaxTokens > 0 {
				o.MaxTokens = m.MaxTokens
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", m.Provider)
	}
}

// NewEmbedder builds the configured embedder.
func (c *Config) NewEmbedder() embedding.Embedder {
	e := c.Embedding
	if e.Provider == "hash" {
		return embedding.NewHashEmbedder(e.Dimensions)
	}
	return embeddingopenai.New(func(o *embeddingopenai.Options) {
		o.Model = e.Name
		o.Dimensions = e.Dimensions
		o.APIKey = e.APIKey
	})
}

// OpenMemory opens the store selected by run.durability. Volatile stores are
// process local; durable stores connect to the configured backend and report
// connectivity failures as core.ErrStoreUnavailable.
func (c *Config) OpenMemory(ctx context.Context, logger logging.Logger) (memory.Store, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	base := memory.Options{
		Embedder: c.NewEmbedder(),
		Logger:   logger,
	}

	if c.Durability() == core.DurabilityVolatile {
		return memory.NewVolatileStore(func(o *memory.Options) {
			o.Embedder = base.Embedder
			o.Logger = base.Logger
		}), nil
	}

	switch c.Memory.Backend {
	case "postgres":
		dsn, err := c.Memory.Postgres.ConnString()
		if err != nil {
			return nil, err
		}
		return memory.NewPostgresStore(ctx, dsn, func(o *memory.PostgresOptions) {
			o.Embedder = base.Embedder
			o.Logger = base.Logger
			o.Table = c.Memory.Postgres.Table
			o.MaxConns = c.Memory.Postgres.MaxConns
		})
	case "redis":
		r := c.Memory.Redis
		return memory.NewRedisStore(ctx, r.Addr, func(o *memory.RedisOptions) {
			o.Embedder = base.Embedder
			o.Logger = base.Logger
			o.KeyPrefix = r.KeyPrefix
			o.Password = r.Password
			o.DB = r.DB
		})
	default:
		return nil, fmt.Errorf("unknown durable memory backend %q", c.Memory.Backend)
	}
}

// NewSearchClient builds the Tavily client.
func (c *Config) NewSearchClient() *websearch.Client {
	s := c.Search
	return websearch.NewClient(func(o *websearch.Options) {
		o.APIKey = s.APIKey
		if s.MaxResults > 0 {
			o.MaxResults = s.MaxResults
		}
		if s.Topic != "" {
			o.Topic = s.Topic
		}
	})
}

// LoadMCP reads the MCP server file. A missing file yields no servers.
func (c *Config) LoadMCP() (mcp.Config, error) {
	return mcp.LoadConfig(c.MCP.ConfigFile)
}
