// Package config loads crewmesh settings from an optional config file, the
// environment (prefix CREWMESH) and .env files, and builds the components the
// settings describe.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/hupe1980/crewmesh/core"
	"github.com/hupe1980/crewmesh/logging"
)

// EnvPrefix prefixes every crewmesh environment variable.
const EnvPrefix = "CREWMESH"

type Config struct {
	Run       RunConfig       `mapstructure:"run"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Model     ModelConfig     `mapstructure:"model"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Search    SearchConfig    `mapstructure:"search"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// RunConfig holds the per-run defaults.
type RunConfig struct {
	Mode                string `mapstructure:"mode"`       // plain | tools | mcp | memory
	Durability          string `mapstructure:"durability"` // volatile | durable
	DurabilityMandatory bool   `mapstructure:"durability_mandatory"`
	RecursionLimit      int    `mapstructure:"recursion_limit"`
	StepBudget          int    `mapstructure:"step_budget"`
	Namespace           string `mapstructure:"namespace"` // slash separated, e.g. memories/user_name
	RecallTopK          int    `mapstructure:"recall_top_k"`
	StreamAgents        bool   `mapstructure:"stream_agents"`
}

type EngineConfig struct {
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`
}

type ModelConfig struct {
	Provider    string  `mapstructure:"provider"` // openai | anthropic
	Name        string  `mapstructure:"name"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens"`
}

type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // openai | hash
	Name       string `mapstructure:"name"`
	Dimensions int    `mapstructure:"dimensions"`
	APIKey     string `mapstructure:"api_key"`
}

type MemoryConfig struct {
	// Backend is the durable backend: postgres | redis.
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the durable store connection. DSN wins over the
// individual fields.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SearchConfig struct {
	APIKey     string `mapstructure:"api_key"`
	MaxResults int    `mapstructure:"max_results"`
	Topic      string `mapstructure:"topic"`
}

type MCPConfig struct {
	ConfigFile string `mapstructure:"config_file"`
	FailFast   bool   `mapstructure:"fail_fast"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | text
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

// LoadOptions configure Load.
type LoadOptions struct {
	// ConfigFile is an optional yaml/json/toml file.
	ConfigFile string
	// EnvFiles are loaded into the process environment first. Missing files
	// are ignored. Defaults to ".env".
	EnvFiles []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("run.mode", string(core.ModePlain))
	v.SetDefault("run.durability", string(core.DurabilityVolatile))
	v.SetDefault("run.durability_mandatory", false)
	v.SetDefault("run.recursion_limit", 50)
	v.SetDefault("run.step_budget", 10)
	v.SetDefault("run.namespace", "memories/user_name")
	v.SetDefault("run.recall_top_k", 5)
	v.SetDefault("run.stream_agents", false)

	v.SetDefault("engine.max_concurrent_runs", 10)

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.temperature", 0.0)
	v.SetDefault("model.max_tokens", 4096)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.name", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.api_key", "")

	v.SetDefault("memory.backend", "postgres")
	v.SetDefault("memory.postgres.dsn", "")
	v.SetDefault("memory.postgres.user", "")
	v.SetDefault("memory.postgres.password", "")
	v.SetDefault("memory.postgres.host", "")
	v.SetDefault("memory.postgres.port", "5432")
	v.SetDefault("memory.postgres.database", "")
	v.SetDefault("memory.postgres.sslmode", "disable")
	v.SetDefault("memory.postgres.table", "crewmesh_memories")
	v.SetDefault("memory.postgres.max_conns", 10)
	v.SetDefault("memory.redis.addr", "localhost:6379")
	v.SetDefault("memory.redis.password", "")
	v.SetDefault("memory.redis.db", 0)
	v.SetDefault("memory.redis.key_prefix", "crewmesh:memory")

	v.SetDefault("search.api_key", "")
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.topic", "general")

	v.SetDefault("mcp.config_file", "mcp_config.json")
	v.SetDefault("mcp.fail_fast", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.service_name", "crewmesh")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
	v.SetDefault("telemetry.metrics_addr", "")
}

// bindings map config keys to the conventional unprefixed variables used by
// provider SDKs and docker images. The prefixed variable wins.
var bindings = map[string][]string{
	"model.api_key":            {"CREWMESH_MODEL_API_KEY", "OPENAI_API_KEY"},
	"embedding.api_key":        {"CREWMESH_EMBEDDING_API_KEY", "OPENAI_API_KEY"},
	"search.api_key":           {"CREWMESH_SEARCH_API_KEY", "TAVILY_API_KEY"},
	"memory.postgres.dsn":      {"CREWMESH_MEMORY_POSTGRES_DSN", "DATABASE_URL"},
	"memory.postgres.user":     {"CREWMESH_MEMORY_POSTGRES_USER", "POSTGRES_USER"},
	"memory.postgres.password": {"CREWMESH_MEMORY_POSTGRES_PASSWORD", "POSTGRES_PASSWORD"},
	"memory.postgres.host":     {"CREWMESH_MEMORY_POSTGRES_HOST", "POSTGRES_HOST"},
	"memory.postgres.port":     {"CREWMESH_MEMORY_POSTGRES_PORT", "POSTGRES_PORT"},
	"memory.postgres.database": {"CREWMESH_MEMORY_POSTGRES_DATABASE", "POSTGRES_DB"},
	"telemetry.otlp_endpoint":  {"CREWMESH_TELEMETRY_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"},
}

// Load reads the configuration.
func Load(optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{EnvFiles: []string{".env"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	for _, f := range opts.EnvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	if _, err := core.ParseMode(c.Run.Mode); err != nil {
		return err
	}
	if _, err := core.ParseDurability(c.Run.Durability); err != nil {
		return err
	}
	if _, err := core.ParseNamespace(c.Run.Namespace); err != nil {
		return err
	}
	if c.Run.RecursionLimit <= 0 {
		return fmt.Errorf("run.recursion_limit must be positive, got %d", c.Run.RecursionLimit)
	}
	if c.Run.StepBudget <= 0 {
		return fmt.Errorf("run.step_budget must be positive, got %d", c.Run.StepBudget)
	}
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	switch c.Embedding.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	switch c.Memory.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("unknown durable memory backend %q", c.Memory.Backend)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Mode returns the parsed run mode.
func (c *Config) Mode() core.Mode {
	m, _ := core.ParseMode(c.Run.Mode)
	return m
}

// Durability returns the parsed durability.
func (c *Config) Durability() core.Durability {
	d, _ := core.ParseDurability(c.Run.Durability)
	return d
}

// Namespace returns the parsed memory namespace.
func (c *Config) Namespace() core.Namespace {
	ns, _ := core.ParseNamespace(c.Run.Namespace)
	return ns
}

// ConnString returns the DSN, assembling it from the individual fields when
// no DSN is set.
func (p PostgresConfig) ConnString() (string, error) {
	if p.DSN != "" {
		return p.DSN, nil
	}
	if p.Host == "" || p.User == "" || p.Database == "" {
		return "", fmt.Errorf("postgres connection requires a dsn or host, user and database")
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, p.Port),
		Path:   "/" + p.Database,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String(), nil
}
