// Package config loads application configuration from .env files, an
// optional YAML file and environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dshills/analyst-agent/internal/logging"
	"github.com/dshills/analyst-agent/retrieval"
)

// Config is the application configuration.
type Config struct {
	Log       logging.Config   `yaml:"log"`
	Keys      APIKeys          `yaml:"api_keys"`
	Store     StoreConfig      `yaml:"store"`
	Engine    EngineConfig     `yaml:"engine"`
	Retrieval retrieval.Config `yaml:"retrieval"`
	Weaviate  WeaviateConfig   `yaml:"weaviate"`
	Influx    InfluxConfig     `yaml:"influxdb"`
	Server    ServerConfig     `yaml:"server"`
	Telemetry TelemetryConfig  `yaml:"telemetry"`

	// Configurable holds per-graph overrides keyed by graph name
	// ("analyst", "interview", "financial", "general", "market",
	// "research", "router"). Each graph decodes its own section.
	Configurable map[string]map[string]any `yaml:"configurable"`
}

// APIKeys holds provider credentials.
type APIKeys struct {
	OpenAI       string `yaml:"openai"`
	Anthropic    string `yaml:"anthropic"`
	Google       string `yaml:"google"`
	Tavily       string `yaml:"tavily"`
	AlphaVantage string `yaml:"alpha_vantage"`
	Finnhub      string `yaml:"finnhub"`
}

// StoreConfig selects the checkpointer backend.
type StoreConfig struct {
	// Driver is sqlite, mysql or memory.
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
	// MaxFinishedRuns bounds the completed or failed runs the memory
	// driver keeps. Zero keeps every run.
	MaxFinishedRuns int `yaml:"max_finished_runs"`
}

// EngineConfig bounds graph execution.
type EngineConfig struct {
	MaxSteps      int           `yaml:"max_steps"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	NodeTimeout   time.Duration `yaml:"node_timeout"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
	NodeRetries   int           `yaml:"node_retries"`
}

// WeaviateConfig locates a Weaviate instance for the weaviate retriever
// provider.
type WeaviateConfig struct {
	Host   string `yaml:"host"`
	Scheme string `yaml:"scheme"`
	APIKey string `yaml:"api_key"`
	Class  string `yaml:"class"`
}

// InfluxConfig enables price history export. Empty URL disables it.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// TelemetryConfig toggles tracing and metrics.
type TelemetryConfig struct {
	// Tracing writes OpenTelemetry spans to stdout.
	Tracing bool `yaml:"tracing"`
	Metrics bool `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:   logging.Config{Level: "info", Format: "json"},
		Store: StoreConfig{Driver: "sqlite", Path: "analyst-agent.db", MaxFinishedRuns: 1000},
		Engine: EngineConfig{
			MaxSteps:      50,
			MaxConcurrent: 8,
			NodeTimeout:   2 * time.Minute,
			RunTimeout:    15 * time.Minute,
			NodeRetries:   3,
		},
		Retrieval: retrieval.DefaultConfig(),
		Weaviate:  WeaviateConfig{Scheme: "http", Class: "Document"},
		Server:    ServerConfig{Addr: ":8080", ReadTimeout: 30 * time.Second, WriteTimeout: 10 * time.Minute},
		Telemetry: TelemetryConfig{Metrics: true},
	}
}

// DefaultEnvFiles are loaded when Load is given no env files.
var DefaultEnvFiles = []string{".env", ".env.local"}

// Load builds the configuration.
//
// Env files that exist are loaded first; they never override variables
// already set in the process. configPath may be empty. ${VAR} references in
// the YAML file are expanded before parsing.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(paths []string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"OPENAI_API_KEY", &c.Keys.OpenAI},
		{"ANTHROPIC_API_KEY", &c.Keys.Anthropic},
		{"GOOGLE_API_KEY", &c.Keys.Google},
		{"TAVILY_API_KEY", &c.Keys.Tavily},
		{"ALPHA_VANTAGE_API_KEY", &c.Keys.AlphaVantage},
		{"FINNHUB_API_KEY", &c.Keys.Finnhub},
		{"LOG_LEVEL", &c.Log.Level},
		{"LOG_FORMAT", &c.Log.Format},
		{"STORE_DRIVER", &c.Store.Driver},
		{"STORE_PATH", &c.Store.Path},
		{"MYSQL_DSN", &c.Store.DSN},
		{"EMBEDDING_MODEL", &c.Retrieval.EmbeddingModel},
		{"RETRIEVER_PROVIDER", &c.Retrieval.RetrieverProvider},
		{"WEAVIATE_HOST", &c.Weaviate.Host},
		{"WEAVIATE_SCHEME", &c.Weaviate.Scheme},
		{"WEAVIATE_API_KEY", &c.Weaviate.APIKey},
		{"INFLUXDB_URL", &c.Influx.URL},
		{"INFLUXDB_TOKEN", &c.Influx.Token},
		{"INFLUXDB_ORG", &c.Influx.Org},
		{"INFLUXDB_BUCKET", &c.Influx.Bucket},
		{"SERVER_ADDR", &c.Server.Addr},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.env); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := os.LookupEnv("TRACING_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid TRACING_ENABLED %q: %w", v, err)
		}
		c.Telemetry.Tracing = b
	}
	if v, ok := os.LookupEnv("MAX_STEPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_STEPS %q: %w", v, err)
		}
		c.Engine.MaxSteps = n
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Store.Driver) {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the sqlite driver"))
		}
	case "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn (MYSQL_DSN) is required for the mysql driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q (want sqlite, mysql or memory)", c.Store.Driver))
	}
	if c.Store.MaxFinishedRuns < 0 {
		errs = append(errs, errors.New("store.max_finished_runs must not be negative"))
	}
	if c.Engine.MaxSteps < 0 {
		errs = append(errs, errors.New("engine.max_steps must not be negative"))
	}
	if c.Engine.MaxConcurrent < 0 {
		errs = append(errs, errors.New("engine.max_concurrent must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Section returns the configurable overrides for a graph. The result is
// never nil.
func (c *Config) Section(graph string) map[string]any {
	if s, ok := c.Configurable[graph]; ok && s != nil {
		return s
	}
	return map[string]any{}
}
