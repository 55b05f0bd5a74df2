// Package config loads the edge adapter's YAML configuration through
// viper, binding EDGE_-prefixed environment variables over file values,
// following the teacher's config.Load() entry point referenced from
// cmd/gateway/main.go. Defaults are applied the way
// data-ingestion/internal/adapter/config.applyDefaults does, adapted to
// this core's session/queue/discovery settings instead of MQTT/TimescaleDB
// ones.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete adapter configuration (spec §6 configure()
// inputs plus the ambient HTTP/logging surface).
type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Adapter   AdapterConfig   `mapstructure:"adapter"`
	Endpoints []EndpointEntry `mapstructure:"endpoints"`
}

// ServiceConfig identifies this process for logging and health reporting.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig controls the health/metrics HTTP server.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig mirrors the env vars pkg/logging.New reads, kept in the
// file too so deployments can pin a level without an env var.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AdapterConfig carries the OPC-UA core's tuning knobs (spec §4.1, §6).
type AdapterConfig struct {
	SupportedApplicationTypes []string      `mapstructure:"supported_application_types"`
	WorkerPoolSize            int           `mapstructure:"worker_pool_size"`
	RequestTimeout            time.Duration `mapstructure:"request_timeout"`
	SessionTimeout            time.Duration `mapstructure:"session_timeout"`
	DiscoveryURL              string        `mapstructure:"discovery_url"`
}

// EndpointEntry is one pre-configured endpoint to connect to at startup.
type EndpointEntry struct {
	URI            string `mapstructure:"uri"`
	SecurityPolicy string `mapstructure:"security_policy"`
	SecurityMode   string `mapstructure:"security_mode"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
}

// Load reads path (if non-empty) and overlays EDGE_-prefixed environment
// variables, matching the teacher's env-override precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("EDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "edge-adapter")
	v.SetDefault("service.version", "0.1.0")
	v.SetDefault("service.environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("adapter.supported_application_types", []string{"Server", "Client"})
	v.SetDefault("adapter.worker_pool_size", 20)
	v.SetDefault("adapter.request_timeout", 5*time.Second)
	v.SetDefault("adapter.session_timeout", 60*time.Second)
}

func validate(cfg *Config) error {
	if cfg.Adapter.WorkerPoolSize < 2 {
		return fmt.Errorf("adapter.worker_pool_size must be at least 2")
	}
	for _, e := range cfg.Endpoints {
		if e.URI == "" {
			return fmt.Errorf("endpoints: entry missing uri")
		}
	}
	return nil
}
