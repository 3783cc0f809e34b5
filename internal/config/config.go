// Package config loads the service configuration: a YAML file merged with
// environment overrides, validated before anything starts.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/fnhost/fnhost/internal/logging"
	"github.com/fnhost/fnhost/pkg/registry"
)

const logPrefix = "config:load"

// DefaultPath is the conventional service configuration location, used when
// no -c flag is given.
const DefaultPath = "etc/fnhost/service.yml"

// DefaultMaxMessageBytes caps request and response sizes when the service
// file does not.
const DefaultMaxMessageBytes = 4 * 1024 * 1024

// Config is the process-wide configuration, read once at startup and
// immutable thereafter.
type Config struct {
	Name      string          `yaml:"name"`
	Server    ServerConfig    `yaml:"server"`
	Logging   logging.Config  `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
	Broker    BrokerConfig    `yaml:"broker"`
	Functions []registry.Spec `yaml:"functions"`
}

// ServerConfig configures the RPC listener, its concurrency bounds and its
// TLS material.
type ServerConfig struct {
	Address string `yaml:"address"`
	Workers struct {
		Max int `yaml:"max"`
	} `yaml:"workers"`
	Concurrent struct {
		Max int `yaml:"max"`
	} `yaml:"concurrent"`
	Message struct {
		Length struct {
			Max int `yaml:"max"`
		} `yaml:"length"`
	} `yaml:"message"`
	CA   string `yaml:"ca"`
	Key  string `yaml:"key"`
	Cert string `yaml:"cert"`
	// GraceSeconds bounds the shutdown drain; unset drains indefinitely.
	GraceSeconds *float64 `yaml:"graceSeconds"`
}

// Grace returns the shutdown drain bound as a duration, or nil when unset.
func (s *ServerConfig) Grace() *time.Duration {
	if s.GraceSeconds == nil {
		return nil
	}
	d := time.Duration(*s.GraceSeconds * float64(time.Second))
	return &d
}

// HTTPConfig enables the health/metrics sidecar when an address is set.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// BrokerConfig enables the message-broker ingress when a URL is set.
type BrokerConfig struct {
	URL string `yaml:"url"`
	// Prefix is prepended to function names to form subscription subjects,
	// e.g. prefix "fn" and function "echo" subscribe to "fn.echo".
	Prefix string `yaml:"prefix"`
}

// envOverrides are recognized environment values taking precedence over the
// service file.
type envOverrides struct {
	InstanceName    string `envconfig:"SERVICE_INSTANCE_NAME"`
	InstanceAddress string `envconfig:"SERVICE_INSTANCE_ADDRESS"`
}

// Load reads and validates the configuration at path, falling back to
// DefaultPath when path is empty.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - read %s: %w", logPrefix, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s - parse %s: %w", logPrefix, path, err)
	}

	var env envOverrides
	if err := envconfig.Process("fnhost", &env); err != nil {
		return nil, fmt.Errorf("%s - environment overrides: %w", logPrefix, err)
	}
	if env.InstanceName != "" {
		slog.Info(fmt.Sprintf("%s - instance name overridden from environment", logPrefix))
		cfg.Name = env.InstanceName
	}
	if env.InstanceAddress != "" {
		slog.Info(fmt.Sprintf("%s - server address overridden from environment", logPrefix))
		cfg.Server.Address = env.InstanceAddress
	}

	if cfg.Server.Message.Length.Max <= 0 {
		cfg.Server.Message.Length.Max = DefaultMaxMessageBytes
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants a server start depends on. Violations are
// fatal configuration errors, not per-call errors.
func (c *Config) Validate() error {
	if c.Name == "" {
		return &registry.ConfigurationError{Reason: "missing name"}
	}
	if c.Server.Address == "" {
		return &registry.ConfigurationError{Reason: "missing server address"}
	}
	if len(c.Functions) == 0 {
		return &registry.ConfigurationError{Reason: "missing functions"}
	}
	if (c.Server.Key == "") != (c.Server.Cert == "") {
		return &registry.ConfigurationError{Reason: "server key and cert must both be set or both be empty"}
	}
	if c.Server.GraceSeconds != nil && *c.Server.GraceSeconds < 0 {
		return &registry.ConfigurationError{Reason: "server graceSeconds must not be negative"}
	}

	seen := make(map[string]struct{}, len(c.Functions))
	for i, fn := range c.Functions {
		if fn.Name == "" || fn.Handler == "" || fn.CodeDir == "" {
			return &registry.ConfigurationError{
				Reason: fmt.Sprintf("function #%d missing name, handler or codedir", i),
			}
		}
		if _, dup := seen[fn.Name]; dup {
			return &registry.ConfigurationError{
				Reason: fmt.Sprintf("duplicate function name %q", fn.Name),
			}
		}
		seen[fn.Name] = struct{}{}
	}
	return nil
}
