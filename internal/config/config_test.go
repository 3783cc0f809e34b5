package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fnhost/fnhost/pkg/registry"
)

const testPrefix = "config:config_test"

const validYAML = `
name: fn-host-1
server:
  address: "127.0.0.1:50051"
  workers:
    max: 8
  concurrent:
    max: 64
  message:
    length:
      max: 1048576
  graceSeconds: 2.5
logging:
  level: debug
functions:
  - name: echo
    handler: handlers.Echo
    codedir: functions/echo
  - name: sum
    handler: handlers.Sum
    codedir: functions/sum
    compat: ">=1.0.0"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "service.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("%s - write config: %v", testPrefix, err)
	}
	return path
}

func TestLoad_Valid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("%s - Load failed: %v", testPrefix, err)
	}

	if cfg.Name != "fn-host-1" {
		t.Errorf("expected name fn-host-1, got %q", cfg.Name)
	}
	if cfg.Server.Address != "127.0.0.1:50051" {
		t.Errorf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Server.Workers.Max != 8 || cfg.Server.Concurrent.Max != 64 {
		t.Errorf("unexpected concurrency limits: %+v", cfg.Server)
	}
	if cfg.Server.Message.Length.Max != 1048576 {
		t.Errorf("unexpected message cap %d", cfg.Server.Message.Length.Max)
	}
	if g := cfg.Server.Grace(); g == nil || *g != 2500*time.Millisecond {
		t.Errorf("unexpected grace %v", g)
	}
	if len(cfg.Functions) != 2 || cfg.Functions[1].Compat != ">=1.0.0" {
		t.Errorf("unexpected functions: %+v", cfg.Functions)
	}
}

func TestLoad_DefaultMessageCap(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
name: svc
server:
  address: ":50051"
functions:
  - {name: f, handler: h.H, codedir: d}
`))
	if err != nil {
		t.Fatalf("%s - Load failed: %v", testPrefix, err)
	}
	if cfg.Server.Message.Length.Max != DefaultMaxMessageBytes {
		t.Errorf("expected default %d, got %d", DefaultMaxMessageBytes, cfg.Server.Message.Length.Max)
	}
	if cfg.Server.Grace() != nil {
		t.Error("expected unset grace to stay nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FNHOST_SERVICE_INSTANCE_NAME", "fn-host-override")
	t.Setenv("FNHOST_SERVICE_INSTANCE_ADDRESS", "10.0.0.5:443")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("%s - Load failed: %v", testPrefix, err)
	}
	if cfg.Name != "fn-host-override" {
		t.Errorf("expected env name override, got %q", cfg.Name)
	}
	if cfg.Server.Address != "10.0.0.5:443" {
		t.Errorf("expected env address override, got %q", cfg.Server.Address)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatalf("%s - expected error for missing file", testPrefix)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		grace := 1.0
		c := &Config{Name: "svc"}
		c.Server.Address = ":50051"
		c.Server.GraceSeconds = &grace
		c.Functions = []registry.Spec{{Name: "f", Handler: "h.H", CodeDir: "d"}}
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing name", func(c *Config) { c.Name = "" }, true},
		{"missing address", func(c *Config) { c.Server.Address = "" }, true},
		{"missing functions", func(c *Config) { c.Functions = nil }, true},
		{"key without cert", func(c *Config) { c.Server.Key = "k.pem" }, true},
		{"cert without key", func(c *Config) { c.Server.Cert = "c.pem" }, true},
		{"key and cert", func(c *Config) { c.Server.Key = "k.pem"; c.Server.Cert = "c.pem" }, false},
		{"negative grace", func(c *Config) { g := -1.0; c.Server.GraceSeconds = &g }, true},
		{"function missing fields", func(c *Config) { c.Functions[0].CodeDir = "" }, true},
		{"duplicate function names", func(c *Config) {
			c.Functions = append(c.Functions, registry.Spec{Name: "f", Handler: "h.H", CodeDir: "d"})
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				var cerr *registry.ConfigurationError
				if !errors.As(err, &cerr) {
					t.Errorf("%s - expected ConfigurationError, got %v", testPrefix, err)
				}
			} else if err != nil {
				t.Errorf("%s - unexpected error: %v", testPrefix, err)
			}
		})
	}
}
