package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mnx-cloud/govarpd/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "govarpd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Portolan.Port != config.DefaultPortolanPort {
		t.Errorf("Portolan.Port = %d, want %d", cfg.Portolan.Port, config.DefaultPortolanPort)
	}
	if cfg.Fabric.NicsFile != config.DefaultFabricNicsPath {
		t.Errorf("Fabric.NicsFile = %q, want %q", cfg.Fabric.NicsFile, config.DefaultFabricNicsPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}

	// An empty Portolan.Addr is a usage error, not an internal default
	// failure: the Portolan address must always be supplied.
	if err := config.Validate(cfg); !errors.Is(err, config.ErrEmptyPortolanAddr) {
		t.Errorf("Validate(default) = %v, want ErrEmptyPortolanAddr", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, `
portolan:
  addr: "10.0.0.5"
  port: 1300
fabric:
  nics_file: "/etc/varpd/fabric-nics.txt"
log:
  level: "debug"
  format: "text"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Portolan.Addr != "10.0.0.5" {
		t.Errorf("Portolan.Addr = %q, want %q", cfg.Portolan.Addr, "10.0.0.5")
	}
	if cfg.Portolan.Port != 1300 {
		t.Errorf("Portolan.Port = %d, want %d", cfg.Portolan.Port, 1300)
	}
	if cfg.Fabric.NicsFile != "/etc/varpd/fabric-nics.txt" {
		t.Errorf("Fabric.NicsFile = %q, want %q", cfg.Fabric.NicsFile, "/etc/varpd/fabric-nics.txt")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Portolan.Port != config.DefaultPortolanPort {
		t.Errorf("Portolan.Port = %d, want default %d", cfg.Portolan.Port, config.DefaultPortolanPort)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("VARPD_PORTOLAN_ADDR", "192.168.10.10")
	t.Setenv("VARPD_PORTOLAN_PORT", "1400")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Portolan.Addr != "192.168.10.10" {
		t.Errorf("Portolan.Addr = %q, want %q (env override)", cfg.Portolan.Addr, "192.168.10.10")
	}
	if cfg.Portolan.Port != 1400 {
		t.Errorf("Portolan.Port = %d, want %d (env override)", cfg.Portolan.Port, 1400)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr error
	}{
		{
			name:    "empty addr",
			cfg:     &config.Config{Portolan: config.PortolanConfig{Addr: "", Port: 1296}},
			wantErr: config.ErrEmptyPortolanAddr,
		},
		{
			name:    "non-ipv4 addr",
			cfg:     &config.Config{Portolan: config.PortolanConfig{Addr: "not-an-ip", Port: 1296}},
			wantErr: config.ErrInvalidPortolanAddr,
		},
		{
			name:    "ipv6 addr rejected",
			cfg:     &config.Config{Portolan: config.PortolanConfig{Addr: "::1", Port: 1296}},
			wantErr: config.ErrInvalidPortolanAddr,
		},
		{
			name:    "zero port",
			cfg:     &config.Config{Portolan: config.PortolanConfig{Addr: "10.0.0.1", Port: 0}},
			wantErr: config.ErrInvalidPortolanPort,
		},
		{
			name:    "port too large",
			cfg:     &config.Config{Portolan: config.PortolanConfig{Addr: "10.0.0.1", Port: 0xFFFE}},
			wantErr: config.ErrInvalidPortolanPort,
		},
		{
			name:    "valid",
			cfg:     &config.Config{Portolan: config.PortolanConfig{Addr: "10.0.0.1", Port: 1296}},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := config.Validate(tt.cfg)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"debug": "DEBUG",
		"info":  "INFO",
		"warn":  "WARN",
		"error": "ERROR",
		"":      "INFO",
		"bogus": "INFO",
	}
	for in, want := range cases {
		if got := config.ParseLogLevel(in).String(); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
