// Package config manages govarpd daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and CLI flags, layered in
// that priority order from lowest to highest -- flags always win.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPortolanPort is the default Portolan SVP server port.
const DefaultPortolanPort = 1296

// DefaultFabricNicsPath is the default fabric-NIC seed file path.
const DefaultFabricNicsPath = "/var/varpd/fabric-nics.txt"

// maxPort is the exclusive upper bound on the Portolan port.
const maxPort = 0xFFFE

// Config holds the complete govarpd configuration.
type Config struct {
	Portolan PortolanConfig `koanf:"portolan"`
	Fabric   FabricConfig   `koanf:"fabric"`
	Install  InstallConfig  `koanf:"install"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
}

// PortolanConfig holds the remote directory service connection settings.
type PortolanConfig struct {
	// Addr is the Portolan server's IPv4 address (required).
	Addr string `koanf:"addr"`
	// Port is the Portolan server's TCP port.
	Port int `koanf:"port"`
}

// HostPort renders Addr and Port as a "host:port" dial target.
func (p PortolanConfig) HostPort() string {
	return net.JoinHostPort(p.Addr, strconv.Itoa(p.Port))
}

// FabricConfig holds the local fabric-link inventory settings.
type FabricConfig struct {
	// NicsFile is the declarative fabric-link seed file.
	NicsFile string `koanf:"nics_file"`
}

// InstallConfig selects the backend(s) that consume resolved overlay
// mappings (internal/install).
type InstallConfig struct {
	// OVSDBEndpoint, when set, additionally programs an Open vSwitch
	// hardware_vtep-schema database at this OVSDB connection string (e.g.,
	// "tcp:127.0.0.1:6640"). Empty disables the OVSDB sink; resolved
	// mappings are still logged via the always-on logging installer.
	OVSDBEndpoint string `koanf:"ovsdb_endpoint"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9295").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Portolan: PortolanConfig{
			Port: DefaultPortolanPort,
		},
		Fabric: FabricConfig{
			NicsFile: DefaultFabricNicsPath,
		},
		Install: InstallConfig{
			OVSDBEndpoint: "",
		},
		Metrics: MetricsConfig{
			Addr: ":9295",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envPrefix is the environment variable prefix for govarpd configuration.
// Variables are named VARPD_<section>_<key>, e.g., VARPD_PORTOLAN_ADDR.
const envPrefix = "VARPD_"

// Load reads configuration from an optional YAML file at path, overlays
// environment variable overrides (VARPD_ prefix), and merges on top of
// DefaultConfig(). An empty path skips the file layer. Missing fields
// inherit defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms VARPD_PORTOLAN_ADDR -> portolan.addr. Only the
// first underscore after the prefix separates section from key, so
// VARPD_FABRIC_NICS_FILE maps to fabric.nics_file.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"portolan.addr":          defaults.Portolan.Addr,
		"portolan.port":          defaults.Portolan.Port,
		"fabric.nics_file":       defaults.Fabric.NicsFile,
		"install.ovsdb_endpoint": defaults.Install.OVSDBEndpoint,
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// Validation errors.
var (
	// ErrEmptyPortolanAddr indicates the required "-a" flag was not supplied.
	ErrEmptyPortolanAddr = errors.New("portolan.addr must not be empty")

	// ErrInvalidPortolanAddr indicates the Portolan address does not parse
	// as an IPv4 address.
	ErrInvalidPortolanAddr = errors.New("portolan.addr must be a valid IPv4 address")

	// ErrInvalidPortolanPort indicates the port is outside (0, 0xFFFE).
	ErrInvalidPortolanPort = errors.New("portolan.port must be in (0, 0xFFFE)")
)

// Validate checks the configuration for logical errors. The caller treats a
// validation failure as a usage error, exiting with a non-zero status.
func Validate(cfg *Config) error {
	if cfg.Portolan.Addr == "" {
		return ErrEmptyPortolanAddr
	}
	ip := net.ParseIP(cfg.Portolan.Addr)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("%q: %w", cfg.Portolan.Addr, ErrInvalidPortolanAddr)
	}
	if cfg.Portolan.Port <= 0 || cfg.Portolan.Port >= maxPort {
		return fmt.Errorf("%d: %w", cfg.Portolan.Port, ErrInvalidPortolanPort)
	}
	return nil
}

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
