// Package config loads the tpmwire command configuration from TOML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-multierror"

	"github.com/tpmwire/go-tpmwire/tpm2"
)

// Transport kinds.
const (
	KindDevice    = "device"
	KindSocket    = "socket"
	KindTCP       = "tcp"
	KindSimulator = "simulator"
)

// Config is the full tpmwire configuration.
type Config struct {
	Transport TransportConfig
	Retry     tpm2.RetryPolicy
	Log       LogConfig
	Metrics   MetricsConfig
}

// TransportConfig selects and parameterizes the connection to the TPM.
type TransportConfig struct {
	Kind            string
	Device          string
	Socket          string
	CommandAddress  string
	PlatformAddress string
	DialTimeout     time.Duration
	IOTimeout       time.Duration
	// SimulatorSeed, when not zero, manufactures the simulator from a fixed
	// seed so its primary keys repeat across runs. Insecure.
	SimulatorSeed int64
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

// MetricsConfig controls the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Kind:            KindDevice,
			Device:          "/dev/tpmrm0",
			CommandAddress:  "localhost:2321",
			PlatformAddress: "localhost:2322",
			DialTimeout:     5 * time.Second,
			IOTimeout:       30 * time.Second,
		},
		Retry: tpm2.RetryPolicy{
			MaxRetries:      3,
			InitialInterval: 50 * time.Millisecond,
			MaxInterval:     time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

type fileConfig struct {
	Transport struct {
		Kind            string `toml:"kind"`
		Device          string `toml:"device"`
		Socket          string `toml:"socket"`
		CommandAddress  string `toml:"command_address"`
		PlatformAddress string `toml:"platform_address"`
		DialTimeout     string `toml:"dial_timeout"`
		IOTimeout       string `toml:"io_timeout"`
		SimulatorSeed   int64  `toml:"simulator_seed"`
	} `toml:"transport"`
	Retry struct {
		MaxRetries      uint64 `toml:"max_retries"`
		InitialInterval string `toml:"initial_interval"`
		MaxInterval     string `toml:"max_interval"`
	} `toml:"retry"`
	Log struct {
		Level       string `toml:"level"`
		Development bool   `toml:"development"`
	} `toml:"log"`
	Metrics struct {
		Listen string `toml:"listen"`
	} `toml:"metrics"`
}

// Load reads the file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load tpmwire config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load tpmwire config: unknown keys %s", strings.Join(keys, ", "))
	}

	var errs *multierror.Error
	duration := func(dst *time.Duration, key, value string) {
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("parse %s: %w", key, err))
			return
		}
		*dst = d
	}

	if meta.IsDefined("transport", "kind") {
		cfg.Transport.Kind = strings.TrimSpace(raw.Transport.Kind)
	}
	if meta.IsDefined("transport", "device") {
		cfg.Transport.Device = strings.TrimSpace(raw.Transport.Device)
	}
	if meta.IsDefined("transport", "socket") {
		cfg.Transport.Socket = strings.TrimSpace(raw.Transport.Socket)
	}
	if meta.IsDefined("transport", "command_address") {
		cfg.Transport.CommandAddress = strings.TrimSpace(raw.Transport.CommandAddress)
	}
	if meta.IsDefined("transport", "platform_address") {
		cfg.Transport.PlatformAddress = strings.TrimSpace(raw.Transport.PlatformAddress)
	}
	if meta.IsDefined("transport", "dial_timeout") {
		duration(&cfg.Transport.DialTimeout, "transport.dial_timeout", raw.Transport.DialTimeout)
	}
	if meta.IsDefined("transport", "io_timeout") {
		duration(&cfg.Transport.IOTimeout, "transport.io_timeout", raw.Transport.IOTimeout)
	}
	if meta.IsDefined("transport", "simulator_seed") {
		cfg.Transport.SimulatorSeed = raw.Transport.SimulatorSeed
	}

	if meta.IsDefined("retry", "max_retries") {
		cfg.Retry.MaxRetries = raw.Retry.MaxRetries
	}
	if meta.IsDefined("retry", "initial_interval") {
		duration(&cfg.Retry.InitialInterval, "retry.initial_interval", raw.Retry.InitialInterval)
	}
	if meta.IsDefined("retry", "max_interval") {
		duration(&cfg.Retry.MaxInterval, "retry.max_interval", raw.Retry.MaxInterval)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "development") {
		cfg.Log.Development = raw.Log.Development
	}
	if meta.IsDefined("metrics", "listen") {
		cfg.Metrics.Listen = strings.TrimSpace(raw.Metrics.Listen)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs *multierror.Error
	switch c.Transport.Kind {
	case KindDevice:
		if c.Transport.Device == "" {
			errs = multierror.Append(errs, fmt.Errorf("transport.device is required for kind %q", KindDevice))
		}
	case KindSocket:
		if c.Transport.Socket == "" {
			errs = multierror.Append(errs, fmt.Errorf("transport.socket is required for kind %q", KindSocket))
		}
	case KindTCP:
		if c.Transport.CommandAddress == "" || c.Transport.PlatformAddress == "" {
			errs = multierror.Append(errs, fmt.Errorf("transport.command_address and transport.platform_address are required for kind %q", KindTCP))
		}
	case KindSimulator:
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown transport.kind %q", c.Transport.Kind))
	}
	if c.Transport.DialTimeout < 0 || c.Transport.IOTimeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("transport timeouts must not be negative"))
	}
	if c.Retry.MaxRetries > 0 && c.Retry.MaxInterval > 0 && c.Retry.InitialInterval > c.Retry.MaxInterval {
		errs = multierror.Append(errs, fmt.Errorf("retry.initial_interval %v exceeds retry.max_interval %v", c.Retry.InitialInterval, c.Retry.MaxInterval))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = multierror.Append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	return errs.ErrorOrNil()
}
