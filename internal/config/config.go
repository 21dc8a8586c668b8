package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/isolink/internal/channel"
	"github.com/danmuck/isolink/internal/iso"
)

// FramingConfig selects the per-connection framing strategy. Type "stream"
// means no length prefix: message boundaries come from the dialect itself.
type FramingConfig struct {
	Type  string `toml:"type"`  // binary | ascii | hex | stream
	Width int    `toml:"width"` // prefix bytes or digits
}

type SwitchConfig struct {
	Name    string        `toml:"name"`
	Addr    string        `toml:"addr"`
	Workers int64         `toml:"workers"`
	Dialect string        `toml:"dialect"` // "iso87ascii" or a TOML dialect path
	Framing FramingConfig `toml:"framing"`
}

type ProbeConfig struct {
	Addr      string        `toml:"addr"`
	Terminal  string        `toml:"terminal"`
	TimeoutMS int64         `toml:"timeout_ms"`
	Dialect   string        `toml:"dialect"`
	Framing   FramingConfig `toml:"framing"`
}

// Timeout converts the configured request deadline.
func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func LoadSwitchConfig(path string) (SwitchConfig, error) {
	var cfg SwitchConfig
	if err := loadToml(path, &cfg); err != nil {
		return SwitchConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "isolinkd"
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8583"
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "iso87ascii"
	}
	if cfg.Framing.Type == "" {
		cfg.Framing = FramingConfig{Type: "binary", Width: 2}
	}
	if err := ValidateFraming(cfg.Framing); err != nil {
		return SwitchConfig{}, err
	}
	return cfg, nil
}

func LoadProbeConfig(path string) (ProbeConfig, error) {
	var cfg ProbeConfig
	if err := loadToml(path, &cfg); err != nil {
		return ProbeConfig{}, err
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return ProbeConfig{}, fmt.Errorf("probe config missing addr")
	}
	if cfg.Terminal == "" {
		cfg.Terminal = "ISOPROBE"
	}
	if cfg.TimeoutMS <= 0 {
		cfg.TimeoutMS = 5000
	}
	if cfg.Dialect == "" {
		cfg.Dialect = "iso87ascii"
	}
	if cfg.Framing.Type == "" {
		cfg.Framing = FramingConfig{Type: "binary", Width: 2}
	}
	if err := ValidateFraming(cfg.Framing); err != nil {
		return ProbeConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateFraming(cfg FramingConfig) error {
	switch cfg.Type {
	case "binary":
		if cfg.Width != 2 && cfg.Width != 4 {
			return fmt.Errorf("binary framing width must be 2 or 4, got %d", cfg.Width)
		}
	case "ascii", "hex":
		if cfg.Width <= 0 {
			return fmt.Errorf("%s framing requires a positive width", cfg.Type)
		}
	case "stream":
	default:
		return fmt.Errorf("unknown framing type %q", cfg.Type)
	}
	return nil
}

// BuildFraming converts config into a channel framing strategy. Stream mode
// has no framing and returns nil.
func BuildFraming(cfg FramingConfig) channel.Framing {
	switch cfg.Type {
	case "binary":
		return channel.BinaryFraming{Bytes: cfg.Width}
	case "ascii":
		return channel.ASCIIFraming{Digits: cfg.Width}
	case "hex":
		return channel.HexFraming{Digits: cfg.Width}
	default:
		return nil
	}
}

// BuildPackager resolves a dialect reference: the builtin name or a path to
// a TOML dialect description.
func BuildPackager(dialect string) (*iso.Packager, error) {
	if dialect == "iso87ascii" {
		return iso.Dialect1987ASCII(), nil
	}
	return iso.LoadPackager(dialect)
}
