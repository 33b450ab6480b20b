package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/rawbytedev/msgstream/internal/logging"
	"github.com/rawbytedev/msgstream/pkg/envelope"
)

type Config struct {
	Limits   LimitsConfig   `toml:"limits" yaml:"limits"`
	Envelope EnvelopeConfig `toml:"envelope" yaml:"envelope"`
	Log      LogConfig      `toml:"log" yaml:"log"`
}

type LimitsConfig struct {
	MaxStreamBytes uint64 `toml:"max_stream_bytes" yaml:"max_stream_bytes"`
	MaxRecords     uint32 `toml:"max_records" yaml:"max_records"`
}

type EnvelopeConfig struct {
	Compression string `toml:"compression" yaml:"compression"`
	Level       int    `toml:"level" yaml:"level"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
	JSON  bool   `toml:"json" yaml:"json"`
}

func Default() Config {
	lim := envelope.DefaultLimits()
	return Config{
		Limits:   LimitsConfig{MaxStreamBytes: lim.MaxStreamBytes, MaxRecords: lim.MaxRecords},
		Envelope: EnvelopeConfig{Compression: "none"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads a TOML or YAML file (picked by extension) over the
// defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config load failed (%s)", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, errors.Errorf("config load failed (%s): unknown format", path)
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "config parse failed (%s)", path)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Limits.MaxStreamBytes == 0 {
		cfg.Limits.MaxStreamBytes = def.Limits.MaxStreamBytes
	}
	if cfg.Limits.MaxRecords == 0 {
		cfg.Limits.MaxRecords = def.Limits.MaxRecords
	}
	if cfg.Envelope.Compression == "" {
		cfg.Envelope.Compression = def.Envelope.Compression
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

func Validate(cfg Config) error {
	if _, err := envelope.ParseCompression(cfg.Envelope.Compression); err != nil {
		return errors.Wrap(err, "envelope.compression")
	}
	if cfg.Envelope.Level < 0 || cfg.Envelope.Level > 4 {
		return errors.Errorf("envelope.level must be within 0..4, got %d", cfg.Envelope.Level)
	}
	if cfg.Limits.MaxStreamBytes < 64 {
		return errors.Errorf("limits.max_stream_bytes too small: %d", cfg.Limits.MaxStreamBytes)
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return errors.Errorf("log.level invalid: %q", cfg.Log.Level)
	}
	return nil
}

// EnvelopeOptions converts the file settings into codec options.
func (c Config) EnvelopeOptions() envelope.Options {
	comp, _ := envelope.ParseCompression(c.Envelope.Compression)
	return envelope.Options{
		Compression: comp,
		Level:       c.Envelope.Level,
		Limits: envelope.Limits{
			MaxStreamBytes: c.Limits.MaxStreamBytes,
			MaxRecords:     c.Limits.MaxRecords,
		},
	}
}

// Logging builds the logger config, file values first, env on top.
func (c Config) Logging(profile logging.Profile) logging.Config {
	lc := logging.DefaultConfig(profile)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		lc.Level = lvl
	}
	lc.JSON = c.Log.JSON
	logging.ApplyEnvOverrides(&lc)
	return lc
}
