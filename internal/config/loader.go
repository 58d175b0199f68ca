package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path, fills defaults, and returns
// a validated [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults, and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills credential fields from the environment when the file leaves
// them empty. Secrets belong in the environment, not in committed YAML.
func applyEnv(cfg *Config) {
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Store.PostgresDSN == "" {
		cfg.Store.PostgresDSN = os.Getenv("DATABASE_URL")
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Model.Model == "" {
		errs = append(errs, errors.New("model.model is required"))
	}

	if n := len(cfg.Audio.DownsampleWeights); n != 3 {
		errs = append(errs, fmt.Errorf("audio.downsample_weights has %d entries, want 3", n))
	} else {
		var sum float64
		for _, w := range cfg.Audio.DownsampleWeights {
			sum += w
		}
		if math.Abs(sum-1.0) > 0.01 {
			errs = append(errs, fmt.Errorf("audio.downsample_weights sum to %.3f, want 1.0", sum))
		}
	}
	if g := cfg.Audio.DownsampleGain; g <= 0 || g > 4 {
		errs = append(errs, fmt.Errorf("audio.downsample_gain %.2f is out of range (0, 4]", g))
	}
	if cfg.Audio.OutboundQueueDepth <= 0 {
		errs = append(errs, fmt.Errorf("audio.outbound_queue_depth %d must be positive", cfg.Audio.OutboundQueueDepth))
	}

	if !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: filelog, postgres", cfg.Store.Driver))
	}
	if cfg.Store.Driver == StoreFileLog && cfg.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required for the filelog driver"))
	}
	if cfg.Store.Driver == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required for the postgres driver"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel maps the configured level to its slog equivalent. Unset or
// unknown levels map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
