// Package config loads the YAML configuration of the hcbench tool.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

// Duration accepts Go durations plus day and week units ("1d12h", "2w").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, line %d", value.Line)
	}
	s := strings.TrimSpace(value.Value)
	if s == "" || s == "0" {
		*d = 0
		return nil
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

type Local struct {
	// Kind is one of memory, ristretto, bigcache.
	Kind       string `yaml:"kind"`
	MaxEntries int    `yaml:"max_entries"`
	Shards     int    `yaml:"shards"`
	// MaxCostBytes caps ristretto cost (frame bytes) and bigcache memory.
	MaxCostBytes int64 `yaml:"max_cost_bytes"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password,omitempty"`
	// TagIndex stores tags in Redis sets so any process can RemoveByTag.
	TagIndex bool `yaml:"tag_index"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

type Config struct {
	Namespace             string   `yaml:"namespace"`
	Expiration            Duration `yaml:"expiration"`
	LocalExpiration       Duration `yaml:"local_expiration"`
	MaxPayloadBytes       int      `yaml:"max_payload_bytes"`
	MaxKeyLength          int      `yaml:"max_key_length"`
	HashLongKeys          bool     `yaml:"hash_long_keys"`
	LoadTimeout           Duration `yaml:"load_timeout"`
	DistributedTimeout    Duration `yaml:"distributed_timeout"`
	InvalidateConcurrency int      `yaml:"invalidate_concurrency"`
	GenerationRetention   Duration `yaml:"generation_retention"`
	CleanupInterval       Duration `yaml:"cleanup_interval"`

	Local Local `yaml:"local"`
	Redis Redis `yaml:"redis"`
	Log   Log   `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Namespace:             "bench",
		Expiration:            Duration(5 * time.Minute),
		LocalExpiration:       Duration(time.Minute),
		MaxPayloadBytes:       1 << 20,
		MaxKeyLength:          1024,
		DistributedTimeout:    Duration(5 * time.Second),
		InvalidateConcurrency: 8,
		GenerationRetention:   Duration(24 * time.Hour),
		CleanupInterval:       Duration(10 * time.Minute),
		Local:                 Local{Kind: "memory", Shards: 16, MaxCostBytes: 64 << 20},
		Redis:                 Redis{Addr: "127.0.0.1:6379", TagIndex: true},
		Log:                   Log{Level: "info", Format: "console"},
	}
}

// Load reads and validates the YAML file at path. Unset fields keep Default values.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Namespace == "" {
		errs = append(errs, fmt.Errorf("%w: namespace is required", ErrInvalid))
	}
	if c.Expiration < 0 || c.LocalExpiration < 0 {
		errs = append(errs, fmt.Errorf("%w: expirations must not be negative", ErrInvalid))
	}
	if c.Expiration > 0 && c.LocalExpiration > c.Expiration {
		errs = append(errs, fmt.Errorf("%w: local_expiration %s exceeds expiration %s",
			ErrInvalid, c.LocalExpiration.D(), c.Expiration.D()))
	}
	if c.InvalidateConcurrency < 0 {
		errs = append(errs, fmt.Errorf("%w: invalidate_concurrency must not be negative", ErrInvalid))
	}
	switch c.Local.Kind {
	case "", "memory", "ristretto", "bigcache":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown local.kind %q", ErrInvalid, c.Local.Kind))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: redis.addr is required when redis is enabled", ErrInvalid))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown log.level %q", ErrInvalid, c.Log.Level))
	}
	return errors.Join(errs...)
}

const redacted = "[redacted]"

// YAML renders the effective configuration with secrets redacted.
func (c Config) YAML() ([]byte, error) {
	if c.Redis.Password != "" {
		c.Redis.Password = redacted
	}
	return yaml.Marshal(c)
}
