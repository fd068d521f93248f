package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ligustah/volsplit/internal/codec"
	rhttp "github.com/ligustah/volsplit/internal/http"
	"github.com/ligustah/volsplit/internal/progress"
	"github.com/ligustah/volsplit/pkg/volume"
)

// Config defines configuration for the volsplit CLI.
type Config struct {
	Bucket   string      `yaml:"bucket"`
	Workers  int         `yaml:"workers"`
	Progress bool        `yaml:"progress"`
	Force    bool        `yaml:"force"`
	LogLevel string      `yaml:"log_level"`
	Shards   ShardConfig `yaml:"shards"`
	Retry    RetryConfig `yaml:"retry"`
}

// ShardConfig defines how new shards are laid out and stored.
type ShardConfig struct {
	Format      string       `yaml:"format"`
	ByteOrder   string       `yaml:"byte_order"`
	Compression int          `yaml:"compression"`
	Block       volume.Coord `yaml:"block"`
	Overlap     volume.Coord `yaml:"overlap"`
	// MaxSize bounds a shard's ROI in bytes when Block is unset.
	MaxSize int64 `yaml:"max_size"`
}

// RetryConfig defines retry behavior of the http format.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Workers:  4,
		LogLevel: "info",
		Shards: ShardConfig{
			Format:  codec.FormatRaw,
			MaxSize: 256 * 1024 * 1024, // 256MiB
		},
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    200 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling of sizes, coordinates and durations
// written as strings.
type yamlConfig struct {
	Bucket   string          `yaml:"bucket"`
	Workers  int             `yaml:"workers"`
	Progress bool            `yaml:"progress"`
	Force    bool            `yaml:"force"`
	LogLevel string          `yaml:"log_level"`
	Shards   yamlShardConfig `yaml:"shards"`
	Retry    yamlRetryConfig `yaml:"retry"`
}

type yamlShardConfig struct {
	Format      string `yaml:"format"`
	ByteOrder   string `yaml:"byte_order"`
	Compression int    `yaml:"compression"`
	Block       string `yaml:"block"`
	Overlap     string `yaml:"overlap"`
	MaxSize     string `yaml:"max_size"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file on top of Default.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	cfg.Progress = yc.Progress
	cfg.Force = yc.Force
	if yc.LogLevel != "" {
		cfg.LogLevel = yc.LogLevel
	}
	if yc.Shards.Format != "" {
		cfg.Shards.Format = yc.Shards.Format
	}
	if yc.Shards.ByteOrder != "" {
		cfg.Shards.ByteOrder = yc.Shards.ByteOrder
	}
	if yc.Shards.Compression != 0 {
		cfg.Shards.Compression = yc.Shards.Compression
	}
	if yc.Shards.Block != "" {
		c, err := volume.ParseCoord(yc.Shards.Block)
		if err != nil {
			return Config{}, fmt.Errorf("parse shards.block: %w", err)
		}
		cfg.Shards.Block = c
	}
	if yc.Shards.Overlap != "" {
		c, err := volume.ParseCoord(yc.Shards.Overlap)
		if err != nil {
			return Config{}, fmt.Errorf("parse shards.overlap: %w", err)
		}
		cfg.Shards.Overlap = c
	}
	if yc.Shards.MaxSize != "" {
		size, err := progress.ParseBytes(yc.Shards.MaxSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse shards.max_size: %w", err)
		}
		cfg.Shards.MaxSize = size
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the VOLSPLIT_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("VOLSPLIT_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("VOLSPLIT_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("VOLSPLIT_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("VOLSPLIT_FORCE"); v != "" {
		c.Force = v == "true" || v == "1"
	}
	if v := os.Getenv("VOLSPLIT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("VOLSPLIT_FORMAT"); v != "" {
		c.Shards.Format = v
	}
	if v := os.Getenv("VOLSPLIT_BYTE_ORDER"); v != "" {
		c.Shards.ByteOrder = v
	}
	if v := os.Getenv("VOLSPLIT_COMPRESSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_COMPRESSION: %w", err)
		}
		c.Shards.Compression = n
	}
	if v := os.Getenv("VOLSPLIT_BLOCK"); v != "" {
		coord, err := volume.ParseCoord(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_BLOCK: %w", err)
		}
		c.Shards.Block = coord
	}
	if v := os.Getenv("VOLSPLIT_OVERLAP"); v != "" {
		coord, err := volume.ParseCoord(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_OVERLAP: %w", err)
		}
		c.Shards.Overlap = coord
	}
	if v := os.Getenv("VOLSPLIT_MAX_SHARD_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_MAX_SHARD_SIZE: %w", err)
		}
		c.Shards.MaxSize = size
	}
	if v := os.Getenv("VOLSPLIT_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("VOLSPLIT_RETRY_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_RETRY_BACKOFF: %w", err)
		}
		c.Retry.Backoff = d
	}
	if v := os.Getenv("VOLSPLIT_RETRY_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse VOLSPLIT_RETRY_MAX_BACKOFF: %w", err)
		}
		c.Retry.MaxBackoff = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("config: bucket is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if !slices.Contains(codec.Formats, c.Shards.Format) {
		return fmt.Errorf("config: unknown shard format %q", c.Shards.Format)
	}
	switch volume.ByteOrder(c.Shards.ByteOrder) {
	case "", volume.LittleEndian, volume.BigEndian:
	default:
		return fmt.Errorf("config: unknown byte order %q", c.Shards.ByteOrder)
	}
	for a := 0; a < 3; a++ {
		if c.Shards.Block[a] < 0 || c.Shards.Overlap[a] < 0 {
			return errors.New("config: block and overlap must not be negative")
		}
	}
	if c.Shards.Block == (volume.Coord{}) && c.Shards.MaxSize <= 0 {
		return errors.New("config: either block or max_size must be set")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Force {
		c.Force = override.Force
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.Shards.Format != "" {
		c.Shards.Format = override.Shards.Format
	}
	if override.Shards.ByteOrder != "" {
		c.Shards.ByteOrder = override.Shards.ByteOrder
	}
	if override.Shards.Compression != 0 {
		c.Shards.Compression = override.Shards.Compression
	}
	if override.Shards.Block != (volume.Coord{}) {
		c.Shards.Block = override.Shards.Block
	}
	if override.Shards.Overlap != (volume.Coord{}) {
		c.Shards.Overlap = override.Shards.Overlap
	}
	if override.Shards.MaxSize != 0 {
		c.Shards.MaxSize = override.Shards.MaxSize
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}

// HTTPOptions returns client options for the http format.
func (c Config) HTTPOptions(log *zap.Logger) rhttp.Options {
	opts := rhttp.DefaultOptions()
	opts.RetryAttempts = c.Retry.Attempts
	opts.RetryBackoff = c.Retry.Backoff
	opts.RetryMaxBackoff = c.Retry.MaxBackoff
	opts.Logger = log
	return opts
}

// Codec returns the codec parameters for new shards of the given voxel type.
func (c Config) Codec(voxelType volume.VoxelType) volume.CodecParams {
	return volume.CodecParams{
		Format:      c.Shards.Format,
		VoxelType:   voxelType,
		ByteOrder:   volume.ByteOrder(c.Shards.ByteOrder),
		Compression: c.Shards.Compression,
	}
}
