package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/defistate/defistate-sor-go/optimizer"
	"github.com/defistate/defistate-sor-go/pathfinder"
	"github.com/defistate/defistate-sor-go/router"
	"github.com/defistate/defistate-sor-go/snapshot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeout             = 2 * time.Second
	DefaultCacheSize           = 256
	DefaultStableMaxIterations = 255
	DefaultTolerance           = "0.0001"
	DefaultLogLevel            = "info"
)

// Environment variables that override file values.
const (
	EnvSnapshotPath = "SOR_SNAPSHOT_PATH"
	EnvStreamURL    = "SOR_STREAM_URL"
	EnvLogLevel     = "SOR_LOG_LEVEL"
	EnvTimeout      = "SOR_TIMEOUT"
)

// Config is the YAML configuration of the router binaries.
type Config struct {
	SnapshotPath        string           `yaml:"snapshotPath"`
	LogLevel            string           `yaml:"logLevel"`
	Timeout             time.Duration    `yaml:"timeout"`
	CacheSize           int              `yaml:"cacheSize"`
	StableMaxIterations int              `yaml:"stableMaxIterations"`
	PathFinder          PathFinderConfig `yaml:"pathFinder"`
	Optimizer           OptimizerConfig  `yaml:"optimizer"`

	// StreamURL is a websocket snapshot stream. When set it replaces
	// SnapshotPath as the console's snapshot source.
	StreamURL string `yaml:"streamUrl"`
}

type PathFinderConfig struct {
	MaxHops       int `yaml:"maxHops"`
	TopK          int `yaml:"topK"`
	MaxPaths      int `yaml:"maxPaths"`
	MaxCandidates int `yaml:"maxCandidates"`
	// Workers defaults to GOMAXPROCS when zero.
	Workers int `yaml:"workers"`
}

type OptimizerConfig struct {
	MaxIterations int `yaml:"maxIterations"`
	// Tolerance is a decimal fraction such as "0.0001".
	Tolerance string `yaml:"tolerance"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig reads, defaults and validates the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data. Unset fields take their defaults.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyEnv overrides fields from the environment, as looked up by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvSnapshotPath); ok && v != "" {
		c.SnapshotPath = v
	}
	if v, ok := lookup(EnvStreamURL); ok && v != "" {
		c.StreamURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	return c.validate()
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.StableMaxIterations == 0 {
		c.StableMaxIterations = DefaultStableMaxIterations
	}
	if c.PathFinder.MaxHops == 0 {
		c.PathFinder.MaxHops = pathfinder.DefaultMaxHops
	}
	if c.PathFinder.TopK == 0 {
		c.PathFinder.TopK = pathfinder.DefaultTopK
	}
	if c.PathFinder.MaxPaths == 0 {
		c.PathFinder.MaxPaths = pathfinder.DefaultMaxPaths
	}
	if c.PathFinder.MaxCandidates == 0 {
		c.PathFinder.MaxCandidates = pathfinder.DefaultMaxCandidates
	}
	if c.Optimizer.MaxIterations == 0 {
		c.Optimizer.MaxIterations = optimizer.DefaultMaxIterations
	}
	if c.Optimizer.Tolerance == "" {
		c.Optimizer.Tolerance = DefaultTolerance
	}
}

func (c *Config) validate() error {
	if c.Timeout < 0 {
		return errors.New("config: timeout cannot be negative")
	}
	if c.CacheSize < 0 {
		return errors.New("config: cacheSize cannot be negative")
	}
	if c.StableMaxIterations < 0 {
		return errors.New("config: stableMaxIterations cannot be negative")
	}
	if c.PathFinder.MaxHops < 1 || c.PathFinder.MaxHops > 8 {
		return fmt.Errorf("config: pathFinder.maxHops must be in [1, 8], got %d", c.PathFinder.MaxHops)
	}
	if c.PathFinder.TopK < 1 || c.PathFinder.MaxPaths < 1 || c.PathFinder.MaxCandidates < 1 {
		return errors.New("config: pathFinder topK, maxPaths and maxCandidates must be positive")
	}
	if c.PathFinder.Workers < 0 {
		return errors.New("config: pathFinder.workers cannot be negative")
	}
	if c.Optimizer.MaxIterations < 1 {
		return errors.New("config: optimizer.maxIterations must be positive")
	}
	if _, err := c.tolerance(); err != nil {
		return err
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// tolerance returns the optimizer tolerance in WAD.
func (c *Config) tolerance() (*big.Int, error) {
	d, err := decimal.NewFromString(c.Optimizer.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("config: optimizer.tolerance: %w", err)
	}
	if !d.IsPositive() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("config: optimizer.tolerance must be in (0, 1), got %s", c.Optimizer.Tolerance)
	}
	wad := d.Shift(18).Truncate(0).BigInt()
	if wad.Sign() == 0 {
		return nil, fmt.Errorf("config: optimizer.tolerance %s is below WAD precision", c.Optimizer.Tolerance)
	}
	return wad, nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Router converts the configuration into a router configuration.
func (c *Config) Router(reg prometheus.Registerer, logger router.Logger) (router.Config, error) {
	tolerance, err := c.tolerance()
	if err != nil {
		return router.Config{}, err
	}
	return router.Config{
		PathFinder: pathfinder.Config{
			MaxHops:       c.PathFinder.MaxHops,
			TopK:          c.PathFinder.TopK,
			MaxPaths:      c.PathFinder.MaxPaths,
			MaxCandidates: c.PathFinder.MaxCandidates,
			Workers:       c.PathFinder.Workers,
		},
		Optimizer: optimizer.Config{
			MaxIterations: c.Optimizer.MaxIterations,
			Tolerance:     tolerance,
		},
		Snapshot:  snapshot.Options{StableMaxIterations: c.StableMaxIterations},
		Timeout:   c.Timeout,
		CacheSize: c.CacheSize,
		Registry:  reg,
		Logger:    logger,
	}, nil
}
