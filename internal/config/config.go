package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Loop    LoopConfig
	Redis   RedisConfig
	Logging LoggingConfig
	Demo    DemoConfig
}

// LoopConfig holds game loop pacing configuration
type LoopConfig struct {
	TargetFPS       int // ticks per second Run aims for
	MaxUpdates      int // caps Update.Delta at 1s/MaxUpdates
	MaxHighPerTick  int // bound on the High lane drain in one tick
	QueueCapacity   int // Normal/Low lane capacity, 0 for unbounded
	StatsEveryTicks int // 0 disables loop stats
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	URL      string // Optional: metrics stay in memory when empty
	LogLimit int64
}

// LoggingConfig holds logging sink configuration
type LoggingConfig struct {
	MinLevel string
}

// DemoConfig holds settings for the demo binary
type DemoConfig struct {
	Factions []uint32
	Duration time.Duration // 0 runs until signalled
}

// DefaultLoopConfig returns the loop settings used when nothing is configured
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TargetFPS:       60,
		MaxUpdates:      60,
		MaxHighPerTick:  1024,
		QueueCapacity:   0,
		StatsEveryTicks: 60,
	}
}

// FrameBudget returns the wall time of one tick at TargetFPS
func (c LoopConfig) FrameBudget() time.Duration {
	if c.TargetFPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.TargetFPS)
}

// MaxDelta returns the largest Update.Delta in seconds
func (c LoopConfig) MaxDelta() float32 {
	if c.MaxUpdates <= 0 {
		return 1
	}
	return 1 / float32(c.MaxUpdates)
}

// Validate checks the loop settings
func (c LoopConfig) Validate() error {
	if c.TargetFPS <= 0 {
		return fmt.Errorf("LOOP_TARGET_FPS must be positive, got %d", c.TargetFPS)
	}
	if c.MaxUpdates <= 0 {
		return fmt.Errorf("LOOP_MAX_UPDATES must be positive, got %d", c.MaxUpdates)
	}
	if c.MaxHighPerTick <= 0 {
		return fmt.Errorf("LOOP_MAX_HIGH_PER_TICK must be positive, got %d", c.MaxHighPerTick)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("LOOP_QUEUE_CAPACITY cannot be negative, got %d", c.QueueCapacity)
	}
	if c.StatsEveryTicks < 0 {
		return fmt.Errorf("LOOP_STATS_EVERY_TICKS cannot be negative, got %d", c.StatsEveryTicks)
	}
	return nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	defaults := DefaultLoopConfig()

	var err error
	cfg := &Config{}

	if cfg.Loop.TargetFPS, err = getEnvAsIntOrDefault("LOOP_TARGET_FPS", defaults.TargetFPS); err != nil {
		return nil, err
	}
	if cfg.Loop.MaxUpdates, err = getEnvAsIntOrDefault("LOOP_MAX_UPDATES", defaults.MaxUpdates); err != nil {
		return nil, err
	}
	if cfg.Loop.MaxHighPerTick, err = getEnvAsIntOrDefault("LOOP_MAX_HIGH_PER_TICK", defaults.MaxHighPerTick); err != nil {
		return nil, err
	}
	if cfg.Loop.QueueCapacity, err = getEnvAsIntOrDefault("LOOP_QUEUE_CAPACITY", defaults.QueueCapacity); err != nil {
		return nil, err
	}
	if cfg.Loop.StatsEveryTicks, err = getEnvAsIntOrDefault("LOOP_STATS_EVERY_TICKS", defaults.StatsEveryTicks); err != nil {
		return nil, err
	}
	if err := cfg.Loop.Validate(); err != nil {
		return nil, err
	}

	cfg.Redis.URL = os.Getenv("REDIS_URL")
	logLimit, err := getEnvAsIntOrDefault("REDIS_LOG_LIMIT", 500)
	if err != nil {
		return nil, err
	}
	if logLimit <= 0 {
		return nil, fmt.Errorf("REDIS_LOG_LIMIT must be positive, got %d", logLimit)
	}
	cfg.Redis.LogLimit = int64(logLimit)

	cfg.Logging.MinLevel = getEnvOrDefault("LOG_MIN_LEVEL", "info")

	if cfg.Demo.Factions, err = parseFactions(getEnvOrDefault("DEMO_FACTIONS", "1,2,3")); err != nil {
		return nil, err
	}
	if value := os.Getenv("DEMO_DURATION"); value != "" && value != "0" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid DEMO_DURATION %q: %w", value, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("DEMO_DURATION cannot be negative, got %s", d)
		}
		cfg.Demo.Duration = d
	}

	return cfg, nil
}

func parseFactions(value string) ([]uint32, error) {
	var factions []uint32
	seen := make(map[uint32]bool)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid faction id %q in DEMO_FACTIONS: %w", part, err)
		}
		if seen[uint32(id)] {
			return nil, fmt.Errorf("duplicate faction id %d in DEMO_FACTIONS", id)
		}
		seen[uint32(id)] = true
		factions = append(factions, uint32(id))
	}
	if len(factions) == 0 {
		return nil, fmt.Errorf("DEMO_FACTIONS must name at least one faction")
	}
	return factions, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return intValue, nil
}
