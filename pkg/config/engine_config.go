// Package config provides configuration loading for the workflow engine
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file omits a value.
const (
	DefaultLockTTL          = 30 * time.Minute
	DefaultHeartbeatExtend  = 30 * time.Minute
	DefaultSweeperSchedule  = "*/5 * * * *"
	DefaultSweeperRetention = 24 * time.Hour
)

// EngineConfigFile represents the structure of the engine.yaml file
type EngineConfigFile struct {
	Lock    LockConfigFile    `yaml:"lock"`
	Sweeper SweeperConfigFile `yaml:"sweeper"`
}

// LockConfigFile holds the edit lock timing knobs in the YAML file
type LockConfigFile struct {
	TTL             string `yaml:"ttl"`
	HeartbeatExtend string `yaml:"heartbeat_extend"`
}

// SweeperConfigFile holds the expired lock sweeper knobs in the YAML file
type SweeperConfigFile struct {
	Schedule  string `yaml:"schedule"`
	Retention string `yaml:"retention"`
}

// EngineConfig is the parsed, validated engine configuration.
type EngineConfig struct {
	// LockTTL is how long an acquired edit lock stays live without a
	// heartbeat.
	LockTTL time.Duration

	// HeartbeatExtend is how far past the heartbeat time the expiry moves.
	HeartbeatExtend time.Duration

	// SweeperSchedule is the cron expression for the expired lock sweeper.
	SweeperSchedule string

	// SweeperRetention is how long expired lock rows are kept before the
	// sweeper deletes them. Expiry itself is lazy; the sweeper is hygiene.
	SweeperRetention time.Duration
}

// LoadEngineConfig loads engine configuration from a YAML file
func LoadEngineConfig(filepath string) (EngineConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile EngineConfigFile
	if err := yaml.Unmarshal(data, &configFile); err != nil {
		return EngineConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config := DefaultEngineConfig()

	if configFile.Lock.TTL != "" {
		config.LockTTL, err = time.ParseDuration(configFile.Lock.TTL)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("failed to parse lock.ttl: %w", err)
		}
	}

	if configFile.Lock.HeartbeatExtend != "" {
		config.HeartbeatExtend, err = time.ParseDuration(configFile.Lock.HeartbeatExtend)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("failed to parse lock.heartbeat_extend: %w", err)
		}
	}

	if configFile.Sweeper.Schedule != "" {
		config.SweeperSchedule = configFile.Sweeper.Schedule
	}

	if configFile.Sweeper.Retention != "" {
		config.SweeperRetention, err = time.ParseDuration(configFile.Sweeper.Retention)
		if err != nil {
			return EngineConfig{}, fmt.Errorf("failed to parse sweeper.retention: %w", err)
		}
	}

	if err := ValidateEngineConfig(config); err != nil {
		return EngineConfig{}, err
	}

	return config, nil
}

// LoadEngineConfigOrDefault attempts to load engine config from file,
// falling back to the default configuration if the file doesn't exist
func LoadEngineConfigOrDefault(filepath string) EngineConfig {
	config, err := LoadEngineConfig(filepath)
	if err != nil {
		return DefaultEngineConfig()
	}

	return config
}

// DefaultEngineConfig returns the built-in defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LockTTL:          DefaultLockTTL,
		HeartbeatExtend:  DefaultHeartbeatExtend,
		SweeperSchedule:  DefaultSweeperSchedule,
		SweeperRetention: DefaultSweeperRetention,
	}
}

// ValidateEngineConfig validates the engine configuration
func ValidateEngineConfig(config EngineConfig) error {
	if config.LockTTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %s", config.LockTTL)
	}

	if config.HeartbeatExtend <= 0 {
		return fmt.Errorf("lock.heartbeat_extend must be positive, got %s", config.HeartbeatExtend)
	}

	if config.SweeperSchedule == "" {
		return fmt.Errorf("sweeper.schedule is required")
	}

	if config.SweeperRetention < 0 {
		return fmt.Errorf("sweeper.retention must not be negative, got %s", config.SweeperRetention)
	}

	return nil
}
