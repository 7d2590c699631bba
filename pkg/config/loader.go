package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the expected YAML file inside the config directory.
const ConfigFileName = "worldengine.yaml"

// ErrConfigNotFound indicates the configuration file was not found.
var ErrConfigNotFound = errors.New("configuration file not found")

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Start from built-in defaults
//  2. Load worldengine.yaml from configDir when present
//  3. Expand {{.VAR}} environment references
//  4. Merge user YAML over defaults (non-zero values override)
//  5. Validate the result
//
// An empty configDir skips file loading and returns validated defaults.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	cfg := DefaultConfig()

	if configDir != "" {
		user, err := loadYAML(filepath.Join(configDir, ConfigFileName))
		if err != nil && !errors.Is(err, ErrConfigNotFound) {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if err == nil {
			if err := merge(cfg, user); err != nil {
				return nil, fmt.Errorf("failed to merge configuration: %w", err)
			}
		} else {
			log.Info("No configuration file found, using defaults")
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"event_store", cfg.EventStore.Backend,
		"port", cfg.Server.Port)
	return cfg, nil
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &cfg, nil
}

func merge(base, user *Config) error {
	mergeSection := func(dst, src any) error {
		return mergo.Merge(dst, src, mergo.WithOverride)
	}
	if user.Server != nil {
		if err := mergeSection(base.Server, user.Server); err != nil {
			return err
		}
	}
	if user.EventStore != nil {
		if err := mergeSection(base.EventStore, user.EventStore); err != nil {
			return err
		}
	}
	if user.Driver != nil {
		if err := mergeSection(base.Driver, user.Driver); err != nil {
			return err
		}
	}
	if user.LLM != nil {
		if err := mergeSection(base.LLM, user.LLM); err != nil {
			return err
		}
	}
	if user.Debate != nil {
		if err := mergeSection(base.Debate, user.Debate); err != nil {
			return err
		}
	}
	if user.Game != nil {
		if err := mergeSection(base.Game, user.Game); err != nil {
			return err
		}
	}
	if user.Society != nil {
		if err := mergeSection(base.Society, user.Society); err != nil {
			return err
		}
	}
	if user.Logic != nil {
		if err := mergeSection(base.Logic, user.Logic); err != nil {
			return err
		}
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if !cfg.EventStore.Backend.IsValid() {
		return fmt.Errorf("unknown event store backend %q", cfg.EventStore.Backend)
	}
	if cfg.EventStore.Backend == BackendRedis && cfg.EventStore.RedisURL == "" {
		return fmt.Errorf("redis backend requires redis_url")
	}
	if cfg.Driver.TickInterval.Std() <= 0 {
		return fmt.Errorf("driver tick_interval must be positive")
	}
	if cfg.Driver.ActionDeadline.Std() <= 0 {
		return fmt.Errorf("driver action_deadline must be positive")
	}
	if len(cfg.Game.CardSet) == 0 {
		return fmt.Errorf("game card_set must not be empty")
	}
	if cfg.Game.AttackDamage <= 0 || cfg.Game.HealAmount <= 0 || cfg.Game.InitialHP <= 0 {
		return fmt.Errorf("game damage, heal, and hp values must be positive")
	}
	if len(cfg.Society.WorkReward) != 3 || len(cfg.Society.ConflictResourceLoss) != 3 {
		return fmt.Errorf("society work_reward and conflict_resource_loss must list 3 intensities")
	}
	if cfg.Society.ShockInterval < 0 || cfg.Society.ShockAgentCount < 0 {
		return fmt.Errorf("society shock settings must not be negative")
	}
	if cfg.Society.ShockResourceMin > cfg.Society.ShockResourceMax {
		return fmt.Errorf("society shock_resource_min exceeds shock_resource_max")
	}
	if cfg.Society.ShockMoodMin > cfg.Society.ShockMoodMax {
		return fmt.Errorf("society shock_mood_min exceeds shock_mood_max")
	}
	if cfg.Debate.ConsecutiveSpeakLimit < 1 {
		return fmt.Errorf("debate consecutive_speak_limit must be at least 1")
	}
	if cfg.Debate.MaxSpeakRatio <= 0 || cfg.Debate.MaxSpeakRatio > 1 {
		return fmt.Errorf("debate max_speak_ratio must be in (0,1]")
	}
	if cfg.Logic.MaxRounds <= 0 {
		return fmt.Errorf("logic max_rounds must be positive")
	}
	return nil
}
