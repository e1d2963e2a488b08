// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the fabula binary reads from the environment.
type Config struct {
	// StoryDir is the directory scanned for .lua and .yaml scene files.
	StoryDir string `env:"FABULA_STORY_DIR" envDefault:"stories"`
	// StartScene is the scene key the session opens at.
	StartScene string `env:"FABULA_START_SCENE" envDefault:"start"`
	// SavePath is the SQLite file holding save slots.
	SavePath string `env:"FABULA_SAVE_PATH" envDefault:"fabula.db"`
	// SaveSlot is the default slot used by the save and load commands.
	SaveSlot string `env:"FABULA_SAVE_SLOT" envDefault:"auto"`

	OTELEnabled  bool   `env:"FABULA_OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint string `env:"FABULA_OTEL_ENDPOINT" envDefault:"localhost:4318"`
}

// Load parses a Config from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
// Plugins with their own settings structs use this directly.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
