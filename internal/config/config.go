package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// Settings are process-level knobs read from the environment. Everything a
// session or the drain coordinator consumes lives in Config instead.
type Settings struct {
	ConfigPath   string `envconfig:"CONFIG_PATH" default:"config.json"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"data/webssh.db"`
}

var Cfg Settings

func LoadSettings() {
	if err := envconfig.Process("WEBSSH", &Cfg); err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}
}
