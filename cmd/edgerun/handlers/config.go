package handlers

import (
	"fmt"
	"os"

	"github.com/imamik/edgerun/internal/config"
)

const defaultConfigFile = "edgerun.yaml"

var (
	// loadConfigFile reads a configuration file.
	loadConfigFile = config.Load

	// getenv reads the process environment.
	getenv = os.Getenv
)

// loadConfig reads the configuration at path and applies overrides with
// the precedence flags > environment > file, then defaults. The Hetzner
// token always comes from the environment.
func loadConfig(path string, flags config.Overrides) (*config.Config, error) {
	if path == "" {
		path = defaultConfigFile
	}

	cfg, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	env, err := config.OverridesFromEnv(getenv)
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.WithOverrides(env.Over(flags))
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	cfg.HCloudToken = getenv(config.EnvHCloudToken)
	return cfg, nil
}

func requireToken(cfg *config.Config) error {
	if cfg.HCloudToken == "" {
		return fmt.Errorf("%s environment variable is required", config.EnvHCloudToken)
	}
	return nil
}
