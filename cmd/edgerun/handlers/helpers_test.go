package handlers

import (
	"bytes"
	"testing"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/platform/hcloud"
)

func baseConfig() *config.Config {
	return &config.Config{
		Prefix: "edge",
		Region: "fsn1",
		AWS:    config.AWSConfig{Region: "eu-central-1"},
		Components: []config.Component{{
			Name:    "com.example.Sensor",
			Version: "1.0.0",
			Recipe:  "recipe.yaml",
		}},
	}
}

// stubEnvironment replaces the configuration, environment and output
// seams for one test.
func stubEnvironment(t *testing.T, cfg *config.Config, env map[string]string) *bytes.Buffer {
	t.Helper()
	origLoad, origGetenv, origStdout, origTimeouts := loadConfigFile, getenv, stdout, loadTimeouts
	origInfra := newInfraClient
	t.Cleanup(func() {
		loadConfigFile, getenv, stdout, loadTimeouts = origLoad, origGetenv, origStdout, origTimeouts
		newInfraClient = origInfra
	})

	loadConfigFile = func(string) (*config.Config, error) { return cfg.Clone(), nil }
	getenv = func(k string) string { return env[k] }
	loadTimeouts = config.TestTimeouts
	out := &bytes.Buffer{}
	stdout = out
	return out
}

func stubInfra(t *testing.T, mock *hcloud.MockClient) {
	t.Helper()
	newInfraClient = func(string, *config.Timeouts) hcloud.InfrastructureManager { return mock }
}
