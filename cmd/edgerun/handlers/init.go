package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/imamik/edgerun/internal/config"
)

// Factory function variables for init - can be replaced in tests.
var (
	// fileExists checks if a file exists.
	fileExists = func(path string) bool {
		_, err := os.Stat(path)
		return err == nil
	}

	// runWizard runs the interactive questionnaire.
	runWizard = config.RunWizard

	// writeConfig writes the config to a file.
	writeConfig = config.Save
)

// Init runs the configuration wizard and writes the result to a file.
func Init(ctx context.Context, outputPath string) error {
	if fileExists(outputPath) {
		fmt.Fprintf(stdout, "Warning: %s already exists and will be overwritten.\n\n", outputPath)
	}

	result, err := runWizard(ctx)
	if err != nil {
		return err
	}

	cfg := result.ToConfig()
	if err := writeConfig(cfg, outputPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printInitSuccess(outputPath, cfg)
	return nil
}

func printInitSuccess(outputPath string, cfg *config.Config) {
	w := stdout
	fmt.Fprintln(w, "Configuration saved!")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  File:        %s\n", outputPath)
	fmt.Fprintf(w, "  Prefix:      %s\n", cfg.Prefix)
	fmt.Fprintf(w, "  Node:        %s in %s\n", cfg.ServerType, cfg.Region)
	fmt.Fprintf(w, "  AWS region:  %s\n", cfg.AWS.Region)
	for _, c := range cfg.Components {
		fmt.Fprintf(w, "  Component:   %s %s\n", c.Name, c.Version)
	}
	fmt.Fprintf(w, "  On failure:  %s\n", cfg.Deployment.Policy)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next Steps")
	fmt.Fprintln(w, "----------")
	fmt.Fprintln(w, "  1. Set your Hetzner Cloud API token and AWS credentials:")
	fmt.Fprintln(w, "     export HCLOUD_TOKEN=<your-token>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  2. Deploy:")
	fmt.Fprintf(w, "     edgerun run -c %s\n", outputPath)
}
