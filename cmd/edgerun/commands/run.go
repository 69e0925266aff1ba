package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/edgerun/cmd/edgerun/handlers"
)

// Run returns the command that executes the whole pipeline.
//
// Environment variables:
//
//	HCLOUD_TOKEN: Hetzner Cloud API token (required)
//	AWS_*: standard AWS SDK credential and profile selection
func Run() *cobra.Command {
	var (
		flags       overrideFlags
		logFormat   string
		useTUI      bool
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the edge node and deploy the configured components",
		Long: `Run the deployment pipeline end to end.

The pipeline provisions the edge node and the artifact bucket, waits for the
node to finish bootstrapping, publishes every component bundle, installs the
Greengrass nucleus, submits the deployment and waits until the device applied
it and reports healthy.

Every stage is idempotent: running again after a failure picks up the
existing node, bucket and component versions.

Examples:
  # Run using edgerun.yaml in the current directory
  edgerun run

  # Deploy a new version of one component
  edgerun run --component-version com.example.Sensor=1.1.0

  # Machine-readable logs and a node-exporter textfile
  edgerun run --log-format json --metrics-file /var/lib/node_exporter/edgerun.prom`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides, err := flags.overrides()
			if err != nil {
				return err
			}
			return handlers.Run(cmd.Context(), handlers.RunOptions{
				ConfigPath:  flags.configPath,
				Overrides:   overrides,
				LogFormat:   logFormat,
				TUI:         useTUI,
				MetricsFile: metricsFile,
			})
		},
	}

	flags.bind(cmd)
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "Show a progress dashboard when attached to a terminal")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")

	return cmd
}
