package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/edgerun/cmd/edgerun/handlers"
)

// Destroy returns the destroy command.
func Destroy() *cobra.Command {
	var (
		flags        overrideFlags
		deleteBucket bool
		logFormat    string
	)

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Remove the edge node and its firewall and SSH key",
		Long: `Destroy removes the resources edgerun created on Hetzner Cloud:
  - the edge node server
  - its firewall
  - its SSH key
  - anything else labelled with the deployment prefix

The artifact bucket is kept unless --delete-bucket is given. Greengrass
component versions and the thing registration are never removed.

Example:
  edgerun destroy -c edgerun.yaml --delete-bucket`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides, err := flags.overrides()
			if err != nil {
				return err
			}
			return handlers.Destroy(cmd.Context(), handlers.DestroyOptions{
				ConfigPath:   flags.configPath,
				Overrides:    overrides,
				DeleteBucket: deleteBucket,
				LogFormat:    logFormat,
			})
		},
	}

	flags.bind(cmd)
	cmd.Flags().BoolVar(&deleteBucket, "delete-bucket", false, "Also empty and delete the artifact bucket")
	cmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	return cmd
}
