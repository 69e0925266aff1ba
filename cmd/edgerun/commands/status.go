package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/edgerun/cmd/edgerun/handlers"
)

// Status returns the status command.
func Status() *cobra.Command {
	var flags overrideFlags

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the edge node and the health of its core device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			overrides, err := flags.overrides()
			if err != nil {
				return err
			}
			return handlers.Status(cmd.Context(), handlers.StatusOptions{
				ConfigPath: flags.configPath,
				Overrides:  overrides,
			})
		},
	}

	flags.bind(cmd)
	return cmd
}
