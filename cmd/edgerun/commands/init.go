package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/edgerun/cmd/edgerun/handlers"
)

// Init returns the command for interactively creating a configuration.
func Init() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively create a configuration file",
		Long: `Interactively create an edgerun configuration file.

The wizard asks for the resource prefix, the node location and size, the
AWS region and a first component with its recipe and artifacts. Everything
else gets a default that can be edited in the written file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), outputPath)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "edgerun.yaml", "Output file path")

	return cmd
}
