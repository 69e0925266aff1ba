// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/imamik/edgerun/internal/config"
)

// Root returns the root command for the edgerun CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "edgerun",
		Short:         "Provision an edge node and deploy Greengrass components to it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(Init())
	cmd.AddCommand(Run())
	cmd.AddCommand(Status())
	cmd.AddCommand(Destroy())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// overrideFlags are the flags every command that loads a configuration
// accepts. They take precedence over the environment and the file.
type overrideFlags struct {
	configPath string
	region     string
	prefix     string
	serverType string
	versions   []string
}

func (f *overrideFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (default: edgerun.yaml)")
	cmd.Flags().StringVar(&f.region, "region", "", "Hetzner Cloud location of the edge node (env "+config.EnvRegion+")")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "Resource name prefix (env "+config.EnvPrefix+")")
	cmd.Flags().StringVar(&f.serverType, "server-type", "", "Hetzner server type (env "+config.EnvServerType+")")
	cmd.Flags().StringSliceVar(&f.versions, "component-version", nil, "Override a component version as name=version (repeatable)")
}

func (f *overrideFlags) overrides() (config.Overrides, error) {
	o := config.Overrides{
		Region:     f.region,
		Prefix:     f.prefix,
		ServerType: f.serverType,
	}
	if len(f.versions) > 0 {
		parsed, err := config.ParseComponentVersions(strings.Join(f.versions, ","))
		if err != nil {
			return config.Overrides{}, err
		}
		o.ComponentVersions = parsed
	}
	return o, nil
}
