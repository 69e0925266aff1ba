package handlers

import (
	"context"
	"fmt"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/util/naming"
)

// StatusOptions are the inputs of the status command.
type StatusOptions struct {
	ConfigPath string
	Overrides  config.Overrides
}

// deviceHealthSource reports core device health.
type deviceHealthSource interface {
	CoreDeviceHealth(ctx context.Context, thingName string) (*greengrass.DeviceHealth, error)
}

// newHealthSource creates the Greengrass client used by status.
// It can be replaced in tests.
var newHealthSource = func(ctx context.Context, cfg *config.Config) (deviceHealthSource, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	return greengrass.NewFromConfig(awsCfg, ""), nil
}

// Status handles the status command.
//
// It prints the edge node as Hetzner Cloud reports it and the health of
// the core device and its components as Greengrass reports it.
func Status(ctx context.Context, opts StatusOptions) error {
	cfg, err := loadConfig(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return err
	}
	if err := requireToken(cfg); err != nil {
		return err
	}

	w := stdout
	infra := newInfraClient(cfg.HCloudToken, loadTimeouts())
	server, err := infra.GetServerByName(ctx, naming.Server(cfg.Prefix))
	if err != nil {
		return err
	}
	if server == nil {
		fmt.Fprintf(w, "Node:    %s not found\n", naming.Server(cfg.Prefix))
	} else {
		fmt.Fprintf(w, "Node:    %s (id %d, %s, %s)\n",
			server.Name, server.ID, server.Status, server.PublicNet.IPv4.IP)
	}

	src, err := newHealthSource(ctx, cfg)
	if err != nil {
		return err
	}
	health, err := src.CoreDeviceHealth(ctx, cfg.Greengrass.ThingName)
	if err != nil {
		return fmt.Errorf("failed to get device health: %w", err)
	}
	fmt.Fprintf(w, "Device:  %s\n", health.Summary())
	for _, ic := range health.Components {
		fmt.Fprintf(w, "  %-40s %-10s %s\n", ic.Name, ic.Version, ic.State)
	}
	return nil
}
