package greengrass

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2/types"
)

// InstalledComponent is a component as reported by a core device.
type InstalledComponent struct {
	Name    string
	Version string
	// State is the lifecycle state: NEW, INSTALLED, STARTING, RUNNING,
	// STOPPING, ERRORED, BROKEN or FINISHED.
	State  string
	Detail string
}

// Healthy reports whether the component is running or ran to completion.
func (ic InstalledComponent) Healthy() bool {
	return ic.State == string(types.InstalledComponentLifecycleStateRunning) ||
		ic.State == string(types.InstalledComponentLifecycleStateFinished)
}

// Broken reports whether the component stopped for good. The nucleus marks
// a component BROKEN after its lifecycle errored repeatedly.
func (ic InstalledComponent) Broken() bool {
	return ic.State == string(types.InstalledComponentLifecycleStateBroken)
}

// DeviceHealth is the reported health of a core device.
type DeviceHealth struct {
	ThingName string
	// Status is HEALTHY or UNHEALTHY. Empty when the device has not
	// registered with the control plane yet.
	Status     string
	Components []InstalledComponent
}

// Healthy reports whether the device is HEALTHY and every listed component
// is healthy.
func (h *DeviceHealth) Healthy() bool {
	if h.Status != string(types.CoreDeviceStatusHealthy) {
		return false
	}
	for _, ic := range h.Components {
		if !ic.Healthy() {
			return false
		}
	}
	return true
}

// Unhealthy returns "name=STATE" for every component that is not healthy.
func (h *DeviceHealth) Unhealthy() []string {
	var out []string
	for _, ic := range h.Components {
		if !ic.Healthy() {
			out = append(out, ic.Name+"="+ic.State)
		}
	}
	return out
}

// Summary renders the health on one line.
func (h *DeviceHealth) Summary() string {
	status := h.Status
	if status == "" {
		status = "UNREGISTERED"
	}
	if bad := h.Unhealthy(); len(bad) > 0 {
		return fmt.Sprintf("%s %s (%s)", h.ThingName, status, strings.Join(bad, ", "))
	}
	return fmt.Sprintf("%s %s", h.ThingName, status)
}

// CoreDeviceHealth returns the status of the core device and the root
// components installed on it. A device unknown to the control plane is
// returned with an empty status.
func (c *Client) CoreDeviceHealth(ctx context.Context, thingName string) (*DeviceHealth, error) {
	health := &DeviceHealth{ThingName: thingName}

	out, err := call(c, func() (*greengrassv2.GetCoreDeviceOutput, error) {
		return c.api.GetCoreDevice(ctx, &greengrassv2.GetCoreDeviceInput{
			CoreDeviceThingName: aws.String(thingName),
		})
	})
	if err != nil {
		if IsNotFound(err) {
			return health, nil
		}
		return nil, fmt.Errorf("failed to get core device %s: %w", thingName, err)
	}
	health.Status = string(out.Status)

	p := greengrassv2.NewListInstalledComponentsPaginator(breakerAPI{c}, &greengrassv2.ListInstalledComponentsInput{
		CoreDeviceThingName: aws.String(thingName),
		TopologyFilter:      types.InstalledComponentTopologyFilterRoot,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list components of %s: %w", thingName, err)
		}
		for _, ic := range page.InstalledComponents {
			health.Components = append(health.Components, InstalledComponent{
				Name:    aws.ToString(ic.ComponentName),
				Version: aws.ToString(ic.ComponentVersion),
				State:   string(ic.LifecycleState),
				Detail:  aws.ToString(ic.LifecycleStateDetails),
			})
		}
	}
	return health, nil
}
