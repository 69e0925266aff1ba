package greengrass

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2/types"
)

// ComponentSpec pins one component of a deployment.
type ComponentSpec struct {
	Version string
	// Merge is merged into the component's default configuration.
	Merge map[string]any
}

// DeploymentRequest describes a deployment to a thing or thing group.
type DeploymentRequest struct {
	Name       string
	TargetARN  string
	Components map[string]ComponentSpec
	// Rollback restores the previous configuration on the device when the
	// deployment fails. Without it the device keeps what was applied.
	Rollback bool
	// NotifyComponents lets running components defer the update.
	NotifyComponents bool
	UpdateTimeout    time.Duration
}

// CreateDeployment submits req and returns the deployment ID.
func (c *Client) CreateDeployment(ctx context.Context, req DeploymentRequest) (string, error) {
	input, err := buildDeploymentInput(req)
	if err != nil {
		return "", err
	}
	out, err := call(c, func() (*greengrassv2.CreateDeploymentOutput, error) {
		return c.api.CreateDeployment(ctx, input)
	})
	if err != nil {
		return "", fmt.Errorf("failed to create deployment for %s: %w", req.TargetARN, err)
	}
	id := aws.ToString(out.DeploymentId)
	if id == "" {
		return "", fmt.Errorf("create deployment for %s returned no deployment id", req.TargetARN)
	}
	return id, nil
}

func buildDeploymentInput(req DeploymentRequest) (*greengrassv2.CreateDeploymentInput, error) {
	components := make(map[string]types.ComponentDeploymentSpecification, len(req.Components))
	for name, spec := range req.Components {
		cds := types.ComponentDeploymentSpecification{
			ComponentVersion: aws.String(spec.Version),
		}
		if len(spec.Merge) > 0 {
			merge, err := json.Marshal(spec.Merge)
			if err != nil {
				return nil, fmt.Errorf("component %s: invalid configuration merge: %w", name, err)
			}
			cds.ConfigurationUpdate = &types.ComponentConfigurationUpdate{
				Merge: aws.String(string(merge)),
			}
		}
		components[name] = cds
	}

	failure := types.DeploymentFailureHandlingPolicyDoNothing
	if req.Rollback {
		failure = types.DeploymentFailureHandlingPolicyRollback
	}
	action := types.DeploymentComponentUpdatePolicyActionSkipNotifyComponents
	if req.NotifyComponents {
		action = types.DeploymentComponentUpdatePolicyActionNotifyComponents
	}
	updatePolicy := &types.DeploymentComponentUpdatePolicy{Action: action}
	if req.UpdateTimeout > 0 {
		secs := math.Ceil(req.UpdateTimeout.Seconds())
		updatePolicy.TimeoutInSeconds = aws.Int32(int32(min(secs, math.MaxInt32)))
	}

	input := &greengrassv2.CreateDeploymentInput{
		TargetArn:  aws.String(req.TargetARN),
		Components: components,
		DeploymentPolicies: &types.DeploymentPolicies{
			FailureHandlingPolicy: failure,
			ComponentUpdatePolicy: updatePolicy,
		},
	}
	if req.Name != "" {
		input.DeploymentName = aws.String(req.Name)
	}
	return input, nil
}

// Deployment is the control plane's view of a deployment.
type Deployment struct {
	ID        string
	Name      string
	TargetARN string
	// Status is the deployment job status (ACTIVE, COMPLETED, CANCELED,
	// FAILED, INACTIVE), not the per-device outcome.
	Status     string
	Components []string
	Created    time.Time
}

// GetDeployment returns the deployment with the given ID.
func (c *Client) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	out, err := call(c, func() (*greengrassv2.GetDeploymentOutput, error) {
		return c.api.GetDeployment(ctx, &greengrassv2.GetDeploymentInput{DeploymentId: aws.String(id)})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment %s: %w", id, err)
	}
	components := make([]string, 0, len(out.Components))
	for name, spec := range out.Components {
		components = append(components, name+"@"+aws.ToString(spec.ComponentVersion))
	}
	sort.Strings(components)
	return &Deployment{
		ID:         aws.ToString(out.DeploymentId),
		Name:       aws.ToString(out.DeploymentName),
		TargetARN:  aws.ToString(out.TargetArn),
		Status:     string(out.DeploymentStatus),
		Components: components,
		Created:    aws.ToTime(out.CreationTimestamp),
	}, nil
}

// EffectiveDeployment is a deployment as executed by one core device.
type EffectiveDeployment struct {
	DeploymentID string
	TargetARN    string
	// Status is the device execution status: QUEUED, IN_PROGRESS,
	// SUCCEEDED, COMPLETED, FAILED, TIMED_OUT, CANCELED or REJECTED.
	Status     types.EffectiveDeploymentExecutionStatus
	Reason     string
	ErrorTypes []string
	ErrorStack []string
	Modified   time.Time
}

// Succeeded reports whether the device applied the deployment.
func (d *EffectiveDeployment) Succeeded() bool {
	return d.Status == types.EffectiveDeploymentExecutionStatusSucceeded ||
		d.Status == types.EffectiveDeploymentExecutionStatusCompleted
}

// Failed reports whether the device gave up on the deployment.
func (d *EffectiveDeployment) Failed() bool {
	switch d.Status {
	case types.EffectiveDeploymentExecutionStatusFailed,
		types.EffectiveDeploymentExecutionStatusTimedOut,
		types.EffectiveDeploymentExecutionStatusCanceled,
		types.EffectiveDeploymentExecutionStatusRejected:
		return true
	}
	return false
}

// RollbackComplete reports whether the device says it restored the previous
// deployment after this one failed.
func (d *EffectiveDeployment) RollbackComplete() bool {
	if strings.Contains(strings.ToUpper(d.Reason), "ROLLBACK_COMPLETE") {
		return true
	}
	for _, t := range d.ErrorTypes {
		if strings.Contains(strings.ToUpper(t), "ROLLBACK_COMPLETE") {
			return true
		}
	}
	return false
}

// Detail summarizes why the device is in its current status.
func (d *EffectiveDeployment) Detail() string {
	parts := make([]string, 0, 2)
	if d.Reason != "" {
		parts = append(parts, d.Reason)
	}
	if len(d.ErrorStack) > 0 {
		parts = append(parts, strings.Join(d.ErrorStack, " -> "))
	}
	return strings.Join(parts, ": ")
}

// EffectiveDeployment returns the device's execution of deploymentID, or
// nil if the device has not picked it up yet.
func (c *Client) EffectiveDeployment(ctx context.Context, thingName, deploymentID string) (*EffectiveDeployment, error) {
	var found *EffectiveDeployment
	p := greengrassv2.NewListEffectiveDeploymentsPaginator(breakerAPI{c}, &greengrassv2.ListEffectiveDeploymentsInput{
		CoreDeviceThingName: aws.String(thingName),
	})
	for p.HasMorePages() && found == nil {
		page, err := p.NextPage(ctx)
		if err != nil {
			if IsNotFound(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to list effective deployments of %s: %w", thingName, err)
		}
		for _, ed := range page.EffectiveDeployments {
			if aws.ToString(ed.DeploymentId) != deploymentID {
				continue
			}
			found = &EffectiveDeployment{
				DeploymentID: deploymentID,
				TargetARN:    aws.ToString(ed.TargetArn),
				Status:       ed.CoreDeviceExecutionStatus,
				Reason:       aws.ToString(ed.Reason),
				Modified:     aws.ToTime(ed.ModifiedTimestamp),
			}
			if ed.StatusDetails != nil {
				found.ErrorTypes = ed.StatusDetails.ErrorTypes
				found.ErrorStack = ed.StatusDetails.ErrorStack
			}
			break
		}
	}
	return found, nil
}
