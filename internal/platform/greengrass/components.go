package greengrass

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2"
	"github.com/aws/aws-sdk-go-v2/service/greengrassv2/types"
)

// Registration is the result of registering a component version.
type Registration struct {
	ARN string
	// Existing is set when the version was already registered.
	Existing bool
}

// RegisterComponent registers a component version from an inline recipe.
// A version that is already registered is reported as Existing, not as an
// error: component versions are immutable in Greengrass.
func (c *Client) RegisterComponent(ctx context.Context, recipe []byte) (*Registration, error) {
	out, err := call(c, func() (*greengrassv2.CreateComponentVersionOutput, error) {
		return c.api.CreateComponentVersion(ctx, &greengrassv2.CreateComponentVersionInput{
			InlineRecipe: recipe,
		})
	})
	if err != nil {
		if IsConflict(err) {
			return &Registration{Existing: true}, nil
		}
		return nil, fmt.Errorf("failed to register component version: %w", err)
	}
	return &Registration{ARN: aws.ToString(out.Arn)}, nil
}

// RegisteredVersion is a component version the control plane already holds.
type RegisteredVersion struct {
	ARN string
	// Digests maps each artifact URI of the stored recipe to the digest the
	// control plane recorded for it.
	Digests map[string]string
}

// LookupComponentVersion returns the stored version of a private component,
// or nil when that version is not registered.
func (c *Client) LookupComponentVersion(ctx context.Context, name, version string) (*RegisteredVersion, error) {
	componentARN, err := c.componentARN(ctx, name)
	if err != nil || componentARN == "" {
		return nil, err
	}

	versionARN := componentARN + ":versions:" + version
	out, err := call(c, func() (*greengrassv2.GetComponentOutput, error) {
		return c.api.GetComponent(ctx, &greengrassv2.GetComponentInput{
			Arn:                aws.String(versionARN),
			RecipeOutputFormat: types.RecipeOutputFormatJson,
		})
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get component %s@%s: %w", name, version, err)
	}

	var stored struct {
		Manifests []struct {
			Artifacts []struct {
				URI    string `json:"URI"`
				Digest string `json:"Digest"`
			} `json:"Artifacts"`
		} `json:"Manifests"`
	}
	if err := json.Unmarshal(out.Recipe, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode stored recipe of %s@%s: %w", name, version, err)
	}
	rv := &RegisteredVersion{ARN: versionARN, Digests: map[string]string{}}
	for _, m := range stored.Manifests {
		for _, a := range m.Artifacts {
			rv.Digests[a.URI] = a.Digest
		}
	}
	return rv, nil
}

// componentARN finds the ARN of a private component by name. It returns ""
// when no such component exists.
func (c *Client) componentARN(ctx context.Context, name string) (string, error) {
	p := greengrassv2.NewListComponentsPaginator(breakerAPI{c}, &greengrassv2.ListComponentsInput{
		Scope: types.ComponentVisibilityScopePrivate,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list components: %w", err)
		}
		for _, comp := range page.Components {
			if aws.ToString(comp.ComponentName) == name {
				return aws.ToString(comp.Arn), nil
			}
		}
	}
	return "", nil
}
