package config

import (
	"time"
)

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "edgerun.yaml"

// Config is the complete description of one edge deployment.
type Config struct {
	// Prefix namespaces every resource this deployment owns.
	Prefix string `yaml:"prefix"`

	// Region is the Hetzner Cloud location of the edge node.
	Region string `yaml:"region"`

	// ServerType is the Hetzner server type (node size class).
	ServerType string `yaml:"server_type"`

	// Image is the operating system image for the node.
	Image string `yaml:"image"`

	// StateDir holds the generated SSH key pair and run artifacts.
	StateDir string `yaml:"state_dir,omitempty"`

	AWS        AWSConfig        `yaml:"aws"`
	Greengrass GreengrassConfig `yaml:"greengrass"`
	Readiness  ReadinessConfig  `yaml:"readiness"`
	Components []Component      `yaml:"components"`
	Deployment DeploymentConfig `yaml:"deployment"`

	// HCloudToken is read from HCLOUD_TOKEN, never from the file.
	HCloudToken string `yaml:"-"`
}

// AWSConfig locates the artifact store and the Greengrass control plane.
type AWSConfig struct {
	Region string `yaml:"region"`

	// Bucket overrides the derived artifact bucket name.
	Bucket string `yaml:"bucket,omitempty"`

	// Endpoint points the S3 client at an S3-compatible store.
	Endpoint string `yaml:"endpoint,omitempty"`
}

// GreengrassConfig controls the nucleus installation and device identity.
type GreengrassConfig struct {
	NucleusVersion string `yaml:"nucleus_version"`
	InstallRoot    string `yaml:"install_root"`

	// ServiceUser runs components on the device.
	ServiceUser string `yaml:"service_user"`

	// ExtraGroups are added to ServiceUser, e.g. video for camera access.
	ExtraGroups []string `yaml:"extra_groups,omitempty"`

	ThingName  string `yaml:"thing_name,omitempty"`
	ThingGroup string `yaml:"thing_group,omitempty"`
	RoleAlias  string `yaml:"role_alias,omitempty"`
}

// ReadinessConfig describes how the node signals bootstrap completion.
type ReadinessConfig struct {
	Marker  string `yaml:"marker"`
	SSHUser string `yaml:"ssh_user"`
	SSHPort int    `yaml:"ssh_port"`

	// SSHSources are the CIDRs allowed to reach SSH on the node. Empty
	// means the public address of the machine running edgerun.
	SSHSources []string `yaml:"ssh_sources,omitempty"`
}

// Component is one versioned bundle to publish and deploy.
type Component struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Recipe is the path to the recipe template (YAML or JSON).
	Recipe string `yaml:"recipe"`

	// Artifacts are local files uploaded next to the recipe, in order.
	Artifacts []string `yaml:"artifacts,omitempty"`

	// Merge is the configuration merge-patch sent with the deployment.
	Merge map[string]any `yaml:"merge,omitempty"`
}

// DeploymentConfig controls the control-plane deployment.
type DeploymentConfig struct {
	Name          string        `yaml:"name,omitempty"`
	Policy        FailurePolicy `yaml:"policy"`
	UpdateTimeout time.Duration `yaml:"update_timeout"`
}

// FailurePolicy is the control-plane behavior when a deployment fails.
type FailurePolicy string

const (
	PolicyRollback   FailurePolicy = "rollback"
	PolicyDoNothing  FailurePolicy = "do-nothing"
	PolicyNotifyOnly FailurePolicy = "notify-only"
)

// ValidPolicies returns all failure policies.
func ValidPolicies() []FailurePolicy {
	return []FailurePolicy{PolicyRollback, PolicyDoNothing, PolicyNotifyOnly}
}

// IsValid reports whether p is a known failure policy.
func (p FailurePolicy) IsValid() bool {
	switch p {
	case PolicyRollback, PolicyDoNothing, PolicyNotifyOnly:
		return true
	default:
		return false
	}
}

// Component returns the named component, or nil.
func (c *Config) Component(name string) *Component {
	for i := range c.Components {
		if c.Components[i].Name == name {
			return &c.Components[i]
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Greengrass.ExtraGroups = append([]string(nil), c.Greengrass.ExtraGroups...)
	out.Readiness.SSHSources = append([]string(nil), c.Readiness.SSHSources...)
	out.Components = make([]Component, len(c.Components))
	for i, comp := range c.Components {
		comp.Artifacts = append([]string(nil), comp.Artifacts...)
		if comp.Merge != nil {
			merge := make(map[string]any, len(comp.Merge))
			for k, v := range comp.Merge {
				merge[k] = v
			}
			comp.Merge = merge
		}
		out.Components[i] = comp
	}
	return &out
}
