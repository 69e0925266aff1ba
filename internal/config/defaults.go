package config

import (
	"time"

	"github.com/imamik/edgerun/internal/util/naming"
)

// Defaults applied when the file leaves a field empty.
const (
	DefaultRegion         = "fsn1"
	DefaultPrefix         = "edgerun"
	DefaultServerType     = "cx22"
	DefaultImage          = "ubuntu-24.04"
	DefaultStateDir       = ".edgerun"
	DefaultAWSRegion      = "eu-central-1"
	DefaultNucleusVersion = "latest"
	DefaultInstallRoot    = "/greengrass/v2"
	DefaultServiceUser    = "ggc_user"
	DefaultMarker         = "/var/lib/cloud/instance/boot-finished"
	DefaultSSHUser        = "root"
	DefaultSSHPort        = 22
	DefaultUpdateTimeout  = 60 * time.Second
)

// ApplyDefaults fills every empty field. Identity names derive from the
// prefix, so overrides must be applied before defaults.
func (c *Config) ApplyDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.ServerType == "" {
		c.ServerType = DefaultServerType
	}
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.AWS.Region == "" {
		c.AWS.Region = DefaultAWSRegion
	}

	gg := &c.Greengrass
	if gg.NucleusVersion == "" {
		gg.NucleusVersion = DefaultNucleusVersion
	}
	if gg.InstallRoot == "" {
		gg.InstallRoot = DefaultInstallRoot
	}
	if gg.ServiceUser == "" {
		gg.ServiceUser = DefaultServiceUser
	}
	if gg.ExtraGroups == nil {
		gg.ExtraGroups = []string{"video"}
	}
	if gg.ThingName == "" {
		gg.ThingName = naming.Thing(c.Prefix)
	}
	if gg.ThingGroup == "" {
		gg.ThingGroup = naming.ThingGroup(c.Prefix)
	}
	if gg.RoleAlias == "" {
		gg.RoleAlias = naming.RoleAlias(c.Prefix)
	}

	if c.Readiness.Marker == "" {
		c.Readiness.Marker = DefaultMarker
	}
	if c.Readiness.SSHUser == "" {
		c.Readiness.SSHUser = DefaultSSHUser
	}
	if c.Readiness.SSHPort == 0 {
		c.Readiness.SSHPort = DefaultSSHPort
	}

	if c.Deployment.Name == "" {
		c.Deployment.Name = naming.Deployment(c.Prefix)
	}
	if c.Deployment.Policy == "" {
		c.Deployment.Policy = PolicyRollback
	}
	if c.Deployment.UpdateTimeout == 0 {
		c.Deployment.UpdateTimeout = DefaultUpdateTimeout
	}
}
