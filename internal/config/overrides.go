package config

import (
	"fmt"
	"sort"
	"strings"
)

// Environment variables that override the configuration file.
const (
	EnvRegion            = "EDGERUN_REGION"
	EnvPrefix            = "EDGERUN_PREFIX"
	EnvServerType        = "EDGERUN_SERVER_TYPE"
	EnvComponentVersions = "EDGERUN_COMPONENT_VERSIONS"
	EnvHCloudToken       = "HCLOUD_TOKEN"
)

// Overrides are values supplied outside the configuration file.
// Empty fields leave the file value in place.
type Overrides struct {
	Region            string
	Prefix            string
	ServerType        string
	ComponentVersions map[string]string
}

// OverridesFromEnv reads overrides through getenv.
func OverridesFromEnv(getenv func(string) string) (Overrides, error) {
	versions, err := ParseComponentVersions(getenv(EnvComponentVersions))
	if err != nil {
		return Overrides{}, fmt.Errorf("%s: %w", EnvComponentVersions, err)
	}
	return Overrides{
		Region:            getenv(EnvRegion),
		Prefix:            getenv(EnvPrefix),
		ServerType:        getenv(EnvServerType),
		ComponentVersions: versions,
	}, nil
}

// ParseComponentVersions parses "name=version,name=version".
func ParseComponentVersions(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, version, ok := strings.Cut(pair, "=")
		name, version = strings.TrimSpace(name), strings.TrimSpace(version)
		if !ok || name == "" || version == "" {
			return nil, fmt.Errorf("invalid component version %q: expected name=version", pair)
		}
		out[name] = version
	}
	return out, nil
}

// Over returns o with every non-empty field of higher taking precedence.
func (o Overrides) Over(higher Overrides) Overrides {
	out := o
	if higher.Region != "" {
		out.Region = higher.Region
	}
	if higher.Prefix != "" {
		out.Prefix = higher.Prefix
	}
	if higher.ServerType != "" {
		out.ServerType = higher.ServerType
	}
	if len(higher.ComponentVersions) > 0 {
		merged := make(map[string]string, len(o.ComponentVersions)+len(higher.ComponentVersions))
		for k, v := range o.ComponentVersions {
			merged[k] = v
		}
		for k, v := range higher.ComponentVersions {
			merged[k] = v
		}
		out.ComponentVersions = merged
	}
	return out
}

// WithOverrides returns a copy of c with o applied. c is not modified.
// A version override for a component the file does not declare is an error.
func (c *Config) WithOverrides(o Overrides) (*Config, error) {
	out := c.Clone()
	if o.Region != "" {
		out.Region = o.Region
	}
	if o.Prefix != "" {
		out.Prefix = o.Prefix
	}
	if o.ServerType != "" {
		out.ServerType = o.ServerType
	}

	names := make([]string, 0, len(o.ComponentVersions))
	for name := range o.ComponentVersions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		comp := out.Component(name)
		if comp == nil {
			return nil, fmt.Errorf("version override for unknown component %q", name)
		}
		comp.Version = o.ComponentVersions[name]
	}
	return out, nil
}
