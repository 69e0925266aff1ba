package config

import (
	"errors"
	"fmt"
	"net"
	"path"
	"regexp"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// ValidLocations contains all valid Hetzner Cloud datacenter locations.
// https://docs.hetzner.com/cloud/general/locations/
var ValidLocations = map[string]bool{
	"nbg1": true, // Nuremberg, Germany
	"fsn1": true, // Falkenstein, Germany
	"hel1": true, // Helsinki, Finland
	"ash":  true, // Ashburn, USA
	"hil":  true, // Hillsboro, USA
	"sin":  true, // Singapore
}

var (
	prefixRegex        = regexp.MustCompile(`^[a-z](?:[a-z0-9-]{0,22}[a-z0-9])?$`)
	componentNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
)

// Validate checks the configuration and reports every problem it finds.
func (c *Config) Validate() error {
	var errs []error

	if c.Prefix == "" {
		errs = append(errs, errors.New("prefix is required"))
	} else if !prefixRegex.MatchString(c.Prefix) {
		errs = append(errs, fmt.Errorf("prefix %q must be 1-24 lowercase alphanumeric characters or hyphens, starting with a letter", c.Prefix))
	}

	if !ValidLocations[c.Region] {
		errs = append(errs, fmt.Errorf("invalid region %q: must be one of %v", c.Region, getMapKeys(ValidLocations)))
	}
	if c.ServerType == "" {
		errs = append(errs, errors.New("server_type is required"))
	}
	if c.AWS.Region == "" {
		errs = append(errs, errors.New("aws.region is required"))
	}

	if c.Readiness.Marker == "" || !path.IsAbs(c.Readiness.Marker) {
		errs = append(errs, fmt.Errorf("readiness.marker %q must be an absolute path", c.Readiness.Marker))
	}
	if c.Readiness.SSHPort < 1 || c.Readiness.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("readiness.ssh_port %d out of range", c.Readiness.SSHPort))
	}
	for _, cidr := range c.Readiness.SSHSources {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("readiness.ssh_sources: %w", err))
		}
	}

	errs = append(errs, c.validateComponents()...)

	if !c.Deployment.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("deployment.policy %q must be one of %v", c.Deployment.Policy, ValidPolicies()))
	}
	if c.Deployment.UpdateTimeout <= 0 {
		errs = append(errs, errors.New("deployment.update_timeout must be positive"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateComponents() []error {
	if len(c.Components) == 0 {
		return []error{errors.New("at least one component is required")}
	}

	var errs []error
	seen := make(map[string]bool, len(c.Components))
	for i, comp := range c.Components {
		field := fmt.Sprintf("components[%d]", i)
		if !componentNameRegex.MatchString(comp.Name) {
			errs = append(errs, fmt.Errorf("%s.name %q is invalid", field, comp.Name))
		}
		if seen[comp.Name] {
			errs = append(errs, fmt.Errorf("%s.name %q is duplicated", field, comp.Name))
		}
		seen[comp.Name] = true

		if err := ValidateVersion(comp.Version); err != nil {
			errs = append(errs, fmt.Errorf("%s.version: %w", field, err))
		}
		if comp.Recipe == "" {
			errs = append(errs, fmt.Errorf("%s.recipe is required", field))
		}
	}
	return errs
}

// ValidateVersion requires a strict MAJOR.MINOR.PATCH semantic version,
// which is what the control plane accepts for component versions.
func ValidateVersion(v string) error {
	if v == "" {
		return errors.New("version is required")
	}
	if _, err := semver.StrictNewVersion(v); err != nil {
		return fmt.Errorf("version %q is not a valid semantic version: %w", v, err)
	}
	return nil
}

func getMapKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
