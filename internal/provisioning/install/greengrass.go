package install

import (
	"fmt"
	"path"

	"github.com/Masterminds/semver/v3"
	"github.com/kballard/go-shellquote"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/util/retry"
)

// ServiceName is the system service the nucleus installer sets up.
const ServiceName = "greengrass"

const (
	nucleusBaseURL = "https://d2s8p88vqu9w66.cloudfront.net/releases/"
	installerDir   = "/tmp/GreengrassInstaller"
	installerZip   = "/tmp/greengrass-nucleus.zip"
)

// Options describe the nucleus installation.
type Options struct {
	// NucleusVersion is "latest" or a semantic version.
	NucleusVersion string
	InstallRoot    string
	ServiceUser    string
	ExtraGroups    []string

	AWSRegion  string
	ThingName  string
	ThingGroup string
	RoleAlias  string

	// Env carries the credentials the installer provisions the device
	// identity with.
	Env map[string]string
}

// OptionsFromConfig derives installation options from cfg.
func OptionsFromConfig(cfg *config.Config, env map[string]string) Options {
	return Options{
		NucleusVersion: cfg.Greengrass.NucleusVersion,
		InstallRoot:    cfg.Greengrass.InstallRoot,
		ServiceUser:    cfg.Greengrass.ServiceUser,
		ExtraGroups:    append([]string(nil), cfg.Greengrass.ExtraGroups...),
		AWSRegion:      cfg.AWS.Region,
		ThingName:      cfg.Greengrass.ThingName,
		ThingGroup:     cfg.Greengrass.ThingGroup,
		RoleAlias:      cfg.Greengrass.RoleAlias,
		Env:            env,
	}
}

// NucleusURL returns the download URL of the nucleus distribution.
func NucleusURL(version string) (string, error) {
	if version == "" || version == "latest" {
		return nucleusBaseURL + "greengrass-nucleus-latest.zip", nil
	}
	v, err := semver.StrictNewVersion(version)
	if err != nil {
		return "", retry.Fatal(fmt.Errorf("nucleus version %q: %w", version, err))
	}
	return nucleusBaseURL + "greengrass-" + v.String() + ".zip", nil
}

// GreengrassSteps returns the nucleus installation sequence. Each command
// checks before it acts, so the sequence can be re-run on a node that was
// partly installed.
func GreengrassSteps(opts Options) ([]Step, error) {
	url, err := NucleusURL(opts.NucleusVersion)
	if err != nil {
		return nil, err
	}
	jar := path.Join(installerDir, "lib", "Greengrass.jar")
	loader := path.Join(opts.InstallRoot, "alts", "current", "distro", "bin", "loader")

	installArgs := shellquote.Join(
		"java",
		"-Droot="+opts.InstallRoot,
		"-Dlog.store=FILE",
		"-jar", jar,
		"--aws-region", opts.AWSRegion,
		"--thing-name", opts.ThingName,
		"--thing-group-name", opts.ThingGroup,
		"--tes-role-alias-name", opts.RoleAlias,
		"--component-default-user", opts.ServiceUser+":"+opts.ServiceUser,
		"--provision", "true",
		"--setup-system-service", "true",
	)

	install := Run("install nucleus",
		fmt.Sprintf("test -x %s || %s", shellquote.Join(loader), installArgs))
	install.Env = opts.Env

	steps := []Step{
		Run("install java runtime",
			"command -v java >/dev/null 2>&1 || (apt-get update -qq && DEBIAN_FRONTEND=noninteractive apt-get install -y -qq default-jre-headless unzip curl)"),
		Run("download nucleus",
			fmt.Sprintf("test -f %s || (curl -fsSL -o %s %s && unzip -q -o %s -d %s)",
				shellquote.Join(jar), installerZip, shellquote.Join(url), installerZip, installerDir)),
		install,
		Run("enable service", "systemctl enable "+ServiceName+".service"),
	}
	if len(opts.ExtraGroups) > 0 {
		steps = append(steps,
			AddToGroups(opts.ServiceUser, ServiceName, opts.ExtraGroups...),
			Restart(ServiceName),
		)
	}
	steps = append(steps, Verify(ServiceName))
	return steps, nil
}
