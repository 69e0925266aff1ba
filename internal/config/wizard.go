package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// WizardResult holds the user's choices from the init wizard.
type WizardResult struct {
	Prefix        string
	Region        string
	ServerType    string
	AWSRegion     string
	ComponentName string
	Version       string
	Recipe        string
	Artifacts     string
	Policy        FailurePolicy
}

// RunWizard asks for the handful of values a first deployment needs.
func RunWizard(ctx context.Context) (*WizardResult, error) {
	result := &WizardResult{
		Prefix:     DefaultPrefix,
		Region:     DefaultRegion,
		ServerType: DefaultServerType,
		AWSRegion:  DefaultAWSRegion,
		Version:    "1.0.0",
		Policy:     PolicyRollback,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Prefix").
				Description("Names every resource of this deployment (lowercase, hyphens)").
				Placeholder(DefaultPrefix).
				Value(&result.Prefix).
				Validate(validatePrefix),
			huh.NewSelect[string]().
				Title("Region").
				Description("Hetzner Cloud location of the edge node").
				Options(
					huh.NewOption("Falkenstein, Germany (fsn1)", "fsn1"),
					huh.NewOption("Nuremberg, Germany (nbg1)", "nbg1"),
					huh.NewOption("Helsinki, Finland (hel1)", "hel1"),
					huh.NewOption("Ashburn, USA (ash)", "ash"),
					huh.NewOption("Hillsboro, USA (hil)", "hil"),
					huh.NewOption("Singapore (sin)", "sin"),
				).
				Value(&result.Region),
			huh.NewSelect[string]().
				Title("Node size").
				Options(
					huh.NewOption("CX22 - 2 vCPU, 4GB RAM", "cx22"),
					huh.NewOption("CX32 - 4 vCPU, 8GB RAM", "cx32"),
					huh.NewOption("CX42 - 8 vCPU, 16GB RAM", "cx42"),
					huh.NewOption("CAX21 - 4 vCPU ARM, 8GB RAM", "cax21"),
				).
				Value(&result.ServerType),
		).Title("Edge Node"),

		huh.NewGroup(
			huh.NewInput().
				Title("AWS region").
				Description("Region of the artifact bucket and the Greengrass control plane").
				Value(&result.AWSRegion).
				Validate(required("AWS region")),
		).Title("Control Plane"),

		huh.NewGroup(
			huh.NewInput().
				Title("Component name").
				Placeholder("com.example.AgentCore").
				Value(&result.ComponentName).
				Validate(validateComponentName),
			huh.NewInput().
				Title("Component version").
				Value(&result.Version).
				Validate(ValidateVersion),
			huh.NewInput().
				Title("Recipe template").
				Placeholder("components/agent-core/recipe.yaml").
				Value(&result.Recipe).
				Validate(required("recipe")),
			huh.NewInput().
				Title("Artifact files (optional)").
				Description("Comma-separated paths, uploaded in order").
				Value(&result.Artifacts),
			huh.NewSelect[FailurePolicy]().
				Title("Failure handling").
				Options(
					huh.NewOption("Roll back to the previous deployment", PolicyRollback),
					huh.NewOption("Leave the device as it is", PolicyDoNothing),
					huh.NewOption("Notify components only", PolicyNotifyOnly),
				).
				Value(&result.Policy),
		).Title("First Component"),
	)

	if err := form.RunWithContext(ctx); err != nil {
		return nil, fmt.Errorf("wizard canceled: %w", err)
	}

	return result, nil
}

// ToConfig converts the wizard result to a Config with defaults applied.
func (r *WizardResult) ToConfig() *Config {
	cfg := &Config{
		Prefix:     r.Prefix,
		Region:     r.Region,
		ServerType: r.ServerType,
		AWS:        AWSConfig{Region: r.AWSRegion},
		Components: []Component{{
			Name:      r.ComponentName,
			Version:   r.Version,
			Recipe:    r.Recipe,
			Artifacts: splitList(r.Artifacts),
		}},
		Deployment: DeploymentConfig{Policy: r.Policy},
	}
	cfg.ApplyDefaults()
	return cfg
}

func validatePrefix(s string) error {
	if s == "" {
		return fmt.Errorf("prefix is required")
	}
	if !prefixRegex.MatchString(s) {
		return fmt.Errorf("prefix must be 1-24 lowercase alphanumeric characters or hyphens, starting with a letter")
	}
	return nil
}

func validateComponentName(s string) error {
	if !componentNameRegex.MatchString(s) {
		return fmt.Errorf("component name may only contain letters, digits, dots, underscores and hyphens")
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
