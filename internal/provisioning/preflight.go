package provisioning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/util/retry"
)

// PreflightStage names failures found before any phase runs.
const PreflightStage = "preflight"

// ValidationError represents a pre-flight error or warning.
type ValidationError struct {
	Field    string // Configuration field that failed validation
	Message  string // Human-readable error message
	Severity string // "error" or "warning"
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ve.Severity, ve.Field, ve.Message)
}

// IsError returns true if this is an error (not a warning).
func (ve ValidationError) IsError() bool {
	return ve.Severity == "error"
}

// Preflight checks everything that can be checked locally before the
// pipeline touches a remote system. Warnings are logged; errors are
// returned as a configuration-class *StageError.
func Preflight(ctx *Context) error {
	ctx.Observer.Printf("[Preflight] Running pre-flight validation...")

	var errs, warnings []ValidationError
	for _, ve := range preflight(ctx.Config) {
		if ve.IsError() {
			errs = append(errs, ve)
		} else {
			warnings = append(warnings, ve)
		}
	}

	for _, warning := range warnings {
		ctx.Observer.Event(Event{
			Type:    EventValidationWarning,
			Phase:   PreflightStage,
			Message: warning.Message,
			Fields:  map[string]string{"field": warning.Field},
		})
	}

	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
			ctx.Observer.Event(Event{
				Type:    EventValidationError,
				Phase:   PreflightStage,
				Message: e.Message,
				Fields:  map[string]string{"field": e.Field},
			})
		}
		return &StageError{
			Stage: PreflightStage,
			Class: ClassConfiguration,
			Err:   retry.Fatal(fmt.Errorf("configuration validation failed:\n  %s", strings.Join(msgs, "\n  "))),
		}
	}

	ctx.Observer.Printf("[Preflight] Validation passed")
	return nil
}

func preflight(cfg *config.Config) []ValidationError {
	var out []ValidationError
	if cfg == nil {
		return []ValidationError{{Field: "config", Message: "no configuration loaded", Severity: "error"}}
	}

	if err := cfg.Validate(); err != nil {
		for _, msg := range strings.Split(err.Error(), "\n") {
			out = append(out, ValidationError{Field: "config", Message: msg, Severity: "error"})
		}
	}

	if cfg.HCloudToken == "" {
		out = append(out, ValidationError{
			Field:    config.EnvHCloudToken,
			Message:  "Hetzner Cloud token is required",
			Severity: "error",
		})
	}

	for i, comp := range cfg.Components {
		if comp.Recipe != "" {
			if err := checkFile(comp.Recipe); err != nil {
				out = append(out, ValidationError{
					Field:    fmt.Sprintf("components[%d].recipe", i),
					Message:  err.Error(),
					Severity: "error",
				})
			}
		}
		if len(comp.Artifacts) == 0 {
			out = append(out, ValidationError{
				Field:    fmt.Sprintf("components[%d].artifacts", i),
				Message:  fmt.Sprintf("component %s has no artifacts; its recipe must not reference any", comp.Name),
				Severity: "warning",
			})
		}
		for j, a := range comp.Artifacts {
			if err := checkFile(a); err != nil {
				out = append(out, ValidationError{
					Field:    fmt.Sprintf("components[%d].artifacts[%d]", i, j),
					Message:  err.Error(),
					Severity: "error",
				})
			}
		}
	}

	if len(cfg.Readiness.SSHSources) == 0 {
		out = append(out, ValidationError{
			Field:    "readiness.ssh_sources",
			Message:  "SSH access is limited to this machine's public address; it opens to everyone if that cannot be determined",
			Severity: "warning",
		})
	}

	if cfg.Deployment.Policy == config.PolicyDoNothing {
		out = append(out, ValidationError{
			Field:    "deployment.policy",
			Message:  "a failed deployment will leave the device partially updated",
			Severity: "warning",
		})
	}

	return out
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s does not exist", path)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	return nil
}
