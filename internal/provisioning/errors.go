package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/edgerun/internal/platform/greengrass"
	"github.com/imamik/edgerun/internal/platform/hcloud"
	"github.com/imamik/edgerun/internal/provisioning/artifacts"
	"github.com/imamik/edgerun/internal/provisioning/deployment"
	"github.com/imamik/edgerun/internal/provisioning/install"
	"github.com/imamik/edgerun/internal/util/retry"
)

// Class groups failures by what the operator has to do about them.
type Class string

const (
	// ClassConfiguration means the input is wrong; retrying cannot help.
	ClassConfiguration Class = "configuration"
	// ClassTransient means a wait or a remote service gave up; a retry may pass.
	ClassTransient Class = "transient"
	// ClassExecution means a step ran on the node and failed.
	ClassExecution Class = "execution"
	// ClassDeployment means the deployment reached a failed outcome.
	ClassDeployment Class = "deployment"
)

// StageError is a classified pipeline failure.
type StageError struct {
	Stage string
	Class Class
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed (%s): %v", e.Stage, e.Class, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Classify wraps err from stage into a *StageError. An error that already
// is a StageError is returned unchanged.
func Classify(stage string, err error) *StageError {
	if err == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr
	}
	return &StageError{Stage: stage, Class: ClassOf(err), Err: err}
}

// ClassOf returns the class of err.
func ClassOf(err error) Class {
	var (
		installErr *install.InstallError
		outcomeErr *deployment.OutcomeError
		submitErr  *deployment.SubmitError
		timeoutErr *retry.TimeoutError
		publishErr *artifacts.PublishError
	)
	switch {
	case errors.As(err, &installErr):
		return ClassExecution
	case errors.As(err, &outcomeErr):
		return ClassDeployment
	case errors.As(err, &submitErr):
		switch submitErr.Kind {
		case deployment.Unavailable, deployment.InFlight:
			return ClassTransient
		default:
			return ClassConfiguration
		}
	case errors.As(err, &timeoutErr):
		return ClassTransient
	case retry.IsFatal(err):
		return ClassConfiguration
	case errors.As(err, &publishErr):
		return ClassTransient
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	case hcloud.IsTransient(err), greengrass.IsBreakerOpen(err):
		return ClassTransient
	default:
		return ClassExecution
	}
}
