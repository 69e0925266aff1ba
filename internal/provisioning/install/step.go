package install

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/imamik/edgerun/internal/util/retry"
)

// Kind is the type of an installation step.
type Kind int

const (
	// Command runs a shell command.
	Command Kind = iota
	// GroupChange adds a user to supplementary groups.
	GroupChange
	// RestartService restarts a system service.
	RestartService
	// VerifyActive waits until a system service reports active.
	VerifyActive
)

func (k Kind) String() string {
	switch k {
	case Command:
		return "command"
	case GroupChange:
		return "group-change"
	case RestartService:
		return "restart-service"
	case VerifyActive:
		return "verify-active"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Step is one installation step.
type Step struct {
	Kind Kind
	// Name describes the step in logs and errors. Scripts are never logged.
	Name string

	// Command and Env apply to Command steps. Env is exported before the
	// command runs.
	Command string
	Env     map[string]string

	// User and Groups apply to GroupChange steps.
	User   string
	Groups []string

	// Service is the affected service of GroupChange, RestartService and
	// VerifyActive steps.
	Service string
}

// Run returns a Command step.
func Run(name, command string) Step {
	return Step{Kind: Command, Name: name, Command: command}
}

// AddToGroups returns a GroupChange step for user, applied to service.
func AddToGroups(user, service string, groups ...string) Step {
	return Step{
		Kind:    GroupChange,
		Name:    fmt.Sprintf("add %s to %s", user, strings.Join(groups, ",")),
		User:    user,
		Groups:  groups,
		Service: service,
	}
}

// Restart returns a RestartService step.
func Restart(service string) Step {
	return Step{Kind: RestartService, Name: "restart " + service, Service: service}
}

// Verify returns a VerifyActive step.
func Verify(service string) Step {
	return Step{Kind: VerifyActive, Name: "verify " + service, Service: service}
}

func (s Step) String() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind.String()
}

// Script returns the remote command of s. Every step is safe to re-run.
func (s Step) Script() string {
	switch s.Kind {
	case Command:
		return envPrefix(s.Env) + s.Command
	case GroupChange:
		parts := make([]string, 0, len(s.Groups))
		for _, g := range s.Groups {
			parts = append(parts, fmt.Sprintf("(id -nG %s | grep -qw %s || usermod -aG %s %s)",
				shellquote.Join(s.User), shellquote.Join(g), shellquote.Join(g), shellquote.Join(s.User)))
		}
		return strings.Join(parts, " && ")
	case RestartService:
		return "systemctl restart " + shellquote.Join(s.Service)
	case VerifyActive:
		return "systemctl is-active " + shellquote.Join(s.Service)
	default:
		return ""
	}
}

func envPrefix(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("export ")
		b.WriteString(shellquote.Join(k + "=" + env[k]))
		b.WriteString("; ")
	}
	return b.String()
}

// SequenceError reports a step list that must not run.
type SequenceError struct {
	Index  int
	Reason string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("invalid install sequence at step %d: %s", e.Index, e.Reason)
}

// Validate checks steps without running anything. Errors are fatal.
func Validate(steps []Step) error {
	var errs []error
	for i, s := range steps {
		if reason := checkStep(s); reason != "" {
			errs = append(errs, &SequenceError{Index: i, Reason: reason})
			continue
		}
		if s.Kind != GroupChange {
			continue
		}
		if i+1 >= len(steps) || steps[i+1].Kind != RestartService || steps[i+1].Service != s.Service {
			errs = append(errs, &SequenceError{Index: i, Reason: fmt.Sprintf("group change must be followed by a restart of %s", s.Service)})
			continue
		}
		if i+2 >= len(steps) || steps[i+2].Kind != VerifyActive || steps[i+2].Service != s.Service {
			errs = append(errs, &SequenceError{Index: i + 1, Reason: fmt.Sprintf("restart after a group change must be followed by a verification of %s", s.Service)})
		}
	}
	if len(errs) > 0 {
		return retry.Fatal(errors.Join(errs...))
	}
	return nil
}

func checkStep(s Step) string {
	switch s.Kind {
	case Command:
		if strings.TrimSpace(s.Command) == "" {
			return "command is empty"
		}
		for k := range s.Env {
			if k == "" || strings.ContainsAny(k, "= \t\n") {
				return fmt.Sprintf("invalid environment variable name %q", k)
			}
		}
	case GroupChange:
		if s.User == "" || len(s.Groups) == 0 {
			return "group change needs a user and at least one group"
		}
		if s.Service == "" {
			return "group change needs the affected service"
		}
	case RestartService, VerifyActive:
		if s.Service == "" {
			return "service is empty"
		}
	default:
		return fmt.Sprintf("unknown step kind %s", s.Kind)
	}
	return ""
}
