package handlers

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/imamik/edgerun/internal/config"
	"github.com/imamik/edgerun/internal/orchestration"
	"github.com/imamik/edgerun/internal/provisioning"
	"github.com/imamik/edgerun/internal/ui/tui"
)

// RunOptions are the inputs of the run command.
type RunOptions struct {
	ConfigPath  string
	Overrides   config.Overrides
	LogFormat   string
	TUI         bool
	MetricsFile string
}

// Factory function variables for run - can be replaced in tests.
var (
	// newDeps builds the platform clients of a run.
	newDeps = newDependencies

	// loadTimeouts reads wait ceilings and intervals from the environment.
	loadTimeouts = config.LoadTimeouts

	// stdoutIsTerminal reports whether the dashboard can be shown.
	stdoutIsTerminal = func() bool { return tui.IsTerminal(os.Stdout) }

	// runTUI runs fn behind the progress dashboard.
	runTUI = tui.Run

	// stdout receives the run summary.
	stdout io.Writer = os.Stdout
)

// Run handles the run command.
//
// It loads the configuration, builds the platform clients and executes the
// pipeline. Failures are returned as *provisioning.StageError naming the
// stage and the failure class.
func Run(ctx context.Context, opts RunOptions) error {
	cfg, err := loadConfig(opts.ConfigPath, opts.Overrides)
	if err != nil {
		return &provisioning.StageError{Stage: provisioning.PreflightStage, Class: provisioning.ClassConfiguration, Err: err}
	}

	useTUI := opts.TUI && stdoutIsTerminal()
	metrics := orchestration.NewMetrics()
	execute := func(ctx context.Context, base provisioning.Observer) error {
		observer := provisioning.MultiObserver{base, metrics.Observer()}
		state, err := runPipeline(ctx, cfg, observer)
		if opts.MetricsFile != "" {
			if werr := metrics.WriteTextfile(opts.MetricsFile); werr != nil {
				observer.Printf("[metrics] Failed to write %s: %v", opts.MetricsFile, werr)
			}
		}
		if err != nil {
			return err
		}
		if !useTUI {
			printRunSummary(stdout, state)
		}
		return nil
	}

	if useTUI {
		return runTUI(ctx, cfg.Prefix, cfg.Region, execute)
	}

	observer, err := newObserver(opts.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	return execute(ctx, observer)
}

// runPipeline executes every stage against cfg and returns the final state.
func runPipeline(ctx context.Context, cfg *config.Config, observer provisioning.Observer) (*provisioning.State, error) {
	pctx := provisioning.NewContext(ctx, cfg, observer)
	pctx.Timeouts = loadTimeouts()

	deps, err := newDeps(ctx, cfg, pctx.Timeouts, observer)
	if err != nil {
		return pctx.State, provisioning.Classify(provisioning.PreflightStage, err)
	}
	err = orchestration.New(deps).Run(pctx)
	return pctx.State, err
}

// newObserver returns the log sink for format.
func newObserver(format string, w io.Writer) (provisioning.Observer, error) {
	switch format {
	case "", "text":
		return provisioning.NewConsoleObserver(), nil
	case "json":
		return provisioning.NewJSONObserver(w), nil
	default:
		return nil, fmt.Errorf("unknown log format %q: expected text or json", format)
	}
}

func printRunSummary(w io.Writer, state *provisioning.State) {
	if out := state.Infrastructure; out != nil {
		fmt.Fprintf(w, "Node:       %s (%s)\n", out.ServerName, out.NodeAddress)
		fmt.Fprintf(w, "Bucket:     %s\n", out.BucketName)
		fmt.Fprintf(w, "Thing:      %s\n", out.ThingName)
	}
	for _, pc := range state.Published {
		fmt.Fprintf(w, "Component:  %s %s\n", pc.Name, pc.Version)
	}
	if h := state.Deployment; h != nil {
		fmt.Fprintf(w, "Deployment: %s\n", h.ID)
	}
	if st := state.Status; st != nil {
		fmt.Fprintf(w, "Status:     %s\n", st.State)
	}
}
