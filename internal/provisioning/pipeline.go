package provisioning

import (
	"fmt"
	"time"

	"github.com/juju/clock"
)

// RunPhases executes phases sequentially and stops at the first failure,
// which is returned as a *StageError.
func RunPhases(ctx *Context, phases []Phase) error {
	clk := ctx.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	start := clk.Now()
	ctx.Observer.Printf("Starting run with %d phases...", len(phases))

	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			return Classify(phase.Name(), fmt.Errorf("cancelled before %s: %w", phase.Name(), err))
		}

		phaseStart := clk.Now()
		ctx.Observer.Progress(phase.Name(), i+1, len(phases))
		LogPhaseStart(ctx.Observer, phase.Name())

		if err := phase.Provision(ctx); err != nil {
			stageErr := Classify(phase.Name(), err)
			LogPhaseFailed(ctx.Observer, phase.Name(), clk.Now().Sub(phaseStart), stageErr)
			return stageErr
		}

		LogPhaseComplete(ctx.Observer, phase.Name(), clk.Now().Sub(phaseStart))
	}

	ctx.Observer.Printf("Run completed in %v", clk.Now().Sub(start).Round(time.Millisecond))
	return nil
}
