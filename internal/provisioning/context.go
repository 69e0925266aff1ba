package provisioning

import (
	"context"

	"github.com/juju/clock"

	"github.com/imamik/edgerun/internal/config"
)

// Context wraps all dependencies and state needed for a pipeline phase.
type Context struct {
	context.Context
	Config   *config.Config
	State    *State
	Observer Observer
	Timeouts *config.Timeouts
	Clock    clock.Clock
}

// NewContext creates a new pipeline context. A nil observer logs to the
// console.
func NewContext(ctx context.Context, cfg *config.Config, observer Observer) *Context {
	if observer == nil {
		observer = NewConsoleObserver()
	}
	return &Context{
		Context:  ctx,
		Config:   cfg,
		State:    NewState(),
		Observer: observer,
		Timeouts: config.LoadTimeouts(),
		Clock:    clock.WallClock,
	}
}
