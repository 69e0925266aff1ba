package provisioning

// Phase defines the interface for a pipeline stage.
type Phase interface {
	// Name returns the human-readable name of this phase.
	Name() string

	// Provision executes the logic of this phase.
	Provision(ctx *Context) error
}

// Logger receives free-form progress lines.
type Logger interface {
	Printf(format string, v ...any)
}
