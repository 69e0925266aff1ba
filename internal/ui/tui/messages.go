// Package tui renders the progress of an edgerun run as a Bubble Tea
// dashboard.
package tui

import "time"

// StageMsg reports a stage starting, finishing or failing.
type StageMsg struct {
	Stage    string
	Done     bool
	Err      error
	Duration time.Duration
}

// PollMsg reports one attempt of a polling wait.
type PollMsg struct {
	Stage   string
	Attempt int
	State   string
}

// ResourceMsg reports a resource the run created or found.
type ResourceMsg struct {
	Type     string
	Name     string
	Existing bool
}

// WarningMsg carries a preflight warning.
type WarningMsg struct {
	Message string
}

// TickMsg is sent periodically to refresh the display.
type TickMsg struct{}

// ErrMsg signals that the run failed.
type ErrMsg struct {
	Err error
}

// DoneMsg signals that the run completed.
type DoneMsg struct{}
