package tui

import (
	"errors"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/imamik/edgerun/internal/provisioning"
)

// Sender delivers messages to a running program. *tea.Program implements it.
type Sender interface {
	Send(msg tea.Msg)
}

// Observer turns pipeline events into dashboard messages. Free-form log
// lines are dropped: the dashboard owns the screen.
type Observer struct {
	send Sender
}

// NewObserver creates an observer feeding s.
func NewObserver(s Sender) *Observer {
	return &Observer{send: s}
}

func (o *Observer) Printf(string, ...any) {}

func (o *Observer) Progress(string, int, int) {}

func (o *Observer) WithFields(map[string]string) provisioning.Observer {
	return o
}

func (o *Observer) Event(event provisioning.Event) {
	switch event.Type {
	case provisioning.EventPhaseStarted:
		o.send.Send(StageMsg{Stage: event.Phase})
	case provisioning.EventPhaseCompleted:
		o.send.Send(StageMsg{Stage: event.Phase, Done: true, Duration: event.Duration})
	case provisioning.EventPhaseFailed:
		o.send.Send(StageMsg{Stage: event.Phase, Err: event.Err, Duration: event.Duration})
	case provisioning.EventPollAttempt:
		o.send.Send(PollMsg{Stage: event.Phase, Attempt: attemptOf(event), State: event.Fields["state"]})
	case provisioning.EventResourceCreated, provisioning.EventResourceExists:
		o.send.Send(ResourceMsg{
			Type:     event.Fields["type"],
			Name:     event.Resource,
			Existing: event.Type == provisioning.EventResourceExists,
		})
	case provisioning.EventValidationWarning:
		o.send.Send(WarningMsg{Message: event.Message})
	case provisioning.EventValidationError:
		o.send.Send(StageMsg{Stage: provisioning.PreflightStage, Err: errors.New(event.Message)})
	}
}

func attemptOf(event provisioning.Event) int {
	n, _ := strconv.Atoi(event.Fields["attempt"])
	return n
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
