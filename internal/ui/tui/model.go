package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// StageRow is one pipeline stage as displayed.
type StageRow struct {
	Name     string
	Key      string
	Done     bool
	Active   bool
	Err      error
	Duration time.Duration

	// Attempts and State track the latest poll of a waiting stage.
	Attempts int
	State    string
}

// Resource is a line in the resources section.
type Resource struct {
	Type     string
	Name     string
	Existing bool
}

// Model is the Bubble Tea model for the run dashboard.
type Model struct {
	Prefix string
	Region string

	Stages    []StageRow
	Resources []Resource
	Warnings  []string

	StartTime    time.Time
	SpinnerFrame int

	Width  int
	Height int
	Err    error
	Done   bool
}

// NewRunModel creates a model listing the run stages in order.
func NewRunModel(prefix, region string) Model {
	return Model{
		Prefix:    prefix,
		Region:    region,
		StartTime: time.Now(),
		Stages: []StageRow{
			{Name: "Preflight", Key: "preflight"},
			{Name: "Provision node and bucket", Key: "provision"},
			{Name: "Wait for node", Key: "ready"},
			{Name: "Publish components", Key: "publish"},
			{Name: "Install runtime", Key: "install"},
			{Name: "Submit deployment", Key: "deploy"},
			{Name: "Wait for deployment", Key: "await"},
		},
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case StageMsg:
		m.updateStage(msg)

	case PollMsg:
		if idx := m.stageIndex(msg.Stage); idx >= 0 {
			m.Stages[idx].Attempts = msg.Attempt
			m.Stages[idx].State = msg.State
		}

	case ResourceMsg:
		m.Resources = append(m.Resources, Resource(msg))

	case WarningMsg:
		m.Warnings = append(m.Warnings, msg.Message)

	case TickMsg:
		m.SpinnerFrame++
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) stageIndex(key string) int {
	for i, s := range m.Stages {
		if s.Key == key {
			return i
		}
	}
	return -1
}

func (m *Model) updateStage(msg StageMsg) {
	idx := m.stageIndex(msg.Stage)
	if idx < 0 {
		return
	}

	// Stages run in order: everything before idx has finished.
	for i := 0; i < idx; i++ {
		if m.Stages[i].Err == nil {
			m.Stages[i].Done = true
		}
		m.Stages[i].Active = false
	}

	row := &m.Stages[idx]
	switch {
	case msg.Err != nil:
		row.Err = msg.Err
		row.Active = false
		row.Duration = msg.Duration
	case msg.Done:
		row.Done = true
		row.Active = false
		row.Duration = msg.Duration
	default:
		row.Active = true
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
