package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// styleFunc is a single-string styling function.
type styleFunc func(string) string

// sf wraps a lipgloss.Style into a styleFunc.
func sf(s lipgloss.Style) styleFunc {
	return func(str string) string { return s.Render(str) }
}

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderStages(&b, m)
	if len(m.Resources) > 0 {
		renderResources(&b, m)
	}
	if len(m.Warnings) > 0 {
		renderWarnings(&b, m)
	}
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	title := fmt.Sprintf("edgerun: %s", m.Prefix)
	if m.Region != "" {
		title += fmt.Sprintf(" (%s)", m.Region)
	}
	b.WriteString(titleStyle.Render(title))

	status := " "
	switch {
	case m.Err != nil:
		status += failedStyle.Render("Failed")
	case m.Done:
		status += readyStyle.Render("Deployed")
	default:
		if row := activeStage(m); row != nil {
			status += activeStyle.Render(currentSpinner(m.SpinnerFrame)+" ") + warningStyle.Render(row.Name)
		} else {
			status += dimStyle.Render("Starting...")
		}
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := min(int(float64(barWidth)*progress), barWidth)

	bar := progressBarFull.Render(strings.Repeat("█", filled)) +
		progressBarEmpty.Render(strings.Repeat("░", barWidth-filled))

	fmt.Fprintf(b, "  %s %d%%\n", bar, int(progress*100))
}

func renderStages(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Stages"))
	b.WriteString("\n")

	for _, row := range m.Stages {
		icon, style := stageIcon(row, m.SpinnerFrame)
		line := fmt.Sprintf("    %s %s", style(icon), style(row.Name))
		switch {
		case row.Err != nil:
			line += " " + failedStyle.Render(fmt.Sprintf("(%s) %v", formatDuration(row.Duration), row.Err))
		case row.Done:
			line += " " + dimStyle.Render(formatDuration(row.Duration))
		case row.Active && row.Attempts > 0:
			line += " " + dimStyle.Render(fmt.Sprintf("attempt %d: %s", row.Attempts, row.State))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func renderResources(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Resources"))
	b.WriteString("\n")

	for _, r := range m.Resources {
		note := "created"
		if r.Existing {
			note = "exists"
		}
		fmt.Fprintf(b, "    %s %-10s %s %s\n", readyStyle.Render(checkMark), r.Type, r.Name, dimStyle.Render(note))
	}
}

func renderWarnings(b *strings.Builder, m Model) {
	b.WriteString(sectionStyle.Render("  Warnings"))
	b.WriteString("\n")
	for _, w := range m.Warnings {
		fmt.Fprintf(b, "    %s\n", warningStyle.Render(w))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := formatDuration(time.Since(m.StartTime))
	b.WriteString(footerStyle.Render(fmt.Sprintf("  elapsed: %s  |  q: quit", elapsed)))
	b.WriteString("\n")
}

func stageIcon(row StageRow, frame int) (string, styleFunc) {
	switch {
	case row.Err != nil:
		return crossMark, sf(failedStyle)
	case row.Done:
		return checkMark, sf(readyStyle)
	case row.Active:
		return currentSpinner(frame), sf(activeStyle)
	default:
		return pending, sf(dimStyle)
	}
}

func activeStage(m Model) *StageRow {
	for i := range m.Stages {
		if m.Stages[i].Active {
			return &m.Stages[i]
		}
	}
	return nil
}

func currentSpinner(frame int) string {
	if len(spinnerFrames) == 0 {
		return spinner
	}
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

// calculateProgress counts finished stages; an active stage counts half.
func calculateProgress(m Model) float64 {
	if m.Done {
		return 1.0
	}
	if len(m.Stages) == 0 {
		return 0
	}
	var done float64
	for _, row := range m.Stages {
		switch {
		case row.Done:
			done++
		case row.Active:
			done += 0.5
		}
	}
	return done / float64(len(m.Stages))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
