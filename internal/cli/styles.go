package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"solotranscribe/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case model.StatusCompleted:
		return okStyle
	case model.StatusFailed:
		return errorStyle
	case model.StatusSkipped:
		return warnStyle
	case model.StatusPending:
		return mutedStyle
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	}
}

// jobLine renders the one-line outcome printed after each job.
func jobLine(mf *model.Manifest, job *model.Job) string {
	counter := mutedStyle.Render(fmt.Sprintf("[%d/%d]", job.Index, mf.TotalJobs))
	status := statusStyle(job.Status).Render(fmt.Sprintf("%-9s", job.Status))
	parts := []string{counter, status, job.ID}
	switch job.Status {
	case model.StatusCompleted:
		if job.ActualCost != nil {
			parts = append(parts, formatUSD(*job.ActualCost))
		}
		if t := job.Title(); t != "" {
			parts = append(parts, mutedStyle.Render(truncateRunes(t, 60)))
		}
	case model.StatusFailed:
		parts = append(parts, job.FailureReason, mutedStyle.Render(truncateRunes(job.ErrorMessage, 80)))
	case model.StatusSkipped:
		parts = append(parts, job.SkipReason)
	}
	return strings.Join(parts, " ")
}

func truncateRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
