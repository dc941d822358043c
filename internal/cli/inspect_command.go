package cli

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"solotranscribe/internal/model"
	"solotranscribe/internal/runstore"
)

// inspectFilters is the cycle order of the status filter; "" shows all jobs.
var inspectFilters = []string{"", model.StatusFailed, model.StatusCompleted, model.StatusSkipped, model.StatusPending}

var inspectSelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)

type inspectModel struct {
	manifestPath  string
	mf            *model.Manifest
	filter        int
	table         table.Model
	detail        bool
	width         int
	height        int
	statusMessage string
	fatalErr      error
}

type inspectLoadedMsg struct {
	mf  *model.Manifest
	err error
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	manifest := fs.String("manifest", "", "path to manifest.json or the batch output directory")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*manifest) == "" {
		fs.Usage()
		return errors.New("--manifest is required")
	}
	path, err := runstore.ResolveManifestPath(strings.TrimSpace(*manifest))
	if err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("inspect requires an interactive terminal (TTY); use stats --json instead")
	}

	p := tea.NewProgram(newInspectModel(path), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := finalModel.(inspectModel); ok {
		return fm.fatalErr
	}
	return nil
}

func newInspectModel(manifestPath string) inspectModel {
	t := table.New(
		table.WithColumns(inspectColumns()),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Selected = inspectSelStyle
	t.SetStyles(styles)
	return inspectModel{manifestPath: manifestPath, table: t}
}

func inspectColumns() []table.Column {
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "Status", Width: 12},
		{Title: "Cost", Width: 9},
		{Title: "Length", Width: 9},
		{Title: "Title", Width: 40},
		{Title: "Reason", Width: 20},
	}
}

func loadManifestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		mf, err := runstore.LoadManifest(path)
		return inspectLoadedMsg{mf: mf, err: err}
	}
}

func (m inspectModel) Init() tea.Cmd {
	return loadManifestCmd(m.manifestPath)
}

func (m inspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetHeight(clampInt(m.height-10, 5, 40))
		return m, nil
	case inspectLoadedMsg:
		if msg.err != nil {
			if m.mf == nil {
				m.fatalErr = msg.err
				return m, tea.Quit
			}
			m.statusMessage = "reload failed: " + msg.err.Error()
			return m, nil
		}
		m.mf = msg.mf
		m.refreshRows()
		if m.statusMessage == "reloading..." {
			m.statusMessage = "reloaded"
		}
		return m, nil
	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m inspectModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.detail = false
		return m, nil
	case "f":
		m.filter = (m.filter + 1) % len(inspectFilters)
		m.detail = false
		m.refreshRows()
		return m, nil
	case "enter":
		if _, ok := m.selectedJob(); ok {
			m.detail = !m.detail
		}
		return m, nil
	case "r":
		m.statusMessage = "reloading..."
		return m, loadManifestCmd(m.manifestPath)
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *inspectModel) refreshRows() {
	jobs := m.visibleJobs()
	rows := make([]table.Row, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, jobRow(job))
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) {
		m.table.SetCursor(max(len(rows)-1, 0))
	}
}

func (m inspectModel) visibleJobs() []model.Job {
	if m.mf == nil {
		return nil
	}
	status := inspectFilters[m.filter]
	if status == "" {
		return m.mf.Jobs
	}
	var out []model.Job
	for _, job := range m.mf.Jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out
}

func (m inspectModel) selectedJob() (model.Job, bool) {
	jobs := m.visibleJobs()
	i := m.table.Cursor()
	if i < 0 || i >= len(jobs) {
		return model.Job{}, false
	}
	return jobs[i], true
}

func jobRow(job model.Job) table.Row {
	cost := formatUSD(job.EstimatedCost) + "~"
	if job.ActualCost != nil {
		cost = formatUSD(*job.ActualCost)
	}
	reason := job.FailureReason
	if job.Status == model.StatusSkipped {
		reason = job.SkipReason
	}
	return table.Row{
		strconv.Itoa(job.Index),
		job.Status,
		cost,
		formatDuration(job.KnownDuration()),
		truncateRunes(firstNonEmpty(job.Title(), job.URL), 40),
		reason,
	}
}

func (m inspectModel) View() string {
	if m.mf == nil {
		return mutedStyle.Render("loading " + m.manifestPath + "...")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("batch "+m.mf.ID) + "\n")
	b.WriteString(fmt.Sprintf("%s  %s  %s  %s  spent %s of %s\n",
		okStyle.Render(fmt.Sprintf("%d completed", m.mf.CompletedJobs)),
		errorStyle.Render(fmt.Sprintf("%d failed", m.mf.FailedJobs)),
		warnStyle.Render(fmt.Sprintf("%d skipped", m.mf.SkippedJobs)),
		mutedStyle.Render(fmt.Sprintf("%d pending", m.mf.PendingJobs)),
		formatUSD(m.mf.TotalActualCost),
		formatUSD(m.mf.BudgetCap),
	))
	filter := inspectFilters[m.filter]
	if filter == "" {
		filter = "all"
	}
	b.WriteString(mutedStyle.Render("filter: "+filter) + "\n\n")

	if m.detail {
		if job, ok := m.selectedJob(); ok {
			b.WriteString(panelStyle.Render(jobDetail(job)) + "\n")
		}
	} else {
		b.WriteString(m.table.View() + "\n")
	}
	if m.statusMessage != "" {
		b.WriteString(m.statusMessage + "\n")
	}
	b.WriteString(mutedStyle.Render("up/down move  enter details  f filter  r reload  q quit"))
	return b.String()
}

func jobDetail(job model.Job) string {
	lines := []string{
		titleStyle.Render(job.ID),
		"url: " + job.URL,
		"status: " + statusStyle(job.Status).Render(job.Status),
	}
	if t := job.Title(); t != "" {
		lines = append(lines, "title: "+t)
	}
	if p := job.Platform(); p != "" {
		lines = append(lines, "platform: "+p)
	}
	if d := job.KnownDuration(); d > 0 {
		lines = append(lines, "duration: "+formatDuration(d))
	}
	lines = append(lines, "estimated_cost: "+formatUSD(job.EstimatedCost))
	if job.ActualCost != nil {
		lines = append(lines, "actual_cost: "+formatUSD(*job.ActualCost))
	}
	lines = append(lines, fmt.Sprintf("retries: %d", job.RetryCount))
	if job.FailureReason != "" {
		lines = append(lines, "failure: "+job.FailureReason)
	}
	if job.SkipReason != "" {
		lines = append(lines, "skipped: "+job.SkipReason)
	}
	if job.ErrorMessage != "" {
		lines = append(lines, "error: "+truncateRunes(job.ErrorMessage, 200))
	}
	if job.CompletedAt != "" {
		lines = append(lines, "completed_at: "+job.CompletedAt)
	}
	if len(job.OutputFiles) > 0 {
		lines = append(lines, "files: "+strings.Join(job.OutputFiles, ", "))
	}
	if job.Transcript != nil && job.Transcript.Text != "" {
		lines = append(lines, "", mutedStyle.Render(truncateRunes(job.Transcript.Text, 300)))
	}
	return strings.Join(lines, "\n")
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
