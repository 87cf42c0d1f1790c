// Package watch is a terminal view that follows one user's run: progress,
// outcome and the most recently classified messages.
package watch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/applytrack/internal/ingest"
	"github.com/nhle/applytrack/internal/keys"
	"github.com/nhle/applytrack/internal/model"
	"github.com/nhle/applytrack/internal/theme"
	"github.com/nhle/applytrack/internal/ui"
)

// Backend is what the view reads from and triggers runs through.
type Backend interface {
	Status(ctx context.Context, userID string) (ingest.RunStatus, error)
	Start(ctx context.Context, userID string) (ingest.StartResult, error)
	Records(ctx context.Context, userID string) ([]model.MailRecord, error)
}

// statusMsg carries a fresh snapshot of the run and its records.
type statusMsg struct {
	status  ingest.RunStatus
	records []model.MailRecord
	err     error
}

// startedMsg carries the answer to a start request.
type startedMsg struct {
	result ingest.StartResult
	err    error
}

type tickMsg time.Time

// Model is the Bubble Tea model of the watch view.
type Model struct {
	backend  Backend
	userID   string
	interval time.Duration

	keys     *keys.KeyMap
	help     help.Model
	spinner  spinner.Model
	progress progress.Model
	layout   ui.Layout

	status  ingest.RunStatus
	records []model.MailRecord
	cursor  int
	err     error
	notice  string
	loaded  bool
}

// New creates a watch view polling backend every interval.
func New(backend Backend, userID string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorYellow)

	return Model{
		backend:  backend,
		userID:   userID,
		interval: interval,
		keys:     keys.DefaultKeyMap(),
		help:     help.New(),
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		layout:   ui.NewLayout(80, 24),
	}
}

// Run shows the view until the user quits.
func Run(backend Backend, userID string, interval time.Duration) error {
	_, err := tea.NewProgram(New(backend, userID, interval), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), m.tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.help.Width = msg.Width
		m.progress.Width = min(max(msg.Width-10, 10), 60)
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), m.tick())

	case statusMsg:
		m.loaded = true
		m.err = msg.err
		if msg.err == nil {
			m.status = msg.status
			m.records = msg.records
			m.cursor = min(m.cursor, max(len(m.records)-1, 0))
		}
		return m, nil

	case startedMsg:
		switch {
		case msg.err != nil:
			m.notice = "start failed: " + msg.err.Error()
		case msg.result.Status == ingest.StartRateLimited && msg.result.NextAllowedAt != nil:
			m.notice = "cooling down until " + msg.result.NextAllowedAt.Local().Format(time.Kitchen)
		default:
			m.notice = "run queued as " + msg.result.CorrelationID
		}
		return m, m.refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeys(msg)
	}
	return m, nil
}

func (m Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Start):
		m.notice = "starting run..."
		return m, m.start()
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.records)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) refresh() tea.Cmd {
	backend, userID := m.backend, m.userID
	return func() tea.Msg {
		ctx := context.Background()
		st, err := backend.Status(ctx, userID)
		if err != nil {
			return statusMsg{err: err}
		}
		recs, err := backend.Records(ctx, userID)
		return statusMsg{status: st, records: recs, err: err}
	}
}

func (m Model) start() tea.Cmd {
	backend, userID := m.backend, m.userID
	return func() tea.Msg {
		res, err := backend.Start(context.Background(), userID)
		return startedMsg{result: res, err: err}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) View() string {
	state := string(m.status.Status)
	if m.status.Outcome != "" {
		state += " · " + string(m.status.Outcome)
	}
	if m.status.Status == model.RunStarted {
		state = m.spinner.View() + state
	}

	header := m.layout.Header("applytrack · "+m.userID, state)
	footer := m.layout.StatusBar(m.help.View(m.keys))
	return m.layout.Frame(header, m.content(), footer)
}

func (m Model) content() string {
	if !m.loaded {
		return theme.HelpStyle.Render("loading...")
	}

	var b strings.Builder
	if m.err != nil {
		b.WriteString(theme.ErrorStyle.Render("error: "+m.err.Error()) + "\n\n")
	}

	st := m.status
	b.WriteString(theme.RunStateStyle(string(st.Status), string(st.Outcome)).Render(runLabel(st)))
	b.WriteString("\n\n")
	b.WriteString(m.progress.ViewAs(ratio(st.ProcessedCount, st.TotalCount)))
	fmt.Fprintf(&b, "\n%d / %d messages", st.ProcessedCount, st.TotalCount)
	if st.UpdatedAt != nil {
		fmt.Fprintf(&b, " · updated %s", st.UpdatedAt.Local().Format(time.DateTime))
	}
	if st.CorrelationID != "" {
		fmt.Fprintf(&b, "\n%s", theme.HelpStyle.Render("run "+st.CorrelationID))
	}
	if st.ErrorMessage != "" {
		b.WriteString("\n" + theme.ErrorStyle.Render(st.ErrorMessage))
	}
	if m.notice != "" {
		b.WriteString("\n" + theme.HelpStyle.Render(m.notice))
	}

	b.WriteString("\n\n")
	b.WriteString(m.recordList(m.layout.ContentHeight() - 14))

	return theme.PanelStyle.Width(max(m.layout.Width-4, 20)).Render(b.String())
}

// recordList renders up to rows records, keeping the cursor visible.
func (m Model) recordList(rows int) string {
	if len(m.records) == 0 {
		return theme.HelpStyle.Render("no classified messages yet")
	}
	rows = max(rows, 3)

	first := 0
	if m.cursor >= rows {
		first = m.cursor - rows + 1
	}
	last := min(first+rows, len(m.records))

	lines := make([]string, 0, last-first)
	for i := first; i < last; i++ {
		r := m.records[i]
		line := fmt.Sprintf("%s  %s · %s  %s",
			theme.LabelStyle(r.StatusLabel).Render(r.StatusLabel),
			r.CompanyName,
			r.JobTitle,
			theme.HelpStyle.Render(r.Subject),
		)
		if i == m.cursor {
			lines = append(lines, theme.SelectedItemStyle.Render(line))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(line))
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func runLabel(st ingest.RunStatus) string {
	switch {
	case st.Status == model.RunNotStarted || st.Status == "":
		return "No run yet"
	case st.Status == model.RunStarted:
		return "Running"
	case st.Outcome == model.OutcomeSucceeded:
		return "Finished"
	case st.Outcome == model.OutcomeFailedResumable:
		return "Stopped, will resume"
	default:
		return "Failed"
	}
}

func ratio(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return min(float64(done)/float64(total), 1)
}
