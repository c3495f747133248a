package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	apihttp "github.com/fyrsmithlabs/docforge/internal/http"
	"github.com/fyrsmithlabs/docforge/internal/progress"
	"github.com/fyrsmithlabs/docforge/internal/ratelimit"
	"github.com/fyrsmithlabs/docforge/internal/store"
)

const fetchTimeout = 5 * time.Second

// Source answers the polling queries of the dashboard. *Client implements
// it.
type Source interface {
	Project(ctx context.Context, id string) (*apihttp.ProjectResponse, error)
	Stats(ctx context.Context) (*apihttp.StatsResponse, error)
}

// DocState is the dashboard's view of one document.
type DocState string

const (
	DocPending DocState = "pending"
	DocRunning DocState = "running"
	DocDone    DocState = "done"
	DocFailed  DocState = "failed"
	DocSkipped DocState = "skipped"
)

func (s DocState) finished() bool {
	return s == DocDone || s == DocFailed || s == DocSkipped
}

type docRow struct {
	id         string
	state      DocState
	provider   string
	score      *int
	improved   bool
	durationMS int64
	note       string
}

// Model is the bubbletea model behind `docforge watch`.
type Model struct {
	projectID string
	source    Source
	events    <-chan progress.Event
	interval  time.Duration
	exitOnEnd bool
	now       func() time.Time

	started  time.Time
	idea     string
	phase    string
	rows     []*docRow
	index    map[string]int
	gate     *ratelimit.Stats
	complete *progress.Event
	err      error
	quitting bool

	overall bar.Model
}

// Option configures a Model.
type Option func(*Model)

// WithExitOnComplete quits the program once the complete event arrives.
func WithExitOnComplete() Option {
	return func(m *Model) { m.exitOnEnd = true }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// NewModel creates a dashboard for projectID fed by events. Source is
// polled every interval for gate statistics.
func NewModel(projectID string, source Source, events <-chan progress.Event, interval time.Duration, opts ...Option) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	m := Model{
		projectID: projectID,
		source:    source,
		events:    events,
		interval:  interval,
		now:       time.Now,
		index:     map[string]int{},
		overall: bar.New(
			bar.WithGradient("#00ffff", "#00ff00"),
			bar.WithWidth(40),
		),
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.started = m.now()
	return m
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)
)

// stateBadge renders a document state.
func stateBadge(s DocState) string {
	switch s {
	case DocDone:
		return healthyStyle.Render("[✓]")
	case DocRunning:
		return warningStyle.Render("[…]")
	case DocFailed:
		return errorStyle.Render("[✗]")
	case DocSkipped:
		return dimStyle.Render("[-]")
	default:
		return dimStyle.Render("[ ]")
	}
}

// gateBadge colors gate utilization the way the gate adds jitter: above
// 80% it is considered hot.
func gateBadge(pct float64) string {
	switch {
	case pct < 50:
		return healthyStyle.Render("✓ OK")
	case pct < 80:
		return warningStyle.Render("⚠ BUSY")
	default:
		return errorStyle.Render("✗ HOT")
	}
}

type tickMsg time.Time
type eventMsg progress.Event
type streamClosedMsg struct{}
type projectMsg *apihttp.ProjectResponse
type statsMsg *apihttp.StatsResponse
type errMsg error

// Init starts the event reader and the first poll.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitEvent(m.events),
		fetchProject(m.source, m.projectID),
		fetchStats(m.source),
		tick(m.interval),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitEvent blocks on the next progress event.
func waitEvent(events <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return streamClosedMsg{}
		}
		return eventMsg(e)
	}
}

func fetchProject(src Source, id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		p, err := src.Project(ctx, id)
		if err != nil {
			return errMsg(err)
		}
		return projectMsg(p)
	}
}

func fetchStats(src Source) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		s, err := src.Stats(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statsMsg(s)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, tea.Batch(fetchProject(m.source, m.projectID), fetchStats(m.source))
		}

	case tickMsg:
		if m.complete != nil {
			return m, nil
		}
		return m, tea.Batch(tick(m.interval), fetchStats(m.source))

	case eventMsg:
		e := progress.Event(msg)
		m.apply(e)
		if e.Type.IsTerminal() {
			if m.exitOnEnd {
				return m, tea.Quit
			}
			return m, fetchStats(m.source)
		}
		return m, waitEvent(m.events)

	case streamClosedMsg:
		// The stream ended without a complete event; the stored status
		// tells how the project finished.
		if m.complete == nil {
			return m, fetchProject(m.source, m.projectID)
		}
		return m, nil

	case projectMsg:
		m.seed(msg)
		m.err = nil
		if m.complete != nil && m.exitOnEnd {
			return m, tea.Quit
		}
		return m, nil

	case statsMsg:
		if msg != nil {
			m.gate = msg.Gate
		}
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// Complete returns the terminal event once seen.
func (m Model) Complete() *progress.Event { return m.complete }

func (m *Model) row(id string) *docRow {
	if i, ok := m.index[id]; ok {
		return m.rows[i]
	}
	r := &docRow{id: id, state: DocPending}
	m.index[id] = len(m.rows)
	m.rows = append(m.rows, r)
	return r
}

func (m *Model) apply(e progress.Event) {
	switch e.Type {
	case progress.EventPhase:
		m.phase = e.Phase
	case progress.EventStarted:
		r := m.row(e.DocumentID)
		r.state = DocRunning
		r.provider = e.Provider
	case progress.EventSucceeded:
		r := m.row(e.DocumentID)
		r.state = DocDone
		r.score = e.Score
		r.improved = e.Improved
		r.durationMS = e.DurationMS
	case progress.EventFailed:
		r := m.row(e.DocumentID)
		r.state = DocFailed
		r.durationMS = e.DurationMS
		r.note = e.Error
	case progress.EventSkipped:
		r := m.row(e.DocumentID)
		r.state = DocSkipped
		if e.Cause != "" {
			r.note = "after " + e.Cause
		} else {
			r.note = e.Error
		}
	case progress.EventComplete:
		m.complete = &e
		for _, id := range e.Completed {
			if r := m.row(id); !r.state.finished() {
				r.state = DocDone
			}
		}
	}
}

// seed fills rows from the stored status. Events already applied win.
func (m *Model) seed(p *apihttp.ProjectResponse) {
	if p == nil {
		return
	}
	m.idea = p.Idea
	if !p.CreatedAt.IsZero() {
		m.started = p.CreatedAt
	}
	if m.phase == "" {
		m.phase = p.Phase
	}
	for _, id := range p.Selected {
		m.row(id)
	}
	for _, id := range p.Completed {
		if r := m.row(id); !r.state.finished() {
			r.state = DocDone
		}
	}
	for _, a := range p.Assessments {
		if i, ok := m.index[a.DocumentID]; ok && m.rows[i].score == nil && !a.Unscored {
			score := a.Score
			m.rows[i].score = &score
			m.rows[i].improved = a.Improved
		}
	}
	if m.complete == nil && p.Status.IsTerminal() {
		m.complete = &progress.Event{
			Type:      progress.EventComplete,
			ProjectID: p.ID,
			Status:    string(p.Status),
			Completed: p.Completed,
			Error:     p.Error,
			Timestamp: p.UpdatedAt,
		}
	}
}

func (m Model) counts() (finished, total int) {
	for _, r := range m.rows {
		if r.state.finished() {
			finished++
		}
	}
	return finished, len(m.rows)
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(" docforge " + m.projectID + " "))
	b.WriteString("\n")
	if m.idea != "" {
		b.WriteString(dimStyle.Render(truncate(m.idea, 60)) + "\n")
	}

	elapsed := m.now().Sub(m.started)
	if m.complete != nil && !m.complete.Timestamp.IsZero() {
		elapsed = m.complete.Timestamp.Sub(m.started)
	}
	phase := m.phase
	if phase == "" {
		phase = string(store.StatusCreated)
	}
	b.WriteString(labelStyle.Render("Phase: ") + valueStyle.Render(phase) +
		"   " + labelStyle.Render("Elapsed: ") + valueStyle.Render(FormatElapsed(elapsed)) + "\n")

	finished, total := m.counts()
	ratio := 0.0
	if total > 0 {
		ratio = float64(finished) / float64(total)
	}
	b.WriteString(labelStyle.Render("Progress: ") + m.overall.ViewAs(ratio) +
		" " + dimStyle.Render(fmt.Sprintf("%d/%d", finished, total)) + "\n")

	b.WriteString(sectionStyle.Render("┃ Documents") + "\n")
	for _, r := range m.rows {
		line := fmt.Sprintf("  %s %-28s", stateBadge(r.state), r.id)
		if r.state == DocDone {
			score := FormatScore(r.score)
			if r.improved {
				score += " improved"
			}
			line += dimStyle.Render(fmt.Sprintf(" %-16s %s", score, FormatMillis(r.durationMS)))
		}
		if r.provider != "" {
			line += dimStyle.Render(" " + r.provider)
		}
		if r.note != "" {
			line += " " + errorStyle.Render(truncate(r.note, 50))
		}
		b.WriteString(line + "\n")
	}

	if m.gate != nil {
		b.WriteString(sectionStyle.Render("┃ Rate Gate") + "\n")
		b.WriteString(labelStyle.Render("  Window: ") +
			valueStyle.Render(FormatRate(m.gate.RequestsInWindow, m.gate.MaxRate, m.gate.Period)) +
			" " + gateBadge(m.gate.UtilizationPercent) + "\n")
		b.WriteString(labelStyle.Render("  Utilization: ") + valueStyle.Render(FormatPercentage(m.gate.UtilizationPercent)) +
			"  " + labelStyle.Render("Waiting: ") + valueStyle.Render(fmt.Sprintf("%d", m.gate.Waiting)) +
			"  " + labelStyle.Render("Cached: ") + valueStyle.Render(fmt.Sprintf("%d", m.gate.CacheSize)) + "\n")
	}

	if m.complete != nil {
		b.WriteString("\n")
		switch {
		case m.complete.Status == string(store.StatusFailed):
			b.WriteString(errorStyle.Render("✗ FAILED") + " " + m.complete.Error + "\n")
		case m.complete.Error != "":
			b.WriteString(warningStyle.Render("⚠ COMPLETE WITH FAILURES") + " " + truncate(m.complete.Error, 80) + "\n")
		default:
			b.WriteString(healthyStyle.Render("✓ COMPLETE") + "\n")
		}
	}
	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render("⚠ "+m.err.Error()) + "\n")
	}

	footer := footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
	b.WriteString("\n" + footer)

	return containerStyle.Render(b.String())
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
