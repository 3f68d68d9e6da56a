// Package progress shows live per-host progress while a run is in flight.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/table"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/agent462/drove/internal/executor"
)

var (
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4672")
	colorSubtle = lipgloss.Color("#626262")

	summaryStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	failStyle    = lipgloss.NewStyle().Foreground(colorRed)
	doneStyle    = lipgloss.NewStyle().Foreground(colorGreen)
)

// Host states shown in the Status column.
const (
	statePending = "pending"
	stateRunning = "running"
	stateRetry   = "retrying"
	stateDone    = "done"
	stateFailed  = "failed"
)

type hostState struct {
	Name     string
	Status   string
	Command  string
	Done     int
	Total    int
	Failed   int
	Attempt  int
	Started  time.Time
	Finished time.Duration
}

var quitKey = key.NewBinding(
	key.WithKeys("ctrl+c", "q", "esc"),
	key.WithHelp("q", "stop"),
)

// eventMsg carries one executor event into Update.
type eventMsg executor.Event

// doneMsg is sent once the event stream is closed.
type doneMsg struct{}

// Model is the Bubble Tea model for the progress view.
type Model struct {
	events <-chan executor.Event
	hosts  []*hostState
	index  map[string]*hostState
	table  table.Model
	now    func() time.Time

	finished    bool
	interrupted bool
}

// New creates a Model tracking hosts and reading from events.
func New(hosts []string, events <-chan executor.Event) Model {
	m := Model{
		events: events,
		index:  make(map[string]*hostState, len(hosts)),
		now:    time.Now,
	}
	for _, h := range hosts {
		if _, dup := m.index[h]; dup {
			continue
		}
		st := &hostState{Name: h, Status: statePending}
		m.hosts = append(m.hosts, st)
		m.index[h] = st
	}

	m.table = table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(false),
		table.WithHeight(min(len(m.hosts)+1, 20)),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorSubtle).
		BorderBottom(true).
		Bold(true)
	s.Selected = lipgloss.NewStyle()
	m.table.SetStyles(s)
	m.table.SetRows(m.rows())
	return m
}

// Init starts listening for events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

// Update applies events and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetColumns(columns(msg.Width))
		m.table.SetHeight(min(len(m.hosts)+1, max(msg.Height-3, 3)))
		return m, nil

	case tea.KeyPressMsg:
		if key.Matches(msg, quitKey) {
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		m.apply(executor.Event(msg))
		m.table.SetRows(m.rows())
		return m, waitForEvent(m.events)

	case doneMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

// View renders the host table and a one-line summary.
func (m Model) View() tea.View {
	var b strings.Builder
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(m.summary())
	b.WriteString("\n")
	return tea.NewView(b.String())
}

// Interrupted reports whether the user asked to stop the run.
func (m Model) Interrupted() bool {
	return m.interrupted
}

// Finished reports whether the event stream was fully drained.
func (m Model) Finished() bool {
	return m.finished
}

func (m *Model) apply(ev executor.Event) {
	st, ok := m.index[ev.Host]
	if !ok {
		st = &hostState{Name: ev.Host, Status: statePending}
		m.hosts = append(m.hosts, st)
		m.index[ev.Host] = st
	}

	switch ev.Type {
	case executor.EventHostStarted:
		st.Status = stateRunning
		st.Total = ev.Total
		st.Started = m.now()
	case executor.EventAttemptFailed:
		st.Status = stateRetry
		st.Command = ev.Command
		st.Attempt = ev.Attempt
	case executor.EventCommandDone:
		st.Status = stateRunning
		st.Command = ev.Command
		st.Done = ev.Index + 1
		st.Total = ev.Total
		st.Attempt = ev.Attempt
		if ev.Err != nil {
			st.Failed++
		}
	case executor.EventHostDone:
		st.Status = stateDone
		if st.Failed > 0 {
			st.Status = stateFailed
		}
		if !st.Started.IsZero() {
			st.Finished = m.now().Sub(st.Started)
		}
	}
}

func (m Model) rows() []table.Row {
	rows := make([]table.Row, len(m.hosts))
	for i, st := range m.hosts {
		elapsed := ""
		if st.Finished > 0 {
			elapsed = formatDuration(st.Finished)
		}
		attempt := ""
		if st.Attempt > 0 {
			attempt = fmt.Sprintf("%d", st.Attempt)
		}
		rows[i] = table.Row{
			st.Name,
			st.Status,
			fmt.Sprintf("%d/%d", st.Done, st.Total),
			attempt,
			st.Command,
			elapsed,
		}
	}
	return rows
}

func (m Model) summary() string {
	var done, failed int
	for _, st := range m.hosts {
		switch st.Status {
		case stateDone:
			done++
		case stateFailed:
			failed++
		}
	}
	parts := []string{
		summaryStyle.Render(fmt.Sprintf("%d/%d hosts finished", done+failed, len(m.hosts))),
	}
	if done > 0 {
		parts = append(parts, doneStyle.Render(fmt.Sprintf("%d ok", done)))
	}
	if failed > 0 {
		parts = append(parts, failStyle.Render(fmt.Sprintf("%d with failures", failed)))
	}
	if !m.finished {
		h := quitKey.Help()
		parts = append(parts, summaryStyle.Render(h.Key+" to "+h.Desc))
	}
	return strings.Join(parts, "  ")
}

func columns(width int) []table.Column {
	// Fixed columns plus cell padding; host and command share the rest.
	const statusW, progressW, attemptW, timeW = 9, 7, 7, 7
	rest := max(width-statusW-progressW-attemptW-timeW-12, 20)
	hostW := rest * 45 / 100
	return []table.Column{
		{Title: "Host", Width: hostW},
		{Title: "Status", Width: statusW},
		{Title: "Cmds", Width: progressW},
		{Title: "Attempt", Width: attemptW},
		{Title: "Command", Width: rest - hostW},
		{Title: "Time", Width: timeW},
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

func waitForEvent(events <-chan executor.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

// Run shows the progress view on out until the event stream closes or the
// user interrupts. It reports whether the user interrupted.
func Run(ctx context.Context, hosts []string, events <-chan executor.Event, out io.Writer) (bool, error) {
	p := tea.NewProgram(New(hosts, events),
		tea.WithContext(ctx),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	switch {
	case errors.Is(err, tea.ErrProgramKilled), errors.Is(err, tea.ErrInterrupted):
		return true, nil
	case err != nil:
		return false, fmt.Errorf("progress view: %w", err)
	}
	return final.(Model).Interrupted(), nil
}
