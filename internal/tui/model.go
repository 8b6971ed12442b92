// Package tui renders a pipeline run in the terminal: a spinner while the
// session gate checks the stored credential, then a progress bar fed by the
// run's event stream, and an error line if the stream fails.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/pipeline"
	"github.com/sentimenta/dashclient/stream"
)

// Phase is the gate phase shown by the model.
type Phase int

const (
	PhaseChecking Phase = iota
	PhaseAuthorized
	PhaseRedirected
)

type (
	loadingMsg    struct{}
	authorizedMsg struct{ identity api.Identity }
	redirectMsg   struct{}
	progressMsg   struct{ event stream.Event }
	completeMsg   struct{ event stream.Event }
	errorMsg      struct{ err error }
	stateMsg      struct{ state stream.State }
)

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	errText lipgloss.Style
	badge   lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		errText: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		badge:   lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")),
	}
}

// Model is the bubbletea model for one watched run.
type Model struct {
	runID string

	phase    Phase
	identity api.Identity

	state     stream.State
	latest    pipeline.Progress
	hasLatest bool
	complete  bool
	err       error

	spinner spinner.Model
	bar     progress.Model
	styles  styles
}

// NewModel returns a model for runID in the checking phase.
func NewModel(runID string) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		runID:   runID,
		spinner: sp,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		styles:  defaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(msg.Width-8, 10)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case loadingMsg:
		if m.phase != PhaseRedirected {
			m.phase = PhaseChecking
		}
	case authorizedMsg:
		m.phase = PhaseAuthorized
		m.identity = msg.identity
	case redirectMsg:
		m.phase = PhaseRedirected
		return m, tea.Quit
	case stateMsg:
		m.state = msg.state
	case progressMsg:
		if p, err := pipeline.Decode(msg.event.Data); err == nil {
			m.latest = p
			m.hasLatest = true
		}
	case completeMsg:
		if p, err := pipeline.Decode(msg.event.Data); err == nil {
			m.latest = p
			m.hasLatest = true
		}
		m.complete = true
		m.state = stream.Complete
		return m, tea.Quit
	case errorMsg:
		m.err = msg.err
		m.state = stream.Error
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("Sentimenta") + " " + m.styles.muted.Render("run "+m.runID) + "\n\n")

	switch m.phase {
	case PhaseChecking:
		b.WriteString(m.spinner.View() + " Checking session...\n")
		return b.String()
	case PhaseRedirected:
		b.WriteString(m.styles.errText.Render("Not signed in.") + " Run `sentimenta session set` and try again.\n")
		return b.String()
	}

	b.WriteString(m.styles.badge.Render(m.identity.DisplayName()))
	if m.identity.Plan != "" {
		b.WriteString(" " + m.styles.muted.Render(m.identity.Plan))
	}
	b.WriteString("\n\n")

	percent := pipeline.Percent(m.latest, m.complete)
	b.WriteString(m.bar.ViewAs(float64(percent)/100) + "\n")

	switch {
	case m.err != nil:
		b.WriteString(m.styles.errText.Render("✗ Live updates failed: "+m.err.Error()) + "\n")
	case m.complete && m.latest.Status == pipeline.StatusFailed:
		b.WriteString(m.styles.errText.Render("✗ "+pipeline.StatusText(m.latest, true)) + "\n")
	case m.complete:
		b.WriteString(m.styles.success.Render("✓ "+pipeline.StatusText(m.latest, true)) + "\n")
	default:
		b.WriteString(m.spinner.View() + " " + pipeline.StatusText(m.latest, false) + "\n")
		if m.latest.CommentsFetched > 0 {
			b.WriteString(m.styles.muted.Render(fmt.Sprintf("%d/%d comments analyzed", m.latest.CommentsAnalyzed, m.latest.CommentsFetched)) + "\n")
		}
	}

	if !m.complete && m.err == nil {
		b.WriteString("\n" + m.styles.muted.Render("q to quit") + "\n")
	}
	return b.String()
}

func (m Model) Phase() Phase                      { return m.phase }
func (m Model) Err() error                        { return m.err }
func (m Model) Complete() bool                    { return m.complete }
func (m Model) Latest() (pipeline.Progress, bool) { return m.latest, m.hasLatest }
