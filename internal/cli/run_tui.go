package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"transcript-cleaner/internal/model"
	"transcript-cleaner/internal/runner"
	"transcript-cleaner/internal/segment"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

const (
	maxBarWidth  = 60
	minBarWidth  = 10
	panelPadding = 6
)

// statusText colours a job status or outcome word.
func statusText(s string) string {
	switch s {
	case model.StatusCompleted:
		return okStyle.Render(s)
	case model.StatusCrashed, string(runner.OutcomeFailed):
		return errorStyle.Render(s)
	case model.StatusPaused:
		return warnStyle.Render(s)
	default:
		return s
	}
}

type progressMsg runner.ProgressEvent

type runDoneMsg struct{}

type runModel struct {
	title     string
	total     int
	completed int
	current   int
	phase     runner.Phase
	cost      decimal.Decimal
	lastErr   error

	bar  progress.Model
	spin spinner.Model

	pause          func() bool
	cancel         context.CancelFunc
	pauseRequested bool
	aborting       bool
	done           bool
}

func newRunModel(title string, total int, pause func() bool, cancel context.CancelFunc) runModel {
	return runModel{
		title:  title,
		total:  total,
		cost:   decimal.Zero,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		pause:  pause,
		cancel: cancel,
	}
}

func (m runModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		w := msg.Width - panelPadding
		if w > maxBarWidth {
			w = maxBarWidth
		}
		if w < minBarWidth {
			w = minBarWidth
		}
		m.bar.Width = w
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case progressMsg:
		m.current = msg.UnitIndex
		m.phase = msg.Phase
		m.completed = msg.Completed
		m.cost = msg.ActualCost
		if msg.Total > 0 {
			m.total = msg.Total
		}
		if msg.Err != nil {
			m.lastErr = msg.Err
		}
		return m, m.bar.SetPercent(m.fraction())
	case progress.FrameMsg:
		next, cmd := m.bar.Update(msg)
		if pm, ok := next.(progress.Model); ok {
			m.bar = pm
		}
		return m, cmd
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case runDoneMsg:
		m.done = true
		return m, tea.Quit
	}
	return m, nil
}

func (m runModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "p":
		if !m.pauseRequested && m.pause() {
			m.pauseRequested = true
		}
	case "ctrl+c", "q":
		if !m.pauseRequested {
			if m.pause() {
				m.pauseRequested = true
			}
			return m, nil
		}
		if !m.aborting {
			m.aborting = true
			m.cancel()
		}
	}
	return m, nil
}

func (m runModel) fraction() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.completed) / float64(m.total)
}

func (m runModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(m.bar.View())
	b.WriteString("\n\n")

	switch m.phase {
	case runner.PhaseProcessing:
		fmt.Fprintf(&b, "%s unit %d of %d", m.spin.View(), m.current+1, m.total)
	case "":
		fmt.Fprintf(&b, "%s starting", m.spin.View())
	default:
		fmt.Fprintf(&b, "  %d/%d units done", m.completed, m.total)
	}
	fmt.Fprintf(&b, "   cost $%s\n", m.cost.StringFixed(4))

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("error: "+m.lastErr.Error()) + "\n")
	}
	switch {
	case m.aborting:
		b.WriteString(warnStyle.Render("aborting the current unit...") + "\n")
	case m.pauseRequested:
		b.WriteString(warnStyle.Render("pausing after the current unit (ctrl+c again to abort it)") + "\n")
	default:
		b.WriteString(mutedStyle.Render("p pause  ctrl+c pause/abort") + "\n")
	}
	return panelStyle.Render(b.String())
}

// runWithTUI runs the job on a background goroutine and renders its progress
// until it finishes.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, r *runner.Runner, units []segment.WorkUnit, ro runner.RunOptions, title string) (runner.Outcome, error) {
	p := tea.NewProgram(newRunModel(title, len(units), r.Pause, cancel))
	ro.OnProgress = func(ev runner.ProgressEvent) {
		p.Send(progressMsg(ev))
	}

	var (
		out    runner.Outcome
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		out, runErr = r.Run(ctx, units, ro)
		p.Send(runDoneMsg{})
	}()

	if _, err := p.Run(); err != nil {
		// The UI is gone; stop at the next boundary rather than run blind.
		fmt.Fprintf(os.Stderr, "progress UI failed: %v; pausing\n", err)
		r.Pause()
	}
	<-done
	return out, runErr
}
