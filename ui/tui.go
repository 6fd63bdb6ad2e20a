package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/franksops/gonewer/engine"
)

// UIState is what the view renders. It is rebuilt from an engine.Snapshot on
// every tick.
type UIState struct {
	Source string
	Dest   string
	Mode   string

	Scanned    int64
	Seen       int64
	Emitted    int64
	Suppressed int64
	Buffered   int64
	Discarded  int64

	Sync         bool
	Copied       int64
	CopyFailed   int64
	Bytes        int64
	ActiveCopies int64
	Workers      int

	BytesPerSec float64
	Elapsed     time.Duration
	Done        bool
	Err         error
}

// StateFromSnapshot converts a pipeline snapshot. elapsed is used for the
// copy rate.
func StateFromSnapshot(source, dest string, s engine.Snapshot, elapsed time.Duration) *UIState {
	st := &UIState{
		Source:       source,
		Dest:         dest,
		Mode:         s.Mode.String(),
		Scanned:      s.Scanned,
		Seen:         s.Filter.Seen,
		Emitted:      s.Filter.Emitted,
		Suppressed:   s.Filter.Suppressed,
		Buffered:     s.Filter.Buffered - s.Filter.Flushed,
		Discarded:    s.Filter.Discarded,
		Sync:         s.Sync,
		Copied:       s.Copied,
		CopyFailed:   s.CopyFailed,
		Bytes:        s.Bytes,
		ActiveCopies: s.ActiveCopies,
		Workers:      s.Workers,
		Elapsed:      elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		st.BytesPerSec = float64(s.Bytes) / secs
	}
	return st
}

// WorkerController lets the view resize the copy pool.
type WorkerController interface {
	SetWorkers(n int)
	Workers() int
}

// TUIModel implements tea.Model.
type TUIModel struct {
	state    *UIState
	workers  WorkerController
	spinner  spinner.Model
	progress progress.Model

	width int

	titleStyle   lipgloss.Style
	infoStyle    lipgloss.Style
	countStyle   lipgloss.Style
	helpStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	successStyle lipgloss.Style
}

// TUIUpdateMsg carries a fresh state into the model.
type TUIUpdateMsg struct {
	State *UIState
}

// WorkerCountMsg adjusts the copy worker count by its value.
type WorkerCountMsg int

// NewTUIModel creates the model. workers may be nil when not syncing.
func NewTUIModel(initial *UIState, workers WorkerController) TUIModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return TUIModel{
		state:        initial,
		workers:      workers,
		spinner:      s,
		progress:     progress.New(progress.WithDefaultGradient()),
		titleStyle:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Padding(0, 1),
		infoStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		countStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("78")),
		helpStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		successStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}
}

func (m TUIModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "+", "=":
			return m, func() tea.Msg { return WorkerCountMsg(1) }
		case "-":
			return m, func() tea.Msg { return WorkerCountMsg(-1) }
		}

	case WorkerCountMsg:
		if m.workers != nil && m.state.Sync {
			m.workers.SetWorkers(m.workers.Workers() + int(msg))
			m.state.Workers = m.workers.Workers()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-14, 10)

	case TUIUpdateMsg:
		// The frame rendered on quit stays on screen as the final summary.
		m.state = msg.State
		if m.state.Done {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// percent is copy completion when syncing and decision completion otherwise.
func (m TUIModel) percent() float64 {
	s := m.state
	if s.Sync {
		if s.Emitted == 0 {
			return 0
		}
		return float64(s.Copied+s.CopyFailed) / float64(s.Emitted)
	}
	if s.Scanned == 0 {
		return 0
	}
	return float64(s.Seen) / float64(s.Scanned)
}

func (m TUIModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	s := m.state

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s gnewer %s\n", m.spinner.View(), m.titleStyle.Render(s.Source+" → "+s.Dest)))
	sb.WriteString(m.infoStyle.Render(fmt.Sprintf("Mode: %s | Elapsed: %s", s.Mode, s.Elapsed.Round(time.Second))) + "\n")
	sb.WriteString(m.progress.ViewAs(m.percent()) + "\n\n")

	sb.WriteString(fmt.Sprintf("Scanned:    %s\n", m.countStyle.Render(fmt.Sprint(s.Scanned))))
	sb.WriteString(fmt.Sprintf("Stale:      %s\n", m.countStyle.Render(fmt.Sprint(s.Emitted))))
	sb.WriteString(fmt.Sprintf("Up to date: %s\n", m.countStyle.Render(fmt.Sprint(s.Suppressed))))
	if s.Mode == "single-file" {
		sb.WriteString(fmt.Sprintf("Buffered:   %s  Discarded: %s\n",
			m.countStyle.Render(fmt.Sprint(s.Buffered)), m.countStyle.Render(fmt.Sprint(s.Discarded))))
	}

	help := "q/ctrl+c: quit"
	if s.Sync {
		sb.WriteString(fmt.Sprintf("\nCopied: %d/%d | Failed: %d | Active: %d | Workers: %d | %s | %s\n",
			s.Copied, s.Emitted, s.CopyFailed, s.ActiveCopies, s.Workers,
			formatBytes(s.Bytes), formatSpeed(s.BytesPerSec)))
		help += " • +/-: adjust workers"
	}

	switch {
	case s.Err != nil:
		sb.WriteString("\n" + m.errorStyle.Render("Error: "+s.Err.Error()))
	case s.Done:
		sb.WriteString("\n" + m.successStyle.Render(fmt.Sprintf("Done. %d stale of %d.", s.Emitted, s.Seen)))
	default:
		sb.WriteString("\n" + m.helpStyle.Render(help))
	}

	return sb.String()
}

func formatSpeed(bytesPerSec float64) string {
	return formatUnits(bytesPerSec, "/s")
}

func formatBytes(n int64) string {
	return formatUnits(float64(n), "")
}

func formatUnits(v float64, suffix string) string {
	switch {
	case v >= 1024*1024*1024:
		return fmt.Sprintf("%.2f GB%s", v/(1024*1024*1024), suffix)
	case v >= 1024*1024:
		return fmt.Sprintf("%.2f MB%s", v/(1024*1024), suffix)
	case v >= 1024:
		return fmt.Sprintf("%.2f KB%s", v/1024, suffix)
	default:
		return fmt.Sprintf("%.0f B%s", v, suffix)
	}
}
