package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/wasm-bridge/config"
	"github.com/wippyai/wasm-bridge/driver"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	outputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC")).
			PaddingLeft(2)

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const maxOutputLines = 8

type callMsg struct {
	n   int
	err error
}

type lineMsg string

type doneMsg struct {
	rep driver.Report
	err error
}

type runModel struct {
	run      config.RunConfig
	cancel   context.CancelFunc
	started  time.Time
	spinner  spinner.Model
	lines    []string
	calls    int
	rep      driver.Report
	err      error
	done     bool
	stopping bool
}

func newRunModel(run config.RunConfig, cancel context.CancelFunc) *runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = countStyle
	return &runModel{run: run, cancel: cancel, started: time.Now(), spinner: s}
}

func (m *runModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			m.stopping = true
			m.cancel()
		}

	case callMsg:
		m.calls = msg.n

	case lineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > maxOutputLines {
			m.lines = m.lines[len(m.lines)-maxOutputLines:]
		}

	case doneMsg:
		m.done = true
		m.rep = msg.rep
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *runModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Bridge"))
	b.WriteString(" ")
	if m.run.Platform != "" {
		b.WriteString(filepath.Base(m.run.Platform) + " + ")
	}
	b.WriteString(filepath.Base(m.run.App))
	b.WriteString("\n\n")

	target := "∞"
	if m.run.Iterations > 0 {
		target = fmt.Sprint(m.run.Iterations)
	}
	status := m.spinner.View()
	if m.done {
		status = " "
	}
	fmt.Fprintf(&b, "%s %s  %s calls  %s\n",
		status,
		funcStyle.Render(m.run.Entry),
		countStyle.Render(fmt.Sprintf("%d/%s", m.calls, target)),
		time.Since(m.started).Round(time.Millisecond))

	if len(m.lines) > 0 {
		b.WriteString("\n")
		for _, line := range m.lines {
			b.WriteString(outputStyle.Render(line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	switch {
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	case m.done:
		b.WriteString(resultStyle.Render(summary(m.run, m.rep)))
		b.WriteString("\n")
	case m.stopping:
		b.WriteString(helpStyle.Render("stopping after the current call..."))
	default:
		b.WriteString(helpStyle.Render("q stop"))
	}
	return b.String()
}

// runInteractive runs cfg with a live progress view. The driver runs on its
// own goroutine and reports through the program.
func runInteractive(ctx context.Context, cfg config.Config, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newRunModel(cfg.Run, cancel)
	p := tea.NewProgram(m, tea.WithOutput(out))

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		rep, err := execute(ctx, cfg,
			func(line string) { p.Send(lineMsg(line)) },
			driver.OnCall(func(n int, err error) { p.Send(callMsg{n: n, err: err}) }))
		p.Send(doneMsg{rep: rep, err: err})
	}()

	final, err := p.Run()
	cancel()
	<-finished
	if err != nil {
		return err
	}
	return final.(*runModel).err
}
