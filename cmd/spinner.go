package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bnema/coplay/internal/application"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	stageStyle   = lipgloss.NewStyle().Bold(true)
	elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// stageMsg carries the stage a running sync or aggregation just entered.
type stageMsg string

type workDoneMsg struct {
	err error
}

// stageModel renders the current stage of a long running command next to a
// spinner and the time spent in that stage.
type stageModel struct {
	spinner    spinner.Model
	title      string
	stage      string
	stageSince time.Time
	now        func() time.Time
	work       tea.Cmd
	err        error
	done       bool
}

func newStageModel(title string, work tea.Cmd, now func() time.Time) stageModel {
	if now == nil {
		now = time.Now
	}

	return stageModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
		),
		title:      title,
		stageSince: now(),
		now:        now,
		work:       work,
	}
}

func (m stageModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.work)
}

func (m stageModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case stageMsg:
		if string(msg) != m.stage {
			m.stage = string(msg)
			m.stageSince = m.now()
		}
		return m, nil
	case workDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m stageModel) View() string {
	if m.done {
		return ""
	}
	if m.stage == "" {
		return fmt.Sprintf("%s %s", m.spinner.View(), m.title)
	}

	elapsed := m.now().Sub(m.stageSince).Truncate(time.Second)
	return fmt.Sprintf("%s %s %s %s",
		m.spinner.View(),
		m.title,
		stageStyle.Render(m.stage),
		elapsedStyle.Render(elapsed.String()),
	)
}

// runWithStages runs work while a spinner on output follows the stages work
// reports through its context. The program ends when work returns or ctx is
// cancelled.
func runWithStages(ctx context.Context, output io.Writer, title string, work func(context.Context) error) error {
	var p *tea.Program
	workCmd := func() tea.Msg {
		workCtx := application.WithProgress(ctx, func(stage string) {
			p.Send(stageMsg(stage))
		})
		return workDoneMsg{err: work(workCtx)}
	}

	p = tea.NewProgram(
		newStageModel(title, workCmd, time.Now),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	result, ok := finalModel.(stageModel)
	if !ok {
		return fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}

	return result.err
}
