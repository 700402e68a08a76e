// Package tui renders live experiment progress in the terminal: one table
// row per scored dataset row, appearing as the runner reports them.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/timvw/promptbench/internal/model"
)

// Styles
var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Update is one progress report from the runner's row observer. Done marks
// the run's terminal state; Err carries a run-level failure.
type Update struct {
	Run  model.ExperimentRun
	Err  error
	Done bool
}

// Watch displays a running experiment until it reaches a terminal state or
// the user quits. Updates are consumed from the channel the runner's OnRow
// callback feeds.
func Watch(experiment model.Experiment, totalRows int, updates <-chan Update) error {
	m := watchModel{
		experiment: experiment,
		totalRows:  totalRows,
		updates:    updates,
		spin:       spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	_, err := tea.NewProgram(m).Run()
	return err
}

type updateMsg Update

type watchModel struct {
	experiment model.Experiment
	totalRows  int
	updates    <-chan Update

	run  model.ExperimentRun
	err  error
	done bool

	spin   spinner.Model
	width  int
	height int
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForUpdate())
}

// waitForUpdate blocks on the runner's channel and re-arms after each message.
func (m watchModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return updateMsg{Done: true}
		}
		return updateMsg(u)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil

	case updateMsg:
		if msg.Run.ID != "" {
			m.run = msg.Run
		}
		if msg.Err != nil {
			m.err = msg.Err
		}
		if msg.Done || msg.Run.Status.Terminal() {
			m.done = true
			return m, nil
		}
		return m, m.waitForUpdate()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Experiment: %s", m.experiment.Name)))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("run %s  %d/%d rows", shortID(m.run.ID), len(m.run.Results), m.totalRows)))
	b.WriteString("\n\n")

	for i, res := range m.run.Results {
		b.WriteString(m.renderResult(i, res))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(failStyle.Render(fmt.Sprintf("run failed: %v", m.err)))
	case m.done:
		pass, fail := tally(m.run.Results)
		b.WriteString(passStyle.Render(fmt.Sprintf("%d pass", pass)))
		b.WriteString(dimStyle.Render(" / "))
		b.WriteString(failStyle.Render(fmt.Sprintf("%d fail", fail)))
		b.WriteString(statusStyle.Render("  press q to exit"))
	default:
		b.WriteString(m.spin.View())
		b.WriteString(statusStyle.Render(" running…"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m watchModel) renderResult(idx int, res model.ExperimentResult) string {
	badge := failStyle.Render("FAIL")
	if res.Rating == model.RatingPass {
		badge = passStyle.Render("PASS")
	}
	width := m.width
	if width <= 0 {
		width = 80
	}
	return fmt.Sprintf("%3d  %s  %s", idx+1, badge, dimStyle.Render(truncate(res.Output, width-12)))
}

func tally(results []model.ExperimentResult) (pass, fail int) {
	for _, r := range results {
		if r.Rating == model.RatingPass {
			pass++
		} else {
			fail++
		}
	}
	return pass, fail
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// truncate collapses newlines and bounds the string to max runes.
func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if max < 4 {
		max = 4
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
