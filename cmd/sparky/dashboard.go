package main

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/sparky/pkg/teleop"
)

const (
	headerHeight = 2 // title + blank line
	tableHeight  = 6 // status table
	helpHeight   = 2
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	onStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
)

const tensionSeries = "tension"

type dashboardModel struct {
	title    string
	help     string
	ctrl     *teleop.Controller
	keys     *keyInput
	onKey    func(key string) // extra keys, optional
	chart    *streamlinechart.Model
	width    int
	height   int
	logs     []string
	state    teleop.State
	quitting bool
}

func (m *dashboardModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func (m *dashboardModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 12
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-tableHeight-helpHeight-footerHeight-borderSize, 6)
	return width, height
}

func newDashboard(title, help string, ctrl *teleop.Controller, keys *keyInput) dashboardModel {
	chart := streamlinechart.New(80, 12,
		streamlinechart.WithYRange(-50, 250),
	)
	chart.SetDataSetStyles(tensionSeries, runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("51")))

	return dashboardModel{
		title: title,
		help:  help,
		ctrl:  ctrl,
		keys:  keys,
		chart: &chart,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}
		if !m.keys.Press(key) && m.onKey != nil {
			m.onKey(key)
		}

	case stateMsg:
		prev := m.state
		m.state = teleop.State(msg)
		// Freeze the chart while the spool is still
		if m.state.Tension != prev.Tension || prev.Timestamp.IsZero() {
			m.chart.PushDataSet(tensionSeries, float64(m.state.Tension))
			m.chart.DrawAll()
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shooter stopped.\n"
	}

	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString(fmt.Sprintf(" - %d Hz", m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(m.help))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20)).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Press 'q' to quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func (m dashboardModel) renderStatus() string {
	s := m.state
	flag := func(v bool) string {
		if v {
			return "●"
		}
		return "○"
	}
	zero := "no"
	if s.Zeroed {
		zero = "yes"
	}

	headers := []string{"Tension", "Zeroed", "Arm", "Ball S/M/T", "Trigger", "Enabled", "Arm move", "Release", "Phase", "Intake", "Override"}
	row := []string{
		fmt.Sprintf("%d", s.Tension),
		zero,
		fmt.Sprintf("%s %.2f", s.Arm, s.ArmOutput),
		flag(s.Shooter) + flag(s.Middle) + flag(s.Top),
		flag(s.Trigger),
		flag(s.Enabled),
		flag(s.ArmMove),
		flag(s.Release),
		s.Phase.String(),
		fmt.Sprintf("%s/%s", s.Stages.Lower, s.Stages.Upper),
		flag(m.keys.Override()),
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers(headers...).
		Rows(row).
		StyleFunc(func(r, col int) lipgloss.Style {
			if r == table.HeaderRow {
				return headStyle
			}
			switch headers[col] {
			case "Enabled":
				if s.Enabled {
					return onStyle
				}
				return busyStyle
			case "Arm move", "Release", "Phase":
				if s.ArmMove || s.Release {
					return busyStyle
				}
				return offStyle
			default:
				return cellStyle
			}
		})
	return t.Render()
}
