package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/teachbot/pkg/robot"
	"github.com/gwillem/teachbot/pkg/session"
)

type TeachCommand struct {
	Group string  `short:"g" long:"group" description:"Joint group to teach (prompted when empty)"`
	Out   string  `short:"o" long:"out" description:"Gesture file to save to (prompted when empty)"`
	Speed float64 `short:"s" long:"speed" description:"Playback speed (default from config)"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	helpHeight   = 2
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Joint colors - distinct colors for each motor
var jointColors = map[robot.MotorName]string{
	robot.ShoulderPan:  "196", // red
	robot.ShoulderLift: "208", // orange
	robot.ElbowFlex:    "226", // yellow
	robot.WristFlex:    "46",  // green
	robot.WristRoll:    "51",  // cyan
	robot.Gripper:      "201", // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	modeStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type teachModel struct {
	s        *session.Session
	group    string
	joints   []string
	out      string
	speed    float64
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	status   string   // result of the last action
	logs     []string // last N log messages
	quitting bool
}

// Messages from the session
type eventMsg session.Event

func waitForEvent(s *session.Session) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-s.Events()
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func newTeachModel(s *session.Session, group string, joints []string, out string, speed float64) teachModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-math.Pi, math.Pi),
	)
	for _, name := range joints {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(jointColors[robot.MotorName(name)]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}

	return teachModel{
		s:      s,
		group:  group,
		joints: joints,
		out:    out,
		speed:  speed,
		chart:  &chart,
		status: "Press 't' for teach mode or 'r' to record.",
	}
}

func (m *teachModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// report shows a status line and logs failures.
func (m *teachModel) report(status string, err error) {
	m.status = status
	if err != nil {
		m.addLog(errorStyle.Render(err.Error()))
	}
}

func (m *teachModel) plot(angles []float64) {
	for i, name := range m.joints {
		if i < len(angles) {
			m.chart.PushDataSet(name, angles[i])
		}
	}
	m.chart.DrawAll()
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *teachModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = max(m.width-borderSize-2, 40)
	height = max(m.height-headerHeight-legendHeight-helpHeight-footerHeight-borderSize, 10)
	return width, height
}

func (m teachModel) Init() tea.Cmd {
	return waitForEvent(m.s)
}

func (m teachModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chart.Resize(m.chartSize())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.s.Teaching() {
				m.report(m.s.StopTeach(ctx))
			}
			m.quitting = true
			return m, tea.Quit
		case "r":
			if m.s.Busy() {
				m.report(m.s.StopRecording())
			} else {
				_, status, err := m.s.StartRecording(m.joints)
				m.report(status, err)
			}
		case "t":
			if m.s.Teaching() {
				m.report(m.s.StopTeach(ctx))
			} else {
				m.report(m.s.StartTeach(ctx, m.joints))
			}
		case "c":
			kf, accepted, status, err := m.s.CapturePose(ctx)
			m.report(status, err)
			if accepted {
				m.plot(kf.Angles)
				m.addLog(status)
			}
		case "p":
			_, status, err := m.s.Play(m.speed)
			m.report(status, err)
		case "x":
			m.report(m.s.StopMotion(ctx))
		case "w":
			m.report(m.s.Save(m.out))
		case "l":
			m.report(m.s.Load(m.out))
		case "n":
			m.report(m.s.Clear())
		}
		return m, nil

	case eventMsg:
		ev := session.Event(msg)
		if ev.Kind == session.Progress && ev.Progress != nil {
			if ev.Progress.Angles != nil {
				m.plot(ev.Progress.Angles)
			}
			m.status = fmt.Sprintf("Recording… raw ticks=%d, kept points=%d", ev.Progress.RawTicks, ev.Progress.Kept)
			return m, waitForEvent(m.s)
		}
		m.status = ev.Status
		line := fmt.Sprintf("%s %s: %s", ev.Op, ev.Kind, ev.Status)
		if ev.Err != nil {
			line = errorStyle.Render(line + " (" + ev.Err.Error() + ")")
		}
		m.addLog(line)
		return m, waitForEvent(m.s)
	}

	return m, nil
}

func (m teachModel) View() string {
	if m.quitting {
		return "Teach session closed.\n"
	}

	var sb strings.Builder

	// Header
	keyframes := 0
	if g := m.s.Gesture(); g != nil {
		keyframes = g.Len()
	}
	sb.WriteString(titleStyle.Render("teachbot teach"))
	sb.WriteString(fmt.Sprintf(" - %s, %d keyframes, speed %.2f  ", m.group, keyframes, m.speed))
	sb.WriteString(modeStyle.Render(m.s.Mode().String()))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend(m.joints))
	sb.WriteString("\n\n")

	sb.WriteString(statusStyle.Render("r record/stop  t teach on/off  c capture  p play  x stop  w save  l load  n clear  q quit"))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	lines := append([]string{m.status}, m.logs...)
	sb.WriteString(logStyle.Render(strings.Join(lines, "\n")))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend(joints []string) string {
	var items []string
	for _, name := range joints {
		color := jointColors[robot.MotorName(name)]
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name)
	}
	return strings.Join(items, "  ")
}

// promptGroup asks for a joint group unless one was given.
func promptGroup(cfg *robot.Config, group string) (string, error) {
	if group != "" {
		return group, nil
	}
	group = cfg.Teach.Group
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which joints do you want to teach?").
				Options(huh.NewOptions(cfg.GroupNames()...)...).
				Value(&group),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return group, nil
}

// promptPath asks for the gesture file unless one was given.
func promptPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	path = "gesture.json"
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Save gestures to").
				Value(&path),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(path), nil
}

func (c *TeachCommand) Execute(args []string) error {
	r, err := connect()
	if err != nil {
		return err
	}
	defer r.Close()

	group, err := promptGroup(r.cfg, c.Group)
	if err != nil {
		return err
	}
	joints, err := r.cfg.Joints(group)
	if err != nil {
		return err
	}
	out, err := promptPath(c.Out)
	if err != nil {
		return err
	}
	speed := c.Speed
	if speed == 0 {
		speed = r.session.Speed()
	}

	r.log.Infof("Teaching %s (%v), saving to %s", group, joints, out)
	p := tea.NewProgram(newTeachModel(r.session, group, joints, out, speed), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run teach UI: %w", err)
	}
	return nil
}
