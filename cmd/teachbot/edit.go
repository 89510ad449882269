package main

import (
	"context"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/teachbot/pkg/robot"
	"github.com/gwillem/teachbot/pkg/session"
)

type EditCommand struct {
	LeadIn float64 `long:"lead-in" description:"Seconds to reach a frame (default from config)"`
	Args   struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

var (
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	jointStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	headStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
)

type editModel struct {
	s        *session.Session
	path     string
	leadIn   float64
	status   string
	logs     []string
	quitting bool
}

func (m *editModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

func (m *editModel) report(status string, err error) {
	m.status = status
	if err != nil {
		m.addLog(errorStyle.Render(err.Error()))
	}
}

// moveJoint shifts the joint selection by delta, clamped to the schema.
func (m *editModel) moveJoint(delta int) {
	ed, status, err := m.s.Edit()
	if err != nil {
		m.report(status, err)
		return
	}
	j := min(max(ed.Joint()+delta, 0), len(ed.Gesture().Names)-1)
	m.report(m.s.SelectJoint(j))
}

func (m editModel) Init() tea.Cmd {
	return waitForEvent(m.s)
}

func (m editModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := context.Background()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "left", "h":
			m.report(m.s.PrevFrame())
		case "right", "l":
			m.report(m.s.NextFrame())
		case "up", "k":
			m.moveJoint(-1)
		case "down", "j":
			m.moveJoint(1)
		case "+", "=":
			m.report(m.s.BumpJoint(ctx, 1))
		case "-", "_":
			m.report(m.s.BumpJoint(ctx, -1))
		case "g", "enter":
			ed, status, err := m.s.Edit()
			if err != nil {
				m.report(status, err)
				break
			}
			_, status, err = m.s.GoToFrame(ed.Frame(), robot.Seconds(m.leadIn))
			m.report(status, err)
		case "v":
			ed, status, err := m.s.Edit()
			if err != nil {
				m.report(status, err)
				break
			}
			m.report(m.s.SetLivePreview(!ed.LivePreview()))
		case ".":
			m.report(m.s.SendFrame(ctx))
		case "x":
			m.report(m.s.StopMotion(ctx))
		case "w":
			m.report(m.s.Save(m.path))
		}
		return m, nil

	case eventMsg:
		ev := session.Event(msg)
		m.status = ev.Status
		if ev.Kind != session.Started {
			line := fmt.Sprintf("%s %s: %s", ev.Op, ev.Kind, ev.Status)
			if ev.Move != nil {
				line += fmt.Sprintf(" (%.2fs)", ev.Move.Duration())
			}
			m.addLog(line)
		}
		return m, waitForEvent(m.s)
	}

	return m, nil
}

func (m editModel) View() string {
	if m.quitting {
		return "Editor closed. Unsaved edits are lost.\n"
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("teachbot edit"))
	sb.WriteString(" - " + m.path + "\n\n")

	ed, status, err := m.s.Edit()
	if err != nil {
		sb.WriteString(errorStyle.Render(status) + "\n")
		return sb.String()
	}

	kf := ed.Keyframe()
	names := ed.Gesture().Names
	preview := "off"
	if ed.LivePreview() {
		preview = "on"
	}
	sb.WriteString(fmt.Sprintf("Frame %d/%d  t=%.3fs  live preview %s", ed.Frame()+1, ed.Len(), kf.Time, preview))
	if kf.Base != nil {
		sb.WriteString(fmt.Sprintf("  base x=%.3f y=%.3f θ=%.3f", kf.Base.X, kf.Base.Y, kf.Base.Theta))
	}
	sb.WriteString("\n")

	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{
			name,
			fmt.Sprintf("%+.3f", kf.Angles[i]),
			fmt.Sprintf("%+.1f°", kf.Angles[i]*180/math.Pi),
		}
	}
	selected := ed.Joint()
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Joint", "Radians", "Degrees").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headStyle
			case row == selected:
				return selectedStyle
			case col == 0:
				return jointStyle
			default:
				return cellStyle
			}
		})
	sb.WriteString(t.Render())
	sb.WriteString("\n\n")

	sb.WriteString(statusStyle.Render("←/→ frame  ↑/↓ joint  +/- bump  g go to frame  v live preview  . send  x stop  w save  q quit"))
	sb.WriteString("\n")
	sb.WriteString(m.status + "\n")
	for _, l := range m.logs {
		sb.WriteString(statusStyle.Render(l) + "\n")
	}
	return sb.String()
}

func (c *EditCommand) Execute(args []string) error {
	r, err := connect()
	if err != nil {
		return err
	}
	defer r.Close()

	if status, err := r.session.Load(c.Args.File); err != nil {
		return fmt.Errorf("%s: %w", status, err)
	}
	_, status, err := r.session.Edit()
	if err != nil {
		return err
	}
	leadIn := c.LeadIn
	if leadIn <= 0 {
		leadIn = r.cfg.Editor.LeadIn
	}

	m := editModel{s: r.session, path: c.Args.File, leadIn: leadIn, status: status}
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run edit UI: %w", err)
	}
	return nil
}
