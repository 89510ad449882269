package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/teachbot/pkg/gesture"
	"github.com/gwillem/teachbot/pkg/playback"
)

type InfoCommand struct {
	Speed float64 `short:"s" long:"speed" description:"Speed to compute the schedule for (default from config)"`
	Args  struct {
		File string `positional-arg-name:"file" required:"yes"`
	} `positional-args:"yes"`
}

func (c *InfoCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	g, err := gesture.NewStore().LoadFile(c.Args.File)
	if err != nil {
		return err
	}

	speed := c.Speed
	if speed == 0 {
		speed = cfg.Playback.Speed
	}
	sorted := g.Sorted()
	schedule, err := playback.BuildSchedule(sorted.Times(), speed, playback.Options{
		Margin:     cfg.Playback.Margin,
		MaxStep:    cfg.Playback.MaxStep,
		ApplySpeed: cfg.Playback.ApplySpeed,
	})
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render(c.Args.File))
	hz := "discrete captures"
	if g.Hz != nil {
		hz = fmt.Sprintf("%g Hz", *g.Hz)
	}
	fmt.Printf("Joints:    %s\n", strings.Join(g.Names, ", "))
	fmt.Printf("Keyframes: %d (%s)\n", g.Len(), hz)
	fmt.Printf("Taught:    %.2fs\n", g.Duration())
	fmt.Printf("Playback:  %.2fs at speed %g\n", schedule[len(schedule)-1], speed)
	fmt.Println()

	headers := append([]string{"#", "t", "play at"}, g.Names...)
	rows := make([][]string, len(sorted.Keyframes))
	for i, kf := range sorted.Keyframes {
		row := []string{fmt.Sprint(i + 1), fmt.Sprintf("%.3f", kf.Time), fmt.Sprintf("%.3f", schedule[i])}
		for _, a := range kf.Angles {
			row = append(row, fmt.Sprintf("%+.3f", a))
		}
		rows[i] = row
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			if col < 3 {
				return jointStyle
			}
			return cellStyle
		})
	fmt.Println(t.Render())
	return nil
}
