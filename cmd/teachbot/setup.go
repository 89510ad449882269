package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/teachbot/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Port string `short:"p" long:"port" description:"Serial port of the arm (scanned when empty)"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("teachbot setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: find the arm
	port := c.Port
	if port == "" {
		if port, err = scanForArm(); err != nil {
			return err
		}
	}
	cfg.Arm.Port = port

	// Step 2: record its range of motion
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Calibrating Arm ━━━"))
	fmt.Println()
	cal, err := calibrateArm(port)
	if err != nil {
		return err
	}
	cfg.Arm.Calibration = cal

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Teach a gesture with: " + headerStyle.Render("teachbot teach"))

	return nil
}

func scanForArm() (string, error) {
	fmt.Println("Scanning for robot arms...")
	fmt.Println()

	arms := findArms()
	switch len(arms) {
	case 0:
		return "", fmt.Errorf("no SO-101 arm found: make sure the arm is connected and powered on")
	case 1:
		arms[0].bus.Close()
		fmt.Println(successStyle.Render("Arm found on " + arms[0].port))
		return arms[0].port, nil
	}

	fmt.Printf("Found %d arms. Let's pick the one to teach...\n\n", len(arms))
	var port string
	for _, arm := range arms {
		if port != "" {
			arm.bus.Close()
			continue
		}
		ok, err := identifyArmWithWiggle(arm)
		if err != nil {
			return "", err
		}
		if ok {
			port = arm.port
		}
	}
	if port == "" {
		return "", fmt.Errorf("no arm selected")
	}
	return port, nil
}

func calibrateArm(port string) (robot.Calibration, error) {
	fmt.Printf("Calibrating arm on %s\n", port)
	fmt.Println()

	bus, servos, err := connectToArm(port)
	if err != nil {
		return nil, fmt.Errorf("connect to arm: %w", err)
	}
	defer bus.Close()

	servoMap := make(map[int]*feetech.Servo)
	for _, s := range servos {
		servoMap[s.ID] = feetech.NewServo(bus, s.ID, s.Model)
	}

	// Disable all servos so user can move arm freely
	ctx := context.Background()
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each joint to its minimum AND maximum positions.")
	fmt.Println("Zero radians will be the middle of each recorded range.")
	fmt.Println()

	motors := robot.AllMotors()
	m := newCalibrationModel(motors, servoMap)
	for i, name := range motors {
		pos, _ := servoMap[i+1].Position(ctx)
		m.curPos[name], m.minPos[name], m.maxPos[name] = pos, pos, pos
	}

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, fmt.Errorf("run calibration: %w", err)
	}
	cm := final.(calibrationModel)

	cal := make(robot.Calibration, len(motors))
	for i, name := range motors {
		cal[name] = robot.MotorCalibration{
			ID:       i + 1,
			RangeMin: cm.minPos[name],
			RangeMax: cm.maxPos[name],
		}
	}

	fmt.Println()
	fmt.Println("Arm calibrated.")
	return cal, nil
}

type armInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func openBus(port string) (*feetech.Bus, error) {
	return feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
}

func findArms() []armInfo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var arms []armInfo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, err := openBus(port)
		if err != nil {
			continue
		}

		// Scan for servos with IDs 1-6 (SO-101 arm configuration)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := bus.Scan(ctx, 1, 6)
		cancel()
		if err != nil || !isSOArm(servos) {
			bus.Close()
			continue
		}

		fmt.Printf("  Found SO-101 arm on %s\n", port)
		arms = append(arms, armInfo{port: port, servos: servos, bus: bus})
	}

	return arms
}

func isSOArm(servos []feetech.FoundServo) bool {
	if len(servos) != 6 {
		return false
	}
	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= 6; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

// identifyArmWithWiggle nudges the shoulder of arm and asks whether it is
// the one to teach.
func identifyArmWithWiggle(arm armInfo) (bool, error) {
	defer arm.bus.Close()
	ctx := context.Background()

	var servo *feetech.Servo
	for _, s := range arm.servos {
		if s.ID == 1 {
			servo = feetech.NewServo(arm.bus, s.ID, s.Model)
			break
		}
	}
	if servo == nil {
		return false, nil
	}

	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return false, nil
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return false, nil
	}

	fmt.Printf("\n  Wiggling arm on %s...\n", arm.port)

	// Wiggle: single gentle, slow movement
	wiggleAmount := 30
	moveTimeMs := 500
	for _, pos := range []int{originalPos + wiggleAmount, originalPos - wiggleAmount, originalPos} {
		servo.SetPositionWithTime(ctx, pos, moveTimeMs)
		time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	}
	servo.Disable(ctx)

	var use bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Teach the arm on %s?", arm.port)).
				Description("The arm that just wiggled").
				Affirmative("Yes").
				Negative("Skip").
				Value(&use),
		),
	)
	if err := form.Run(); err != nil {
		return false, err
	}
	return use, nil
}

func connectToArm(port string) (*feetech.Bus, []feetech.FoundServo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := openBus(port)
	if err != nil {
		return nil, nil, err
	}

	servos, err := bus.Scan(ctx, 1, 6)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	if !isSOArm(servos) {
		bus.Close()
		return nil, nil, fmt.Errorf("not an SO-101 arm (expected 6 servos with IDs 1-6)")
	}

	return bus, servos, nil
}

// Calibration TUI model
type calibrationModel struct {
	motors   []robot.MotorName
	servoMap map[int]*feetech.Servo
	curPos   map[robot.MotorName]int
	minPos   map[robot.MotorName]int
	maxPos   map[robot.MotorName]int
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(motors []robot.MotorName, servoMap map[int]*feetech.Servo) calibrationModel {
	return calibrationModel{
		motors:   motors,
		servoMap: servoMap,
		curPos:   make(map[robot.MotorName]int),
		minPos:   make(map[robot.MotorName]int),
		maxPos:   make(map[robot.MotorName]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for i, name := range m.motors {
			pos, err := m.servoMap[i+1].Position(ctx)
			if err != nil {
				continue
			}
			m.curPos[name] = pos
			m.minPos[name] = min(m.minPos[name], pos)
			m.maxPos[name] = max(m.maxPos[name], pos)
		}
		return m, tick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.motors))
	ranges := make([]int, 0, len(m.motors))
	for _, name := range m.motors {
		span := m.maxPos[name] - m.minPos[name]
		ranges = append(ranges, span)
		rows = append(rows, []string{
			string(name),
			fmt.Sprintf("%d", m.curPos[name]),
			fmt.Sprintf("%d", m.minPos[name]),
			fmt.Sprintf("%d", m.maxPos[name]),
			fmt.Sprintf("%d", span),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Motor", "Current", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headStyle
			}
			switch col {
			case 0:
				return jointStyle
			case 1:
				return tableCurrentStyle
			case 4:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return cellStyle
			}
		})

	return t.Render() + "\n\n" + dimStyle.Render("Press Enter when done")
}
