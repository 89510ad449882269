package robot

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/gwillem/teachbot/pkg/motion"
)

const (
	// ControlPeriod is the position update interval while interpolating.
	ControlPeriod = 20 * time.Millisecond

	// MaxJointSpeed is the joint speed in rad/s that SetAngles scales by
	// its fraction argument.
	MaxJointSpeed = 2 * math.Pi
)

// Arm represents a robot arm with multiple servos. It implements
// motion.Service; stiffness maps onto servo torque.
type Arm struct {
	bus         *feetech.Bus
	group       *feetech.ServoGroup
	calibration Calibration
	log         *zap.SugaredLogger
	clock       clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
}

var (
	_ motion.Service = (*Arm)(nil)
	_ motion.Waker   = (*Arm)(nil)
)

// NewArm creates and initializes an arm connection.
func NewArm(port string, cal Calibration, logger *zap.SugaredLogger) (*Arm, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bus on %s", port)
	}
	if len(cal) == 0 {
		cal = DefaultCalibration()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	group := feetech.NewServoGroupByIDs(bus, cal.MotorIDs()...)

	return &Arm{
		bus:         bus,
		group:       group,
		calibration: cal,
		log:         logger,
		clock:       clock.New(),
	}, nil
}

// Close closes the arm's bus connection.
func (a *Arm) Close() error {
	return a.bus.Close()
}

func (a *Arm) resolve(names []string) ([]MotorCalibration, error) {
	if len(names) == 1 && names[0] == motion.GroupBody {
		names = JointNames()
	}
	return a.calibration.Resolve(names)
}

// subgroup addresses the named joints, or every servo for motion.GroupBody.
func (a *Arm) subgroup(names []string) (*feetech.ServoGroup, []MotorCalibration, error) {
	cals, err := a.resolve(names)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]int, len(cals))
	for i, mc := range cals {
		ids[i] = mc.ID
	}
	return feetech.NewServoGroupByIDs(a.bus, ids...), cals, nil
}

// StopMotion aborts a running Interpolate or SetAngles ramp.
func (a *Arm) StopMotion(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	return nil
}

// SetStiffness switches torque: any positive value enables it, zero
// releases the joints. The servos have no partial compliance.
func (a *Arm) SetStiffness(ctx context.Context, names []string, value float64) error {
	group, _, err := a.subgroup(names)
	if err != nil {
		return err
	}
	if value > 0 {
		return errors.Wrap(group.EnableAll(ctx), "failed to enable torque")
	}
	return errors.Wrap(group.DisableAll(ctx), "failed to disable torque")
}

func (a *Arm) Angles(ctx context.Context, names []string, useSensors bool) ([]float64, error) {
	cals, err := a.resolve(names)
	if err != nil {
		return nil, err
	}
	raw, err := a.group.Positions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read positions")
	}
	out := make([]float64, len(cals))
	for i, mc := range cals {
		pos, ok := raw[mc.ID]
		if !ok {
			return nil, errors.Errorf("servo %d did not report a position", mc.ID)
		}
		out[i] = mc.Radians(pos)
	}
	return out, nil
}

// SetAngles ramps the joints to angles. The ramp takes as long as the
// largest move needs at fractionMaxSpeed of MaxJointSpeed.
func (a *Arm) SetAngles(ctx context.Context, names []string, angles []float64, fractionMaxSpeed float64) error {
	if len(names) != len(angles) {
		return errors.Errorf("%d joints but %d angles", len(names), len(angles))
	}
	current, err := a.Angles(ctx, names, true)
	if err != nil {
		return err
	}
	var farthest float64
	for i := range angles {
		farthest = max(farthest, math.Abs(angles[i]-current[i]))
	}
	speed := MaxJointSpeed * min(max(fractionMaxSpeed, 0.01), 1)
	d := max(farthest/speed, ControlPeriod.Seconds())

	lists := make([][]float64, len(names))
	times := make([][]float64, len(names))
	for i := range names {
		lists[i] = []float64{angles[i]}
		times[i] = []float64{d}
	}
	return a.run(ctx, names, current, lists, times, true)
}

// Interpolate streams the piecewise-linear trajectory to the servos every
// ControlPeriod until it ends or StopMotion is called.
func (a *Arm) Interpolate(ctx context.Context, names []string, angleLists, timeLists [][]float64, absolute bool) error {
	current, err := a.Angles(ctx, names, true)
	if err != nil {
		return err
	}
	return a.run(ctx, names, current, angleLists, timeLists, absolute)
}

func (a *Arm) run(ctx context.Context, names []string, start []float64, angleLists, timeLists [][]float64, absolute bool) error {
	tr, err := motion.NewTrajectory(start, angleLists, timeLists, absolute)
	if err != nil {
		return err
	}
	group, cals, err := a.subgroup(names)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	a.log.Debugf("Trajectory on %v over %.2fs", names, tr.Duration())
	ticker := a.clock.Ticker(ControlPeriod)
	defer ticker.Stop()
	begin := a.clock.Now()
	for {
		elapsed := a.clock.Since(begin).Seconds()
		target := tr.At(min(elapsed, tr.Duration()))
		positions := make(feetech.PositionMap, len(cals))
		for i, mc := range cals {
			positions[mc.ID] = mc.Raw(target[i])
		}
		if err := group.SetPositions(ctx, positions); err != nil {
			return errors.Wrapf(err, "failed to write positions for %v", names)
		}
		if elapsed >= tr.Duration() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Wake enables torque on every servo.
func (a *Arm) Wake(ctx context.Context) error {
	return errors.Wrap(a.group.EnableAll(ctx), "failed to wake servos")
}
