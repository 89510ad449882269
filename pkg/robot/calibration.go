package robot

import (
	"fmt"
	"math"

	"github.com/gwillem/teachbot/pkg/fault"
)

// Servo position encoding: one full turn is CountsPerTurn ticks.
const (
	CountsPerTurn = 4096
	maxCount      = CountsPerTurn - 1
)

// MotorCalibration holds calibration data for a single motor.
type MotorCalibration struct {
	ID           int `json:"id"`
	DriveMode    int `json:"drive_mode"`
	HomingOffset int `json:"homing_offset"`
	RangeMin     int `json:"range_min"`
	RangeMax     int `json:"range_max"`
}

// Calibration holds calibration data for all motors, keyed by motor name.
type Calibration map[MotorName]MotorCalibration

// DefaultCalibration maps motors to IDs 1-6 with the full encoder range.
func DefaultCalibration() Calibration {
	cal := make(Calibration, len(AllMotors()))
	for i, name := range AllMotors() {
		cal[name] = MotorCalibration{ID: i + 1, RangeMin: 0, RangeMax: maxCount}
	}
	return cal
}

// bounds returns the usable raw range; an empty range means the whole turn.
func (c MotorCalibration) bounds() (int, int) {
	if c.RangeMax <= c.RangeMin {
		return 0, maxCount
	}
	return c.RangeMin, c.RangeMax
}

// center is the raw position that maps to zero radians.
func (c MotorCalibration) center() float64 {
	lo, hi := c.bounds()
	return float64(lo+hi) / 2
}

// Radians converts a raw servo position to a joint angle. Zero is the middle
// of the calibrated range; DriveMode 1 inverts the direction.
func (c MotorCalibration) Radians(raw int) float64 {
	rad := (float64(raw) - c.center()) / CountsPerTurn * 2 * math.Pi
	if c.DriveMode != 0 {
		rad = -rad
	}
	return rad
}

// Raw converts a joint angle to a raw servo position, clamped to the
// calibrated range.
func (c MotorCalibration) Raw(rad float64) int {
	if c.DriveMode != 0 {
		rad = -rad
	}
	lo, hi := c.bounds()
	raw := int(math.Round(c.center() + rad/(2*math.Pi)*CountsPerTurn))
	return min(max(raw, lo), hi)
}

// MotorIDs returns the servo IDs for all motors in the calibration.
func (c Calibration) MotorIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllMotors() to ensure consistent ordering
	for _, name := range AllMotors() {
		if mc, ok := c[name]; ok {
			ids = append(ids, mc.ID)
		}
	}
	return ids
}

// Resolve looks up the calibration of each named joint, in order.
func (c Calibration) Resolve(joints []string) ([]MotorCalibration, error) {
	out := make([]MotorCalibration, len(joints))
	for i, j := range joints {
		mc, ok := c[MotorName(j)]
		if !ok {
			return nil, fmt.Errorf("%w: unknown joint %q", fault.ErrInvalidParameter, j)
		}
		out[i] = mc
	}
	return out, nil
}
