// Package motion defines the actuator service the engine drives.
//
// Service carries the calls every actuator must implement. Everything else is
// an optional capability expressed as a small interface of its own; callers
// reach those through the probe helpers in capability.go, which report a
// missing capability as fault.ErrUnsupported.
package motion

import (
	"context"

	"github.com/gwillem/teachbot/pkg/fault"
)

// GroupBody addresses every joint of the body in SetStiffness.
const GroupBody = "Body"

// ErrUnsupported is returned by optional calls the actuator cannot perform.
var ErrUnsupported = fault.ErrUnsupported

// Service is the actuator contract consumed by the engine.
type Service interface {
	// StopMotion aborts any in-flight motion command.
	StopMotion(ctx context.Context) error

	// SetStiffness applies value in [0, 1] to the named joints. The single
	// name GroupBody addresses the whole body; implementations that cannot
	// address groups return ErrUnsupported for it.
	SetStiffness(ctx context.Context, names []string, value float64) error

	// Angles returns the current joint angles in radians, in names order.
	Angles(ctx context.Context, names []string, useSensors bool) ([]float64, error)

	// SetAngles moves the joints towards angles at a fraction of max speed.
	SetAngles(ctx context.Context, names []string, angles []float64, fractionMaxSpeed float64) error

	// Interpolate moves every joint through its angle list at the matching
	// times. With absolute set, times are measured from the start of the
	// command; otherwise each time is a delta from the previous point.
	// Interpolate returns when the motion has finished or was stopped.
	Interpolate(ctx context.Context, names []string, angleLists, timeLists [][]float64, absolute bool) error
}

// Pose is the position of a mobile base in its odometry frame.
type Pose struct {
	X, Y, Theta float64
}

// Poser reports the base pose.
type Poser interface {
	Pose(ctx context.Context) (Pose, error)
}

// CollisionGuard toggles collision protection on a chain such as "All".
type CollisionGuard interface {
	SetCollisionProtection(ctx context.Context, chain string, enabled bool) error
}

// StiffnessAdapter toggles firmware-side adaptive stiffness.
type StiffnessAdapter interface {
	SetAdaptiveStiffness(ctx context.Context, enabled bool) error
}

// Breather toggles the idle breathing animation on a limb group.
type Breather interface {
	SetBreathing(ctx context.Context, group string, enabled bool) error
}

// AwarenessTracker controls ambient awareness (head tracking and the like).
type AwarenessTracker interface {
	StopAwareness(ctx context.Context) error
}

// AutonomyController sets the autonomous behavior state, e.g. "disabled".
type AutonomyController interface {
	SetAutonomyState(ctx context.Context, state string) error
}

// Waker brings the actuator subsystem out of rest.
type Waker interface {
	Wake(ctx context.Context) error
}
