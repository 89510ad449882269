// Package playback turns a gesture into one absolute-time interpolation
// command and drives the actuator through it.
package playback

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/gwillem/teachbot/pkg/fault"
	"github.com/gwillem/teachbot/pkg/gesture"
	"github.com/gwillem/teachbot/pkg/motion"
)

// Defaults for Options.
const (
	DefaultMargin         = 2.0
	DefaultMaxStep        = 0.55
	DefaultStiffness      = 1.0
	DefaultBrakeStiffness = 0.2
)

// Options tunes schedule construction and the stiffness commands around it.
type Options struct {
	Margin         float64 // seconds before the first keyframe is reached
	MaxStep        float64 // ceiling on the spacing of consecutive scheduled times
	ApplySpeed     bool    // divide recorded deltas by the speed factor
	Stiffness      float64 // applied to taught joints before playing
	BrakeStiffness float64 // applied by StopMotion
}

// DefaultOptions returns the stock playback settings.
func DefaultOptions() Options {
	return Options{
		Margin:         DefaultMargin,
		MaxStep:        DefaultMaxStep,
		ApplySpeed:     true,
		Stiffness:      DefaultStiffness,
		BrakeStiffness: DefaultBrakeStiffness,
	}
}

// BuildSchedule maps keyframe times to commanded times. Each time is shifted
// by Margin relative to the first, and consecutive commanded times are never
// more than MaxStep apart. times must already be sorted.
func BuildSchedule(times []float64, speed float64, opts Options) ([]float64, error) {
	if speed <= 0 {
		return nil, fmt.Errorf("%w: speed must be > 0, got %v", fault.ErrInvalidParameter, speed)
	}
	if opts.Margin < 0 || opts.MaxStep <= 0 {
		return nil, fmt.Errorf("%w: margin %v, max step %v", fault.ErrInvalidParameter, opts.Margin, opts.MaxStep)
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: no keyframes to schedule", fault.ErrEmpty)
	}
	if !opts.ApplySpeed {
		speed = 1
	}

	t0 := times[0]
	s := make([]float64, len(times))
	for i, t := range times {
		r := (t-t0)/speed + opts.Margin
		if i == 0 {
			s[i] = r
			continue
		}
		s[i] = min(r, s[i-1]+opts.MaxStep)
	}
	return s, nil
}

// ModeChecker reports whether scripted motion is currently allowed.
type ModeChecker interface {
	CheckMotion() error
}

// Player submits gestures to an actuator.
type Player struct {
	svc   motion.Service
	modes ModeChecker
	opts  Options
	log   *zap.SugaredLogger
}

func NewPlayer(svc motion.Service, modes ModeChecker, opts Options, logger *zap.SugaredLogger) *Player {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Player{svc: svc, modes: modes, opts: opts, log: logger}
}

// Plan is the interpolation a Play call submits.
type Plan struct {
	Names      []string
	AngleLists [][]float64
	Times      []float64
}

// Duration is the commanded time of the last point.
func (p Plan) Duration() float64 {
	if len(p.Times) == 0 {
		return 0
	}
	return p.Times[len(p.Times)-1]
}

// Prepare validates g and builds its plan without touching the actuator.
func (p *Player) Prepare(g *gesture.Gesture, speed float64) (Plan, error) {
	if speed <= 0 {
		return Plan{}, fmt.Errorf("%w: speed must be > 0, got %v", fault.ErrInvalidParameter, speed)
	}
	if g == nil || g.Len() == 0 {
		return Plan{}, fmt.Errorf("%w: no gesture to play", fault.ErrEmpty)
	}
	if err := g.Validate(); err != nil {
		return Plan{}, err
	}

	sorted := g.Sorted()
	times, err := BuildSchedule(sorted.Times(), speed, p.opts)
	if err != nil {
		return Plan{}, err
	}
	angleLists := lo.Times(len(sorted.Names), func(j int) []float64 {
		return lo.Map(sorted.Keyframes, func(kf gesture.Keyframe, _ int) float64 {
			return kf.Angles[j]
		})
	})
	return Plan{Names: sorted.Names, AngleLists: angleLists, Times: times}, nil
}

// Play submits g as one absolute-time interpolation and blocks until the
// actuator reports it done. Parameter, mode and emptiness checks happen
// before any actuator call. A failed command is not retried.
func (p *Player) Play(ctx context.Context, g *gesture.Gesture, speed float64) (Plan, error) {
	if speed <= 0 {
		return Plan{}, fmt.Errorf("%w: speed must be > 0, got %v", fault.ErrInvalidParameter, speed)
	}
	if p.modes != nil {
		if err := p.modes.CheckMotion(); err != nil {
			return Plan{}, err
		}
	}
	plan, err := p.Prepare(g, speed)
	if err != nil {
		return Plan{}, err
	}
	if p.svc == nil {
		return Plan{}, fault.ErrConnection
	}

	if err := p.svc.SetStiffness(ctx, plan.Names, p.opts.Stiffness); err != nil {
		p.log.Warnf("Could not raise stiffness before playback: %v", err)
	}

	timeLists := lo.Times(len(plan.Names), func(int) []float64 { return plan.Times })
	p.log.Infof("Playing %d keyframes on %d joints over %.2fs (speed %.2f)",
		len(plan.Times), len(plan.Names), plan.Duration(), speed)
	if err := p.svc.Interpolate(ctx, plan.Names, plan.AngleLists, timeLists, true); err != nil {
		return plan, fmt.Errorf("%w: interpolate: %w", fault.ErrCommand, err)
	}
	return plan, nil
}

// StopMotion aborts any in-flight trajectory, then drops joints to the brake
// stiffness so the body settles instead of collapsing.
func (p *Player) StopMotion(ctx context.Context, joints []string) error {
	if p.svc == nil {
		return fault.ErrConnection
	}
	if err := p.svc.StopMotion(ctx); err != nil {
		p.log.Debugf("StopMotion: %v", err)
	}
	if len(joints) == 0 {
		return nil
	}
	brake := min(max(p.opts.BrakeStiffness, 0), 1)
	if err := p.svc.SetStiffness(ctx, joints, brake); err != nil {
		return fmt.Errorf("%w: brake stiffness: %w", fault.ErrCommand, err)
	}
	p.log.Infof("Brake applied: stiffness %.2f on %d joints", brake, len(joints))
	return nil
}
