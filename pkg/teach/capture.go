package teach

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/teachbot/pkg/fault"
	"github.com/gwillem/teachbot/pkg/gesture"
	"github.com/gwillem/teachbot/pkg/motion"
)

// DefaultCaptureEpsilon rejects captures within 0.03 rad of the last keyframe.
const DefaultCaptureEpsilon = 0.03

// Capturer takes single poses on demand during teach mode.
type Capturer struct {
	svc     motion.Service
	modes   ModeChecker
	joints  []string
	epsilon float64
	log     *zap.SugaredLogger
	clock   clock.Clock
	epoch   time.Time
}

// NewCapturer starts a capture session; keyframe times are measured from now.
func NewCapturer(svc motion.Service, modes ModeChecker, joints []string, epsilon float64, logger *zap.SugaredLogger, opts ...Option) (*Capturer, error) {
	if err := gesture.ValidateSchema(joints); err != nil {
		return nil, err
	}
	if epsilon < 0 {
		return nil, fmt.Errorf("%w: epsilon must be >= 0, got %v", fault.ErrInvalidParameter, epsilon)
	}
	if svc == nil {
		return nil, fault.ErrConnection
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	o := buildOptions(opts)
	return &Capturer{
		svc:     svc,
		modes:   modes,
		joints:  slices.Clone(joints),
		epsilon: epsilon,
		log:     logger,
		clock:   o.clock,
		epoch:   o.clock.Now(),
	}, nil
}

// Joints returns the capture schema.
func (c *Capturer) Joints() []string {
	return slices.Clone(c.joints)
}

// Capture reads the current pose and appends it to g unless it is within
// epsilon of g's last keyframe. The keyframe is returned either way;
// accepted reports whether it was appended.
func (c *Capturer) Capture(ctx context.Context, g *gesture.Gesture) (gesture.Keyframe, bool, error) {
	if c.modes != nil {
		if err := c.modes.CheckCapture(); err != nil {
			return gesture.Keyframe{}, false, err
		}
	}
	if !slices.Equal(g.Names, c.joints) {
		return gesture.Keyframe{}, false, fmt.Errorf("%w: gesture schema %v differs from capture joints %v",
			fault.ErrInvalidParameter, g.Names, c.joints)
	}

	t := c.clock.Now().Sub(c.epoch).Seconds()
	angles, err := c.svc.Angles(ctx, c.joints, true)
	if err != nil {
		return gesture.Keyframe{}, false, fmt.Errorf("%w: read sensors: %w", fault.ErrCommand, err)
	}
	if len(angles) != len(c.joints) {
		return gesture.Keyframe{}, false, fmt.Errorf("%w: sensors returned %d angles for %d joints",
			fault.ErrCommand, len(angles), len(c.joints))
	}

	kf := gesture.Keyframe{Time: t, Angles: slices.Clone(angles)}
	pose, err := motion.BasePose(ctx, c.svc)
	switch {
	case err == nil:
		kf.Base = &gesture.BasePose{X: pose.X, Y: pose.Y, Theta: pose.Theta}
	case motion.Unsupported(err):
	default:
		return gesture.Keyframe{}, false, fmt.Errorf("%w: read base pose: %w", fault.ErrCommand, err)
	}

	if last, ok := g.Last(); ok {
		if d := Distance(angles, last.Angles); d < c.epsilon {
			c.log.Debugf("Capture rejected: %.4f rad from last keyframe", d)
			return kf, false, nil
		}
	}
	if err := g.Append(kf); err != nil {
		return gesture.Keyframe{}, false, err
	}
	c.log.Infof("Captured keyframe #%d at t=%.2fs", g.Len(), t)
	return kf, true, nil
}
