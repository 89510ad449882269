// Package safety sequences an actuator through quiet, freedrive and hold
// states so background behaviors do not fight manual posing or playback.
//
// Every optional call is best-effort: a capability the actuator lacks, or one
// that fails, is logged at debug level and the sequence carries on.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/teachbot/pkg/fault"
	"github.com/gwillem/teachbot/pkg/motion"
)

// Mode is the safety state of one actuator session.
type Mode int

const (
	Normal Mode = iota
	Quiet
	Freedrive
	Hold
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Quiet:
		return "quiet"
	case Freedrive:
		return "freedrive"
	case Hold:
		return "hold"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// DefaultHoldStiffness keeps the body from going limp after teaching.
const DefaultHoldStiffness = 0.2

// Options tunes the controller. Zero values select the defaults.
type Options struct {
	// ReassertDelay separates the two zero-stiffness commands of freedrive.
	ReassertDelay time.Duration
	// BreathGroups are the limb groups whose idle animation is disabled.
	BreathGroups []string
	// CollisionChains are the chains whose collision protection is toggled.
	CollisionChains []string
	// Clock drives the re-assert delay; tests inject a mock.
	Clock clock.Clock
}

func (o Options) withDefaults() Options {
	if o.ReassertDelay <= 0 {
		o.ReassertDelay = 200 * time.Millisecond
	}
	if len(o.BreathGroups) == 0 {
		o.BreathGroups = []string{"Body", "Arms", "Head"}
	}
	if len(o.CollisionChains) == 0 {
		o.CollisionChains = []string{"All"}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Controller owns the safety mode of one actuator session.
type Controller struct {
	svc  motion.Service
	opts Options
	log  *zap.SugaredLogger

	mu   sync.RWMutex
	mode Mode
}

// New creates a controller in Normal mode.
func New(svc motion.Service, opts Options, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		svc:  svc,
		opts: opts.withDefaults(),
		log:  logger,
	}
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Controller) setMode(m Mode) {
	c.mu.Lock()
	prev := c.mode
	c.mode = m
	c.mu.Unlock()
	if prev != m {
		c.log.Infof("Safety mode %s -> %s", prev, m)
	}
}

// CheckCapture fails unless joint values may be captured.
func (c *Controller) CheckCapture() error {
	if m := c.Mode(); m != Freedrive {
		return fmt.Errorf("%w: capture requires teach mode (mode is %s)", fault.ErrBusy, m)
	}
	return nil
}

// CheckMotion fails while a commanded motion would race freedrive.
func (c *Controller) CheckMotion() error {
	if m := c.Mode(); m == Freedrive {
		return fmt.Errorf("%w: teach mode is active", fault.ErrBusy)
	}
	return nil
}

// EnterQuiet stops motion and disables autonomous behavior, awareness
// tracking and breathing.
func (c *Controller) EnterQuiet(ctx context.Context) error {
	if err := c.connected(); err != nil {
		return err
	}
	if c.Mode() == Freedrive {
		return fmt.Errorf("%w: exit teach mode before entering quiet mode", fault.ErrBusy)
	}
	c.quiet(ctx)
	c.setMode(Quiet)
	return ctx.Err()
}

// EnterFreedrive makes the body limp so an operator can pose it. joints is
// the fallback subset when whole-body stiffness is not supported.
func (c *Controller) EnterFreedrive(ctx context.Context, joints []string) error {
	if err := c.connected(); err != nil {
		return err
	}

	c.quiet(ctx)
	for _, chain := range c.opts.CollisionChains {
		c.try("disable collision protection "+chain, motion.SetCollisionProtection(ctx, c.svc, chain, false))
	}
	c.try("disable adaptive stiffness", motion.SetAdaptiveStiffness(ctx, c.svc, false))

	target := []string{motion.GroupBody}
	if err := c.svc.SetStiffness(ctx, target, 0); err != nil {
		c.log.Debugf("Whole-body stiffness rejected (%v), using %d joints", err, len(joints))
		target = joints
		c.try("zero stiffness", c.svc.SetStiffness(ctx, target, 0))
	}

	// Some firmwares reassert stiffness shortly after the first command.
	select {
	case <-c.opts.Clock.After(c.opts.ReassertDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	c.try("re-assert zero stiffness", c.svc.SetStiffness(ctx, target, 0))

	c.setMode(Freedrive)
	return nil
}

// ExitFreedrive restores protections, wakes the actuator and applies hold
// stiffness to joints only.
func (c *Controller) ExitFreedrive(ctx context.Context, joints []string, hold float64) error {
	if err := c.connected(); err != nil {
		return err
	}
	hold = max(0, min(1, hold))

	for _, chain := range c.opts.CollisionChains {
		c.try("enable collision protection "+chain, motion.SetCollisionProtection(ctx, c.svc, chain, true))
	}
	c.try("enable adaptive stiffness", motion.SetAdaptiveStiffness(ctx, c.svc, true))
	c.quiet(ctx)
	c.try("wake", motion.Wake(ctx, c.svc))
	if len(joints) > 0 {
		c.try("hold stiffness", c.svc.SetStiffness(ctx, joints, hold))
	}

	c.setMode(Hold)
	return ctx.Err()
}

func (c *Controller) quiet(ctx context.Context) {
	c.try("stop motion", c.svc.StopMotion(ctx))
	c.try("disable autonomy", motion.SetAutonomyState(ctx, c.svc, "disabled"))
	c.try("stop awareness", motion.StopAwareness(ctx, c.svc))
	for _, g := range c.opts.BreathGroups {
		c.try("disable breathing "+g, motion.SetBreathing(ctx, c.svc, g, false))
	}
}

// try swallows the outcome of a best-effort call.
func (c *Controller) try(what string, err error) {
	switch {
	case err == nil:
	case motion.Unsupported(err):
		c.log.Debugf("Skipping %s: not supported", what)
	default:
		c.log.Debugf("Ignoring failed %s: %v", what, err)
	}
}

func (c *Controller) connected() error {
	if c.svc == nil {
		return fault.ErrConnection
	}
	return nil
}
