// Package teach turns a limp, hand-posed body into keyframes, either by
// sampling the joint sensors continuously or by capturing single poses.
package teach

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/teachbot/pkg/fault"
	"github.com/gwillem/teachbot/pkg/gesture"
	"github.com/gwillem/teachbot/pkg/motion"
)

// ModeChecker reports whether joint capture is currently allowed.
// *safety.Controller implements it.
type ModeChecker interface {
	CheckCapture() error
}

// Config holds recorder settings.
type Config struct {
	Joints  []string
	Hz      float64
	Epsilon float64       // radians
	MaxGap  time.Duration // upper bound between kept samples
}

func (c Config) validate() error {
	if c.Hz <= 0 {
		return fmt.Errorf("%w: hz must be > 0, got %v", fault.ErrInvalidParameter, c.Hz)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("%w: epsilon must be >= 0, got %v", fault.ErrInvalidParameter, c.Epsilon)
	}
	if c.MaxGap <= 0 {
		return fmt.Errorf("%w: max gap must be > 0, got %s", fault.ErrInvalidParameter, c.MaxGap)
	}
	return gesture.ValidateSchema(c.Joints)
}

// Progress is a snapshot of a running recording.
type Progress struct {
	RawTicks int
	Kept     int
	Elapsed  time.Duration
	Angles   []float64
}

// Option configures a Recorder or Capturer.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Recorder samples joint sensors at a fixed rate and keeps the significant
// samples.
type Recorder struct {
	svc   motion.Service
	modes ModeChecker
	cfg   Config
	log   *zap.SugaredLogger
	clock clock.Clock

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	rawTicks int

	progressCh chan Progress
}

// NewRecorder validates cfg and prepares a recorder. Nothing touches the
// actuator until Run.
func NewRecorder(svc motion.Service, modes ModeChecker, cfg Config, logger *zap.SugaredLogger, opts ...Option) (*Recorder, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, fault.ErrConnection
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	o := buildOptions(opts)
	cfg.Joints = slices.Clone(cfg.Joints)
	return &Recorder{
		svc:        svc,
		modes:      modes,
		cfg:        cfg,
		log:        logger,
		clock:      o.clock,
		stopCh:     make(chan struct{}),
		progressCh: make(chan Progress, 1),
	}, nil
}

// Progress returns a channel of the latest recording snapshot. Stale
// snapshots are replaced, never queued.
func (r *Recorder) Progress() <-chan Progress {
	return r.progressCh
}

// RawTicks returns how many sensor reads have been made.
func (r *Recorder) RawTicks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rawTicks
}

// Stop ends the recording at the next tick. It is safe to call more than
// once and before Run.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Run samples until Stop is called or ctx is done, then seals the kept
// samples into a gesture. A sensor read failure ends the run; the samples
// kept so far are returned alongside the error. A run that kept nothing
// fails with fault.ErrEmpty.
func (r *Recorder) Run(ctx context.Context) (*gesture.Gesture, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: already recording", fault.ErrBusy)
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	if r.modes != nil {
		if err := r.modes.CheckCapture(); err != nil {
			return nil, err
		}
	}

	hz := r.cfg.Hz
	g := gesture.New(r.cfg.Joints, &hz)
	gate := &Gate{Epsilon: r.cfg.Epsilon, MaxGap: r.cfg.MaxGap}

	period := time.Duration(float64(time.Second) / r.cfg.Hz)
	start := r.clock.Now()
	ticker := r.clock.Ticker(period)
	defer ticker.Stop()

	r.log.Infof("Recording %d joints at %.1f Hz (epsilon %.3f rad, max gap %s)",
		len(r.cfg.Joints), r.cfg.Hz, r.cfg.Epsilon, r.cfg.MaxGap)

	for {
		select {
		case <-r.stopCh:
			return r.seal(g)
		case <-ctx.Done():
			return r.seal(g)
		default:
		}

		if err := r.step(ctx, start, gate, g); err != nil {
			r.log.Warnf("Recording aborted after %d ticks: %v", r.RawTicks(), err)
			if g.Len() == 0 {
				return nil, err
			}
			return g, err
		}

		select {
		case <-r.stopCh:
			return r.seal(g)
		case <-ctx.Done():
			return r.seal(g)
		case <-ticker.C:
		}
	}
}

func (r *Recorder) step(ctx context.Context, start time.Time, gate *Gate, g *gesture.Gesture) error {
	angles, err := r.svc.Angles(ctx, r.cfg.Joints, true)
	if err != nil {
		return fmt.Errorf("%w: sample sensors: %w", fault.ErrCommand, err)
	}
	if len(angles) != len(r.cfg.Joints) {
		return fmt.Errorf("%w: sensors returned %d angles for %d joints",
			fault.ErrCommand, len(angles), len(r.cfg.Joints))
	}
	elapsed := r.clock.Now().Sub(start)

	r.mu.Lock()
	r.rawTicks++
	ticks := r.rawTicks
	r.mu.Unlock()

	if gate.Offer(elapsed, angles) {
		g.Keyframes = append(g.Keyframes, gesture.Keyframe{
			Time:   elapsed.Seconds(),
			Angles: slices.Clone(angles),
		})
	}

	r.sendProgress(Progress{
		RawTicks: ticks,
		Kept:     g.Len(),
		Elapsed:  elapsed,
		Angles:   angles,
	})
	return nil
}

func (r *Recorder) seal(g *gesture.Gesture) (*gesture.Gesture, error) {
	ticks := r.RawTicks()
	if g.Len() == 0 {
		r.log.Infof("Recording stopped after %d ticks with no samples", ticks)
		return nil, fmt.Errorf("%w: no samples captured", fault.ErrEmpty)
	}
	r.log.Infof("Recording stopped: %d ticks, %d kept", ticks, g.Len())
	return g, nil
}

func (r *Recorder) sendProgress(p Progress) {
	select {
	case r.progressCh <- p:
	default:
		// Drop the stale snapshot and replace it
		select {
		case <-r.progressCh:
		default:
		}
		select {
		case r.progressCh <- p:
		default:
		}
	}
}
