// Package editor reviews a loaded gesture frame by frame, moves the body to
// a chosen frame and corrects joint values in place.
package editor

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

// Defaults for Options.
const (
	DefaultLeadIn        = time.Second
	MinLeadIn            = 50 * time.Millisecond
	DefaultFallbackSpeed = 0.15
	DefaultPreviewSpeed  = 0.10
	DefaultStiffness     = 1.0
	DefaultStep          = 0.1
)

type Options struct {
	LeadIn        time.Duration // default go-to-frame duration
	FallbackSpeed float64       // SetAngles fraction when interpolation is rejected
	PreviewSpeed  float64       // SetAngles fraction for previews
	Stiffness     float64       // held while editing, at most 1
	Step          float64       // radians per Bump
	LivePreview   bool
	Clock         clock.Clock
}

// DefaultOptions returns the stock editor settings.
func DefaultOptions() Options {
	return Options{
		LeadIn:        DefaultLeadIn,
		FallbackSpeed: DefaultFallbackSpeed,
		PreviewSpeed:  DefaultPreviewSpeed,
		Stiffness:     DefaultStiffness,
		Step:          DefaultStep,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.LeadIn <= 0 {
		o.LeadIn = d.LeadIn
	}
	if o.FallbackSpeed <= 0 {
		o.FallbackSpeed = d.FallbackSpeed
	}
	if o.PreviewSpeed <= 0 {
		o.PreviewSpeed = d.PreviewSpeed
	}
	if o.Step <= 0 {
		o.Step = d.Step
	}
	if o.Stiffness <= 0 {
		o.Stiffness = d.Stiffness
	}
	o.Stiffness = min(o.Stiffness, 1)
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Move describes a go-to-frame command as issued.
type Move struct {
	Frame    int
	Times    []float64 // commanded times in seconds
	From     []float64
	To       []float64
	Fallback bool // interpolation was rejected and SetAngles was used
}

// Duration is the time the move takes to reach its target.
func (m Move) Duration() float64 {
	if len(m.Times) == 0 {
		return 0
	}
	return m.Times[len(m.Times)-1]
}

// Editor holds a cursor over a gesture. Edits change the gesture in place;
// nothing is persisted until the caller saves it.
type Editor struct {
	svc  motion.Service
	opts Options
	log  *zap.SugaredLogger

	mu    sync.Mutex
	g     *gesture.Gesture
	frame int
	joint int
}

// New opens g for editing. The gesture must have at least one keyframe.
func New(svc motion.Service, g *gesture.Gesture, opts Options, logger *zap.SugaredLogger) (*Editor, error) {
	if g == nil || g.Len() == 0 {
		return nil, fmt.Errorf("%w: no gesture to edit", fault.ErrEmpty)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Editor{svc: svc, opts: opts.withDefaults(), log: logger, g: g}, nil
}

// Gesture returns the gesture being edited.
func (e *Editor) Gesture() *gesture.Gesture {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.g
}

func (e *Editor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.g.Len()
}

// Frame returns the selected frame index.
func (e *Editor) Frame() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// Joint returns the selected joint index.
func (e *Editor) Joint() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.joint
}

// Keyframe returns a copy of the selected frame.
func (e *Editor) Keyframe() gesture.Keyframe {
	e.mu.Lock()
	defer e.mu.Unlock()
	kf := e.g.Keyframes[e.frame]
	kf.Angles = slices.Clone(kf.Angles)
	return kf
}

func (e *Editor) Select(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= e.g.Len() {
		return fmt.Errorf("%w: frame %d out of range [0, %d)", fault.ErrInvalidParameter, i, e.g.Len())
	}
	e.frame = i
	return nil
}

// Next advances one frame, stopping at the last.
func (e *Editor) Next() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frame = min(e.frame+1, e.g.Len()-1)
	return e.frame
}

// Prev steps back one frame, stopping at the first.
func (e *Editor) Prev() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frame = max(e.frame-1, 0)
	return e.frame
}

func (e *Editor) SelectJoint(j int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if j < 0 || j >= len(e.g.Names) {
		return fmt.Errorf("%w: joint %d out of range [0, %d)", fault.ErrInvalidParameter, j, len(e.g.Names))
	}
	e.joint = j
	return nil
}

// LivePreview reports whether edits are sent to the body as they happen.
func (e *Editor) LivePreview() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.LivePreview
}

func (e *Editor) SetLivePreview(on bool) {
	e.mu.Lock()
	e.opts.LivePreview = on
	e.mu.Unlock()
}

// GoToFrame selects frame i and moves the body there from wherever it is
// now, reaching the target after max(leadIn, MinLeadIn). A non-positive
// leadIn uses the configured default. If the interpolation is rejected the
// target is sent with SetAngles and GoToFrame waits out the lead-in.
func (e *Editor) GoToFrame(ctx context.Context, i int, leadIn time.Duration) (Move, error) {
	if err := e.Select(i); err != nil {
		return Move{}, err
	}
	if e.svc == nil {
		return Move{}, fault.ErrConnection
	}
	e.mu.Lock()
	names := slices.Clone(e.g.Names)
	target := slices.Clone(e.g.Keyframes[i].Angles)
	e.mu.Unlock()

	if leadIn <= 0 {
		leadIn = e.opts.LeadIn
	}
	total := max(leadIn, MinLeadIn)

	e.hold(ctx, names)
	current, err := e.svc.Angles(ctx, names, true)
	if err != nil {
		return Move{}, fmt.Errorf("%w: read current angles: %w", fault.ErrCommand, err)
	}
	if len(current) != len(names) {
		return Move{}, fmt.Errorf("%w: sensors returned %d angles for %d joints", fault.ErrCommand, len(current), len(names))
	}

	mv := Move{
		Frame: i,
		Times: []float64{(MinLeadIn / 2).Seconds(), total.Seconds()},
		From:  current,
		To:    target,
	}
	angleLists := make([][]float64, len(names))
	timeLists := make([][]float64, len(names))
	for j := range names {
		angleLists[j] = []float64{current[j], target[j]}
		timeLists[j] = mv.Times
	}

	err = e.svc.Interpolate(ctx, names, angleLists, timeLists, true)
	if err == nil {
		e.log.Infof("Arrived at frame %d", i+1)
		return mv, nil
	}
	if ctx.Err() != nil {
		return mv, ctx.Err()
	}

	e.log.Warnf("Interpolation to frame %d rejected, falling back to SetAngles: %v", i+1, err)
	mv.Fallback = true
	mv.Times = []float64{total.Seconds()}
	if err := e.svc.SetAngles(ctx, names, target, e.opts.FallbackSpeed); err != nil {
		return mv, fmt.Errorf("%w: set angles: %w", fault.ErrCommand, err)
	}
	select {
	case <-e.opts.Clock.After(total):
	case <-ctx.Done():
		return mv, ctx.Err()
	}
	e.log.Infof("Arrived at frame %d", i+1)
	return mv, nil
}

// SetJointValue overwrites one joint of one frame. With live preview on,
// the frame's pose is sent to the body right away.
func (e *Editor) SetJointValue(ctx context.Context, frame, joint int, v float64) error {
	e.mu.Lock()
	if frame < 0 || frame >= e.g.Len() {
		e.mu.Unlock()
		return fmt.Errorf("%w: frame %d out of range [0, %d)", fault.ErrInvalidParameter, frame, e.g.Len())
	}
	if joint < 0 || joint >= len(e.g.Names) {
		e.mu.Unlock()
		return fmt.Errorf("%w: joint %d out of range [0, %d)", fault.ErrInvalidParameter, joint, len(e.g.Names))
	}
	e.g.Keyframes[frame].Angles[joint] = v
	live := e.opts.LivePreview
	e.mu.Unlock()

	if !live {
		return nil
	}
	return e.send(ctx, frame)
}

// Bump moves the selected joint of the selected frame by direction*step.
// A zero step uses the configured step. It returns the new value.
func (e *Editor) Bump(ctx context.Context, direction int, step float64) (float64, error) {
	if direction == 0 {
		return 0, fmt.Errorf("%w: bump direction must be non-zero", fault.ErrInvalidParameter)
	}
	if step == 0 {
		step = e.opts.Step
	}
	e.mu.Lock()
	frame, joint := e.frame, e.joint
	v := e.g.Keyframes[frame].Angles[joint] + float64(direction)*step
	e.mu.Unlock()

	return v, e.SetJointValue(ctx, frame, joint, v)
}

// Preview sends the selected frame's pose to the body.
func (e *Editor) Preview(ctx context.Context) error {
	return e.send(ctx, e.Frame())
}

func (e *Editor) send(ctx context.Context, frame int) error {
	if e.svc == nil {
		return fault.ErrConnection
	}
	e.mu.Lock()
	names := slices.Clone(e.g.Names)
	angles := slices.Clone(e.g.Keyframes[frame].Angles)
	e.mu.Unlock()

	e.hold(ctx, names)
	if err := e.svc.SetAngles(ctx, names, angles, e.opts.PreviewSpeed); err != nil {
		return fmt.Errorf("%w: preview frame %d: %w", fault.ErrCommand, frame+1, err)
	}
	return nil
}

// hold applies the edit stiffness so the body keeps the pose it is sent to.
func (e *Editor) hold(ctx context.Context, names []string) {
	if err := e.svc.SetStiffness(ctx, names, e.opts.Stiffness); err != nil {
		e.log.Debugf("Edit stiffness: %v", err)
	}
}
