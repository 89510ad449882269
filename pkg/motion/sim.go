package motion

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gwillem/teachbot/pkg/fault"
)

// Method names used by Sim for call logging, failure injection and
// capability removal.
const (
	MethodStopMotion             = "StopMotion"
	MethodSetStiffness           = "SetStiffness"
	MethodBodyStiffness          = "SetStiffness(Body)"
	MethodAngles                 = "Angles"
	MethodSetAngles              = "SetAngles"
	MethodInterpolate            = "Interpolate"
	MethodPose                   = "Pose"
	MethodSetCollisionProtection = "SetCollisionProtection"
	MethodSetAdaptiveStiffness   = "SetAdaptiveStiffness"
	MethodSetBreathing           = "SetBreathing"
	MethodStopAwareness          = "StopAwareness"
	MethodSetAutonomyState       = "SetAutonomyState"
	MethodWake                   = "Wake"
)

// Call is one recorded Sim invocation.
type Call struct {
	Method string
	Names  []string
	Value  float64
	Arg    string
}

// Interpolation is a recorded Interpolate command.
type Interpolation struct {
	Names      []string
	AngleLists [][]float64
	TimeLists  [][]float64
	Absolute   bool
}

// Sim is an in-memory actuator. It implements Service and every optional
// capability, any of which can be removed or made to fail.
type Sim struct {
	mu          sync.Mutex
	joints      []string
	angles      map[string]float64
	stiffness   map[string]float64
	pose        Pose
	calls       []Call
	moves       []Interpolation
	unsupported map[string]bool
	failures    map[string]error
	source      func(names []string) []float64
	realtime    bool
	cancel      context.CancelFunc
}

var (
	_ Service            = (*Sim)(nil)
	_ Poser              = (*Sim)(nil)
	_ CollisionGuard     = (*Sim)(nil)
	_ StiffnessAdapter   = (*Sim)(nil)
	_ Breather           = (*Sim)(nil)
	_ AwarenessTracker   = (*Sim)(nil)
	_ AutonomyController = (*Sim)(nil)
	_ Waker              = (*Sim)(nil)
)

// NewSim creates a simulated body with the given joints, all at zero.
func NewSim(joints []string) *Sim {
	s := &Sim{
		joints:      slices.Clone(joints),
		angles:      make(map[string]float64, len(joints)),
		stiffness:   make(map[string]float64, len(joints)),
		unsupported: make(map[string]bool),
		failures:    make(map[string]error),
	}
	for _, j := range joints {
		s.angles[j] = 0
		s.stiffness[j] = 1
	}
	return s
}

// Unsupport makes the given methods return ErrUnsupported.
func (s *Sim) Unsupport(methods ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range methods {
		s.unsupported[m] = true
	}
}

// Fail makes method return err until cleared with a nil err.
func (s *Sim) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// SetSource overrides sensor readings. fn is called without the Sim lock held.
func (s *Sim) SetSource(fn func(names []string) []float64) {
	s.mu.Lock()
	s.source = fn
	s.mu.Unlock()
}

// SetRealtime makes Interpolate play out over the scheduled duration instead
// of jumping to the final pose.
func (s *Sim) SetRealtime(on bool) {
	s.mu.Lock()
	s.realtime = on
	s.mu.Unlock()
}

func (s *Sim) SetAngle(name string, v float64) {
	s.mu.Lock()
	s.angles[name] = v
	s.mu.Unlock()
}

func (s *Sim) SetPose(p Pose) {
	s.mu.Lock()
	s.pose = p
	s.mu.Unlock()
}

// Calls returns a copy of the call log.
func (s *Sim) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// Methods returns the method names of the call log, in order.
func (s *Sim) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Method
	}
	return out
}

func (s *Sim) ResetCalls() {
	s.mu.Lock()
	s.calls = nil
	s.mu.Unlock()
}

// Stiffness returns the last stiffness applied to a joint.
func (s *Sim) Stiffness(name string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stiffness[name]
}

// Interpolations returns every accepted Interpolate command.
func (s *Sim) Interpolations() []Interpolation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.moves)
}

// record logs a call and returns the injected outcome for it. Callers must
// hold s.mu.
func (s *Sim) record(c Call) error {
	s.calls = append(s.calls, c)
	if s.unsupported[c.Method] {
		return ErrUnsupported
	}
	return s.failures[c.Method]
}

func (s *Sim) indexOf(names []string) error {
	for _, n := range names {
		if _, ok := s.angles[n]; !ok {
			return fmt.Errorf("%w: unknown joint %q", fault.ErrInvalidParameter, n)
		}
	}
	return nil
}

func (s *Sim) StopMotion(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodStopMotion}); err != nil {
		return err
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

func (s *Sim) SetStiffness(ctx context.Context, names []string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	method := MethodSetStiffness
	if len(names) == 1 && names[0] == GroupBody {
		method = MethodBodyStiffness
	}
	if err := s.record(Call{Method: method, Names: slices.Clone(names), Value: value}); err != nil {
		return err
	}
	if method == MethodBodyStiffness {
		names = s.joints
	} else if err := s.indexOf(names); err != nil {
		return err
	}
	for _, n := range names {
		s.stiffness[n] = value
	}
	return nil
}

func (s *Sim) Angles(ctx context.Context, names []string, useSensors bool) ([]float64, error) {
	s.mu.Lock()
	if err := s.record(Call{Method: MethodAngles, Names: slices.Clone(names)}); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.indexOf(names); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	source := s.source
	if source == nil || !useSensors {
		out := make([]float64, len(names))
		for i, n := range names {
			out[i] = s.angles[n]
		}
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	out := source(names)
	if len(out) != len(names) {
		return nil, fmt.Errorf("sim source returned %d angles for %d joints", len(out), len(names))
	}
	return out, nil
}

func (s *Sim) SetAngles(ctx context.Context, names []string, angles []float64, fractionMaxSpeed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodSetAngles, Names: slices.Clone(names), Value: fractionMaxSpeed}); err != nil {
		return err
	}
	if len(names) != len(angles) {
		return fmt.Errorf("%w: %d joints, %d angles", fault.ErrInvalidParameter, len(names), len(angles))
	}
	if err := s.indexOf(names); err != nil {
		return err
	}
	for i, n := range names {
		s.angles[n] = angles[i]
	}
	return nil
}

func (s *Sim) Interpolate(ctx context.Context, names []string, angleLists, timeLists [][]float64, absolute bool) error {
	s.mu.Lock()
	if err := s.record(Call{Method: MethodInterpolate, Names: slices.Clone(names)}); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.indexOf(names); err != nil {
		s.mu.Unlock()
		return err
	}
	start := make([]float64, len(names))
	for i, n := range names {
		start[i] = s.angles[n]
	}
	tr, err := NewTrajectory(start, angleLists, timeLists, absolute)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.moves = append(s.moves, Interpolation{
		Names:      slices.Clone(names),
		AngleLists: cloneLists(angleLists),
		TimeLists:  cloneLists(timeLists),
		Absolute:   absolute,
	})

	if !s.realtime {
		s.apply(names, tr.Final())
		s.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	begin := time.Now()
	for {
		elapsed := time.Since(begin).Seconds()
		s.mu.Lock()
		s.apply(names, tr.At(elapsed))
		s.mu.Unlock()
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

func (s *Sim) apply(names []string, angles []float64) {
	for i, n := range names {
		s.angles[n] = angles[i]
	}
}

func (s *Sim) Pose(ctx context.Context) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(Call{Method: MethodPose}); err != nil {
		return Pose{}, err
	}
	return s.pose, nil
}

func (s *Sim) SetCollisionProtection(ctx context.Context, chain string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(Call{Method: MethodSetCollisionProtection, Arg: chain, Value: boolValue(enabled)})
}

func (s *Sim) SetAdaptiveStiffness(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(Call{Method: MethodSetAdaptiveStiffness, Value: boolValue(enabled)})
}

func (s *Sim) SetBreathing(ctx context.Context, group string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(Call{Method: MethodSetBreathing, Arg: group, Value: boolValue(enabled)})
}

func (s *Sim) StopAwareness(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(Call{Method: MethodStopAwareness})
}

func (s *Sim) SetAutonomyState(ctx context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(Call{Method: MethodSetAutonomyState, Arg: state})
}

func (s *Sim) Wake(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(Call{Method: MethodWake})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func cloneLists(in [][]float64) [][]float64 {
	out := make([][]float64, len(in))
	for i, l := range in {
		out[i] = slices.Clone(l)
	}
	return out
}
