package teach

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/teachbot/pkg/fault"
	"github.com/gwillem/teachbot/pkg/gesture"
	"github.com/gwillem/teachbot/pkg/motion"
)

var joints = []string{"J1", "J2"}

// modeStub stands in for the safety controller.
type modeStub struct{ err error }

func (m modeStub) CheckCapture() error { return m.err }

func TestGate_Scenario(t *testing.T) {
	g := &Gate{Epsilon: 0.03, MaxGap: time.Second}
	ticks := [][]float64{{0, 0}, {0.01, 0.01}, {0.05, 0.05}}
	for len(ticks) < 20 {
		ticks = append(ticks, []float64{0.05, 0.05})
	}

	var kept []time.Duration
	for i, a := range ticks {
		at := time.Duration(i) * 100 * time.Millisecond
		if g.Offer(at, a) {
			kept = append(kept, at)
		}
	}

	want := []time.Duration{0, 200 * time.Millisecond, 1200 * time.Millisecond}
	if len(kept) != len(want) {
		t.Fatalf("kept %v, want %v", kept, want)
	}
	for i := range want {
		if kept[i] != want[i] {
			t.Errorf("kept[%d] = %s, want %s", i, kept[i], want[i])
		}
	}
}

func TestGate_GapBound(t *testing.T) {
	periods := []time.Duration{25 * time.Millisecond, 30 * time.Millisecond, 70 * time.Millisecond}
	gap := time.Second

	for _, period := range periods {
		g := &Gate{Epsilon: 0.03, MaxGap: gap}
		var kept []time.Duration
		for at := time.Duration(0); at <= 5*time.Second; at += period {
			if g.Offer(at, []float64{0.4, -0.4}) {
				kept = append(kept, at)
			}
		}
		if kept[0] != 0 {
			t.Errorf("period %s: first sample not kept", period)
		}
		for i := 1; i < len(kept); i++ {
			d := kept[i] - kept[i-1]
			if d < gap || d > gap+period {
				t.Errorf("period %s: gap %s between kept samples outside [%s, %s]", period, d, gap, gap+period)
			}
		}
		// no keyframe-free window longer than the gap plus one tick
		last := kept[len(kept)-1]
		if end := 5 * time.Second; end-last > gap+period {
			t.Errorf("period %s: last keyframe at %s leaves a trailing gap", period, last)
		}
	}
}

func TestGate_SubEpsilonSignalKeepsOne(t *testing.T) {
	g := &Gate{Epsilon: 0.03, MaxGap: time.Hour}
	kept := 0
	for i := 0; i < 10000; i++ {
		wobble := 0.014 * math.Sin(float64(i))
		if g.Offer(time.Duration(i)*10*time.Millisecond, []float64{wobble, -wobble}) {
			kept++
		}
	}
	if kept != 1 {
		t.Errorf("kept %d samples, want 1", kept)
	}
}

func TestGate_Reset(t *testing.T) {
	g := &Gate{Epsilon: 1}
	if !g.Offer(0, []float64{0}) {
		t.Fatal("first sample rejected")
	}
	if g.Offer(time.Hour, []float64{0}) {
		t.Error("zero MaxGap should disable the time clause")
	}
	g.Reset()
	if !g.Offer(0, []float64{0}) {
		t.Error("sample after Reset rejected")
	}
}

func TestDistance(t *testing.T) {
	if d := Distance([]float64{0, 1, 2}, []float64{0.5, 1, 1}); d != 1 {
		t.Errorf("Distance = %f, want 1", d)
	}
	if d := Distance([]float64{0}, []float64{0, 0}); !math.IsInf(d, 1) {
		t.Errorf("Distance of mismatched widths = %f, want +Inf", d)
	}
}

func TestNewRecorder_InvalidParameters(t *testing.T) {
	sim := motion.NewSim(joints)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero hz", Config{Joints: joints, Hz: 0, Epsilon: 0.03, MaxGap: time.Second}},
		{"negative hz", Config{Joints: joints, Hz: -5, Epsilon: 0.03, MaxGap: time.Second}},
		{"negative epsilon", Config{Joints: joints, Hz: 25, Epsilon: -1, MaxGap: time.Second}},
		{"zero gap", Config{Joints: joints, Hz: 25, Epsilon: 0.03}},
		{"no joints", Config{Hz: 25, Epsilon: 0.03, MaxGap: time.Second}},
		{"duplicate joints", Config{Joints: []string{"J1", "J1"}, Hz: 25, Epsilon: 0.03, MaxGap: time.Second}},
	}
	for _, tt := range tests {
		if _, err := NewRecorder(sim, modeStub{}, tt.cfg, nil); !errors.Is(err, fault.ErrInvalidParameter) {
			t.Errorf("%s: err = %v, want InvalidParameter", tt.name, err)
		}
	}
	if n := len(sim.Calls()); n != 0 {
		t.Errorf("validation touched the actuator (%d calls)", n)
	}
}

// scriptedSim serves one pose per sensor read.
func scriptedSim(poses func(i int) []float64) *motion.Sim {
	sim := motion.NewSim(joints)
	var mu sync.Mutex
	i := 0
	sim.SetSource(func(names []string) []float64 {
		mu.Lock()
		defer mu.Unlock()
		p := poses(i)
		i++
		return p
	})
	return sim
}

func waitTicks(t *testing.T, r *Recorder, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.RawTicks() < n {
		if time.Now().After(deadline) {
			t.Fatalf("recorder stuck at %d ticks, want %d", r.RawTicks(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

type runResult struct {
	g   *gesture.Gesture
	err error
}

func TestRecorder_Scenario(t *testing.T) {
	sim := scriptedSim(func(i int) []float64 {
		switch i {
		case 0:
			return []float64{0, 0}
		case 1:
			return []float64{0.01, 0.01}
		default:
			return []float64{0.05, 0.05}
		}
	})
	mock := clock.NewMock()
	r, err := NewRecorder(sim, modeStub{}, Config{
		Joints:  joints,
		Hz:      10,
		Epsilon: 0.03,
		MaxGap:  time.Second,
	}, zaptest.NewLogger(t).Sugar(), WithClock(mock))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	done := make(chan runResult, 1)
	go func() {
		g, err := r.Run(context.Background())
		done <- runResult{g, err}
	}()

	waitTicks(t, r, 1)
	for i := 1; i < 20; i++ {
		mock.Add(100 * time.Millisecond)
		waitTicks(t, r, i+1)
	}
	r.Stop()
	res := <-done

	if res.err != nil {
		t.Fatalf("Run: %v", res.err)
	}
	if r.RawTicks() != 20 {
		t.Errorf("RawTicks() = %d, want 20", r.RawTicks())
	}
	wantTimes := []float64{0, 0.2, 1.2}
	if res.g.Len() != len(wantTimes) {
		t.Fatalf("kept %d samples, want %d: %+v", res.g.Len(), len(wantTimes), res.g.Keyframes)
	}
	for i, want := range wantTimes {
		if math.Abs(res.g.Keyframes[i].Time-want) > 1e-9 {
			t.Errorf("keyframe %d at %f, want %f", i, res.g.Keyframes[i].Time, want)
		}
	}
	if res.g.Hz == nil || *res.g.Hz != 10 {
		t.Errorf("Hz = %v, want 10", res.g.Hz)
	}
}

func TestRecorder_ReadFailureKeepsPartial(t *testing.T) {
	sim := scriptedSim(func(i int) []float64 { return []float64{float64(i), 0} })
	mock := clock.NewMock()
	r, err := NewRecorder(sim, modeStub{}, Config{Joints: joints, Hz: 50, Epsilon: 0.03, MaxGap: time.Second},
		zaptest.NewLogger(t).Sugar(), WithClock(mock))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan runResult, 1)
	go func() {
		g, err := r.Run(context.Background())
		done <- runResult{g, err}
	}()

	waitTicks(t, r, 1)
	sim.Fail(motion.MethodAngles, errors.New("bus timeout"))
	mock.Add(20 * time.Millisecond)

	select {
	case res := <-done:
		if !errors.Is(res.err, fault.ErrCommand) {
			t.Errorf("Run error = %v, want ActuatorCommandFailure", res.err)
		}
		if res.g == nil || res.g.Len() != 1 {
			t.Errorf("partial gesture = %+v, want 1 keyframe", res.g)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop on read failure")
	}
}

func TestRecorder_StopBeforeRunIsEmpty(t *testing.T) {
	sim := motion.NewSim(joints)
	r, err := NewRecorder(sim, modeStub{}, Config{Joints: joints, Hz: 25, Epsilon: 0.03, MaxGap: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	r.Stop()
	r.Stop()

	g, err := r.Run(context.Background())
	if !errors.Is(err, fault.ErrEmpty) || g != nil {
		t.Errorf("Run = (%v, %v), want Empty", g, err)
	}
	if n := len(sim.Calls()); n != 0 {
		t.Errorf("stopped recorder read sensors %d times", n)
	}
}

func TestRecorder_RequiresFreedrive(t *testing.T) {
	sim := motion.NewSim(joints)
	busy := modeStub{err: fault.ErrBusy}
	r, err := NewRecorder(sim, busy, Config{Joints: joints, Hz: 25, Epsilon: 0.03, MaxGap: time.Second}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Run(context.Background()); !errors.Is(err, fault.ErrBusy) {
		t.Errorf("Run outside freedrive = %v, want Busy", err)
	}
}

func TestRecorder_Progress(t *testing.T) {
	sim := motion.NewSim(joints)
	sim.SetAngle("J1", 0.5)
	mock := clock.NewMock()
	r, err := NewRecorder(sim, modeStub{}, Config{Joints: joints, Hz: 25, Epsilon: 0.03, MaxGap: time.Second},
		nil, WithClock(mock))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan runResult, 1)
	go func() {
		g, err := r.Run(ctx)
		done <- runResult{g, err}
	}()

	select {
	case p := <-r.Progress():
		if p.RawTicks != 1 || p.Kept != 1 || p.Angles[0] != 0.5 {
			t.Errorf("progress = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no progress published")
	}

	cancel()
	res := <-done
	if res.err != nil || res.g.Len() != 1 {
		t.Errorf("Run after cancel = (%v, %v), want sealed gesture", res.g, res.err)
	}
}

func TestCapturer_RejectsDuplicate(t *testing.T) {
	sim := motion.NewSim(joints)
	sim.SetAngle("J1", 0.3)
	c, err := NewCapturer(sim, modeStub{}, joints, DefaultCaptureEpsilon, zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatal(err)
	}
	g := gesture.New(joints, nil)
	ctx := context.Background()

	if _, ok, err := c.Capture(ctx, g); err != nil || !ok {
		t.Fatalf("first Capture = (%v, %v)", ok, err)
	}
	if _, ok, err := c.Capture(ctx, g); err != nil || ok {
		t.Fatalf("second Capture = (%v, %v), want rejected", ok, err)
	}
	if g.Len() != 1 {
		t.Errorf("gesture has %d keyframes, want 1", g.Len())
	}

	sim.SetAngle("J2", 0.1)
	if _, ok, err := c.Capture(ctx, g); err != nil || !ok {
		t.Errorf("Capture after moving = (%v, %v), want accepted", ok, err)
	}
	if g.Len() != 2 {
		t.Errorf("gesture has %d keyframes, want 2", g.Len())
	}
}

func TestCapturer_BasePose(t *testing.T) {
	sim := motion.NewSim(joints)
	sim.SetPose(motion.Pose{X: 1, Y: 2, Theta: 0.5})
	c, err := NewCapturer(sim, modeStub{}, joints, DefaultCaptureEpsilon, nil)
	if err != nil {
		t.Fatal(err)
	}
	g := gesture.New(joints, nil)
	kf, _, err := c.Capture(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	if kf.Base == nil || *kf.Base != (gesture.BasePose{X: 1, Y: 2, Theta: 0.5}) {
		t.Errorf("base pose = %+v", kf.Base)
	}

	sim.Unsupport(motion.MethodPose)
	sim.SetAngle("J1", 1)
	kf, ok, err := c.Capture(context.Background(), g)
	if err != nil || !ok {
		t.Fatalf("Capture without base pose = (%v, %v)", ok, err)
	}
	if kf.Base != nil {
		t.Error("unsupported base pose should be omitted")
	}
}

func TestCapturer_Errors(t *testing.T) {
	sim := motion.NewSim(joints)
	ctx := context.Background()

	c, err := NewCapturer(sim, modeStub{err: fault.ErrBusy}, joints, DefaultCaptureEpsilon, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Capture(ctx, gesture.New(joints, nil)); !errors.Is(err, fault.ErrBusy) {
		t.Errorf("Capture outside teach mode = %v, want Busy", err)
	}

	c, _ = NewCapturer(sim, modeStub{}, joints, DefaultCaptureEpsilon, nil)
	if _, _, err := c.Capture(ctx, gesture.New([]string{"other"}, nil)); !errors.Is(err, fault.ErrInvalidParameter) {
		t.Errorf("Capture into foreign schema = %v, want InvalidParameter", err)
	}

	sim.Fail(motion.MethodAngles, errors.New("offline"))
	if _, _, err := c.Capture(ctx, gesture.New(joints, nil)); !errors.Is(err, fault.ErrCommand) {
		t.Errorf("Capture with failing sensors = %v, want ActuatorCommandFailure", err)
	}
}
