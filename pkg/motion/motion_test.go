package motion

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestTrajectory_At(t *testing.T) {
	tr, err := NewTrajectory(
		[]float64{0, 1},
		[][]float64{{1, 1}, {0}},
		[][]float64{{1, 2}, {0.5}},
		true,
	)
	if err != nil {
		t.Fatalf("NewTrajectory: %v", err)
	}
	if tr.Duration() != 2 {
		t.Errorf("Duration() = %f, want 2", tr.Duration())
	}

	tests := []struct {
		t    float64
		want []float64
	}{
		{0, []float64{0, 1}},
		{0.25, []float64{0.25, 0.5}},
		{0.5, []float64{0.5, 0}},
		{1.5, []float64{1, 0}},
		{5, []float64{1, 0}},
	}
	for _, tt := range tests {
		got := tr.At(tt.t)
		for j := range got {
			if math.Abs(got[j]-tt.want[j]) > 1e-9 {
				t.Errorf("At(%.2f)[%d] = %f, want %f", tt.t, j, got[j], tt.want[j])
			}
		}
	}
}

func TestTrajectory_RelativeTimes(t *testing.T) {
	tr, err := NewTrajectory([]float64{0}, [][]float64{{1, 2}}, [][]float64{{1, 1}}, false)
	if err != nil {
		t.Fatalf("NewTrajectory: %v", err)
	}
	if tr.Duration() != 2 {
		t.Errorf("Duration() = %f, want 2", tr.Duration())
	}
	if got := tr.At(1.5)[0]; math.Abs(got-1.5) > 1e-9 {
		t.Errorf("At(1.5) = %f, want 1.5", got)
	}
}

func TestTrajectory_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		angles [][]float64
		times  [][]float64
	}{
		{"joint count", [][]float64{{1}}, [][]float64{{1}, {1}}},
		{"length mismatch", [][]float64{{1, 2}, {1}}, [][]float64{{1}, {1}}},
		{"empty", [][]float64{{}, {1}}, [][]float64{{}, {1}}},
		{"backwards", [][]float64{{1, 2}, {1}}, [][]float64{{2, 1}, {1}}},
	}
	for _, tt := range tests {
		if _, err := NewTrajectory([]float64{0, 0}, tt.angles, tt.times, true); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestProbes_Unsupported(t *testing.T) {
	ctx := context.Background()

	// A Service with none of the optional capabilities.
	var bare Service = struct{ Service }{NewSim([]string{"a"})}

	if err := Wake(ctx, bare); !Unsupported(err) {
		t.Errorf("Wake on bare service: %v, want unsupported", err)
	}
	if _, err := BasePose(ctx, bare); !Unsupported(err) {
		t.Errorf("BasePose on bare service: %v, want unsupported", err)
	}
	if err := SetBreathing(ctx, bare, "Body", false); !Unsupported(err) {
		t.Errorf("SetBreathing on bare service: %v, want unsupported", err)
	}

	sim := NewSim([]string{"a"})
	sim.Unsupport(MethodWake)
	if err := Wake(ctx, sim); !Unsupported(err) {
		t.Errorf("Wake with capability removed: %v, want unsupported", err)
	}
	if err := StopAwareness(ctx, sim); err != nil {
		t.Errorf("StopAwareness: %v", err)
	}
}

func TestSim_Stiffness(t *testing.T) {
	ctx := context.Background()
	sim := NewSim([]string{"a", "b"})

	if err := sim.SetStiffness(ctx, []string{GroupBody}, 0); err != nil {
		t.Fatalf("SetStiffness(Body): %v", err)
	}
	if sim.Stiffness("a") != 0 || sim.Stiffness("b") != 0 {
		t.Error("whole-body stiffness not applied to every joint")
	}

	if err := sim.SetStiffness(ctx, []string{"b"}, 0.2); err != nil {
		t.Fatalf("SetStiffness(b): %v", err)
	}
	if sim.Stiffness("a") != 0 || sim.Stiffness("b") != 0.2 {
		t.Errorf("stiffness = (%f, %f), want (0, 0.2)", sim.Stiffness("a"), sim.Stiffness("b"))
	}

	if err := sim.SetStiffness(ctx, []string{"nope"}, 1); err == nil {
		t.Error("expected error for unknown joint")
	}
}

func TestSim_InterpolateAndFailures(t *testing.T) {
	ctx := context.Background()
	sim := NewSim([]string{"a"})

	if err := sim.Interpolate(ctx, []string{"a"}, [][]float64{{0.5, 0.7}}, [][]float64{{1, 2}}, true); err != nil {
		t.Fatalf("Interpolate: %v", err)
	}
	got, err := sim.Angles(ctx, []string{"a"}, true)
	if err != nil {
		t.Fatalf("Angles: %v", err)
	}
	if got[0] != 0.7 {
		t.Errorf("angle after interpolation = %f, want 0.7", got[0])
	}
	if n := len(sim.Interpolations()); n != 1 {
		t.Errorf("recorded %d interpolations, want 1", n)
	}

	boom := errors.New("boom")
	sim.Fail(MethodAngles, boom)
	if _, err := sim.Angles(ctx, []string{"a"}, true); !errors.Is(err, boom) {
		t.Errorf("Angles error = %v, want boom", err)
	}
	sim.Fail(MethodAngles, nil)
	if _, err := sim.Angles(ctx, []string{"a"}, true); err != nil {
		t.Errorf("Angles after clearing failure: %v", err)
	}
}
