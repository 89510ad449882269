package main

import (
	"context"
	"testing"
	"time"

	"github.com/gwillem/teachbot/pkg/motion"
	"github.com/gwillem/teachbot/pkg/robot"
)

func TestSessionConfig(t *testing.T) {
	cfg := robot.DefaultConfig()
	cfg.Teach.MaxGap = 0.5
	cfg.Teach.ReassertDelay = 0.1
	cfg.Editor.LeadIn = 2
	cfg.Playback.ApplySpeed = false

	sc := sessionConfig(cfg)
	if sc.MaxGap != 500*time.Millisecond {
		t.Errorf("MaxGap = %s", sc.MaxGap)
	}
	if sc.Safety.ReassertDelay != 100*time.Millisecond {
		t.Errorf("ReassertDelay = %s", sc.Safety.ReassertDelay)
	}
	if sc.Editor.LeadIn != 2*time.Second {
		t.Errorf("LeadIn = %s", sc.Editor.LeadIn)
	}
	if sc.Playback.ApplySpeed || sc.Playback.MaxStep != cfg.Playback.MaxStep {
		t.Errorf("Playback = %+v", sc.Playback)
	}
	if sc.Hz != cfg.Teach.Hz || sc.Speed != cfg.Playback.Speed {
		t.Errorf("Hz = %v, Speed = %v", sc.Hz, sc.Speed)
	}
}

func TestSimulator_LimpJointsSway(t *testing.T) {
	sim := simulator()
	ctx := context.Background()
	joints := robot.JointNames()

	held, err := sim.Angles(ctx, joints, true)
	if err != nil {
		t.Fatal(err)
	}
	for i, a := range held {
		if a != 0 {
			t.Errorf("stiff joint %s = %v, want 0", joints[i], a)
		}
	}

	if err := sim.SetStiffness(ctx, []string{motion.GroupBody}, 0); err != nil {
		t.Fatal(err)
	}
	limp, err := sim.Angles(ctx, joints, true)
	if err != nil {
		t.Fatal(err)
	}
	// joint i starts at 0.5*sin(i), so only the first can read zero
	for i := 1; i < len(limp); i++ {
		if limp[i] == 0 {
			t.Errorf("limp joint %s did not move", joints[i])
		}
	}
}
