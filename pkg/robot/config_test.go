package robot

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/gwillem/teachbot/pkg/fault"
)

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	d := DefaultConfig()
	if cfg.Teach.Hz != d.Teach.Hz || cfg.Teach.Epsilon != d.Teach.Epsilon {
		t.Errorf("teach = %+v, want defaults", cfg.Teach)
	}
	if cfg.Playback != d.Playback {
		t.Errorf("playback = %+v, want %+v", cfg.Playback, d.Playback)
	}
	if !cfg.Playback.ApplySpeed {
		t.Error("apply_speed should default to true")
	}
	if !slices.Equal(cfg.Teach.BreathGroups, []string{"Body", "Arms", "Head"}) {
		t.Errorf("breath groups = %v", cfg.Teach.BreathGroups)
	}
	if cfg.Arm.IsCalibrated() {
		t.Error("default config should not be calibrated")
	}
}

func TestLoadConfigFrom_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teachbot.json")
	data := `{
  "arm": {
    "port": "/dev/ttyACM0",
    "calibration": {
      "shoulder_pan": {"id": 1, "drive_mode": 0, "homing_offset": 0, "range_min": 700, "range_max": 3300}
    }
  },
  "teach": {"hz": 50, "group": "wrist"},
  "playback": {"max_step": 0.4, "apply_speed": false}
}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadConfigFrom: %v", err)
	}
	if cfg.Arm.Port != "/dev/ttyACM0" {
		t.Errorf("port = %q", cfg.Arm.Port)
	}
	if mc, ok := cfg.Arm.Calibration[ShoulderPan]; !ok || mc.RangeMax != 3300 {
		t.Errorf("calibration = %+v", cfg.Arm.Calibration)
	}
	if cfg.Teach.Hz != 50 || cfg.Teach.Group != "wrist" {
		t.Errorf("teach = %+v", cfg.Teach)
	}
	if cfg.Teach.Epsilon != 0.03 {
		t.Errorf("unset epsilon = %v, want default", cfg.Teach.Epsilon)
	}
	if cfg.Playback.MaxStep != 0.4 || cfg.Playback.ApplySpeed {
		t.Errorf("playback = %+v", cfg.Playback)
	}
}

func TestLoadConfigFrom_EnvOverrides(t *testing.T) {
	t.Setenv("TEACHBOT_PLAYBACK_SPEED", "0.5")
	t.Setenv("TEACHBOT_TEACH_HZ", "10")
	t.Setenv("TEACHBOT_LOG_LEVEL", "debug")

	cfg, err := LoadConfigFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Playback.Speed != 0.5 || cfg.Teach.Hz != 10 || cfg.Log.Level != "debug" {
		t.Errorf("env overrides not applied: speed=%v hz=%v level=%q",
			cfg.Playback.Speed, cfg.Teach.Hz, cfg.Log.Level)
	}
}

func TestLoadConfigFrom_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teachbot.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFrom(path); err == nil {
		t.Error("malformed config loaded without error")
	}
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teachbot.json")
	cfg := DefaultConfig()
	cfg.Arm.Port = "/dev/ttyUSB1"
	cfg.Arm.Calibration = DefaultCalibration()
	cfg.Editor.LivePreview = true

	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := LoadConfigFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Arm.Port != cfg.Arm.Port || !got.Editor.LivePreview {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if len(got.Arm.Calibration) != len(AllMotors()) {
		t.Errorf("calibration has %d motors", len(got.Arm.Calibration))
	}
}

func TestConfig_Joints(t *testing.T) {
	cfg := DefaultConfig()

	joints, err := cfg.Joints("wrist")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(joints, []string{"wrist_flex", "wrist_roll"}) {
		t.Errorf("wrist = %v", joints)
	}
	full, _ := cfg.Joints("full")
	if !slices.Equal(full, JointNames()) {
		t.Errorf("full = %v", full)
	}
	if _, err := cfg.Joints("legs"); !errors.Is(err, fault.ErrInvalidParameter) {
		t.Errorf("Joints(legs) = %v, want InvalidParameter", err)
	}
	if got := cfg.GroupNames(); !slices.Equal(got, []string{"arm", "full", "wrist"}) {
		t.Errorf("GroupNames = %v", got)
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(0.2); got != 200*time.Millisecond {
		t.Errorf("Seconds(0.2) = %s", got)
	}
}
