package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/gwillem/teachbot/pkg/fault"
)

const DefaultConfigFile = "teachbot.json"

// EnvPrefix prefixes environment overrides, e.g. TEACHBOT_PLAYBACK_SPEED.
const EnvPrefix = "TEACHBOT"

// Config holds the robot configuration
type Config struct {
	Arm      ArmConfig           `json:"arm"`
	Teach    TeachConfig         `json:"teach"`
	Playback PlaybackConfig      `json:"playback"`
	Editor   EditorConfig        `json:"editor"`
	Groups   map[string][]string `json:"groups,omitempty"`
	Log      LogConfig           `json:"log"`
}

// ArmConfig holds configuration for a single arm
type ArmConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
}

// TeachConfig tunes recording and discrete capture. Times are in seconds.
type TeachConfig struct {
	Group           string   `json:"group"`
	Hz              float64  `json:"hz"`
	Epsilon         float64  `json:"epsilon"`
	MaxGap          float64  `json:"max_gap"`
	CaptureEpsilon  float64  `json:"capture_epsilon"`
	HoldStiffness   float64  `json:"hold_stiffness"`
	ReassertDelay   float64  `json:"reassert_delay"`
	BreathGroups    []string `json:"breath_groups"`
	CollisionChains []string `json:"collision_chains"`
}

// PlaybackConfig tunes gesture replay. Times are in seconds.
type PlaybackConfig struct {
	Speed          float64 `json:"speed"`
	Margin         float64 `json:"margin"`
	MaxStep        float64 `json:"max_step"`
	ApplySpeed     bool    `json:"apply_speed"`
	Stiffness      float64 `json:"stiffness"`
	BrakeStiffness float64 `json:"brake_stiffness"`
}

// EditorConfig tunes the keyframe editor. Times are in seconds.
type EditorConfig struct {
	LeadIn        float64 `json:"lead_in"`
	Stiffness     float64 `json:"stiffness"`
	Step          float64 `json:"step"`
	FallbackSpeed float64 `json:"fallback_speed"`
	PreviewSpeed  float64 `json:"preview_speed"`
	LivePreview   bool    `json:"live_preview"`
}

// LogConfig controls the rotating log file.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
}

// IsCalibrated returns true if the arm has calibration data
func (a *ArmConfig) IsCalibrated() bool {
	return len(a.Calibration) > 0
}

// DefaultConfig returns the settings used for keys absent from the file.
func DefaultConfig() *Config {
	return &Config{
		Teach: TeachConfig{
			Group:           "arm",
			Hz:              25,
			Epsilon:         0.03,
			MaxGap:          1.0,
			CaptureEpsilon:  0.03,
			HoldStiffness:   0.2,
			ReassertDelay:   0.2,
			BreathGroups:    []string{"Body", "Arms", "Head"},
			CollisionChains: []string{"All"},
		},
		Playback: PlaybackConfig{
			Speed:          1.0,
			Margin:         2.0,
			MaxStep:        0.55,
			ApplySpeed:     true,
			Stiffness:      1.0,
			BrakeStiffness: 0.2,
		},
		Editor: EditorConfig{
			LeadIn:        1.0,
			Stiffness:     1.0,
			Step:          0.1,
			FallbackSpeed: 0.15,
			PreviewSpeed:  0.10,
		},
		Groups: DefaultGroups(),
		Log: LogConfig{
			File:       "teachbot.log",
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("arm.port", d.Arm.Port)

	v.SetDefault("teach.group", d.Teach.Group)
	v.SetDefault("teach.hz", d.Teach.Hz)
	v.SetDefault("teach.epsilon", d.Teach.Epsilon)
	v.SetDefault("teach.max_gap", d.Teach.MaxGap)
	v.SetDefault("teach.capture_epsilon", d.Teach.CaptureEpsilon)
	v.SetDefault("teach.hold_stiffness", d.Teach.HoldStiffness)
	v.SetDefault("teach.reassert_delay", d.Teach.ReassertDelay)
	v.SetDefault("teach.breath_groups", d.Teach.BreathGroups)
	v.SetDefault("teach.collision_chains", d.Teach.CollisionChains)

	v.SetDefault("playback.speed", d.Playback.Speed)
	v.SetDefault("playback.margin", d.Playback.Margin)
	v.SetDefault("playback.max_step", d.Playback.MaxStep)
	v.SetDefault("playback.apply_speed", d.Playback.ApplySpeed)
	v.SetDefault("playback.stiffness", d.Playback.Stiffness)
	v.SetDefault("playback.brake_stiffness", d.Playback.BrakeStiffness)

	v.SetDefault("editor.lead_in", d.Editor.LeadIn)
	v.SetDefault("editor.stiffness", d.Editor.Stiffness)
	v.SetDefault("editor.step", d.Editor.Step)
	v.SetDefault("editor.fallback_speed", d.Editor.FallbackSpeed)
	v.SetDefault("editor.preview_speed", d.Editor.PreviewSpeed)
	v.SetDefault("editor.live_preview", d.Editor.LivePreview)

	v.SetDefault("groups", d.Groups)

	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
}

// LoadConfigFrom loads configuration from a specific file. A missing file
// yields the defaults. TEACHBOT_<SECTION>_<KEY> environment variables
// override both.
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
		dc.WeaklyTypedInput = true
	})
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Joints returns the joints of a named group.
func (c *Config) Joints(group string) ([]string, error) {
	groups := c.Groups
	if len(groups) == 0 {
		groups = DefaultGroups()
	}
	joints, ok := groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: unknown joint group %q (have %s)",
			fault.ErrInvalidParameter, group, strings.Join(c.GroupNames(), ", "))
	}
	return slices.Clone(joints), nil
}

// GroupNames lists the configured joint groups alphabetically.
func (c *Config) GroupNames() []string {
	groups := c.Groups
	if len(groups) == 0 {
		groups = DefaultGroups()
	}
	out := make([]string, 0, len(groups))
	for name := range groups {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Seconds converts a config value in seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
