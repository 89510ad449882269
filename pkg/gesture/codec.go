package gesture

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gwillem/teachbot/pkg/fault"
)

// file is the on-disk layout:
//
//	{"names": [...], "hz": 25 | null, "samples": [[t, [angles...]], [t, [angles...], [x, y, theta]], ...]}
type file struct {
	Names   []string `json:"names"`
	Hz      *float64 `json:"hz"`
	Samples []sample `json:"samples"`
}

type sample Keyframe

func (s sample) MarshalJSON() ([]byte, error) {
	angles := s.Angles
	if angles == nil {
		angles = []float64{}
	}
	if s.Base == nil {
		return json.Marshal([]any{s.Time, angles})
	}
	return json.Marshal([]any{s.Time, angles, [3]float64{s.Base.X, s.Base.Y, s.Base.Theta}})
}

// Save encodes g in the gesture file format. The output is deterministic, so
// Save(Load(Save(g))) equals Save(g).
func Save(g *Gesture) ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	f := file{
		Names:   g.Names,
		Hz:      g.Hz,
		Samples: make([]sample, len(g.Keyframes)),
	}
	for i, kf := range g.Keyframes {
		f.Samples[i] = sample(kf)
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode gesture: %w", err)
	}
	return data, nil
}

// Load decodes a gesture file. Missing fields, malformed samples and angle
// vectors whose width differs from the schema fail with fault.ErrFormat.
func Load(data []byte) (*Gesture, error) {
	var raw struct {
		Names   *[]string          `json:"names"`
		Hz      *float64           `json:"hz"`
		Samples *[]json.RawMessage `json:"samples"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrFormat, err)
	}
	if raw.Names == nil {
		return nil, fmt.Errorf("%w: missing \"names\"", fault.ErrFormat)
	}
	if raw.Samples == nil {
		return nil, fmt.Errorf("%w: missing \"samples\"", fault.ErrFormat)
	}
	if err := ValidateSchema(*raw.Names); err != nil {
		return nil, fmt.Errorf("%w: %v", fault.ErrFormat, err)
	}
	if raw.Hz != nil && *raw.Hz <= 0 {
		return nil, fmt.Errorf("%w: hz must be > 0, got %v", fault.ErrFormat, *raw.Hz)
	}

	g := &Gesture{
		Names:     *raw.Names,
		Hz:        raw.Hz,
		Keyframes: make([]Keyframe, 0, len(*raw.Samples)),
	}
	for i, rs := range *raw.Samples {
		kf, err := decodeSample(rs, len(g.Names))
		if err != nil {
			return nil, fmt.Errorf("%w: sample %d: %v", fault.ErrFormat, i, err)
		}
		g.Keyframes = append(g.Keyframes, kf)
	}
	return g, nil
}

func decodeSample(data json.RawMessage, width int) (Keyframe, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Keyframe{}, fmt.Errorf("expected [t, angles]: %v", err)
	}
	if len(parts) != 2 && len(parts) != 3 {
		return Keyframe{}, fmt.Errorf("expected 2 or 3 fields, got %d", len(parts))
	}

	var kf Keyframe
	if err := json.Unmarshal(parts[0], &kf.Time); err != nil {
		return Keyframe{}, fmt.Errorf("timestamp: %v", err)
	}
	if err := json.Unmarshal(parts[1], &kf.Angles); err != nil {
		return Keyframe{}, fmt.Errorf("angles: %v", err)
	}
	if len(kf.Angles) != width {
		return Keyframe{}, fmt.Errorf("got %d angles, want %d", len(kf.Angles), width)
	}

	if len(parts) == 3 && !bytes.Equal(bytes.TrimSpace(parts[2]), []byte("null")) {
		var base []float64
		if err := json.Unmarshal(parts[2], &base); err != nil {
			return Keyframe{}, fmt.Errorf("base pose: %v", err)
		}
		if len(base) != 3 {
			return Keyframe{}, fmt.Errorf("base pose has %d values, want 3", len(base))
		}
		kf.Base = &BasePose{X: base[0], Y: base[1], Theta: base[2]}
	}
	return kf, nil
}
