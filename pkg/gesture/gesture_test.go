package gesture

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gwillem/teachbot/pkg/fault"
)

func hz(v float64) *float64 { return &v }

func sampleGesture() *Gesture {
	return &Gesture{
		Names: []string{"J1", "J2"},
		Hz:    hz(25),
		Keyframes: []Keyframe{
			{Time: 0, Angles: []float64{0.1, -0.2}},
			{Time: 0.04, Angles: []float64{0.15, -0.25}},
			{Time: 1.0333333333333332, Angles: []float64{1e-7, 3.141592653589793}},
		},
	}
}

func TestSave_Format(t *testing.T) {
	g := &Gesture{
		Names: []string{"A", "B"},
		Keyframes: []Keyframe{
			{Time: 0.5, Angles: []float64{0.1, 0.2}},
			{Time: 1, Angles: []float64{0.3, 0.4}, Base: &BasePose{X: 1, Y: 2, Theta: 0.5}},
		},
	}
	got, err := Save(g)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := `{"names":["A","B"],"hz":null,"samples":[[0.5,[0.1,0.2]],[1,[0.3,0.4],[1,2,0.5]]]}`
	if string(got) != want {
		t.Errorf("Save() =\n%s\nwant\n%s", got, want)
	}
}

func TestSaveLoad_Stable(t *testing.T) {
	gestures := []*Gesture{
		sampleGesture(),
		{Names: []string{"only"}, Keyframes: []Keyframe{}},
		{
			Names: []string{"a", "b", "c"},
			Keyframes: []Keyframe{
				{Time: 3, Angles: []float64{1, 2, 3}, Base: &BasePose{X: -0.25, Y: 0.125, Theta: 1.5}},
				{Time: 1, Angles: []float64{0, 0, 0}},
			},
		},
	}

	for i, g := range gestures {
		first, err := Save(g)
		if err != nil {
			t.Fatalf("gesture %d: Save: %v", i, err)
		}
		loaded, err := Load(first)
		if err != nil {
			t.Fatalf("gesture %d: Load: %v", i, err)
		}
		second, err := Save(loaded)
		if err != nil {
			t.Fatalf("gesture %d: second Save: %v", i, err)
		}
		if !bytes.Equal(first, second) {
			t.Errorf("gesture %d: round trip not stable:\n%s\n%s", i, first, second)
		}
	}
}

func TestLoad_FormatErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{names`},
		{"missing names", `{"hz":null,"samples":[]}`},
		{"missing samples", `{"names":["A"]}`},
		{"null names", `{"names":null,"samples":[]}`},
		{"empty names", `{"names":[],"samples":[]}`},
		{"duplicate names", `{"names":["A","A"],"samples":[]}`},
		{"short angles", `{"names":["A","B"],"samples":[[0.0,[0.1]]]}`},
		{"long angles", `{"names":["A"],"samples":[[0.0,[0.1,0.2]]]}`},
		{"sample not array", `{"names":["A"],"samples":[{"t":0}]}`},
		{"one field", `{"names":["A"],"samples":[[0.0]]}`},
		{"four fields", `{"names":["A"],"samples":[[0.0,[1],[0,0,0],1]]}`},
		{"bad timestamp", `{"names":["A"],"samples":[["x",[1]]]}`},
		{"bad base pose", `{"names":["A"],"samples":[[0.0,[1],[0,0]]]}`},
		{"zero hz", `{"names":["A"],"hz":0,"samples":[]}`},
		{"trailing data", `{"names":["A"],"samples":[]} garbage`},
		{"two objects", `{"names":["A"],"samples":[]}{"names":["B"],"samples":[]}`},
	}

	for _, tt := range tests {
		_, err := Load([]byte(tt.data))
		if !errors.Is(err, fault.ErrFormat) {
			t.Errorf("%s: Load error = %v, want FormatError", tt.name, err)
		}
	}
}

func TestLoad_Variants(t *testing.T) {
	g, err := Load([]byte(`{"names":["A","B"],"hz":25,"samples":[[0,[1,2]],[0.5,[3,4],null],[1,[5,6],[1,2,3]]]}`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Hz == nil || *g.Hz != 25 {
		t.Errorf("Hz = %v, want 25", g.Hz)
	}
	if g.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", g.Len())
	}
	if g.Keyframes[1].Base != nil {
		t.Error("null base pose should decode to nil")
	}
	if b := g.Keyframes[2].Base; b == nil || *b != (BasePose{X: 1, Y: 2, Theta: 3}) {
		t.Errorf("base pose = %+v", b)
	}

	// hz may be absent entirely
	g, err = Load([]byte(`{"names":["A"],"samples":[[0,[1]]]}`))
	if err != nil {
		t.Fatalf("Load without hz: %v", err)
	}
	if g.Hz != nil {
		t.Errorf("Hz = %v, want nil", *g.Hz)
	}
}

func TestStore_LoadFailureKeepsPrevious(t *testing.T) {
	s := NewStore()
	prev := sampleGesture()
	s.Set(prev, 10)

	_, err := s.Load([]byte(`{"names":["A","B"],"samples":[[0.0,[0.1]]]}`))
	if !errors.Is(err, fault.ErrFormat) {
		t.Fatalf("Load error = %v, want FormatError", err)
	}
	if s.Active() != prev {
		t.Error("failed load replaced the active gesture")
	}
	if s.Active().Len() != 3 || s.RawTicks() != 10 {
		t.Errorf("active gesture mutated: len=%d ticks=%d", s.Active().Len(), s.RawTicks())
	}
}

func TestStore_FileRoundTripAndClear(t *testing.T) {
	s := NewStore()
	if _, err := s.Save(); !errors.Is(err, fault.ErrEmpty) {
		t.Errorf("Save on empty store = %v, want Empty", err)
	}

	s.Set(sampleGesture(), 42)
	path := filepath.Join(t.TempDir(), "wave.json")
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	other := NewStore()
	g, err := other.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if g.Len() != 3 || other.Len() != 3 {
		t.Errorf("loaded %d keyframes, want 3", g.Len())
	}

	s.Clear()
	if s.Active() != nil || s.Len() != 0 || s.RawTicks() != 0 {
		t.Error("Clear did not reset the store")
	}
}

func TestGesture_SortedAndClone(t *testing.T) {
	g := &Gesture{
		Names: []string{"a"},
		Keyframes: []Keyframe{
			{Time: 2, Angles: []float64{2}},
			{Time: 1, Angles: []float64{1}},
			{Time: 2, Angles: []float64{3}},
		},
	}
	s := g.Sorted()
	want := []float64{1, 2, 3}
	for i, kf := range s.Keyframes {
		if kf.Angles[0] != want[i] {
			t.Errorf("Sorted()[%d] = %f, want %f", i, kf.Angles[0], want[i])
		}
	}
	if g.Keyframes[0].Time != 2 {
		t.Error("Sorted mutated the original")
	}

	s.Keyframes[0].Angles[0] = 99
	if g.Keyframes[1].Angles[0] != 1 {
		t.Error("Clone shares angle storage")
	}
	if g.Duration() != 1 {
		t.Errorf("Duration() = %f, want 1", g.Duration())
	}
}

func TestGesture_Append(t *testing.T) {
	g := New([]string{"a", "b"}, nil)
	if err := g.Append(Keyframe{Angles: []float64{1}}); !errors.Is(err, fault.ErrInvalidParameter) {
		t.Errorf("Append with wrong width = %v", err)
	}
	if err := g.Append(Keyframe{Angles: []float64{1, 2}}); err != nil {
		t.Errorf("Append: %v", err)
	}
	if kf, ok := g.Last(); !ok || kf.Angles[1] != 2 {
		t.Errorf("Last() = %+v, %v", kf, ok)
	}
}
