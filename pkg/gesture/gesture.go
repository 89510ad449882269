// Package gesture holds taught motions: ordered, timestamped joint-angle
// keyframes over a fixed joint schema, plus their file format.
package gesture

import (
	"fmt"
	"slices"
	"sort"

	"github.com/samber/lo"

	"github.com/gwillem/teachbot/pkg/fault"
)

// BasePose is the mobile base position captured alongside a keyframe.
type BasePose struct {
	X, Y, Theta float64
}

// Keyframe is one timestamped snapshot of every joint in the schema.
type Keyframe struct {
	Time   float64 // seconds since the recording epoch
	Angles []float64
	Base   *BasePose
}

// Gesture is an ordered keyframe sequence over a joint schema. Hz is set for
// continuously sampled recordings and nil for discrete captures.
type Gesture struct {
	Names     []string
	Hz        *float64
	Keyframes []Keyframe
}

// New creates an empty gesture over names.
func New(names []string, hz *float64) *Gesture {
	return &Gesture{
		Names: slices.Clone(names),
		Hz:    hz,
	}
}

// ValidateSchema checks that names is non-empty and free of duplicates.
func ValidateSchema(names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: no joints", fault.ErrInvalidParameter)
	}
	if len(lo.Uniq(names)) != len(names) {
		return fmt.Errorf("%w: duplicate joint names %v", fault.ErrInvalidParameter, lo.FindDuplicates(names))
	}
	for i, n := range names {
		if n == "" {
			return fmt.Errorf("%w: joint %d has no name", fault.ErrInvalidParameter, i)
		}
	}
	return nil
}

// Len returns the number of keyframes.
func (g *Gesture) Len() int {
	return len(g.Keyframes)
}

// Append adds a keyframe after checking its width against the schema.
func (g *Gesture) Append(kf Keyframe) error {
	if len(kf.Angles) != len(g.Names) {
		return fmt.Errorf("%w: keyframe has %d angles, schema has %d joints",
			fault.ErrInvalidParameter, len(kf.Angles), len(g.Names))
	}
	g.Keyframes = append(g.Keyframes, kf)
	return nil
}

// Last returns the most recent keyframe.
func (g *Gesture) Last() (Keyframe, bool) {
	if len(g.Keyframes) == 0 {
		return Keyframe{}, false
	}
	return g.Keyframes[len(g.Keyframes)-1], true
}

// Duration is the span between the earliest and latest keyframe.
func (g *Gesture) Duration() float64 {
	if len(g.Keyframes) == 0 {
		return 0
	}
	first, last := g.Keyframes[0].Time, g.Keyframes[0].Time
	for _, kf := range g.Keyframes[1:] {
		first = min(first, kf.Time)
		last = max(last, kf.Time)
	}
	return last - first
}

// Clone returns a deep copy.
func (g *Gesture) Clone() *Gesture {
	c := &Gesture{
		Names:     slices.Clone(g.Names),
		Keyframes: make([]Keyframe, len(g.Keyframes)),
	}
	if g.Hz != nil {
		hz := *g.Hz
		c.Hz = &hz
	}
	for i, kf := range g.Keyframes {
		c.Keyframes[i] = kf.clone()
	}
	return c
}

// Sorted returns a deep copy with keyframes in timestamp order. Equal
// timestamps keep their stored order.
func (g *Gesture) Sorted() *Gesture {
	c := g.Clone()
	sort.SliceStable(c.Keyframes, func(i, j int) bool {
		return c.Keyframes[i].Time < c.Keyframes[j].Time
	})
	return c
}

// Times returns the keyframe timestamps in stored order.
func (g *Gesture) Times() []float64 {
	return lo.Map(g.Keyframes, func(kf Keyframe, _ int) float64 { return kf.Time })
}

// Validate checks the schema and every keyframe width.
func (g *Gesture) Validate() error {
	if err := ValidateSchema(g.Names); err != nil {
		return err
	}
	for i, kf := range g.Keyframes {
		if len(kf.Angles) != len(g.Names) {
			return fmt.Errorf("%w: sample %d has %d angles, want %d",
				fault.ErrFormat, i, len(kf.Angles), len(g.Names))
		}
	}
	return nil
}

func (kf Keyframe) clone() Keyframe {
	c := Keyframe{Time: kf.Time, Angles: slices.Clone(kf.Angles)}
	if kf.Base != nil {
		b := *kf.Base
		c.Base = &b
	}
	return c
}
