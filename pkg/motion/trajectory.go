package motion

import (
	"fmt"
	"sort"

	"github.com/gwillem/teachbot/pkg/fault"
)

// Trajectory is a per-joint piecewise-linear path. Every joint starts at its
// current angle at t=0 and passes through its keyframes at their times.
type Trajectory struct {
	times  [][]float64
	angles [][]float64
	end    float64
}

// NewTrajectory validates an interpolation command and prepares it for
// sampling. start holds the current angle of each joint. When absolute is
// false the times are deltas and are accumulated first.
func NewTrajectory(start []float64, angleLists, timeLists [][]float64, absolute bool) (*Trajectory, error) {
	if len(angleLists) != len(start) || len(timeLists) != len(start) {
		return nil, fmt.Errorf("%w: %d joints, %d angle lists, %d time lists",
			fault.ErrInvalidParameter, len(start), len(angleLists), len(timeLists))
	}

	tr := &Trajectory{
		times:  make([][]float64, len(start)),
		angles: make([][]float64, len(start)),
	}
	for j := range start {
		if len(angleLists[j]) == 0 || len(angleLists[j]) != len(timeLists[j]) {
			return nil, fmt.Errorf("%w: joint %d has %d angles and %d times",
				fault.ErrInvalidParameter, j, len(angleLists[j]), len(timeLists[j]))
		}

		times := make([]float64, 0, len(timeLists[j])+1)
		angles := make([]float64, 0, len(angleLists[j])+1)
		times = append(times, 0)
		angles = append(angles, start[j])

		var acc float64
		for k, t := range timeLists[j] {
			if !absolute {
				acc += t
				t = acc
			}
			if t < times[len(times)-1] {
				return nil, fmt.Errorf("%w: joint %d time %d goes backwards (%.3f)",
					fault.ErrInvalidParameter, j, k, t)
			}
			times = append(times, t)
			angles = append(angles, angleLists[j][k])
		}

		tr.times[j] = times
		tr.angles[j] = angles
		if last := times[len(times)-1]; last > tr.end {
			tr.end = last
		}
	}
	return tr, nil
}

// Duration returns the time in seconds at which the last joint arrives.
func (tr *Trajectory) Duration() float64 {
	return tr.end
}

// At samples every joint at t seconds after the start.
func (tr *Trajectory) At(t float64) []float64 {
	out := make([]float64, len(tr.times))
	for j, times := range tr.times {
		out[j] = lerp(times, tr.angles[j], t)
	}
	return out
}

// Final returns the angles at the end of the trajectory.
func (tr *Trajectory) Final() []float64 {
	out := make([]float64, len(tr.angles))
	for j, a := range tr.angles {
		out[j] = a[len(a)-1]
	}
	return out
}

func lerp(times, values []float64, t float64) float64 {
	if t <= times[0] {
		return values[0]
	}
	n := len(times)
	if t >= times[n-1] {
		return values[n-1]
	}
	// first point strictly after t
	i := sort.Search(n, func(i int) bool { return times[i] > t })
	t0, t1 := times[i-1], times[i]
	if t1 == t0 {
		return values[i]
	}
	f := (t - t0) / (t1 - t0)
	return values[i-1] + f*(values[i]-values[i-1])
}
