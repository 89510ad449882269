// Package robot drives an SO-101 arm over a Feetech servo bus and holds the
// on-disk configuration.
package robot

import (
	"github.com/samber/lo"
)

// MotorName identifies a motor in the arm.
type MotorName string

// Motor names for the SO-101 arm.
const (
	ShoulderPan  MotorName = "shoulder_pan"
	ShoulderLift MotorName = "shoulder_lift"
	ElbowFlex    MotorName = "elbow_flex"
	WristFlex    MotorName = "wrist_flex"
	WristRoll    MotorName = "wrist_roll"
	Gripper      MotorName = "gripper"
)

// AllMotors returns all motor names in order (matching servo IDs 1-6).
func AllMotors() []MotorName {
	return []MotorName{
		ShoulderPan,
		ShoulderLift,
		ElbowFlex,
		WristFlex,
		WristRoll,
		Gripper,
	}
}

// JointNames returns AllMotors as plain joint identifiers.
func JointNames() []string {
	return names(AllMotors()...)
}

// DefaultGroups are the joint groups offered when teaching.
func DefaultGroups() map[string][]string {
	return map[string][]string{
		"arm":   names(ShoulderPan, ShoulderLift, ElbowFlex),
		"wrist": names(WristFlex, WristRoll),
		"full":  JointNames(),
	}
}

func names(motors ...MotorName) []string {
	return lo.Map(motors, func(m MotorName, _ int) string { return string(m) })
}
