// Package teachbot teaches a jointed robot by demonstration and replays the
// motion.
//
// The operator poses the robot by hand while it is limp ("teach mode"). The
// joint angles are either sampled continuously and thinned to significant
// keyframes, or captured one pose at a time. A gesture can be saved as JSON,
// stepped through and adjusted frame by frame, and played back as one
// interpolated trajectory at an adjustable speed.
//
// # Installation
//
//	go install github.com/gwillem/teachbot/cmd/teachbot@latest
//
// # Usage
//
// First, run setup to detect and calibrate the SO-101 arm:
//
//	teachbot setup
//
// Then teach, adjust and replay gestures:
//
//	teachbot teach --group arm --out wave.json
//	teachbot edit wave.json
//	teachbot play --speed 0.5 wave.json
//	teachbot info wave.json
//
// Every command accepts --sim to drive a simulated arm instead.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/teachbot: CLI with setup, teach, edit, play and info commands
//   - pkg/session: one operator session, background tasks and events
//   - pkg/safety: teach-mode transitions of the actuator
//   - pkg/teach: sample recorder and single-pose capture
//   - pkg/gesture: keyframes, the JSON file format and the active gesture
//   - pkg/playback: schedule construction, replay and braking
//   - pkg/editor: keyframe navigation and in-place edits
//   - pkg/motion: the actuator contract, trajectories and a simulator
//   - pkg/robot: SO-101 arm over the Feetech bus, calibration, configuration
//   - pkg/fault: error kinds shared by all of the above
package teachbot
