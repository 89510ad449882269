package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gwillem/teachbot/pkg/editor"
	"github.com/gwillem/teachbot/pkg/motion"
	"github.com/gwillem/teachbot/pkg/playback"
	"github.com/gwillem/teachbot/pkg/robot"
	"github.com/gwillem/teachbot/pkg/safety"
	"github.com/gwillem/teachbot/pkg/session"
)

// rig bundles what a command needs to drive the arm.
type rig struct {
	cfg     *robot.Config
	log     *zap.SugaredLogger
	session *session.Session
	closers []func()
}

// loadConfig reads the --config file, falling back to defaults.
func loadConfig() (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if opts.LogFile != "" {
		cfg.Log.File = opts.LogFile
	}
	return cfg, nil
}

// newLogger writes to a rotating file; the TUIs own the terminal.
func newLogger(cfg robot.LogConfig) (*zap.SugaredLogger, func(), error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
	}

	out := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
	}
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(out), level))

	return logger.Sugar(), func() {
		_ = logger.Sync()
		_ = out.Close()
	}, nil
}

// connect loads the config, opens the arm (or the simulator) and starts a
// session on it.
func connect() (*rig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	r := &rig{cfg: cfg, log: logger, closers: []func(){closeLog}}

	var svc motion.Service
	switch {
	case opts.Sim:
		logger.Info("Using simulated arm")
		svc = simulator()
	case cfg.Arm.Port == "":
		r.Close()
		return nil, fmt.Errorf("arm not configured: run 'teachbot setup' first or pass --sim")
	default:
		if !cfg.Arm.IsCalibrated() {
			fmt.Fprintln(os.Stderr, "Arm not calibrated, using the full encoder range. Run 'teachbot setup' to calibrate.")
		}
		arm, err := robot.NewArm(cfg.Arm.Port, cfg.Arm.Calibration, logger.Named("arm"))
		if err != nil {
			r.Close()
			return nil, err
		}
		logger.Infof("Connected to arm on %s", cfg.Arm.Port)
		r.closers = append(r.closers, func() { _ = arm.Close() })
		svc = arm
	}

	s, err := session.New(svc, sessionConfig(cfg), logger.Named("session"))
	if err != nil {
		r.Close()
		return nil, err
	}
	r.session = s
	return r, nil
}

// Close shuts the session down, then the bus, then the log.
func (r *rig) Close() {
	if r.session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.session.Close(ctx); err != nil {
			r.log.Warnf("Session close: %v", err)
		}
		cancel()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func sessionConfig(cfg *robot.Config) session.Config {
	sc := session.DefaultConfig()
	sc.Hz = cfg.Teach.Hz
	sc.Epsilon = cfg.Teach.Epsilon
	sc.MaxGap = robot.Seconds(cfg.Teach.MaxGap)
	sc.CaptureEpsilon = cfg.Teach.CaptureEpsilon
	sc.HoldStiffness = cfg.Teach.HoldStiffness
	sc.Speed = cfg.Playback.Speed
	sc.Safety = safety.Options{
		ReassertDelay:   robot.Seconds(cfg.Teach.ReassertDelay),
		BreathGroups:    cfg.Teach.BreathGroups,
		CollisionChains: cfg.Teach.CollisionChains,
	}
	sc.Playback = playback.Options{
		Margin:         cfg.Playback.Margin,
		MaxStep:        cfg.Playback.MaxStep,
		ApplySpeed:     cfg.Playback.ApplySpeed,
		Stiffness:      cfg.Playback.Stiffness,
		BrakeStiffness: cfg.Playback.BrakeStiffness,
	}
	sc.Editor = editor.Options{
		LeadIn:        robot.Seconds(cfg.Editor.LeadIn),
		FallbackSpeed: cfg.Editor.FallbackSpeed,
		PreviewSpeed:  cfg.Editor.PreviewSpeed,
		Stiffness:     cfg.Editor.Stiffness,
		Step:          cfg.Editor.Step,
		LivePreview:   cfg.Editor.LivePreview,
	}
	return sc
}

// simulator returns a simulated arm whose limp joints sway slowly, standing
// in for an operator's hand.
func simulator() *motion.Sim {
	sim := motion.NewSim(robot.JointNames())
	sim.SetRealtime(true)
	start := time.Now()
	sim.SetSource(func(names []string) []float64 {
		angles, err := sim.Angles(context.Background(), names, false)
		if err != nil {
			return nil
		}
		t := time.Since(start).Seconds()
		for i, name := range names {
			if sim.Stiffness(name) == 0 {
				angles[i] = 0.5 * math.Sin(0.8*t+float64(i))
				sim.SetAngle(name, angles[i])
			}
		}
		return angles
	})
	return sim
}
