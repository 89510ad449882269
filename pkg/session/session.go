// Package session is the single owner of an actuator connection. It
// serializes recording, teach mode, playback and editing against each other,
// runs the long operations in the background and reports them as events.
//
// Every operation returns a status line for display alongside a typed error
// from pkg/fault.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gwillem/teachbot/pkg/editor"
	"github.com/gwillem/teachbot/pkg/fault"
	"github.com/gwillem/teachbot/pkg/gesture"
	"github.com/gwillem/teachbot/pkg/motion"
	"github.com/gwillem/teachbot/pkg/playback"
	"github.com/gwillem/teachbot/pkg/safety"
	"github.com/gwillem/teachbot/pkg/teach"
)

// Op identifies a background operation.
type Op int

const (
	OpRecord Op = iota
	OpPlay
	OpGoTo
)

func (o Op) String() string {
	switch o {
	case OpRecord:
		return "record"
	case OpPlay:
		return "play"
	case OpGoTo:
		return "goto"
	}
	return "unknown"
}

// Kind is the lifecycle stage an Event reports.
type Kind int

const (
	Started Kind = iota
	Progress
	Completed
	Failed
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Progress:
		return "progress"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Event reports on a background task.
type Event struct {
	Task     uuid.UUID
	Op       Op
	Kind     Kind
	Status   string
	Err      error
	Progress *teach.Progress // recording snapshots
	Move     *editor.Move    // completed go-to-frame
	Plan     *playback.Plan  // started playback
}

// Config holds the tunables of every component a session drives.
type Config struct {
	Hz             float64
	Epsilon        float64
	MaxGap         time.Duration
	CaptureEpsilon float64
	HoldStiffness  float64
	Speed          float64
	Safety         safety.Options
	Playback       playback.Options
	Editor         editor.Options
	Clock          clock.Clock // nil means wall clock
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Hz:             25,
		Epsilon:        0.03,
		MaxGap:         time.Second,
		CaptureEpsilon: teach.DefaultCaptureEpsilon,
		HoldStiffness:  safety.DefaultHoldStiffness,
		Speed:          1,
		Playback:       playback.DefaultOptions(),
		Editor:         editor.DefaultOptions(),
	}
}

type task struct {
	id       uuid.UUID
	op       Op
	cancel   context.CancelFunc
	recorder *teach.Recorder
}

type teachState struct {
	joints   []string
	capturer *teach.Capturer
}

// Session drives one actuator for one operator.
type Session struct {
	svc    motion.Service
	cfg    Config
	log    *zap.SugaredLogger
	safety *safety.Controller
	player *playback.Player
	store  *gesture.Store

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu         sync.Mutex
	closing    bool
	task       *task
	teach      *teachState
	editor     *editor.Editor
	lastJoints []string
}

// New opens a session on svc.
func New(svc motion.Service, cfg Config, logger *zap.SugaredLogger) (*Session, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: no actuator", fault.ErrConnection)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Clock != nil && cfg.Safety.Clock == nil {
		cfg.Safety.Clock = cfg.Clock
	}
	if cfg.Clock != nil && cfg.Editor.Clock == nil {
		cfg.Editor.Clock = cfg.Clock
	}
	modes := safety.New(svc, cfg.Safety, logger.Named("safety"))
	return &Session{
		svc:    svc,
		cfg:    cfg,
		log:    logger,
		safety: modes,
		player: playback.NewPlayer(svc, modes, cfg.Playback, logger.Named("playback")),
		store:  gesture.NewStore(),
		events: make(chan Event, 16),
		closed: make(chan struct{}),
	}, nil
}

// Events delivers task lifecycle and progress events. It is closed by Close.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Mode returns the current safety mode.
func (s *Session) Mode() safety.Mode {
	return s.safety.Mode()
}

// Gesture returns the active gesture, or nil.
func (s *Session) Gesture() *gesture.Gesture {
	return s.store.Active()
}

// RawTicks returns the sensor reads behind the active gesture.
func (s *Session) RawTicks() int {
	return s.store.RawTicks()
}

// Speed is the configured default playback speed.
func (s *Session) Speed() float64 {
	return s.cfg.Speed
}

// Busy reports whether a background task is running.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task != nil
}

// Teaching reports whether teach mode is on.
func (s *Session) Teaching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teach != nil
}

// checkIdle rejects a new operation while another one owns the actuator.
// Callers must hold s.mu.
func (s *Session) checkIdle() (string, error) {
	switch {
	case s.closing:
		return "Session closed.", fmt.Errorf("%w: session closed", fault.ErrConnection)
	case s.teach != nil:
		return "Stop teach mode first.", fmt.Errorf("%w: teach mode active", fault.ErrBusy)
	case s.task != nil && s.task.op == OpRecord:
		return "Stop recording first.", fmt.Errorf("%w: recording active", fault.ErrBusy)
	case s.task != nil:
		return fmt.Sprintf("Busy (%s in progress).", s.task.op), fmt.Errorf("%w: %s active", fault.ErrBusy, s.task.op)
	}
	return "", nil
}

// checkActuatorFree rejects sending a pose while a playback or go-to-frame
// task is commanding the body.
func (s *Session) checkActuatorFree() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil {
		return fmt.Sprintf("Busy (%s in progress).", s.task.op), fmt.Errorf("%w: %s active", fault.ErrBusy, s.task.op)
	}
	return "", nil
}

// start registers a background task. Callers must hold s.mu.
func (s *Session) start(op Op) (*task, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &task{id: uuid.New(), op: op, cancel: cancel}
	s.task = t
	s.wg.Add(1)
	return t, ctx
}

// finish releases t and reports its outcome.
func (s *Session) finish(t *task, ev Event) {
	s.mu.Lock()
	if s.task == t {
		s.task = nil
	}
	s.mu.Unlock()
	t.cancel()
	s.emit(t, ev)
}

func (s *Session) emit(t *task, ev Event) {
	ev.Task, ev.Op = t.id, t.op
	if ev.Kind == Failed && ev.Err != nil {
		s.log.Warnf("%s task %s failed: %v", t.op, t.id, ev.Err)
	}
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

// progress drops the event when the consumer lags.
func (s *Session) progress(t *task, p teach.Progress) {
	select {
	case s.events <- Event{Task: t.id, Op: t.op, Kind: Progress, Progress: &p,
		Status: fmt.Sprintf("Recording… %d ticks, %d kept", p.RawTicks, p.Kept)}:
	default:
	}
}

// StartRecording makes joints limp and samples them in the background until
// StopRecording. The finished recording replaces the active gesture.
func (s *Session) StartRecording(joints []string) (uuid.UUID, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.checkIdle(); err != nil {
		return uuid.Nil, status, err
	}

	var opts []teach.Option
	if s.cfg.Clock != nil {
		opts = append(opts, teach.WithClock(s.cfg.Clock))
	}
	rec, err := teach.NewRecorder(s.svc, s.safety, teach.Config{
		Joints:  joints,
		Hz:      s.cfg.Hz,
		Epsilon: s.cfg.Epsilon,
		MaxGap:  s.cfg.MaxGap,
	}, s.log.Named("recorder"), opts...)
	if err != nil {
		return uuid.Nil, "Invalid recording settings: " + err.Error(), err
	}

	s.store.Clear()
	s.editor = nil
	s.lastJoints = slices.Clone(joints)
	t, ctx := s.start(OpRecord)
	t.recorder = rec
	go s.record(ctx, t, rec, slices.Clone(joints))
	return t.id, "Recording… move the joints gently, then press Stop record.", nil
}

type recording struct {
	g   *gesture.Gesture
	err error
}

func (s *Session) record(ctx context.Context, t *task, rec *teach.Recorder, joints []string) {
	defer s.wg.Done()
	s.emit(t, Event{Kind: Started, Status: "Entering freedrive…"})

	if err := s.safety.EnterFreedrive(ctx, joints); err != nil {
		if ctx.Err() != nil {
			// cancelled after the body was already made limp
			if err := s.safety.ExitFreedrive(context.Background(), joints, s.cfg.HoldStiffness); err != nil {
				s.log.Warnf("Exit freedrive: %v", err)
			}
		}
		s.finish(t, Event{Kind: Failed, Err: err, Status: "Could not enter freedrive: " + err.Error()})
		return
	}

	done := make(chan recording, 1)
	go func() {
		g, err := rec.Run(ctx)
		done <- recording{g, err}
	}()

	var res recording
loop:
	for {
		select {
		case p := <-rec.Progress():
			s.progress(t, p)
		case res = <-done:
			break loop
		}
	}

	if err := s.safety.ExitFreedrive(context.Background(), joints, s.cfg.HoldStiffness); err != nil {
		s.log.Warnf("Exit freedrive: %v", err)
	}
	if res.g != nil {
		s.store.Set(res.g, rec.RawTicks())
	}

	switch {
	case res.err == nil:
		s.finish(t, Event{Kind: Completed,
			Status: fmt.Sprintf("Recording stopped. Raw ticks=%d, kept points=%d", rec.RawTicks(), res.g.Len())})
	case errors.Is(res.err, fault.ErrEmpty):
		s.finish(t, Event{Kind: Failed, Err: res.err, Status: "Recording stopped. No points captured."})
	default:
		kept := 0
		if res.g != nil {
			kept = res.g.Len()
		}
		s.finish(t, Event{Kind: Failed, Err: res.err,
			Status: fmt.Sprintf("Sampling failed after %d kept points: %v", kept, res.err)})
	}
}

// StopRecording asks the running recording to seal at its next tick.
func (s *Session) StopRecording() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task == nil || s.task.op != OpRecord {
		return "Not recording.", nil
	}
	s.task.recorder.Stop()
	return "Stopping recording…", nil
}

// StartTeach makes joints limp for posing and starts an empty gesture that
// CapturePose appends to.
func (s *Session) StartTeach(ctx context.Context, joints []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teach != nil {
		return "Teach mode already on.", fmt.Errorf("%w: teach mode active", fault.ErrBusy)
	}
	if status, err := s.checkIdle(); err != nil {
		return status, err
	}

	var opts []teach.Option
	if s.cfg.Clock != nil {
		opts = append(opts, teach.WithClock(s.cfg.Clock))
	}
	c, err := teach.NewCapturer(s.svc, s.safety, joints, s.cfg.CaptureEpsilon, s.log.Named("capture"), opts...)
	if err != nil {
		return "No joints selected.", err
	}
	if err := s.safety.EnterFreedrive(ctx, joints); err != nil {
		return "Could not enter teach mode: " + err.Error(), err
	}

	s.store.Set(gesture.New(joints, nil), 0)
	s.editor = nil
	s.lastJoints = slices.Clone(joints)
	s.teach = &teachState{joints: slices.Clone(joints), capturer: c}
	return "Teach mode ON (collision protection OFF). Pose the robot, press 'Capture pose'.", nil
}

// StopTeach restores protections and holds the taught joints.
func (s *Session) StopTeach(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teach == nil {
		return "Teach mode OFF.", nil
	}
	joints := s.teach.joints
	s.teach = nil
	if err := s.safety.ExitFreedrive(ctx, joints, s.cfg.HoldStiffness); err != nil {
		return "Teach mode OFF, but restoring protections failed: " + err.Error(), err
	}
	return "Teach mode OFF (collision protection ON, awake).", nil
}

// CapturePose appends the current pose to the taught gesture unless it
// duplicates the last keyframe.
func (s *Session) CapturePose(ctx context.Context) (gesture.Keyframe, bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.teach == nil {
		return gesture.Keyframe{}, false, "Press 'Start teach' first.", fmt.Errorf("%w: teach mode not active", fault.ErrBusy)
	}
	g := s.store.Active()
	kf, ok, err := s.teach.capturer.Capture(ctx, g)
	switch {
	case err != nil:
		return kf, false, "Capture failed: " + err.Error(), err
	case !ok:
		return kf, false, "Pose too similar to last keyframe (ignored).", nil
	}
	return kf, true, fmt.Sprintf("Captured keyframe #%d", g.Len()), nil
}

// Play replays the active gesture in the background.
func (s *Session) Play(speed float64) (uuid.UUID, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.checkIdle(); err != nil {
		return uuid.Nil, status, err
	}
	if speed <= 0 {
		return uuid.Nil, "Speed must be > 0", fmt.Errorf("%w: speed must be > 0, got %v", fault.ErrInvalidParameter, speed)
	}
	g := s.store.Active()
	if g == nil || g.Len() == 0 {
		return uuid.Nil, "Record or load a gesture first.", fmt.Errorf("%w: no gesture", fault.ErrEmpty)
	}
	if err := s.safety.CheckMotion(); err != nil {
		return uuid.Nil, "Stop teach mode first.", err
	}

	clone := g.Clone()
	plan, err := s.player.Prepare(clone, speed)
	if err != nil {
		return uuid.Nil, "Playback failed: " + err.Error(), err
	}
	s.lastJoints = slices.Clone(g.Names)
	t, ctx := s.start(OpPlay)
	go s.play(ctx, t, clone, speed, plan)
	return t.id, "Playing back…", nil
}

func (s *Session) play(ctx context.Context, t *task, g *gesture.Gesture, speed float64, plan playback.Plan) {
	defer s.wg.Done()
	s.emit(t, Event{Kind: Started, Status: "Playing back…", Plan: &plan})

	_, err := s.player.Play(ctx, g, speed)
	switch {
	case err == nil:
		s.finish(t, Event{Kind: Completed, Status: "Playback finished."})
	case ctx.Err() != nil:
		s.finish(t, Event{Kind: Failed, Err: err, Status: "Playback stopped."})
	default:
		s.finish(t, Event{Kind: Failed, Err: err, Status: "Playback failed."})
	}
}

// StopMotion cancels playback or a go-to-frame move and lowers stiffness on
// the active gesture's joints. It is refused while the body is limp for
// teaching.
func (s *Session) StopMotion(ctx context.Context) (string, error) {
	s.mu.Lock()
	switch {
	case s.teach != nil:
		s.mu.Unlock()
		return "Stop teach mode first.", fmt.Errorf("%w: teach mode active", fault.ErrBusy)
	case s.task != nil && s.task.op == OpRecord:
		s.mu.Unlock()
		return "Stop recording first.", fmt.Errorf("%w: recording active", fault.ErrBusy)
	case s.task != nil:
		s.task.cancel()
	}
	joints := s.lastJoints
	if g := s.store.Active(); g != nil {
		joints = g.Names
	}
	s.mu.Unlock()

	if err := s.player.StopMotion(ctx, joints); err != nil {
		return "Stop motion failed: " + err.Error(), err
	}
	return "Stop requested (lowered stiffness).", nil
}

// Load replaces the active gesture with the file at path. A bad file leaves
// the active gesture untouched.
func (s *Session) Load(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.checkIdle(); err != nil {
		return status, err
	}
	g, err := s.store.LoadFile(path)
	if err != nil {
		return "Load failed: " + err.Error(), err
	}
	s.editor = nil
	s.lastJoints = slices.Clone(g.Names)
	return fmt.Sprintf("Loaded %s (%d keyframes)", path, g.Len()), nil
}

// Save writes the active gesture to path.
func (s *Session) Save(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.task != nil && s.task.op == OpRecord {
		return "Stop recording first.", fmt.Errorf("%w: recording active", fault.ErrBusy)
	}
	if err := s.store.SaveFile(path); err != nil {
		if errors.Is(err, fault.ErrEmpty) {
			return "Nothing to save.", err
		}
		return "Save failed: " + err.Error(), err
	}
	return "Saved " + path, nil
}

// Clear discards the active gesture.
func (s *Session) Clear() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.checkIdle(); err != nil {
		return status, err
	}
	s.store.Clear()
	s.editor = nil
	return "Cleared.", nil
}

// Edit returns an editor over the active gesture, creating it on first use.
func (s *Session) Edit() (*editor.Editor, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editorLocked()
}

func (s *Session) editorLocked() (*editor.Editor, string, error) {
	if s.teach != nil {
		return nil, "Stop teach mode first.", fmt.Errorf("%w: teach mode active", fault.ErrBusy)
	}
	if s.task != nil && s.task.op == OpRecord {
		return nil, "Stop recording first.", fmt.Errorf("%w: recording active", fault.ErrBusy)
	}
	g := s.store.Active()
	if s.editor != nil && s.editor.Gesture() == g {
		return s.editor, "", nil
	}
	ed, err := editor.New(s.svc, g, s.cfg.Editor, s.log.Named("editor"))
	if err != nil {
		return nil, "Load a gesture first.", err
	}
	s.editor = ed
	return ed, "Loaded gesture. Use 'Go to frame' to move to a keyframe.", nil
}

func frameStatus(ed *editor.Editor) string {
	return fmt.Sprintf("Frame %d/%d", ed.Frame()+1, ed.Len())
}

func (s *Session) NextFrame() (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	ed.Next()
	return frameStatus(ed), nil
}

func (s *Session) PrevFrame() (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	ed.Prev()
	return frameStatus(ed), nil
}

func (s *Session) SelectFrame(i int) (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	if err := ed.Select(i); err != nil {
		return err.Error(), err
	}
	return frameStatus(ed), nil
}

func (s *Session) SelectJoint(j int) (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	if err := ed.SelectJoint(j); err != nil {
		return err.Error(), err
	}
	return "Selected " + ed.Gesture().Names[j], nil
}

// GoToFrame moves the body to frame i in the background.
func (s *Session) GoToFrame(i int, leadIn time.Duration) (uuid.UUID, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status, err := s.checkIdle(); err != nil {
		return uuid.Nil, status, err
	}
	ed, status, err := s.editorLocked()
	if err != nil {
		return uuid.Nil, status, err
	}
	if err := ed.Select(i); err != nil {
		return uuid.Nil, err.Error(), err
	}
	if err := s.safety.CheckMotion(); err != nil {
		return uuid.Nil, "Stop teach mode first.", err
	}

	t, ctx := s.start(OpGoTo)
	go s.goTo(ctx, t, ed, i, leadIn)
	return t.id, fmt.Sprintf("Moving to frame %d…", i+1), nil
}

func (s *Session) goTo(ctx context.Context, t *task, ed *editor.Editor, i int, leadIn time.Duration) {
	defer s.wg.Done()
	s.emit(t, Event{Kind: Started, Status: fmt.Sprintf("Moving to frame %d…", i+1)})

	mv, err := ed.GoToFrame(ctx, i, leadIn)
	if err != nil {
		s.finish(t, Event{Kind: Failed, Err: err, Status: "Move failed: " + err.Error()})
		return
	}
	s.finish(t, Event{Kind: Completed, Move: &mv,
		Status: fmt.Sprintf("Arrived at frame %d. Adjust joints, then save.", i+1)})
}

// SetJointValue edits one joint of one frame in memory.
func (s *Session) SetJointValue(ctx context.Context, frame, joint int, v float64) (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	if ed.LivePreview() {
		if status, err := s.checkActuatorFree(); err != nil {
			return status, err
		}
	}
	if err := ed.SetJointValue(ctx, frame, joint, v); err != nil {
		return err.Error(), err
	}
	return fmt.Sprintf("Frame %d already updated in memory. Save to persist.", frame+1), nil
}

// BumpJoint nudges the selected joint of the selected frame.
func (s *Session) BumpJoint(ctx context.Context, direction int) (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	if ed.LivePreview() {
		if status, err := s.checkActuatorFree(); err != nil {
			return status, err
		}
	}
	v, err := ed.Bump(ctx, direction, 0)
	if err != nil {
		return err.Error(), err
	}
	return fmt.Sprintf("%s = %.3f", ed.Gesture().Names[ed.Joint()], v), nil
}

func (s *Session) SetLivePreview(on bool) (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	ed.SetLivePreview(on)
	if on {
		return "Live preview ON.", nil
	}
	return "Live preview OFF.", nil
}

// SendFrame sends the selected frame's pose to the body.
func (s *Session) SendFrame(ctx context.Context) (string, error) {
	ed, status, err := s.Edit()
	if err != nil {
		return status, err
	}
	if status, err := s.checkActuatorFree(); err != nil {
		return status, err
	}
	if err := ed.Preview(ctx); err != nil {
		return "Preview failed: " + err.Error(), err
	}
	return "Sent current frame pose.", nil
}

// Close stops any running task, leaves teach mode and closes Events.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		if s.task != nil {
			if s.task.recorder != nil {
				s.task.recorder.Stop()
			}
			s.task.cancel()
		}
		if s.teach != nil {
			joints := s.teach.joints
			s.teach = nil
			err = s.safety.ExitFreedrive(ctx, joints, s.cfg.HoldStiffness)
		}
		s.mu.Unlock()

		close(s.closed)
		s.wg.Wait()
		close(s.events)
	})
	return err
}
