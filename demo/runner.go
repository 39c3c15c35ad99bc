package demo

import (
	"time"

	"glosskit/core"
	"glosskit/gloss"
	"glosskit/playback"
)

// Scheduler is the part of playback.Scheduler the runner drives.
type Scheduler interface {
	Enqueue(tok gloss.DispatchToken, opts ...playback.EnqueueOption) playback.EntryID
	Stop()
}

type Config struct {
	SceneBreak time.Duration `json:"scene_break"` // Pause between scenes at speed 1.0.
}

func DefaultConfig() Config {
	return Config{SceneBreak: 1200 * time.Millisecond}
}

// Caption is emitted on the first step of each scene.
type Caption struct {
	Text  string
	Scene int
}

// Runner walks a Script one step at a time. It shares the scheduler's
// goroutine: the owner must forward the scheduler's OnEntryDone to
// EntryDone and the runner's timers must be delivered on the same loop.
type Runner struct {
	script Script
	sched  Scheduler
	clock  core.Clock
	config Config
	logger *core.Logger

	speed   float64
	running bool
	scene   int
	step    int
	waiting playback.EntryID
	timer   core.Timer
	epoch   uint64

	// Set while Enqueue runs, to catch an entry that completes before
	// Enqueue returns its id.
	enqueuing bool
	doneEarly playback.EntryID

	OnCaption  func(Caption)
	OnComplete func()
}

func NewRunner(script Script, sched Scheduler, clock core.Clock, config Config, logger *core.Logger) *Runner {
	if script == nil {
		script = DefaultScript()
	}
	if config.SceneBreak < 0 {
		config.SceneBreak = 0
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		script: script,
		sched:  sched,
		clock:  clock,
		config: config,
		logger: logger.With(map[string]any{"component": "demo"}),
		speed:  core.DefaultSpeed,
	}
}

func (r *Runner) Running() bool {
	return r.running
}

// Position returns the scene and step the runner is on.
func (r *Runner) Position() (scene, step int) {
	return r.scene, r.step
}

func (r *Runner) SetSpeed(speed float64) {
	r.speed = core.NormalizeSpeed(speed)
}

// Start plays the script from the beginning, stopping anything already
// playing. Calling Start while running restarts the script.
func (r *Runner) Start() {
	r.epoch++
	r.stopTimer()
	r.sched.Stop()
	r.running = true
	r.scene, r.step = 0, 0
	r.waiting = 0
	r.logger.Info("demo started", "scenes", len(r.script), "steps", r.script.Len())
	r.run()
}

// Stop cancels the script and halts playback. Stopping an idle runner only
// halts playback.
func (r *Runner) Stop() {
	wasRunning := r.running
	r.epoch++
	r.stopTimer()
	r.running = false
	r.waiting = 0
	r.sched.Stop()
	if wasRunning {
		r.logger.Info("demo stopped", "scene", r.scene, "step", r.step)
	}
}

// EntryDone advances past the step that enqueued id. Other ids are ignored.
func (r *Runner) EntryDone(id playback.EntryID) {
	if !r.running || id == 0 {
		return
	}
	if r.enqueuing {
		r.doneEarly = id
		return
	}
	if id != r.waiting {
		return
	}
	r.waiting = 0
	r.step++
	r.run()
}

// run enqueues steps until one is in flight, a scene break is pending or
// the script is over.
func (r *Runner) run() {
	for r.running {
		if r.scene >= len(r.script) {
			r.finish()
			return
		}
		scene := r.script[r.scene]
		if r.step >= len(scene.Steps) {
			r.scene++
			r.step = 0
			if r.scene >= len(r.script) {
				r.finish()
				return
			}
			r.pause()
			return
		}
		if r.step == 0 && r.OnCaption != nil {
			r.OnCaption(Caption{Text: scene.Caption, Scene: r.scene})
		}

		st := scene.Steps[r.step]
		var opts []playback.EnqueueOption
		if st.Hint > 0 {
			opts = append(opts, playback.WithExpectedDuration(st.Hint))
		}
		r.enqueuing, r.doneEarly = true, 0
		id := r.sched.Enqueue(st.Token, opts...)
		r.enqueuing = false
		if id == 0 {
			r.logger.Warn("skipping empty demo step", "scene", r.scene, "step", r.step)
			r.step++
			continue
		}
		if r.doneEarly == id {
			r.step++
			continue
		}
		r.waiting = id
		return
	}
}

func (r *Runner) pause() {
	epoch := r.epoch
	r.timer = r.clock.AfterFunc(core.ScaleDuration(r.config.SceneBreak, r.speed), func() {
		if epoch != r.epoch || !r.running {
			return
		}
		r.timer = nil
		r.run()
	})
}

func (r *Runner) finish() {
	r.running = false
	r.logger.Info("demo complete")
	if r.OnComplete != nil {
		r.OnComplete()
	}
}

func (r *Runner) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
