// Package playback serializes gloss and fingerspelling animations against
// an external player that reports completion asynchronously.
package playback

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"glosskit/core"
	"glosskit/gloss"
)

type item struct {
	entry        EntryID
	token        gloss.DispatchToken
	gloss        string // empty for fingerspelling
	last         bool   // final clip of its entry
	expectedClip time.Duration
}

type EnqueueOption func(*item)

// WithExpectedDuration overrides the expected clip length used to size the
// unresponsive-player fallback. Scripted scenes use it.
func WithExpectedDuration(d time.Duration) EnqueueOption {
	return func(it *item) {
		if d > 0 {
			it.expectedClip = d
		}
	}
}

// Scheduler owns the playback queue and the single active playback state.
//
// It is a plain state machine: it is not safe for concurrent use and must be
// driven from one goroutine. Timer callbacks arrive through the injected
// clock, so in production the clock must deliver them on that same
// goroutine (see core.LoopClock).
type Scheduler struct {
	config Config
	player Player
	clock  core.Clock
	logger *core.Logger

	speed     float64
	wordSpeed float64 // speed fixed when the current word started spelling
	queue     []item
	state     State
	current   item
	letters   []string
	timer     core.Timer
	epoch     uint64
	nextEntry EntryID

	// OnStateChange is called after every state transition.
	OnStateChange func(State)
	// OnEntryDone is called when the last clip of an entry finishes,
	// whether by completion signal or by timeout recovery. Stopped entries
	// are not reported.
	OnEntryDone func(EntryID, gloss.DispatchToken)
}

func NewScheduler(config Config, player Player, clock core.Clock, logger *core.Logger) *Scheduler {
	if clock == nil {
		clock = core.SystemClock()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Scheduler{
		config: config.withDefaults(),
		player: player,
		clock:  clock,
		logger: logger.With(map[string]any{"component": "scheduler"}),
		speed:  core.DefaultSpeed,
	}
}

func (s *Scheduler) State() State {
	return s.state
}

// QueueLen counts clips waiting behind the active one.
func (s *Scheduler) QueueLen() int {
	return len(s.queue)
}

func (s *Scheduler) Speed() float64 {
	return s.speed
}

// SetSpeed applies to everything scheduled afterwards. Timers already
// armed keep their duration, and a word being spelled finishes at the pace
// it started with.
func (s *Scheduler) SetSpeed(speed float64) {
	s.speed = core.NormalizeSpeed(speed)
}

// Enqueue appends tok and starts playback when idle. A multi-gloss token is
// expanded into consecutive clips so nothing enqueued later can interleave
// with it. Empty tokens are ignored and return 0.
func (s *Scheduler) Enqueue(tok gloss.DispatchToken, opts ...EnqueueOption) EntryID {
	var items []item
	switch tok.Kind {
	case gloss.KindPlay:
		for i, g := range tok.Glosses {
			if g == "" {
				continue
			}
			items = append(items, item{token: tok, gloss: g, last: i == len(tok.Glosses)-1})
		}
		if len(items) > 0 {
			items[len(items)-1].last = true
		}
	case gloss.KindFingerspell:
		if tok.Word != "" {
			items = append(items, item{token: tok, last: true})
		}
	}
	if len(items) == 0 {
		return 0
	}

	s.nextEntry++
	id := s.nextEntry
	for i := range items {
		items[i].entry = id
		for _, opt := range opts {
			opt(&items[i])
		}
	}
	s.queue = append(s.queue, items...)
	s.logger.Debug("enqueued", "token", tok.String(), "entry", id, "queue", len(s.queue))
	s.advance()
	return id
}

// GlossFinished accepts a completion signal for the playing gloss. Signals
// for any other gloss, or carrying a different play id, are stale and
// ignored.
func (s *Scheduler) GlossFinished(glossName, playID string) {
	if s.state.Phase != PhasePlayingGloss || s.state.Gloss != glossName {
		s.logger.Debug("ignoring stale gloss completion", "gloss", glossName, "state", s.state.String())
		return
	}
	if playID != "" && playID != s.state.PlayID {
		s.logger.Debug("ignoring gloss completion for superseded play", "gloss", glossName, "play_id", playID)
		return
	}
	s.finishItem()
}

// ClipMissing is the asynchronous form of Play returning ErrClipNotFound,
// for players that report a missing clip after the command was sent. The
// current gloss advances after MissingClipDelay.
func (s *Scheduler) ClipMissing(glossName, playID string) {
	if s.state.Phase != PhasePlayingGloss || s.state.Gloss != glossName {
		return
	}
	if playID != "" && playID != s.state.PlayID {
		return
	}
	s.logger.Warn("player reported missing clip, advancing after delay", "gloss", glossName)
	s.arm(core.ScaleDuration(s.config.MissingClipDelay, s.speed), "missing_clip")
}

// LetterFinished advances a closed-loop spelling. Open-loop spelling is
// paced by the clock alone and ignores the signal.
func (s *Scheduler) LetterFinished(playID string) {
	if s.state.Phase != PhaseSpelling || s.config.SpellMode != SpellModeClosedLoop {
		return
	}
	if playID != "" && playID != s.state.PlayID {
		return
	}
	s.advanceLetter()
}

// Stop halts the player, drops the queue and returns to idle. Completion
// signals and timers belonging to the interrupted playback are ignored
// afterwards.
func (s *Scheduler) Stop() {
	dropped := len(s.queue)
	wasActive := !s.state.Idle()
	s.epoch++
	s.stopTimer()
	s.queue = nil
	s.letters = nil
	s.current = item{}
	if wasActive {
		s.setState(State{Phase: PhaseIdle})
	}
	if err := s.player.Stop(); err != nil {
		s.logger.Warn("player stop failed", "error", err)
	}
	s.logger.Debug("stopped", "dropped", dropped, "was_active", wasActive)
}

func (s *Scheduler) advance() {
	for s.state.Idle() && len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		if next.gloss != "" {
			s.startGloss(next)
		} else {
			s.startSpelling(next)
		}
	}
}

func (s *Scheduler) startGloss(it item) {
	s.epoch++
	epoch := s.epoch
	s.current = it
	playID := uuid.NewString()
	s.setState(State{Phase: PhasePlayingGloss, Entry: it.entry, Gloss: it.gloss, PlayID: playID})
	s.arm(s.maxWait(it), "max_wait")

	err := s.player.Play(PlayCommand{Gloss: it.gloss, Speed: s.speed, PlayID: playID})
	if epoch != s.epoch {
		// Completed or stopped from inside Play.
		return
	}
	if err != nil {
		if errors.Is(err, ErrClipNotFound) {
			s.logger.Warn("missing clip, advancing after delay", "gloss", it.gloss)
		} else {
			s.logger.Error("player rejected gloss, advancing after delay", "gloss", it.gloss, "error", err)
		}
		s.arm(core.ScaleDuration(s.config.MissingClipDelay, s.speed), "missing_clip")
	}
}

func (s *Scheduler) startSpelling(it item) {
	s.epoch++
	s.current = it
	s.letters = splitLetters(it.token.Word)
	s.wordSpeed = s.speed
	s.setState(State{Phase: PhaseSpelling, Entry: it.entry, Word: it.token.Word, PlayID: uuid.NewString()})
	s.sendLetter()
}

func (s *Scheduler) sendLetter() {
	epoch := s.epoch
	idx := s.state.LetterIndex
	wait := s.config.MaxLetterWait
	if s.config.SpellMode == SpellModeOpenLoop {
		wait = s.config.LetterInterval
	}
	s.arm(core.ScaleDuration(wait, s.wordSpeed), "letter")

	err := s.player.PlayLetter(LetterCommand{
		Letter: s.letters[idx],
		Index:  idx,
		Word:   s.state.Word,
		PlayID: s.state.PlayID,
	})
	if epoch != s.epoch {
		return
	}
	if err != nil {
		s.logger.Warn("player rejected letter", "letter", s.letters[idx], "error", err)
	}
}

func (s *Scheduler) advanceLetter() {
	next := s.state.LetterIndex + 1
	if next >= len(s.letters) {
		s.finishItem()
		return
	}
	s.epoch++
	st := s.state
	st.LetterIndex = next
	s.setState(st)
	s.sendLetter()
}

func (s *Scheduler) finishItem() {
	done := s.current
	s.epoch++
	s.stopTimer()
	s.current = item{}
	s.letters = nil
	s.setState(State{Phase: PhaseIdle})
	if done.last && s.OnEntryDone != nil {
		s.OnEntryDone(done.entry, done.token)
	}
	s.advance()
}

func (s *Scheduler) onTimer(epoch uint64, reason string) {
	if epoch != s.epoch {
		return
	}
	switch s.state.Phase {
	case PhasePlayingGloss:
		if reason == "max_wait" {
			s.logger.Warn("no completion from player, forcing advance", "gloss", s.state.Gloss)
		}
		s.finishItem()
	case PhaseSpelling:
		if s.config.SpellMode == SpellModeClosedLoop {
			s.logger.Debug("letter wait elapsed", "word", s.state.Word, "index", s.state.LetterIndex)
		}
		s.advanceLetter()
	}
}

// arm replaces the pending timer. The callback is bound to the current
// epoch so a timer that fires after a transition does nothing.
func (s *Scheduler) arm(d time.Duration, reason string) {
	s.stopTimer()
	epoch := s.epoch
	s.timer = s.clock.AfterFunc(d, func() { s.onTimer(epoch, reason) })
}

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) maxWait(it item) time.Duration {
	expected := it.expectedClip
	if expected <= 0 {
		expected = s.config.DefaultClipDuration
		if p, ok := s.player.(ClipDurationProvider); ok {
			if d, ok := p.ClipDuration(it.gloss); ok && d > 0 {
				expected = d
			}
		}
	}
	return core.ScaleDuration(expected+s.config.MaxWaitBuffer, s.speed)
}

func (s *Scheduler) setState(st State) {
	s.state = st
	if s.OnStateChange != nil {
		s.OnStateChange(st)
	}
}

func splitLetters(word string) []string {
	letters := make([]string, 0, len(word))
	for _, r := range word {
		letters = append(letters, string(r))
	}
	return letters
}
