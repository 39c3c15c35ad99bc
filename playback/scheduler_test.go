package playback_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glosskit/core"
	"glosskit/core/coretest"
	"glosskit/gloss"
	"glosskit/playback"
	"glosskit/playback/playbacktest"
)

func newScheduler(t *testing.T, cfg playback.Config) (*playback.Scheduler, *playbacktest.Player, *coretest.FakeClock) {
	t.Helper()
	clock := coretest.NewFakeClock()
	player := playbacktest.NewPlayer()
	player.Now = clock.Now
	return playback.NewScheduler(cfg, player, clock, core.NewNopLogger()), player, clock
}

func finishCurrent(s *playback.Scheduler) {
	st := s.State()
	s.GlossFinished(st.Gloss, st.PlayID)
}

func TestSchedulerPlaysOneAtATimeInOrder(t *testing.T) {
	s, player, _ := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))
	s.Enqueue(gloss.Play("thankyou"))

	assert.Equal(t, []string{"hello"}, player.Played())
	assert.Equal(t, 2, s.QueueLen())

	finishCurrent(s)
	assert.Equal(t, []string{"hello", "yes"}, player.Played())
	finishCurrent(s)
	finishCurrent(s)
	assert.Equal(t, []string{"hello", "yes", "thankyou"}, player.Played())
	assert.True(t, s.State().Idle())
}

func TestSchedulerGreatJobScenario(t *testing.T) {
	s, player, _ := newScheduler(t, playback.DefaultConfig())
	resolver := gloss.NewResolver(nil, 0)

	var done []gloss.DispatchToken
	s.OnEntryDone = func(_ playback.EntryID, tok gloss.DispatchToken) { done = append(done, tok) }

	for _, tok := range resolver.ResolveText("Great job, let's clap for that!") {
		s.Enqueue(tok)
	}
	for i := 0; i < 3; i++ {
		finishCurrent(s)
	}

	assert.Equal(t, []string{"good", "clap", "clap"}, player.Played())
	require.Len(t, done, 2)
	assert.Equal(t, "good+clap", done[0].Identity())
	assert.Equal(t, "clap", done[1].Identity())
}

func TestSchedulerSequenceIsNotInterleaved(t *testing.T) {
	s, player, _ := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("yes", "acknowledge"))
	s.Enqueue(gloss.Play("hello"))
	finishCurrent(s)
	finishCurrent(s)
	finishCurrent(s)

	assert.Equal(t, []string{"yes", "acknowledge", "hello"}, player.Played())
}

func TestSchedulerIgnoresStaleCompletion(t *testing.T) {
	s, player, _ := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))
	playID := s.State().PlayID

	s.GlossFinished("yes", "")
	assert.Equal(t, "hello", s.State().Gloss, "finished event for another gloss")

	s.GlossFinished("hello", "some-other-play")
	assert.Equal(t, "hello", s.State().Gloss, "finished event with a different play id")

	s.GlossFinished("hello", playID)
	assert.Equal(t, "yes", s.State().Gloss)

	s.GlossFinished("hello", playID)
	assert.Equal(t, "yes", s.State().Gloss, "duplicate finished event")
	assert.Equal(t, []string{"hello", "yes"}, player.Played())
}

func TestSchedulerCompletionWithoutPlayID(t *testing.T) {
	s, _, _ := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("hello"))
	s.GlossFinished("hello", "")
	assert.True(t, s.State().Idle())
}

func TestSchedulerMissingClipAdvancesAfterDelay(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())
	player.Missing["unknown"] = true

	s.Enqueue(gloss.Play("unknown"))
	s.Enqueue(gloss.Play("hello"))

	clock.Advance(599 * time.Millisecond)
	assert.Equal(t, []string{"unknown"}, player.Played())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"unknown", "hello"}, player.Played())
}

func TestSchedulerMissingClipDelayScalesWithSpeed(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())
	player.Missing["unknown"] = true
	s.SetSpeed(2)

	s.Enqueue(gloss.Play("unknown"))
	s.Enqueue(gloss.Play("hello"))

	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, []string{"unknown", "hello"}, player.Played())
}

func TestSchedulerForcesAdvanceWhenPlayerIsSilent(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	var done int
	s.OnEntryDone = func(playback.EntryID, gloss.DispatchToken) { done++ }

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))

	clock.Advance(3999 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, player.Played())

	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"hello", "yes"}, player.Played())
	assert.Equal(t, 1, done, "a forced advance still completes the entry")
}

func TestSchedulerMaxWaitUsesKnownClipDuration(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())
	player.Durations["hello"] = time.Second

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))

	clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, []string{"hello", "yes"}, player.Played())
}

func TestSchedulerExpectedDurationOption(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("hello"), playback.WithExpectedDuration(500*time.Millisecond))
	s.Enqueue(gloss.Play("yes"))

	clock.Advance(2000 * time.Millisecond)
	assert.Equal(t, []string{"hello", "yes"}, player.Played())
}

func TestSchedulerOpenLoopSpelling(t *testing.T) {
	cfg := playback.DefaultConfig()
	cfg.SpellMode = playback.SpellModeOpenLoop
	s, player, clock := newScheduler(t, cfg)
	s.SetSpeed(2)
	start := clock.Now()

	var doneAt time.Time
	s.OnEntryDone = func(playback.EntryID, gloss.DispatchToken) { doneAt = clock.Now() }

	s.Enqueue(gloss.Fingerspell("example"))
	s.LetterFinished("")
	clock.Advance(5 * time.Second)

	assert.Equal(t, []string{"e", "x", "a", "m", "p", "l", "e"}, player.Letters())
	var offsets []time.Duration
	for _, c := range player.Calls() {
		if c.Op == "letter" {
			offsets = append(offsets, c.At.Sub(start))
		}
	}
	for i, off := range offsets {
		assert.Equal(t, time.Duration(i)*200*time.Millisecond, off, "letter %d", i)
	}
	assert.Equal(t, 1400*time.Millisecond, doneAt.Sub(start))
	assert.True(t, s.State().Idle())
}

func TestSchedulerSpeedChangeKeepsWordPace(t *testing.T) {
	cfg := playback.DefaultConfig()
	cfg.SpellMode = playback.SpellModeOpenLoop
	s, player, clock := newScheduler(t, cfg)
	start := clock.Now()

	s.Enqueue(gloss.Fingerspell("avatar"))
	s.Enqueue(gloss.Fingerspell("hi"))
	clock.Advance(400 * time.Millisecond)
	s.SetSpeed(2)
	clock.Advance(5 * time.Second)

	var offsets []time.Duration
	for _, c := range player.Calls() {
		if c.Op == "letter" {
			offsets = append(offsets, c.At.Sub(start))
		}
	}
	ms := time.Millisecond
	assert.Equal(t, []time.Duration{0, 400 * ms, 800 * ms, 1200 * ms, 1600 * ms, 2000 * ms, 2400 * ms, 2600 * ms}, offsets,
		"the word in flight keeps its spacing; the next word uses the new speed")
	assert.True(t, s.State().Idle())
}

func TestSchedulerClosedLoopSpelling(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Fingerspell("abc"))
	s.Enqueue(gloss.Play("hello"))
	assert.Equal(t, []string{"a"}, player.Letters())
	assert.Equal(t, playback.PhaseSpelling, s.State().Phase)

	s.LetterFinished(s.State().PlayID)
	assert.Equal(t, []string{"a", "b"}, player.Letters())
	assert.Equal(t, 1, s.State().LetterIndex)

	s.LetterFinished("another-word")
	assert.Equal(t, []string{"a", "b"}, player.Letters(), "signal for another word")

	clock.Advance(800 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, player.Letters(), "letter wait bounds a silent player")

	s.LetterFinished("")
	assert.Equal(t, []string{"hello"}, player.Played())
	assert.Equal(t, playback.PhasePlayingGloss, s.State().Phase)
}

func TestSchedulerStopDropsQueueAndIgnoresLateSignals(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	var done int
	s.OnEntryDone = func(playback.EntryID, gloss.DispatchToken) { done++ }

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))
	oldID := s.State().PlayID

	s.Stop()
	assert.True(t, s.State().Idle())
	assert.Zero(t, s.QueueLen())
	assert.Equal(t, "stop", player.Last().Op)

	s.GlossFinished("hello", oldID)
	clock.Advance(10 * time.Second)
	assert.Equal(t, []string{"hello"}, player.Played())
	assert.Zero(t, done)

	s.Enqueue(gloss.Play("hello"))
	assert.Equal(t, []string{"hello", "hello"}, player.Played())
	assert.NotEqual(t, oldID, s.State().PlayID)

	s.GlossFinished("hello", oldID)
	assert.Equal(t, playback.PhasePlayingGloss, s.State().Phase, "completion of the stopped play")
}

func TestSchedulerStopDuringSpelling(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Fingerspell("letters"))
	s.Stop()
	clock.Advance(10 * time.Second)

	assert.Equal(t, []string{"l"}, player.Letters())
	assert.True(t, s.State().Idle())
}

func TestSchedulerSpeedAppliesToLaterPlays(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))
	s.SetSpeed(2)

	// hello was armed at speed 1: 2500ms + 1500ms.
	clock.Advance(2000 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, player.Played())
	clock.Advance(2000 * time.Millisecond)
	assert.Equal(t, []string{"hello", "yes"}, player.Played())

	calls := player.Calls()
	assert.Equal(t, 1.0, calls[0].Speed)
	assert.Equal(t, 2.0, calls[1].Speed)
}

func TestSchedulerSpeedIsClamped(t *testing.T) {
	s, _, _ := newScheduler(t, playback.DefaultConfig())

	s.SetSpeed(10)
	assert.Equal(t, core.MaxSpeed, s.Speed())
	s.SetSpeed(0)
	assert.Equal(t, core.DefaultSpeed, s.Speed())
}

func TestSchedulerIgnoresEmptyTokens(t *testing.T) {
	s, player, _ := newScheduler(t, playback.DefaultConfig())

	assert.Zero(t, s.Enqueue(gloss.DispatchToken{}))
	assert.Zero(t, s.Enqueue(gloss.Fingerspell("")))
	assert.Empty(t, player.Calls())
}

func TestSchedulerEntryDoneMayEnqueue(t *testing.T) {
	s, player, _ := newScheduler(t, playback.DefaultConfig())

	next := []gloss.DispatchToken{gloss.Play("yes"), gloss.Play("goodbye")}
	s.OnEntryDone = func(playback.EntryID, gloss.DispatchToken) {
		if len(next) > 0 {
			s.Enqueue(next[0])
			next = next[1:]
		}
	}

	s.Enqueue(gloss.Play("hello"))
	finishCurrent(s)
	finishCurrent(s)
	finishCurrent(s)

	assert.Equal(t, []string{"hello", "yes", "goodbye"}, player.Played())
	assert.True(t, s.State().Idle())
}

func TestSchedulerReportsStateChanges(t *testing.T) {
	s, _, _ := newScheduler(t, playback.DefaultConfig())

	var phases []playback.Phase
	s.OnStateChange = func(st playback.State) { phases = append(phases, st.Phase) }

	s.Enqueue(gloss.Play("hello"))
	finishCurrent(s)

	assert.Equal(t, []playback.Phase{playback.PhasePlayingGloss, playback.PhaseIdle}, phases)
}

// echoPlayer reports completion before Play returns.
type echoPlayer struct {
	s      *playback.Scheduler
	played []string
}

func (p *echoPlayer) Play(cmd playback.PlayCommand) error {
	p.played = append(p.played, cmd.Gloss)
	p.s.GlossFinished(cmd.Gloss, cmd.PlayID)
	return nil
}

func (p *echoPlayer) PlayLetter(playback.LetterCommand) error { return nil }
func (p *echoPlayer) Stop() error                             { return nil }

func TestSchedulerHandlesSynchronousCompletion(t *testing.T) {
	clock := coretest.NewFakeClock()
	player := &echoPlayer{}
	s := playback.NewScheduler(playback.DefaultConfig(), player, clock, core.NewNopLogger())
	player.s = s

	s.Enqueue(gloss.Play("good", "clap"))
	s.Enqueue(gloss.Play("hello"))

	assert.Equal(t, []string{"good", "clap", "hello"}, player.played)
	assert.True(t, s.State().Idle())
	assert.Zero(t, clock.Pending())
}

func TestSchedulerClipMissingReport(t *testing.T) {
	s, player, clock := newScheduler(t, playback.DefaultConfig())

	s.Enqueue(gloss.Play("hello"))
	s.Enqueue(gloss.Play("yes"))
	s.ClipMissing("yes", "")
	clock.Advance(600 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, player.Played(), "report for a gloss that is not playing")

	s.ClipMissing("hello", s.State().PlayID)
	clock.Advance(599 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, player.Played())
	clock.Advance(time.Millisecond)
	assert.Equal(t, []string{"hello", "yes"}, player.Played())
}
