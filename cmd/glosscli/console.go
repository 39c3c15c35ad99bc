package main

import (
	"fmt"
	"io"
	"time"

	"glosskit/core"
	"glosskit/playback"
)

// consolePlayer prints avatar commands and reports completion after a
// fixed clip length, standing in for the extension's animation player.
type consolePlayer struct {
	out    io.Writer
	clock  core.Clock
	clip   time.Duration
	letter time.Duration
	sched  *playback.Scheduler
}

func newConsolePlayer(out io.Writer, clock core.Clock, clip, letter time.Duration) *consolePlayer {
	return &consolePlayer{out: out, clock: clock, clip: clip, letter: letter}
}

func (p *consolePlayer) Play(cmd playback.PlayCommand) error {
	fmt.Fprintf(p.out, "play    %-16s x%.2f\n", cmd.Gloss, cmd.Speed)
	p.clock.AfterFunc(core.ScaleDuration(p.clip, cmd.Speed), func() {
		p.sched.GlossFinished(cmd.Gloss, cmd.PlayID)
	})
	return nil
}

func (p *consolePlayer) PlayLetter(cmd playback.LetterCommand) error {
	fmt.Fprintf(p.out, "letter  %s  (%s #%d)\n", cmd.Letter, cmd.Word, cmd.Index+1)
	p.clock.AfterFunc(core.ScaleDuration(p.letter, p.sched.Speed()), func() {
		p.sched.LetterFinished(cmd.PlayID)
	})
	return nil
}

func (p *consolePlayer) Stop() error {
	fmt.Fprintln(p.out, "stop")
	return nil
}

func (p *consolePlayer) ClipDuration(string) (time.Duration, bool) {
	return p.clip, true
}
