// Package demo plays a scripted sequence of scenes through the playback
// scheduler without any speech input.
package demo

import (
	"time"

	"glosskit/gloss"
)

// Step is one dispatch in a scene. Hint, when set, is the expected clip
// length the scheduler uses for its unresponsive-player fallback.
type Step struct {
	Token gloss.DispatchToken
	Hint  time.Duration
}

type Scene struct {
	Caption string
	Steps   []Step
}

type Script []Scene

// Len counts the steps across all scenes.
func (s Script) Len() int {
	n := 0
	for _, scene := range s {
		n += len(scene.Steps)
	}
	return n
}

func step(tok gloss.DispatchToken, hint time.Duration) Step {
	return Step{Token: tok, Hint: hint}
}

// DefaultScript is a short greeting, introduction and farewell.
func DefaultScript() Script {
	return Script{
		{
			Caption: "Hello, and welcome!",
			Steps: []Step{
				step(gloss.Play("hello"), 1200*time.Millisecond),
				step(gloss.Play("welcome"), 1400*time.Millisecond),
			},
		},
		{
			Caption: "My name is Avatar. Let's learn to sign.",
			Steps: []Step{
				step(gloss.Play("name"), 1200*time.Millisecond),
				step(gloss.Fingerspell("avatar"), 0),
				step(gloss.Play("learn"), 1300*time.Millisecond),
				step(gloss.Play("sign"), 1300*time.Millisecond),
			},
		},
		{
			Caption: "Great job! Thank you.",
			Steps: []Step{
				step(gloss.Play("good", "clap"), 1500*time.Millisecond),
				step(gloss.Play("thankyou"), 1400*time.Millisecond),
			},
		},
		{
			Caption: "Goodbye, friend!",
			Steps: []Step{
				step(gloss.Play("goodbye"), 1200*time.Millisecond),
				step(gloss.Play("friend"), 1200*time.Millisecond),
			},
		},
	}
}
