// Package playbacktest provides a recording playback.Player for tests.
package playbacktest

import (
	"sync"
	"time"

	"glosskit/playback"
)

// Call is one recorded player invocation.
type Call struct {
	Op     string // "play", "letter" or "stop"
	Gloss  string
	Letter string
	Speed  float64
	PlayID string
	At     time.Time
}

// Player records every command it receives. Glosses listed in Missing make
// Play return playback.ErrClipNotFound.
type Player struct {
	mu        sync.Mutex
	calls     []Call
	Now       func() time.Time
	Missing   map[string]bool
	Durations map[string]time.Duration
}

func NewPlayer() *Player {
	return &Player{Missing: map[string]bool{}, Durations: map[string]time.Duration{}}
}

func (p *Player) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Time{}
}

func (p *Player) Play(cmd playback.PlayCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "play", Gloss: cmd.Gloss, Speed: cmd.Speed, PlayID: cmd.PlayID, At: p.now()})
	if p.Missing[cmd.Gloss] {
		return playback.ErrClipNotFound
	}
	return nil
}

func (p *Player) PlayLetter(cmd playback.LetterCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "letter", Letter: cmd.Letter, PlayID: cmd.PlayID, At: p.now()})
	return nil
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Op: "stop", At: p.now()})
	return nil
}

func (p *Player) ClipDuration(gloss string) (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.Durations[gloss]
	return d, ok
}

func (p *Player) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Played lists the glosses sent with Play, in order.
func (p *Player) Played() []string {
	var out []string
	for _, c := range p.Calls() {
		if c.Op == "play" {
			out = append(out, c.Gloss)
		}
	}
	return out
}

// Letters lists the letters sent with PlayLetter, in order.
func (p *Player) Letters() []string {
	var out []string
	for _, c := range p.Calls() {
		if c.Op == "letter" {
			out = append(out, c.Letter)
		}
	}
	return out
}

// Last returns the most recent call, or a zero Call.
func (p *Player) Last() Call {
	calls := p.Calls()
	if len(calls) == 0 {
		return Call{}
	}
	return calls[len(calls)-1]
}

func (p *Player) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}
