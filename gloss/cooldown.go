package gloss

import (
	"time"

	"glosskit/core"
)

type CooldownConfig struct {
	GlossCooldown          time.Duration `json:"gloss_cooldown"`            // Window for play tokens.
	SpellCooldownPerLetter time.Duration `json:"spell_cooldown_per_letter"` // Per spelled letter.
	SpellCooldownBuffer    time.Duration `json:"spell_cooldown_buffer"`     // Added once per spelled word.
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		GlossCooldown:          1500 * time.Millisecond,
		SpellCooldownPerLetter: 300 * time.Millisecond,
		SpellCooldownBuffer:    1000 * time.Millisecond,
	}
}

// CooldownTracker suppresses re-dispatching the same token while its
// previous dispatch is still occupying the avatar. It is not safe for
// concurrent use; its owner's event loop serializes access.
type CooldownTracker struct {
	config CooldownConfig
	clock  core.Clock
	speed  float64
	last   map[string]time.Time
}

func NewCooldownTracker(config CooldownConfig, clock core.Clock) *CooldownTracker {
	defaults := DefaultCooldownConfig()
	if config.GlossCooldown <= 0 {
		config.GlossCooldown = defaults.GlossCooldown
	}
	if config.SpellCooldownPerLetter <= 0 {
		config.SpellCooldownPerLetter = defaults.SpellCooldownPerLetter
	}
	if config.SpellCooldownBuffer < 0 {
		config.SpellCooldownBuffer = defaults.SpellCooldownBuffer
	}
	if clock == nil {
		clock = core.SystemClock()
	}
	return &CooldownTracker{
		config: config,
		clock:  clock,
		speed:  core.DefaultSpeed,
		last:   make(map[string]time.Time),
	}
}

// SetSpeed scales every window computed after the call.
func (c *CooldownTracker) SetSpeed(speed float64) {
	c.speed = core.NormalizeSpeed(speed)
}

// Window returns how long tok blocks an identical dispatch.
func (c *CooldownTracker) Window(tok DispatchToken) time.Duration {
	var base time.Duration
	switch tok.Kind {
	case KindFingerspell:
		base = time.Duration(len(tok.Word))*c.config.SpellCooldownPerLetter + c.config.SpellCooldownBuffer
	default:
		base = c.config.GlossCooldown
	}
	return core.ScaleDuration(base, c.speed)
}

// CanDispatch reports whether tok may be dispatched now and, if so, records
// the dispatch time. A refused call changes nothing.
func (c *CooldownTracker) CanDispatch(tok DispatchToken) bool {
	key := tok.Identity()
	now := c.clock.Now()
	if last, ok := c.last[key]; ok && now.Sub(last) < c.Window(tok) {
		return false
	}
	c.last[key] = now
	return true
}

// Reset forgets every recorded dispatch.
func (c *CooldownTracker) Reset() {
	c.last = make(map[string]time.Time)
}

// UtteranceDedupSet holds identities already dispatched in the current
// utterance. It is cleared when the utterance is finalized.
type UtteranceDedupSet struct {
	seen map[string]struct{}
}

func NewUtteranceDedupSet() *UtteranceDedupSet {
	return &UtteranceDedupSet{seen: make(map[string]struct{})}
}

// Add inserts identity and reports whether it was new.
func (s *UtteranceDedupSet) Add(identity string) bool {
	if _, ok := s.seen[identity]; ok {
		return false
	}
	s.seen[identity] = struct{}{}
	return true
}

func (s *UtteranceDedupSet) Contains(identity string) bool {
	_, ok := s.seen[identity]
	return ok
}

func (s *UtteranceDedupSet) Len() int {
	return len(s.seen)
}

func (s *UtteranceDedupSet) Reset() {
	s.seen = make(map[string]struct{})
}
