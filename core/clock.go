package core

import (
	"context"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was still pending.
	Stop() bool
}

// Clock is the time source for everything that waits: cooldowns, playback
// fallbacks, fingerspelling pace and demo pacing.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package. Callbacks run on
// their own goroutine.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// LoopClock delivers timer callbacks into an event loop instead of running
// them on the timer goroutine, so the loop stays the only mutator of its
// state. The loop drains Callbacks() and invokes each function it receives.
type LoopClock struct {
	ctx       context.Context
	callbacks chan func()
}

func NewLoopClock(ctx context.Context, buffer int) *LoopClock {
	return &LoopClock{
		ctx:       ctx,
		callbacks: make(chan func(), buffer),
	}
}

// Callbacks is the channel the owning loop must select on.
func (c *LoopClock) Callbacks() <-chan func() {
	return c.callbacks
}

func (c *LoopClock) Now() time.Time { return time.Now() }

func (c *LoopClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() {
		select {
		case c.callbacks <- f:
		case <-c.ctx.Done():
		}
	})
}

const (
	DefaultSpeed = 1.0
	MinSpeed     = 0.25
	MaxSpeed     = 4.0
)

// NormalizeSpeed clamps a speed factor into [MinSpeed, MaxSpeed]. Zero,
// negative and NaN factors fall back to DefaultSpeed.
func NormalizeSpeed(speed float64) float64 {
	if !(speed > 0) {
		return DefaultSpeed
	}
	if speed < MinSpeed {
		return MinSpeed
	}
	if speed > MaxSpeed {
		return MaxSpeed
	}
	return speed
}

// ScaleDuration divides d by the speed factor: a faster speed means a
// shorter wait.
func ScaleDuration(d time.Duration, speed float64) time.Duration {
	return time.Duration(float64(d) / NormalizeSpeed(speed))
}
