// Package control holds the session commands sent by the client.
package control

type SetSpeedEvent struct {
	Speed float64
}

func (e *SetSpeedEvent) GetId() string  { return "control.set_speed" }
func (e *SetSpeedEvent) ExternalInput() {}

type StartDemoEvent struct{}

func (e *StartDemoEvent) GetId() string  { return "control.start_demo" }
func (e *StartDemoEvent) ExternalInput() {}

type StartLiveEvent struct{}

func (e *StartLiveEvent) GetId() string  { return "control.start_live" }
func (e *StartLiveEvent) ExternalInput() {}

// StopEvent halts playback and the demo and drops the queue.
type StopEvent struct{}

func (e *StopEvent) GetId() string  { return "control.stop" }
func (e *StopEvent) ExternalInput() {}

// CaptureErrorEvent reports a capture failure on the client side, such as
// a denied microphone permission.
type CaptureErrorEvent struct {
	Code    string
	Message string
}

func (e *CaptureErrorEvent) GetId() string  { return "control.capture_error" }
func (e *CaptureErrorEvent) ExternalInput() {}

// ConfigureEvent carries the client's session preferences. Zero fields
// leave the current value unchanged.
type ConfigureEvent struct {
	Language string
	Avatar   string
	Source   string // "mic" or "tab-audio"
	Speed    float64
}

func (e *ConfigureEvent) GetId() string  { return "control.configure" }
func (e *ConfigureEvent) ExternalInput() {}
