package playback

type PlayGlossEvent struct {
	Gloss  string
	Speed  float64
	PlayID string
	Avatar string
}

func (e *PlayGlossEvent) GetId() string   { return "playback.play" }
func (e *PlayGlossEvent) ExternalOutput() {}

type PlayLetterEvent struct {
	Letter string
	Index  int
	Word   string
	PlayID string
}

func (e *PlayLetterEvent) GetId() string   { return "playback.play_letter" }
func (e *PlayLetterEvent) ExternalOutput() {}

// StopPlaybackEvent tells the player to halt the current animation.
type StopPlaybackEvent struct{}

func (e *StopPlaybackEvent) GetId() string   { return "playback.stop" }
func (e *StopPlaybackEvent) ExternalOutput() {}

// Session states reported in StatusEvent.
const (
	StatusListening = "listening"
	StatusPlaying   = "playing"
	StatusSpelling  = "spelling"
	StatusDemo      = "demo"
	StatusStopped   = "stopped"
	StatusError     = "error"
)

type StatusEvent struct {
	State   string
	Code    string
	Message string
}

func (e *StatusEvent) GetId() string   { return "playback.status" }
func (e *StatusEvent) ExternalOutput() {}
