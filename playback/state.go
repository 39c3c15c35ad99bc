package playback

import "fmt"

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePlayingGloss
	PhaseSpelling
)

func (p Phase) String() string {
	switch p {
	case PhasePlayingGloss:
		return "playing"
	case PhaseSpelling:
		return "spelling"
	default:
		return "idle"
	}
}

// EntryID identifies one enqueued DispatchToken. A multi-gloss token keeps
// a single EntryID across all of its clips.
type EntryID uint64

// State is the scheduler's single active playback state.
type State struct {
	Phase       Phase
	Entry       EntryID
	Gloss       string // PhasePlayingGloss
	Word        string // PhaseSpelling
	LetterIndex int    // PhaseSpelling
	PlayID      string
}

func (s State) Idle() bool {
	return s.Phase == PhaseIdle
}

func (s State) String() string {
	switch s.Phase {
	case PhasePlayingGloss:
		return fmt.Sprintf("playing(%s)", s.Gloss)
	case PhaseSpelling:
		return fmt.Sprintf("spelling(%s,%d)", s.Word, s.LetterIndex)
	default:
		return "idle"
	}
}
