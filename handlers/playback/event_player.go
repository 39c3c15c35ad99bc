package playback

import (
	"time"

	playbackevents "glosskit/events/playback"
	"glosskit/playback"
)

// eventPlayer turns scheduler commands into outbound pipeline events. The
// client reports completion asynchronously, so every call returns at once.
type eventPlayer struct {
	handler   *PlaybackHandler
	durations map[string]time.Duration
	strict    bool
}

func (p *eventPlayer) Play(cmd playback.PlayCommand) error {
	if p.strict {
		if _, ok := p.durations[cmd.Gloss]; !ok {
			return playback.ErrClipNotFound
		}
	}
	p.handler.Emit(&playbackevents.PlayGlossEvent{
		Gloss:  cmd.Gloss,
		Speed:  cmd.Speed,
		PlayID: cmd.PlayID,
		Avatar: p.handler.avatar,
	})
	return nil
}

func (p *eventPlayer) PlayLetter(cmd playback.LetterCommand) error {
	p.handler.Emit(&playbackevents.PlayLetterEvent{
		Letter: cmd.Letter,
		Index:  cmd.Index,
		Word:   cmd.Word,
		PlayID: cmd.PlayID,
	})
	return nil
}

func (p *eventPlayer) Stop() error {
	p.handler.Emit(&playbackevents.StopPlaybackEvent{})
	return nil
}

func (p *eventPlayer) ClipDuration(gloss string) (time.Duration, bool) {
	d, ok := p.durations[gloss]
	return d, ok
}
