package transport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"glosskit/core"
	"glosskit/events/control"
	demoevents "glosskit/events/demo"
	glossevents "glosskit/events/gloss"
	playbackevents "glosskit/events/playback"
	"glosskit/events/stt"
	"glosskit/events/transport"
	"glosskit/protocol"
)

var ErrUnknownMessage = errors.New("transport: unknown message type")

// SessionSerializer maps the extension's session protocol onto pipeline
// events. Binary frames are audio in the format announced by the last
// configure message. It is owned by one session's input handler.
type SessionSerializer struct {
	format AudioFormat
	now    func() time.Time
}

func NewSessionSerializer(format AudioFormat) *SessionSerializer {
	d := DefaultAudioFormat()
	if format.Encoding == "" {
		format.Encoding = d.Encoding
	}
	if format.SampleRate <= 0 {
		format.SampleRate = d.SampleRate
	}
	if format.Channels <= 0 {
		format.Channels = d.Channels
	}
	return &SessionSerializer{format: format, now: time.Now}
}

// AudioFormat is the format applied to incoming binary frames.
func (s *SessionSerializer) AudioFormat() AudioFormat {
	return s.format
}

func (s *SessionSerializer) Deserialize(raw core.RawData) ([]core.IEvent, error) {
	if raw.Binary {
		if len(raw.Data) == 0 {
			return nil, nil
		}
		return []core.IEvent{&transport.TransportAudioInputEvent{AudioChunk: core.AudioChunk{
			Data:       raw.Data,
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Format:     core.ParseAudioEncodingFormat(s.format.Encoding),
			Timestamp:  s.now(),
		}}}, nil
	}

	msgType, payload, err := protocol.Unmarshal(raw.Data)
	if err != nil {
		return nil, err
	}

	var event core.IEvent
	switch msgType {
	case protocol.MsgTranscript:
		p, err := protocol.UnmarshalPayload[protocol.TranscriptPayload](payload)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Text) == "" {
			return nil, nil
		}
		if p.Final {
			event = &stt.STTFinalOutputEvent{Text: p.Text, Source: stt.SourceClient}
		} else {
			event = &stt.STTInterimOutputEvent{Text: p.Text, Source: stt.SourceClient}
		}
	case protocol.MsgGlossFinished:
		p, err := protocol.UnmarshalPayload[protocol.GlossFinishedPayload](payload)
		if err != nil {
			return nil, err
		}
		event = &playbackevents.GlossFinishedEvent{Gloss: p.Gloss, PlayID: p.PlayID}
	case protocol.MsgClipMissing:
		p, err := protocol.UnmarshalPayload[protocol.ClipMissingPayload](payload)
		if err != nil {
			return nil, err
		}
		event = &playbackevents.ClipMissingEvent{Gloss: p.Gloss, PlayID: p.PlayID}
	case protocol.MsgLetterFinished:
		p, err := protocol.UnmarshalPayload[protocol.LetterFinishedPayload](payload)
		if err != nil {
			return nil, err
		}
		event = &playbackevents.LetterFinishedEvent{PlayID: p.PlayID}
	case protocol.MsgSetSpeed:
		p, err := protocol.UnmarshalPayload[protocol.SetSpeedPayload](payload)
		if err != nil {
			return nil, err
		}
		event = &control.SetSpeedEvent{Speed: p.Speed}
	case protocol.MsgStartDemo:
		event = &control.StartDemoEvent{}
	case protocol.MsgStartLive:
		event = &control.StartLiveEvent{}
	case protocol.MsgStop:
		event = &control.StopEvent{}
	case protocol.MsgCaptureError:
		p, err := protocol.UnmarshalPayload[protocol.CaptureErrorPayload](payload)
		if err != nil {
			return nil, err
		}
		event = &control.CaptureErrorEvent{Code: p.Code, Message: p.Message}
	case protocol.MsgConfigure:
		p, err := protocol.UnmarshalPayload[protocol.ConfigurePayload](payload)
		if err != nil {
			return nil, err
		}
		if p.Audio != nil {
			s.applyAudioFormat(*p.Audio)
		}
		event = &control.ConfigureEvent{Language: p.Language, Avatar: p.Avatar, Source: p.Source, Speed: p.Speed}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msgType)
	}
	return []core.IEvent{event}, nil
}

func (s *SessionSerializer) applyAudioFormat(p protocol.AudioFormatPayload) {
	if p.Encoding != "" {
		s.format.Encoding = p.Encoding
	}
	if p.SampleRate > 0 {
		s.format.SampleRate = p.SampleRate
	}
	if p.Channels > 0 {
		s.format.Channels = p.Channels
	}
}

func (s *SessionSerializer) Serialize(event core.IExternalOutputEvent) (core.RawData, bool, error) {
	var (
		msgType protocol.MessageType
		payload interface{}
	)
	switch e := event.(type) {
	case *playbackevents.PlayGlossEvent:
		msgType = protocol.MsgPlay
		payload = protocol.PlayPayload{Gloss: e.Gloss, Speed: e.Speed, PlayID: e.PlayID, Avatar: e.Avatar}
	case *playbackevents.PlayLetterEvent:
		msgType = protocol.MsgPlayLetter
		payload = protocol.PlayLetterPayload{Letter: e.Letter, Index: e.Index, Word: e.Word, PlayID: e.PlayID}
	case *playbackevents.StopPlaybackEvent:
		msgType = protocol.MsgStop
	case *playbackevents.StatusEvent:
		msgType = protocol.MsgStatus
		payload = protocol.SessionStatusPayload{State: e.State, Code: e.Code, Message: e.Message}
	case *glossevents.WordDetectedEvent:
		msgType = protocol.MsgWordDetected
		payload = protocol.WordDetectedPayload{Word: e.Word}
	case *glossevents.TranscriptUpdateEvent:
		msgType = protocol.MsgTranscriptUpdate
		payload = protocol.TranscriptUpdatePayload{Text: e.Text, Final: e.Final}
	case *demoevents.DemoCaptionEvent:
		msgType = protocol.MsgDemoCaption
		payload = protocol.DemoCaptionPayload{Caption: e.Caption, Scene: e.Scene}
	case *demoevents.DemoCompleteEvent:
		msgType = protocol.MsgDemoComplete
	default:
		return core.RawData{}, false, nil
	}

	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return core.RawData{}, false, err
	}
	return core.RawData{Data: data}, true, nil
}
