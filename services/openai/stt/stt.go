// Package stt transcribes buffered speech segments with OpenAI's Whisper
// API. Whisper is not a streaming API, so only final transcripts are
// produced, one per segment.
package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"glosskit/core"
	"glosskit/utils/audio"
)

type Config struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"` // Override for OpenAI-compatible servers.
	Model    string `json:"model"`
	Language string `json:"language"`
	// Keyterms are joined into the transcription prompt to bias Whisper
	// towards the gloss vocabulary.
	Keyterms []string `json:"keyterms"`

	SampleRate         int           `json:"sample_rate"`
	SegmentDuration    time.Duration `json:"segment_duration"`     // Audio buffered before a request is made.
	MinSegmentDuration time.Duration `json:"min_segment_duration"` // Shorter remainders are dropped on flush.
	SilenceThreshold   float64       `json:"silence_threshold"`    // RMS below which a segment is not sent.
	RequestTimeout     time.Duration `json:"request_timeout"`
	MaxFailures        int           `json:"max_failures"` // Consecutive failed requests before the session is reported dead.
}

func DefaultConfig() Config {
	return Config{
		Model:              openai.Whisper1,
		SampleRate:         16000,
		SegmentDuration:    3 * time.Second,
		MinSegmentDuration: 500 * time.Millisecond,
		SilenceThreshold:   200,
		RequestTimeout:     15 * time.Second,
		MaxFailures:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = d.SegmentDuration
	}
	if c.MinSegmentDuration <= 0 {
		c.MinSegmentDuration = d.MinSegmentDuration
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = d.MaxFailures
	}
	return c
}

func (c Config) bytesFor(d time.Duration) int {
	samples := int(d.Seconds() * float64(c.SampleRate))
	return samples * 2
}

// WhisperSTTService implements ISTTService on top of the transcription
// endpoint. Segments are transcribed one at a time, in order.
type WhisperSTTService struct {
	config Config
	logger *core.Logger
	client *openai.Client

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	buffer   []byte
	segments chan []byte
	running  bool

	finalChan chan<- string
	errorChan chan<- error
}

func NewWhisperSTTService(config Config, logger *core.Logger) *WhisperSTTService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &WhisperSTTService{
		config: config.withDefaults(),
		logger: logger.With(map[string]any{"service": "whisper_stt"}),
	}
}

func (s *WhisperSTTService) Init(ctx context.Context) error {
	if s.config.APIKey == "" {
		return errors.New("openai: api key is required")
	}
	clientConfig := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientConfig.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientConfig)
	s.ctx, s.cancel = context.WithCancel(ctx)
	return nil
}

func (s *WhisperSTTService) Cleanup() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	s.buffer = nil
	s.mu.Unlock()
	return nil
}

// Reset transcribes whatever audio is buffered, if there is enough of it.
func (s *WhisperSTTService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buffer) >= s.config.bytesFor(s.config.MinSegmentDuration) {
		s.queueLocked(s.buffer)
	}
	s.buffer = nil
	return nil
}

func (s *WhisperSTTService) StartTranscriptionSession(
	finalChan chan<- string,
	_ chan<- string,
	errorChan chan<- error,
) error {
	if s.ctx == nil {
		return errors.New("openai: service not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	s.finalChan = finalChan
	s.errorChan = errorChan
	s.segments = make(chan []byte, 4)
	s.running = true
	go s.worker(s.segments)
	return nil
}

func (s *WhisperSTTService) SendTranscriptionAudio(chunk core.AudioChunk) error {
	if chunk.Format != core.PCM || chunk.Channels != 1 || chunk.SampleRate != s.config.SampleRate {
		return fmt.Errorf("openai: expected mono pcm at %d Hz, got %s/%d/%d",
			s.config.SampleRate, chunk.Format, chunk.Channels, chunk.SampleRate)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.buffer = append(s.buffer, chunk.Data...)
	if len(s.buffer) >= s.config.bytesFor(s.config.SegmentDuration) {
		s.queueLocked(s.buffer)
		s.buffer = nil
	}
	return nil
}

func (s *WhisperSTTService) queueLocked(pcm []byte) {
	if s.segments == nil {
		return
	}
	if rms(pcm) < s.config.SilenceThreshold {
		return
	}
	select {
	case s.segments <- pcm:
	default:
		s.logger.Warn("transcription backlog full, dropping segment", "bytes", len(pcm))
	}
}

func (s *WhisperSTTService) worker(segments <-chan []byte) {
	failures := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case pcm := <-segments:
			text, err := s.transcribe(pcm)
			if err != nil {
				if s.ctx.Err() != nil {
					return
				}
				failures++
				s.logger.Warn("transcription request failed", "attempt", failures, "error", err)
				if failures >= s.config.MaxFailures {
					s.report(fmt.Errorf("openai: %d consecutive transcription failures: %w", failures, err))
					return
				}
				continue
			}
			failures = 0
			if text != "" {
				s.send(s.finalChan, text)
			}
		}
	}
}

func (s *WhisperSTTService) transcribe(pcm []byte) (string, error) {
	wav, err := audio.PCMBytesToWavBytes(pcm, 1, s.config.SampleRate)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(s.ctx, s.config.RequestTimeout)
	defer cancel()

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.Model,
		FilePath: "segment.wav",
		Reader:   bytes.NewReader(wav),
		Prompt:   strings.Join(s.config.Keyterms, ", "),
		Language: s.config.Language,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *WhisperSTTService) send(ch chan<- string, text string) {
	if ch == nil {
		return
	}
	select {
	case ch <- text:
	case <-s.ctx.Done():
	}
}

func (s *WhisperSTTService) report(err error) {
	if s.errorChan == nil {
		return
	}
	select {
	case s.errorChan <- err:
	case <-s.ctx.Done():
	}
}

// rms of 16-bit little endian samples.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
