// Package audio converts captured client audio into the format a
// transcription service expects.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zaf/g711"

	"glosskit/core"
)

var (
	ErrOddPCM             = errors.New("audio: PCM length must be even (16-bit samples)")
	ErrEmptyPCM           = errors.New("audio: PCM data is empty")
	ErrChannelMismatch    = errors.New("audio: PCM length does not match channel count")
	ErrUnsupportedFormat  = errors.New("audio: unsupported encoding")
	ErrUnsupportedChannel = errors.New("audio: unsupported channel conversion")
)

// ULawBytesToPCM decodes G.711 μ-law to 16-bit little endian PCM.
func ULawBytesToPCM(u []byte) []byte {
	return g711.DecodeUlaw(u)
}

// ALawBytesToPCM decodes G.711 A-law to 16-bit little endian PCM.
func ALawBytesToPCM(a []byte) []byte {
	return g711.DecodeAlaw(a)
}

func PCMBytesToULaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCM
	}
	return g711.EncodeUlaw(pcm), nil
}

func PCMBytesToALaw(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCM
	}
	return g711.EncodeAlaw(pcm), nil
}

// ValidatePCMData checks that pcm holds whole 16-bit frames for numChannels.
func ValidatePCMData(pcm []byte, numChannels int) error {
	if len(pcm) == 0 {
		return ErrEmptyPCM
	}
	if len(pcm)%2 != 0 {
		return ErrOddPCM
	}
	if numChannels <= 0 || len(pcm)%(2*numChannels) != 0 {
		return ErrChannelMismatch
	}
	return nil
}

// PCMDuration returns how long pcm plays.
func PCMDuration(pcm []byte, numChannels, sampleRate int) (float64, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return 0, err
	}
	if sampleRate <= 0 {
		return 0, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	frames := len(pcm) / (2 * numChannels)
	return float64(frames) / float64(sampleRate), nil
}

// PCMBytesToWavBytes wraps 16-bit little endian PCM in a RIFF/WAVE header.
func PCMBytesToWavBytes(pcm []byte, numChannels, sampleRate int) ([]byte, error) {
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return nil, err
	}
	if numChannels > 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedChannel, numChannels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	const (
		bitsPerSample = 16
		formatPCM     = 1
		fmtChunkSize  = 16
		headerSize    = 44
	)
	blockAlign := numChannels * bitsPerSample / 8

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(headerSize-8+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// StripWAVHeaderIfPresent returns the data chunk of a RIFF/WAVE buffer, or
// the input unchanged when it is not WAV. Tab-audio capture in some
// browsers delivers whole WAV blobs instead of raw frames.
func StripWAVHeaderIfPresent(chunk []byte) ([]byte, error) {
	if len(chunk) < 12 || !bytes.HasPrefix(chunk, []byte("RIFF")) || !bytes.Equal(chunk[8:12], []byte("WAVE")) {
		return chunk, nil
	}
	for i := 12; i+8 <= len(chunk); {
		id := string(chunk[i : i+4])
		size := int(binary.LittleEndian.Uint32(chunk[i+4 : i+8]))
		next := i + 8 + size
		if id == "data" {
			if next > len(chunk) {
				return nil, errors.New("audio: WAV data chunk exceeds buffer")
			}
			return chunk[i+8 : next], nil
		}
		if size%2 != 0 {
			next++
		}
		i = next
	}
	return nil, errors.New("audio: WAV data chunk not found")
}

// ConvertAudioChunk converts input to the target encoding, channel count
// and sample rate, decoding to PCM first when needed.
func ConvertAudioChunk(
	input core.AudioChunk,
	targetFormat core.AudioEncodingFormat,
	targetChannels int,
	targetSampleRate int,
) (core.AudioChunk, error) {
	if targetChannels <= 0 {
		targetChannels = input.Channels
	}
	if targetSampleRate <= 0 {
		targetSampleRate = input.SampleRate
	}
	if input.Format == targetFormat && input.Channels == targetChannels && input.SampleRate == targetSampleRate {
		return input, nil
	}

	out := input
	switch input.Format {
	case core.PCM:
	case core.ULAW:
		out.Data = ULawBytesToPCM(input.Data)
	case core.ALAW:
		out.Data = ALawBytesToPCM(input.Data)
	default:
		return core.AudioChunk{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, input.Format)
	}
	out.Format = core.PCM

	if out.Channels != targetChannels {
		pcm, err := convertChannels(out.Data, out.Channels, targetChannels)
		if err != nil {
			return core.AudioChunk{}, err
		}
		out.Data = pcm
		out.Channels = targetChannels
	}

	if out.SampleRate != targetSampleRate {
		pcm, err := ResamplePCM(out.Data, out.Channels, out.SampleRate, targetSampleRate)
		if err != nil {
			return core.AudioChunk{}, err
		}
		out.Data = pcm
		out.SampleRate = targetSampleRate
	}

	var err error
	switch targetFormat {
	case core.PCM:
	case core.ULAW:
		out.Data, err = PCMBytesToULaw(out.Data)
	case core.ALAW:
		out.Data, err = PCMBytesToALaw(out.Data)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, targetFormat)
	}
	if err != nil {
		return core.AudioChunk{}, err
	}
	out.Format = targetFormat
	return out, nil
}

func convertChannels(pcm []byte, from, to int) ([]byte, error) {
	switch {
	case from == to:
		return pcm, nil
	case from == 1 && to == 2:
		return monoToStereo(pcm), nil
	case from == 2 && to == 1:
		return stereoToMono(pcm), nil
	default:
		return nil, fmt.Errorf("%w: %d to %d", ErrUnsupportedChannel, from, to)
	}
}

func monoToStereo(mono []byte) []byte {
	samples := len(mono) / 2
	out := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		copy(out[i*4:i*4+2], mono[i*2:i*2+2])
		copy(out[i*4+2:i*4+4], mono[i*2:i*2+2])
	}
	return out
}

func stereoToMono(stereo []byte) []byte {
	frames := len(stereo) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		left := int16(binary.LittleEndian.Uint16(stereo[i*4:]))
		right := int16(binary.LittleEndian.Uint16(stereo[i*4+2:]))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16((int(left)+int(right))/2)))
	}
	return out
}
