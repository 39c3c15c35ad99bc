package audio

import (
	"encoding/binary"
	"fmt"
)

// ResamplePCM converts 16-bit little endian interleaved PCM between sample
// rates by linear interpolation. Speech going to a recognizer tolerates the
// aliasing this introduces.
func ResamplePCM(pcm []byte, numChannels, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(pcm) == 0 {
		return pcm, nil
	}
	if err := ValidatePCMData(pcm, numChannels); err != nil {
		return nil, err
	}

	inFrames := len(pcm) / (2 * numChannels)
	outFrames := int(int64(inFrames) * int64(toRate) / int64(fromRate))
	if outFrames == 0 {
		return []byte{}, nil
	}
	out := make([]byte, outFrames*2*numChannels)
	step := float64(fromRate) / float64(toRate)

	sample := func(frame, ch int) float64 {
		off := (frame*numChannels + ch) * 2
		return float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
	}

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := idx + 1
		if next >= inFrames {
			next = inFrames - 1
		}
		for ch := 0; ch < numChannels; ch++ {
			v := sample(idx, ch)*(1-frac) + sample(next, ch)*frac
			off := (i*numChannels + ch) * 2
			binary.LittleEndian.PutUint16(out[off:], uint16(int16(v)))
		}
	}
	return out, nil
}
