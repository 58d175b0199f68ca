// Package audio implements the audio plumbing between the telephony leg and
// the realtime model leg: the G.711 μ-law codec and the two fixed-rate
// resamplers (8→16 kHz up, 24→8 kHz down).
//
// All PCM in this package is signed 16-bit mono. Frames are immutable once
// produced; a frame's sample slice must not be mutated after it is handed to
// the next pipeline stage.
package audio

import (
	"encoding/binary"
	"fmt"
)

// Sample rates used by the pipeline. The telephony leg is fixed at 8 kHz
// μ-law; the model consumes 16 kHz PCM16 and produces 24 kHz PCM16.
const (
	TelephonyRate   = 8000
	ModelInputRate  = 16000
	ModelOutputRate = 24000
)

// AudioFrame is an ordered sequence of signed 16-bit mono samples tagged with
// a sample rate.
type AudioFrame struct {
	// Samples is the PCM payload. Never mutated after the frame is produced.
	Samples []int16

	// Rate is the sample rate in Hz (8000, 16000 or 24000).
	Rate int
}

// Duration returns the frame length in milliseconds. Returns 0 for an
// invalid rate.
func (f AudioFrame) Duration() float64 {
	if f.Rate <= 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.Rate) * 1000
}

// CompressedFrame is a sequence of 8-bit μ-law codes at 8 kHz, the wire
// representation of telephony audio. Its length equals the frame duration
// times 8000 samples per second.
type CompressedFrame []byte

// PCMBytes returns the frame's samples as little-endian 16-bit PCM, the wire
// format of the model leg.
func (f AudioFrame) PCMBytes() []byte {
	buf := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// FrameFromPCM builds an AudioFrame from little-endian 16-bit PCM bytes.
// Returns an error if the byte count is odd, which indicates a corrupt chunk.
func FrameFromPCM(pcm []byte, rate int) (AudioFrame, error) {
	if len(pcm)%2 != 0 {
		return AudioFrame{}, fmt.Errorf("audio: odd byte count %d in PCM data", len(pcm))
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return AudioFrame{Samples: samples, Rate: rate}, nil
}

// clampInt16 clamps v to the valid signed 16-bit range.
func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
