package audio

import "sync"

// G.711 μ-law companding constants. BIAS is the fixed offset the encoding law
// adds before segment extraction; CLIP is the maximum encodable magnitude.
// Deviating from either changes the loudness and distortion profile of the
// round-tripped waveform.
const (
	mulawBias = 0x84
	mulawClip = 8159
)

// The two lookup tables are process-wide immutable state: built once before
// first use, shared read-only by every session afterwards. No synchronisation
// is needed after initTables completes because no writer exists.
var (
	tablesOnce  sync.Once
	decodeTable [256]int16
	encodeTable [65536]byte
)

func initTables() {
	tablesOnce.Do(func() {
		for code := 0; code < 256; code++ {
			decodeTable[code] = decodeSample(byte(code))
		}
		for v := -32768; v <= 32767; v++ {
			encodeTable[v+32768] = encodeSample(int16(v))
		}
	})
}

// decodeSample expands a single μ-law code to its linear 16-bit value by
// inverting the bit pattern, extracting the 3-bit segment and 4-bit mantissa,
// and reconstructing the biased magnitude.
func decodeSample(code byte) int16 {
	u := ^code
	sign := u & 0x80
	segment := (u >> 4) & 0x07
	mantissa := u & 0x0F

	magnitude := (int32(mantissa)<<3 + mulawBias) << segment
	value := magnitude - mulawBias
	if sign != 0 {
		value = -value
	}
	return int16(value)
}

// encodeSample compresses a single linear 16-bit sample to its μ-law code:
// absolute value, clip, bias, locate the segment (highest set bit above
// position 4), extract the mantissa, pack sign+segment+mantissa, bit-invert.
func encodeSample(sample int16) byte {
	var sign byte
	mag := int32(sample)
	if mag < 0 {
		sign = 0x80
		mag = -mag
	}
	if mag > mulawClip {
		mag = mulawClip
	}
	mag += mulawBias

	segment := byte(7)
	for mask := int32(0x4000); mag&mask == 0 && segment > 0; segment-- {
		mask >>= 1
	}
	mantissa := byte(mag>>(segment+3)) & 0x0F

	return ^(sign | segment<<4 | mantissa)
}

// Decode expands a μ-law telephony frame to 8 kHz linear PCM. Pure and
// table-driven: O(1) per sample, no floating point.
func Decode(frame CompressedFrame) AudioFrame {
	initTables()
	samples := make([]int16, len(frame))
	for i, code := range frame {
		samples[i] = decodeTable[code]
	}
	return AudioFrame{Samples: samples, Rate: TelephonyRate}
}

// Encode compresses an 8 kHz linear PCM frame to μ-law codes. The input rate
// is not checked; callers must hand in 8 kHz audio.
func Encode(frame AudioFrame) CompressedFrame {
	initTables()
	out := make(CompressedFrame, len(frame.Samples))
	for i, s := range frame.Samples {
		out[i] = encodeTable[int32(s)+32768]
	}
	return out
}
