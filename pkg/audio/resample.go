package audio

// Upsample8to16 converts 8 kHz mono PCM to 16 kHz by linear interpolation:
// each input sample is emitted followed by the mean of it and its successor,
// with the last sample repeated at the sequence end. The output is exactly
// twice the input length. Interpolation halves the harmonic artifacts the
// model's speech recogniser is sensitive to, compared to naive duplication.
func Upsample8to16(frame AudioFrame) AudioFrame {
	in := frame.Samples
	out := make([]int16, len(in)*2)
	for i, s := range in {
		next := s
		if i+1 < len(in) {
			next = in[i+1]
		}
		out[i*2] = s
		out[i*2+1] = int16((int32(s) + int32(next)) / 2)
	}
	return AudioFrame{Samples: out, Rate: ModelInputRate}
}

// Downsampler converts the model's 24 kHz PCM to 8 kHz by 3:1 windowed
// decimation. Every third sample is a decimation anchor; each output is a
// triangular weighted combination of the anchor and its two neighbours to
// suppress aliasing. The weights and the optional pre-filter gain are tuning
// parameters, not physical constants; acceptable voice quality is a
// subjective target, so both come from configuration.
type Downsampler struct {
	// Weights are the FIR taps applied to (previous, anchor, next). They
	// must sum to 1 to preserve loudness.
	Weights [3]float64

	// Gain is a linear factor applied to every sample before filtering, to
	// compensate for perceived loudness loss downstream. Scaled samples are
	// clamped to the 16-bit range before filtering; scaling after filtering
	// (or skipping the clamp) produces wraparound distortion.
	Gain float64
}

// NewDownsampler returns a Downsampler with the default centre-weighted taps
// 0.25/0.5/0.25 and unity gain.
func NewDownsampler() *Downsampler {
	return &Downsampler{Weights: [3]float64{0.25, 0.5, 0.25}, Gain: 1.0}
}

// Process converts a 24 kHz frame to 8 kHz. The output length is exactly
// floor(n/3). Anchors whose window would reach past either end of the input
// (the first anchor and, when the tail is shorter than a full window, the
// last) are passed through unfiltered.
func (d *Downsampler) Process(frame AudioFrame) AudioFrame {
	in := frame.Samples
	scaled := in
	if d.Gain != 1.0 {
		// Order matters: scale, clamp, then filter.
		scaled = make([]int16, len(in))
		for i, s := range in {
			scaled[i] = clampInt16(int32(float64(s) * d.Gain))
		}
	}

	out := make([]int16, len(scaled)/3)
	for j := range out {
		anchor := j * 3
		if anchor == 0 || anchor+1 >= len(scaled) {
			out[j] = scaled[anchor]
			continue
		}
		acc := d.Weights[0]*float64(scaled[anchor-1]) +
			d.Weights[1]*float64(scaled[anchor]) +
			d.Weights[2]*float64(scaled[anchor+1])
		out[j] = clampInt16(int32(acc))
	}
	return AudioFrame{Samples: out, Rate: TelephonyRate}
}
