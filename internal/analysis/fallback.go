package analysis

import "math"

// DefaultSyntheticDuration is used when no duration estimate is available.
const DefaultSyntheticDuration = 240.0

const syntheticTempo = 120.0

// Synthetic produces a timeline with the same shape and range guarantees
// as Analyze, generated from closed-form sinusoids instead of real audio.
// Deterministic: the same duration yields bit-identical output. This is the
// degraded-mode path when acquisition or analysis fails.
func Synthetic(duration float64) *Timeline {
	if duration <= 0 {
		duration = DefaultSyntheticDuration
	}

	frames := int(duration * HopRate)
	tl := &Timeline{
		Tempo:     syntheticTempo,
		Duration:  duration,
		Synthetic: true,
		Loudness:  make([]LoudnessPoint, frames),
		Spectral:  make([]SpectralPoint, frames),
		MelBands:  make([]MelPoint, frames),
		Bass:      make([]BassPoint, frames),
	}

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(HopRate)

		// Slow carriers with a faster shimmer on top; amplitudes sum
		// below 0.5 so every value stays inside [0,1] without clamping.
		loud := 0.55 + 0.25*math.Sin(2*math.Pi*0.25*t) + 0.12*math.Sin(2*math.Pi*0.9*t+1.3)
		centroid := 0.45 + 0.2*math.Sin(2*math.Pi*0.11*t+0.7) + 0.1*math.Sin(2*math.Pi*0.63*t)

		bands := make([]float64, NumMelBands)
		for k := 0; k < NumMelBands; k++ {
			phase := float64(k) * 0.8
			rate := 0.08 + 0.05*float64(k)
			bands[k] = 0.5 + 0.28*math.Sin(2*math.Pi*rate*t+phase) + 0.1*math.Sin(2*math.Pi*1.1*t+phase*2)
		}

		tl.Loudness[i] = LoudnessPoint{T: t, V: clamp01(loud)}
		tl.Spectral[i] = SpectralPoint{T: t, C: clamp01(centroid)}
		tl.MelBands[i] = MelPoint{T: t, Bands: bands}
		tl.Bass[i] = BassPoint{T: t, B: (bands[0] + bands[1]) / 2.0}
	}

	step := 60.0 / syntheticTempo
	for t := step; t <= duration; t += step {
		tl.Beats = append(tl.Beats, Beat{T: t})
	}

	return tl
}
