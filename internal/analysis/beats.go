package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Musically plausible tempo range in BPM. Autocorrelation lags outside
// this band are ignored.
const (
	minTempo = 60.0
	maxTempo = 180.0

	defaultTempo = 120.0
)

// onsetEnvelope computes the positive spectral flux between consecutive
// magnitude frames. Index i corresponds to hop i (flux[0] is zero).
func onsetEnvelope(spectra [][]float64) []float64 {
	flux := make([]float64, len(spectra))
	for i := 1; i < len(spectra); i++ {
		prev, cur := spectra[i-1], spectra[i]
		sum := 0.0
		for k := range cur {
			d := cur[k] - prev[k]
			if d > 0 {
				sum += d
			}
		}
		flux[i] = sum
	}
	return flux
}

// estimateTempo finds the dominant periodicity of the onset envelope by
// autocorrelation over lags inside the plausible tempo band.
func estimateTempo(flux []float64) float64 {
	// Lag bounds in hops: 180 BPM -> 20 hops, 60 BPM -> 60 hops.
	minLag := int(math.Round(float64(HopRate) * 60.0 / maxTempo))
	maxLag := int(math.Round(float64(HopRate) * 60.0 / minTempo))

	if len(flux) < maxLag*2 {
		return defaultTempo
	}

	mean := stat.Mean(flux, nil)
	centered := make([]float64, len(flux))
	for i, v := range flux {
		centered[i] = v - mean
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		corr := 0.0
		for i := lag; i < len(centered); i++ {
			corr += centered[i] * centered[i-lag]
		}
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 || bestCorr <= 0 {
		return defaultTempo
	}
	return float64(HopRate) * 60.0 / float64(bestLag)
}

// pickBeats selects onset peaks above an adaptive threshold with a minimum
// spacing of half a beat period. Returned times are strictly increasing
// and bounded by the track duration.
func pickBeats(flux []float64, tempo, duration float64) []Beat {
	if len(flux) == 0 {
		return nil
	}

	mean := stat.Mean(flux, nil)
	std := stat.StdDev(flux, nil)
	threshold := mean + 0.8*std

	period := float64(HopRate) * 60.0 / tempo
	minGap := int(period / 2)
	if minGap < 1 {
		minGap = 1
	}

	beats := make([]Beat, 0, int(duration*tempo/60.0)+1)
	last := -minGap
	for i := 1; i < len(flux)-1; i++ {
		if flux[i] < threshold {
			continue
		}
		if flux[i] < flux[i-1] || flux[i] < flux[i+1] {
			continue
		}
		if i-last < minGap {
			continue
		}
		t := float64(i) / float64(HopRate)
		if t > duration {
			break
		}
		beats = append(beats, Beat{T: t})
		last = i
	}

	if len(beats) > 0 {
		return beats
	}

	// Quiet or ambiguous material: place beats on the tempo grid anchored
	// at the strongest onset.
	anchor := 0.0
	if len(flux) > 1 {
		anchor = math.Mod(float64(floats.MaxIdx(flux))/float64(HopRate), 60.0/tempo)
	}
	step := 60.0 / tempo
	for t := anchor; t <= duration; t += step {
		if t <= 0 {
			continue
		}
		beats = append(beats, Beat{T: t})
	}
	return beats
}
