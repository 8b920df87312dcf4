package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Hann returns a symmetric Hann window of length n.
func Hann(n int) []float64 {
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// MagnitudeSpectrum computes the magnitude spectrum of a real frame,
// positive frequencies only (len(frame)/2 bins).
func MagnitudeSpectrum(frame []float64) []float64 {
	spectrum := fft.FFTReal(frame)
	half := len(spectrum) / 2
	mag := make([]float64, half)
	for i := 0; i < half; i++ {
		mag[i] = cmplx.Abs(spectrum[i])
	}
	return mag
}

// hzToMel converts frequency in Hz to the mel scale.
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale back to Hz.
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// MelFilterBank builds numFilters triangular filters over numBins magnitude
// bins, spaced evenly on the mel scale between lowFreq and sampleRate/2.
func MelFilterBank(numFilters, numBins, sampleRate int, lowFreq float64) [][]float64 {
	highFreq := float64(sampleRate) / 2.0
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	melPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*melStep
	}

	fftSize := numBins * 2
	binPoints := make([]int, len(melPoints))
	for i, mel := range melPoints {
		hz := melToHz(mel)
		bin := int(math.Floor(float64(fftSize)*hz/float64(sampleRate) + 0.5))
		if bin > numBins-1 {
			bin = numBins - 1
		}
		binPoints[i] = bin
	}

	bank := make([][]float64, numFilters)
	for m := 1; m <= numFilters; m++ {
		filter := make([]float64, numBins)
		left, center, right := binPoints[m-1], binPoints[m], binPoints[m+1]

		for k := left; k < center; k++ {
			if center != left {
				filter[k] = float64(k-left) / float64(center-left)
			}
		}
		for k := center; k < right; k++ {
			if right != center {
				filter[k] = float64(right-k) / float64(right-center)
			}
		}

		bank[m-1] = filter
	}

	return bank
}

// ApplyFilterBank sums the power spectrum under each triangular filter.
func ApplyFilterBank(magnitude []float64, bank [][]float64) []float64 {
	energies := make([]float64, len(bank))
	for i, filter := range bank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(magnitude); j++ {
			p := magnitude[j] * magnitude[j]
			sum += p * filter[j]
		}
		energies[i] = sum
	}
	return energies
}

// compressDB maps a dB-scale value into [0,1] with a saturating
// nonlinearity: tanh(max(0, (db+60)/60)). Loud transients approach 1.0
// asymptotically instead of clipping.
func compressDB(db float64) float64 {
	x := (db + 60.0) / 60.0
	if x < 0 {
		x = 0
	}
	return math.Tanh(x)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
