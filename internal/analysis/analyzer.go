package analysis

import (
	"fmt"
	"math"
	"os"

	"github.com/dustin/go-humanize"
)

// DefaultMaxWaveformBytes bounds the decoded waveform file fed to the FFT
// stage, chosen to keep peak memory sane on constrained hosts.
const DefaultMaxWaveformBytes = 45 << 20

// AnalyzeFile runs frame analysis over a decoded WAV file. The size guard
// runs before any sample is loaded; an oversized file is rejected with
// CauseTooLarge rather than risking an out-of-memory termination.
func AnalyzeFile(path, sourceID string, maxBytes int64) (*Timeline, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxWaveformBytes
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Cause: CauseDecode, Err: err}
	}
	if fi.Size() > maxBytes {
		return nil, &Error{
			Cause: CauseTooLarge,
			Err: fmt.Errorf("waveform is %s, ceiling is %s",
				humanize.Bytes(uint64(fi.Size())), humanize.Bytes(uint64(maxBytes))),
		}
	}

	samples, sr, err := ReadWav(path)
	if err != nil {
		return nil, &Error{Cause: CauseDecode, Err: err}
	}

	return Analyze(samples, sr, sourceID)
}

// Analyze converts a mono waveform into a Timeline: overlapping 1024-sample
// Hann-windowed frames at HopRate frames per second, one record per frame
// per track, plus a global tempo estimate and beat onsets.
func Analyze(samples []float64, sampleRate int, sourceID string) (*Timeline, error) {
	if sampleRate <= 0 {
		return nil, &Error{Cause: CauseDecode, Err: fmt.Errorf("invalid sample rate %d", sampleRate)}
	}
	if len(samples) < FrameSize {
		return nil, &Error{Cause: CauseNumeric, Err: fmt.Errorf("waveform too short: %d samples", len(samples))}
	}

	duration := float64(len(samples)) / float64(sampleRate)
	window := Hann(FrameSize)
	bank := MelFilterBank(NumMelBands, FrameSize/2, sampleRate, 20.0)
	nyquist := float64(sampleRate) / 2.0

	tl := &Timeline{
		SourceID: sourceID,
		Duration: duration,
	}

	frame := make([]float64, FrameSize)
	var spectra [][]float64

	for i := 0; ; i++ {
		start := int(math.Round(float64(i) * float64(sampleRate) / float64(HopRate)))
		if start+FrameSize > len(samples) {
			break
		}
		t := float64(i) / float64(HopRate)

		// Loudness from the raw frame, before windowing.
		rms := 0.0
		for _, s := range samples[start : start+FrameSize] {
			rms += s * s
		}
		rms = math.Sqrt(rms / FrameSize)
		loudness := compressDB(20.0 * math.Log10(rms+1e-10))

		for j := 0; j < FrameSize; j++ {
			frame[j] = samples[start+j] * window[j]
		}
		mag := MagnitudeSpectrum(frame)

		centroid := spectralCentroid(mag, sampleRate)

		bands := ApplyFilterBank(mag, bank)
		melValues := make([]float64, NumMelBands)
		for k, e := range bands {
			melValues[k] = compressDB(10.0 * math.Log10(e+1e-10))
		}
		bass := (melValues[0] + melValues[1]) / 2.0

		tl.Loudness = append(tl.Loudness, LoudnessPoint{T: t, V: loudness})
		tl.Spectral = append(tl.Spectral, SpectralPoint{T: t, C: clamp01(centroid / nyquist)})
		tl.MelBands = append(tl.MelBands, MelPoint{T: t, Bands: melValues})
		tl.Bass = append(tl.Bass, BassPoint{T: t, B: bass})
		spectra = append(spectra, mag)
	}

	if len(spectra) == 0 {
		return nil, &Error{Cause: CauseNumeric, Err: fmt.Errorf("no analysis frames produced")}
	}

	flux := onsetEnvelope(spectra)
	tl.Tempo = estimateTempo(flux)
	tl.Beats = pickBeats(flux, tl.Tempo, duration)

	return tl, nil
}

// spectralCentroid returns the center of mass of a magnitude spectrum in Hz.
func spectralCentroid(mag []float64, sampleRate int) float64 {
	binWidth := float64(sampleRate) / float64(len(mag)*2)
	num, den := 0.0, 0.0
	for i, m := range mag {
		num += float64(i) * binWidth * m
		den += m
	}
	if den == 0 {
		return 0
	}
	return num / den
}
