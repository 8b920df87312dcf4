// Package analysis converts decoded waveforms into fixed-rate feature
// timelines for the visualization client, and synthesizes schema-compatible
// timelines when real analysis is unavailable.
package analysis

// Analysis constants. The hop positions are derived from HopRate, not from
// an integer hop size: frame i starts at round(i*SampleRate/HopRate) so
// that t_i = i/HopRate holds exactly.
const (
	SampleRate  = 22050
	FrameSize   = 1024
	HopRate     = 60 // analysis frames per second of audio
	NumMelBands = 8
)

// Beat is a single beat onset.
type Beat struct {
	T float64 `json:"t"`
}

// LoudnessPoint is a perceptual loudness sample, V in [0,1].
type LoudnessPoint struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

// SpectralPoint is a normalized spectral centroid sample, C in [0,1].
type SpectralPoint struct {
	T float64 `json:"t"`
	C float64 `json:"c"`
}

// MelPoint carries the energies of the mel filter bank, each in [0,1].
type MelPoint struct {
	T     float64   `json:"t"`
	Bands []float64 `json:"bands"`
}

// BassPoint is the low-frequency energy sample, B in [0,1].
type BassPoint struct {
	T float64 `json:"t"`
	B float64 `json:"b"`
}

// Timeline is the full multi-channel analysis result. All per-hop tracks
// have equal length and share identical timestamps. A Timeline is never
// mutated after construction; cached copies are served verbatim.
type Timeline struct {
	SourceID  string          `json:"source_id,omitempty"`
	Tempo     float64         `json:"tempo"`
	Beats     []Beat          `json:"beats"`
	Loudness  []LoudnessPoint `json:"loudness"`
	Spectral  []SpectralPoint `json:"spectral"`
	MelBands  []MelPoint      `json:"melbands"`
	Bass      []BassPoint     `json:"bass"`
	Duration  float64         `json:"duration"`
	Synthetic bool            `json:"synthetic"`
}

// Frames returns the number of per-hop records.
func (tl *Timeline) Frames() int { return len(tl.Loudness) }
