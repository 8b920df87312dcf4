package analysis

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// sineWave generates seconds of a pure tone at the given frequency.
func sineWave(freq float64, seconds float64, sampleRate int) []float64 {
	n := int(seconds * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

// checkTimelineInvariants asserts the structural contract every timeline
// must satisfy, real or synthetic.
func checkTimelineInvariants(t *testing.T, tl *Timeline) {
	t.Helper()

	n := len(tl.Loudness)
	if len(tl.Spectral) != n || len(tl.MelBands) != n || len(tl.Bass) != n {
		t.Fatalf("per-hop tracks have unequal lengths: loudness=%d spectral=%d melbands=%d bass=%d",
			n, len(tl.Spectral), len(tl.MelBands), len(tl.Bass))
	}
	if n == 0 {
		t.Fatal("timeline has no frames")
	}

	for i := 0; i < n; i++ {
		want := float64(i) / float64(HopRate)
		for name, got := range map[string]float64{
			"loudness": tl.Loudness[i].T,
			"spectral": tl.Spectral[i].T,
			"melbands": tl.MelBands[i].T,
			"bass":     tl.Bass[i].T,
		} {
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("%s[%d].T = %v, want %v", name, i, got, want)
			}
		}

		if v := tl.Loudness[i].V; v < 0 || v > 1 {
			t.Fatalf("loudness[%d] = %v out of [0,1]", i, v)
		}
		if c := tl.Spectral[i].C; c < 0 || c > 1 {
			t.Fatalf("spectral[%d] = %v out of [0,1]", i, c)
		}
		if len(tl.MelBands[i].Bands) != NumMelBands {
			t.Fatalf("melbands[%d] has %d bands, want %d", i, len(tl.MelBands[i].Bands), NumMelBands)
		}
		for k, b := range tl.MelBands[i].Bands {
			if b < 0 || b > 1 {
				t.Fatalf("melbands[%d].bands[%d] = %v out of [0,1]", i, k, b)
			}
		}
		if b := tl.Bass[i].B; b < 0 || b > 1 {
			t.Fatalf("bass[%d] = %v out of [0,1]", i, b)
		}
	}

	if tl.Tempo <= 0 {
		t.Errorf("tempo = %v, want > 0", tl.Tempo)
	}

	prev := 0.0
	for i, b := range tl.Beats {
		if b.T <= prev && i > 0 {
			t.Fatalf("beats not strictly increasing at %d: %v after %v", i, b.T, prev)
		}
		if b.T < 0 || b.T > tl.Duration {
			t.Fatalf("beat %d at %v outside [0, %v]", i, b.T, tl.Duration)
		}
		prev = b.T
	}
}

func TestAnalyzeSineInvariants(t *testing.T) {
	samples := sineWave(220.0, 3.0, SampleRate)

	tl, err := Analyze(samples, SampleRate, "testsineaaa")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	checkTimelineInvariants(t, tl)

	if tl.Synthetic {
		t.Error("real analysis flagged synthetic")
	}
	if tl.SourceID != "testsineaaa" {
		t.Errorf("SourceID = %q", tl.SourceID)
	}

	// 3 seconds at 60 hops/s minus the trailing frames that no longer fit.
	if got := tl.Frames(); got < 170 || got > 180 {
		t.Errorf("frame count = %d, want ~177", got)
	}

	// A 220 Hz tone concentrates energy well below Nyquist.
	mid := tl.Spectral[len(tl.Spectral)/2].C
	if mid > 0.5 {
		t.Errorf("centroid of 220 Hz tone = %v, expected low", mid)
	}
}

func TestAnalyzeTooShort(t *testing.T) {
	_, err := Analyze(make([]float64, 100), SampleRate, "")
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if aerr.Cause != CauseNumeric {
		t.Errorf("cause = %v, want %v", aerr.Cause, CauseNumeric)
	}
}

func TestAnalyzeFileSizeGuard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.wav")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := AnalyzeFile(path, "aaaaaaaaaaa", 1024)
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if aerr.Cause != CauseTooLarge {
		t.Errorf("cause = %v, want %v", aerr.Cause, CauseTooLarge)
	}
}

func TestAnalyzeFileDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not RIFF data"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := AnalyzeFile(path, "aaaaaaaaaaa", 0)
	var aerr *Error
	if !errors.As(err, &aerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if aerr.Cause != CauseDecode {
		t.Errorf("cause = %v, want %v", aerr.Cause, CauseDecode)
	}
}

func TestAnalyzeFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, SampleRate, 16, 1, 1)
	samples := sineWave(440.0, 2.0, SampleRate)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32767)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing WAV: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	f.Close()

	tl, err := AnalyzeFile(path, "roundtrip01", 0)
	if err != nil {
		t.Fatalf("AnalyzeFile failed: %v", err)
	}
	checkTimelineInvariants(t, tl)
}
