package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

// writeStub writes an executable shell script standing in for an external
// utility and returns its path.
func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("writing stub %s: %v", name, err)
	}
	return path
}

// ytdlpStub answers the metadata probe with the given duration and records
// every download invocation into logPath.
func ytdlpStub(t *testing.T, dir string, duration int, logPath string) string {
	t.Helper()
	body := `if [ "$1" = "-J" ]; then
  echo '{"id":"dQw4w9WgXcQ","title":"Test Track","uploader":"someone","duration":` + strconv.Itoa(duration) + `}'
  exit 0
fi
echo download >> "` + logPath + `"
prev=""
out=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
out=$(printf '%s' "$out" | sed 's/%(ext)s/m4a/')
echo fakeaudio > "$out"
`
	return writeStub(t, dir, "yt-dlp", body)
}

// ffmpegStub writes a small fake WAV to its final argument.
func ffmpegStub(t *testing.T, dir string) string {
	t.Helper()
	return writeStub(t, dir, "ffmpeg", `for a in "$@"; do out="$a"; done
echo RIFFfake > "$out"
`)
}

func testAcquirer(t *testing.T, stubDir string, cfg Config) *Acquirer {
	t.Helper()
	cfg.Tools = Tools{
		YTDLP:   filepath.Join(stubDir, "yt-dlp"),
		FFmpeg:  filepath.Join(stubDir, "ffmpeg"),
		FFprobe: filepath.Join(stubDir, "missing-ffprobe"),
	}
	if cfg.TempDir == "" {
		cfg.TempDir = t.TempDir()
	}
	return NewAcquirer(cfg)
}

func TestAcquireRejectsLongSourceBeforeDownload(t *testing.T) {
	stubDir := t.TempDir()
	logPath := filepath.Join(stubDir, "downloads.log")
	ytdlpStub(t, stubDir, 481, logPath)
	ffmpegStub(t, stubDir)

	a := testAcquirer(t, stubDir, Config{})

	_, err := a.Acquire(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, ErrTooLong) {
		t.Fatalf("error = %v, want ErrTooLong", err)
	}

	if _, statErr := os.Stat(logPath); !os.IsNotExist(statErr) {
		t.Error("download was attempted despite the declared-duration rejection")
	}
}

func TestAcquireSuccess(t *testing.T) {
	stubDir := t.TempDir()
	logPath := filepath.Join(stubDir, "downloads.log")
	ytdlpStub(t, stubDir, 100, logPath)
	ffmpegStub(t, stubDir)

	tempDir := t.TempDir()
	a := testAcquirer(t, stubDir, Config{TempDir: tempDir})

	wf, err := a.Acquire(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if _, err := os.Stat(wf.Path); err != nil {
		t.Fatalf("waveform file missing: %v", err)
	}
	if !strings.HasSuffix(wf.Path, ".wav") {
		t.Errorf("waveform path = %q, want .wav suffix", wf.Path)
	}
	if wf.DurationSec != 100 {
		t.Errorf("duration = %v, want 100 (from declared metadata)", wf.DurationSec)
	}

	if err := wf.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
		t.Errorf("work dir not cleaned up: %v", entries)
	}
}

func TestAcquireSizeCapRevalidation(t *testing.T) {
	stubDir := t.TempDir()
	logPath := filepath.Join(stubDir, "downloads.log")
	ytdlpStub(t, stubDir, 100, logPath)
	ffmpegStub(t, stubDir)

	tempDir := t.TempDir()
	a := testAcquirer(t, stubDir, Config{TempDir: tempDir, MaxBytes: 4})

	_, err := a.Acquire(context.Background(), "dQw4w9WgXcQ")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}

	if entries, _ := os.ReadDir(tempDir); len(entries) != 0 {
		t.Errorf("work dir not cleaned up after size rejection: %v", entries)
	}
}

func TestAcquireTimeout(t *testing.T) {
	stubDir := t.TempDir()
	writeStub(t, stubDir, "yt-dlp", "sleep 10\n")
	ffmpegStub(t, stubDir)

	a := testAcquirer(t, stubDir, Config{Timeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := a.Acquire(context.Background(), "dQw4w9WgXcQ")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took %v, want well under the stub's sleep", elapsed)
	}
}

func TestProbeSourceOwnTimeout(t *testing.T) {
	stubDir := t.TempDir()
	writeStub(t, stubDir, "yt-dlp", "sleep 10\n")
	ffmpegStub(t, stubDir)

	// The probe bound applies even when the overall acquire budget is
	// still generous.
	a := testAcquirer(t, stubDir, Config{Timeout: time.Minute, ProbeTimeout: 200 * time.Millisecond})

	start := time.Now()
	_, err := a.ProbeSource(context.Background(), "dQw4w9WgXcQ")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("probe timeout took %v, want well under the stub's sleep", elapsed)
	}
}

func TestProbeSourceFailureCarriesStderr(t *testing.T) {
	stubDir := t.TempDir()
	writeStub(t, stubDir, "yt-dlp", `echo "ERROR: Private video" >&2
exit 1
`)
	ffmpegStub(t, stubDir)

	a := testAcquirer(t, stubDir, Config{})

	_, err := a.ProbeSource(context.Background(), "dQw4w9WgXcQ")
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error = %v, want *RunError", err)
	}
	if !strings.Contains(runErr.Stderr, "Private video") {
		t.Errorf("stderr excerpt = %q, want the child's error output", runErr.Stderr)
	}
}

func TestDisplayArtistFallbackChain(t *testing.T) {
	cases := []struct {
		info SourceInfo
		want string
	}{
		{SourceInfo{Artist: "A", Channel: "C", Uploader: "U"}, "A"},
		{SourceInfo{Channel: "C", Uploader: "U"}, "C"},
		{SourceInfo{Uploader: "U"}, "U"},
		{SourceInfo{}, "Unknown Artist"},
	}
	for _, tc := range cases {
		if got := tc.info.DisplayArtist(); got != tc.want {
			t.Errorf("DisplayArtist(%+v) = %q, want %q", tc.info, got, tc.want)
		}
	}
}
