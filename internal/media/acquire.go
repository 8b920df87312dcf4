package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/onesong-app/pulse/internal/source"
	"github.com/onesong-app/pulse/pkg/logger"
	"github.com/onesong-app/pulse/pkg/utils"
)

const (
	DefaultAcquireTimeout = 120 * time.Second
	// DefaultProbeTimeout bounds the metadata-only probe separately from
	// the download budget; a probe that slow will not download any faster.
	DefaultProbeTimeout = 15 * time.Second
	DefaultMaxDuration  = 480 * time.Second
	DefaultMaxBytes     = 45 << 20
	DefaultSampleRate   = 22050

	// stderrExcerptLen bounds the diagnostics retained from a failed child.
	stderrExcerptLen = 512
)

var (
	// ErrTimeout means the wall-clock budget expired; the child process
	// has been terminated.
	ErrTimeout = errors.New("acquisition timed out")
	// ErrTooLong means the source's declared duration exceeds the ceiling.
	// Detected before any download is attempted.
	ErrTooLong = errors.New("source exceeds duration ceiling")
	// ErrTooLarge means the decoded waveform exceeds the size cap.
	ErrTooLarge = errors.New("acquired waveform exceeds size cap")
)

// RunError reports a failed child process with a bounded stderr excerpt.
type RunError struct {
	Stage  string
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed: %v (stderr: %s)", e.Stage, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Config controls acquisition. Zero values take the package defaults.
type Config struct {
	Tools        Tools
	TempDir      string
	SampleRate   int
	MaxBytes     int64
	MaxDuration  time.Duration
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

// Acquirer turns a source identifier into a local, decoded, mono,
// fixed-sample-rate WAV file.
type Acquirer struct {
	cfg Config
	log *logger.Logger
}

func NewAcquirer(cfg Config) *Acquirer {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.MaxDuration == 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultAcquireTimeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Acquirer{cfg: cfg, log: logger.GetLogger()}
}

// Waveform is a handle to an acquired mono WAV file. The handle owns its
// temporary directory; Close deletes it. Callers defer Close on every path.
type Waveform struct {
	Path        string
	DurationSec float64
	dir         string
}

func (w *Waveform) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return utils.DeleteDir(w.dir)
}

// SourceInfo is the metadata yt-dlp reports for a remote source.
type SourceInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Uploader string  `json:"uploader"`
	Channel  string  `json:"channel"`
	Duration float64 `json:"duration"`
}

// DisplayArtist applies the best-to-worst fallback chain over the metadata
// fields that may carry an artist name.
func (i *SourceInfo) DisplayArtist() string {
	if strings.TrimSpace(i.Artist) != "" {
		return i.Artist
	}
	if strings.TrimSpace(i.Channel) != "" {
		return i.Channel
	}
	if strings.TrimSpace(i.Uploader) != "" {
		return i.Uploader
	}
	return "Unknown Artist"
}

// ProbeSource fetches remote metadata without downloading media bytes.
// Runs under its own short timeout inside the caller's deadline.
func (a *Acquirer) ProbeSource(ctx context.Context, id source.ID) (*SourceInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(
		ctx,
		a.cfg.Tools.YTDLPBin(),
		"-J",
		"--no-warnings",
		"--no-playlist",
		id.WatchURL(),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ErrTimeout
		}
		return nil, &RunError{Stage: "metadata probe", Stderr: excerpt(stderr.Bytes()), Err: err}
	}

	var info SourceInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, &RunError{Stage: "metadata probe", Err: fmt.Errorf("parsing JSON: %w", err)}
	}
	if strings.TrimSpace(info.ID) == "" {
		return nil, &RunError{Stage: "metadata probe", Err: errors.New("missing source id in output")}
	}

	return &info, nil
}

// Acquire downloads and decodes the source into a 22050 Hz mono WAV under
// the configured wall-clock budget. The declared duration is checked
// against the ceiling before the download starts; the decoded file size is
// re-validated afterward.
func (a *Acquirer) Acquire(ctx context.Context, id source.ID) (*Waveform, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	info, err := a.ProbeSource(ctx, id)
	if err != nil {
		return nil, err
	}
	if info.Duration > a.cfg.MaxDuration.Seconds() {
		return nil, fmt.Errorf("%w: declared %.0fs, ceiling %.0fs",
			ErrTooLong, info.Duration, a.cfg.MaxDuration.Seconds())
	}

	// Per-request namespace inside the shared temp area; everything below
	// is deleted by Waveform.Close or by the error paths here.
	dir := filepath.Join(a.cfg.TempDir, "pulse-"+uuid.NewString())
	if err := utils.MakeDir(dir); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}

	wavPath, err := a.download(ctx, id, dir)
	if err != nil {
		utils.DeleteDir(dir)
		return nil, err
	}

	fi, err := os.Stat(wavPath)
	if err != nil {
		utils.DeleteDir(dir)
		return nil, &RunError{Stage: "acquisition", Err: fmt.Errorf("output file missing: %w", err)}
	}
	if fi.Size() > a.cfg.MaxBytes {
		utils.DeleteDir(dir)
		return nil, fmt.Errorf("%w: %s > %s", ErrTooLarge,
			humanize.Bytes(uint64(fi.Size())), humanize.Bytes(uint64(a.cfg.MaxBytes)))
	}

	duration := info.Duration
	if meta, err := ReadMetadata(ctx, a.cfg.Tools, wavPath); err == nil && meta.DurationSec > 0 {
		duration = meta.DurationSec
	}

	a.log.Infof("acquired %s: %.0fs, %s", id, duration, humanize.Bytes(uint64(fi.Size())))
	return &Waveform{Path: wavPath, DurationSec: duration, dir: dir}, nil
}

// download fetches the best audio stream and decodes it to mono WAV.
func (a *Acquirer) download(ctx context.Context, id source.ID, dir string) (string, error) {
	template := filepath.Join(dir, fmt.Sprintf("%s.%%(ext)s", id))

	cmd := exec.CommandContext(
		ctx,
		a.cfg.Tools.YTDLPBin(),
		"-f", "ba",
		"--no-warnings",
		"--no-playlist",
		"--match-filter", fmt.Sprintf("duration < %d", int(a.cfg.MaxDuration.Seconds())),
		"--max-filesize", fmt.Sprintf("%d", a.cfg.MaxBytes),
		"-o", template,
		id.WatchURL(),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ErrTimeout
		}
		return "", &RunError{Stage: "download", Stderr: excerpt(stderr.Bytes()), Err: err}
	}

	downloaded, err := findDownloaded(dir, string(id))
	if err != nil {
		return "", &RunError{Stage: "download", Stderr: excerpt(stderr.Bytes()), Err: err}
	}

	return a.ConvertToWav(ctx, downloaded, dir)
}

// ConvertToWav re-encodes any audio file to mono PCM WAV at the configured
// sample rate, writing next to the input. Also used directly for uploads.
func (a *Acquirer) ConvertToWav(ctx context.Context, inputPath, outputDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+".wav")
	tmpPath := outputPath + ".tmp.wav"
	defer utils.DeleteFile(tmpPath)

	cmd := exec.CommandContext(
		ctx,
		a.cfg.Tools.FFmpegBin(),
		"-y",
		"-v", "error",
		"-i", inputPath,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", a.cfg.SampleRate),
		"-c:a", "pcm_s16le",
		tmpPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ErrTimeout
		}
		return "", &RunError{Stage: "transcode", Stderr: excerpt(stderr.Bytes()), Err: err}
	}

	if err := utils.MoveFile(tmpPath, outputPath); err != nil {
		return "", err
	}

	return outputPath, nil
}

// findDownloaded locates the file yt-dlp produced for the given id by
// checking the common audio extensions.
func findDownloaded(dir, id string) (string, error) {
	extensions := []string{".m4a", ".webm", ".opus", ".mp3", ".aac", ".ogg", ".wav"}
	for _, ext := range extensions {
		candidate := filepath.Join(dir, id+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no audio file produced for %s (checked %v)", id, extensions)
}

// excerpt keeps the tail of a stderr capture, where the actionable error
// usually is.
func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrExcerptLen {
		s = "..." + s[len(s)-stderrExcerptLen:]
	}
	return s
}
