// Package media obtains decoded waveforms for analysis by driving the
// external retrieval (yt-dlp) and transcode (ffmpeg/ffprobe) utilities.
package media

import "os/exec"

// Tools holds the names or paths of the external utilities. Zero values
// fall back to the bare command names resolved via PATH.
type Tools struct {
	YTDLP   string
	FFmpeg  string
	FFprobe string
}

func (t Tools) YTDLPBin() string {
	if t.YTDLP != "" {
		return t.YTDLP
	}
	return "yt-dlp"
}

func (t Tools) FFmpegBin() string {
	if t.FFmpeg != "" {
		return t.FFmpeg
	}
	return "ffmpeg"
}

func (t Tools) FFprobeBin() string {
	if t.FFprobe != "" {
		return t.FFprobe
	}
	return "ffprobe"
}

// Capabilities reports which external utilities are actually present.
// Resolved once at startup and injected into the orchestration layer, so
// per-request code never probes the environment.
type Capabilities struct {
	YTDLP   bool `json:"yt_dlp"`
	FFmpeg  bool `json:"ffmpeg"`
	FFprobe bool `json:"ffprobe"`
}

// CanAcquire reports whether the full acquisition path is available.
func (c Capabilities) CanAcquire() bool { return c.YTDLP && c.FFmpeg }

// DetectTools checks PATH (or the configured paths) for each utility.
func DetectTools(t Tools) Capabilities {
	caps := Capabilities{}
	if _, err := exec.LookPath(t.YTDLPBin()); err == nil {
		caps.YTDLP = true
	}
	if _, err := exec.LookPath(t.FFmpegBin()); err == nil {
		caps.FFmpeg = true
	}
	if _, err := exec.LookPath(t.FFprobeBin()); err == nil {
		caps.FFprobe = true
	}
	return caps
}
