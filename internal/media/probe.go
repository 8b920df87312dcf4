package media

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"time"
)

// Metadata describes a local audio file as reported by ffprobe.
type Metadata struct {
	DurationSec float64
	SampleRate  int
	Channels    int
	Format      string
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		Format   string `json:"format_name"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (p *ffprobeOutput) firstAudioStream() *ffprobeStream {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "audio" {
			return &p.Streams[i]
		}
	}
	return nil
}

// ReadMetadata probes a local file with ffprobe. A 5s default timeout is
// applied when the caller supplies no deadline.
func ReadMetadata(ctx context.Context, tools Tools, path string) (*Metadata, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(
		ctx,
		tools.FFprobeBin(),
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, err
	}

	meta := &Metadata{Format: probed.Format.Format}
	if probed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			meta.DurationSec = d
		}
	}
	if s := probed.firstAudioStream(); s != nil {
		meta.Channels = s.Channels
		if s.SampleRate != "" {
			if r, err := strconv.Atoi(s.SampleRate); err == nil {
				meta.SampleRate = r
			}
		}
	}

	return meta, nil
}
