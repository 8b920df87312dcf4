// Package transcode streams a remote source as a single universally
// playable codec by chaining the retrieval and encode utilities through a
// pipe, without ever materializing the whole file.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/onesong-app/pulse/internal/media"
	"github.com/onesong-app/pulse/internal/source"
	"github.com/onesong-app/pulse/pkg/logger"
)

const (
	// DefaultFirstChunkTimeout bounds time-to-first-byte from the final
	// stage. Guards against private sources and upstream bot-detection
	// stalls that would otherwise present as an empty, "successful" stream.
	DefaultFirstChunkTimeout = 12 * time.Second

	DefaultBitrate = "192k"

	chunkSize = 32 * 1024

	// stderrCap bounds the diagnostics retained per child process.
	stderrCap = 512
)

// OutputContentType is fixed: the final stage always re-encodes to MP3,
// so the outgoing content type is known before the first byte arrives.
const OutputContentType = "audio/mpeg"

var (
	// ErrPipelineTimeout means no bytes arrived within the first-chunk window.
	ErrPipelineTimeout = errors.New("pipeline produced no output within the first-chunk window")
	// ErrPipelineEmpty means the pipeline exited without producing any bytes.
	ErrPipelineEmpty = errors.New("pipeline produced no output")
)

// PipelineError wraps a streaming failure with the bounded stderr excerpts
// of both child processes.
type PipelineError struct {
	Err       error
	SourceLog string
	EncodeLog string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%v (source: %q, encode: %q)", e.Err, e.SourceLog, e.EncodeLog)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Config controls the streaming pipeline.
type Config struct {
	Tools             media.Tools
	FirstChunkTimeout time.Duration
	Bitrate           string
}

// Pipeline produces a lazy byte stream for one source. Not restartable;
// construct a new one per request.
type Pipeline struct {
	cfg Config
	id  source.ID
	log *logger.Logger
}

func New(cfg Config, id source.ID) *Pipeline {
	if cfg.FirstChunkTimeout == 0 {
		cfg.FirstChunkTimeout = DefaultFirstChunkTimeout
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = DefaultBitrate
	}
	return &Pipeline{cfg: cfg, id: id, log: logger.GetLogger()}
}

// boundedBuffer keeps the last max bytes written to it. Safe as a child
// process's stderr sink: writes never block and memory stays bounded even
// against a stalled or chatty process.
type boundedBuffer struct {
	mu  sync.Mutex
	max int
	b   []byte
}

func (bb *boundedBuffer) Write(p []byte) (int, error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	bb.b = append(bb.b, p...)
	if len(bb.b) > bb.max {
		bb.b = bb.b[len(bb.b)-bb.max:]
	}
	return len(p), nil
}

func (bb *boundedBuffer) String() string {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return string(bb.b)
}

// Run wires the retrieval process's stdout directly into the encoder's
// stdin and copies the encoder's stdout to w until end-of-stream. The
// first chunk is subject to the configured timeout; after it arrives the
// source's own pacing governs further reads. Both children are terminated
// and reaped on every exit path.
func (p *Pipeline) Run(ctx context.Context, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcLog := &boundedBuffer{max: stderrCap}
	encLog := &boundedBuffer{max: stderrCap}

	srcCmd := exec.CommandContext(ctx, p.cfg.Tools.YTDLPBin(),
		"-f", "ba",
		"--no-warnings",
		"--no-playlist",
		"-o", "-",
		p.id.WatchURL(),
	)
	srcCmd.Stderr = srcLog

	encCmd := exec.CommandContext(ctx, p.cfg.Tools.FFmpegBin(),
		"-i", "pipe:0",
		"-vn",
		"-codec:a", "libmp3lame",
		"-b:a", p.cfg.Bitrate,
		"-f", "mp3",
		"-loglevel", "error",
		"pipe:1",
	)
	encCmd.Stderr = encLog

	srcOut, err := srcCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("source stdout pipe: %w", err)
	}
	encCmd.Stdin = srcOut

	encOut, err := encCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("encoder stdout pipe: %w", err)
	}

	if err := srcCmd.Start(); err != nil {
		return fmt.Errorf("starting source process: %w", err)
	}
	if err := encCmd.Start(); err != nil {
		cancel()
		srcCmd.Wait()
		return fmt.Errorf("starting encoder process: %w", err)
	}

	// Single teardown for every exit path: kill via context cancellation,
	// then reap both children so no zombies are left behind.
	var reapOnce sync.Once
	reap := func() {
		reapOnce.Do(func() {
			cancel()
			encCmd.Wait()
			srcCmd.Wait()
		})
	}
	defer reap()

	buf := make([]byte, chunkSize)

	// First chunk with deadline. The read goroutine unblocks once the
	// children are killed, so a timeout does not leak it for long.
	type readResult struct {
		n   int
		err error
	}
	first := make(chan readResult, 1)
	go func() {
		n, err := readNonEmpty(encOut, buf)
		first <- readResult{n, err}
	}()

	timer := time.NewTimer(p.cfg.FirstChunkTimeout)
	defer timer.Stop()

	var r readResult
	select {
	case <-timer.C:
		reap()
		p.log.Warnf("stream %s: first-chunk timeout after %v", p.id, p.cfg.FirstChunkTimeout)
		return &PipelineError{Err: ErrPipelineTimeout, SourceLog: srcLog.String(), EncodeLog: encLog.String()}
	case <-ctx.Done():
		reap()
		return ctx.Err()
	case r = <-first:
	}

	if r.n == 0 {
		reap()
		return &PipelineError{Err: ErrPipelineEmpty, SourceLog: srcLog.String(), EncodeLog: encLog.String()}
	}

	total := 0
	if _, werr := w.Write(buf[:r.n]); werr != nil {
		return nil // consumer gone; teardown via deferred reap
	}
	total += r.n
	if r.err != nil {
		return p.finish(total, srcLog, encLog)
	}

	// Steady state: no further timeout, the content's own pacing governs.
	for {
		n, rerr := encOut.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return nil
			}
			total += n
		}
		if rerr != nil {
			break
		}
	}

	return p.finish(total, srcLog, encLog)
}

// readNonEmpty reads until at least one byte or an error arrives. An
// io.Reader may legally return (0, nil); that is not end-of-stream.
func readNonEmpty(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func (p *Pipeline) finish(total int, srcLog, encLog *boundedBuffer) error {
	if total == 0 {
		return &PipelineError{Err: ErrPipelineEmpty, SourceLog: srcLog.String(), EncodeLog: encLog.String()}
	}
	p.log.Debugf("stream %s: %d bytes forwarded", p.id, total)
	return nil
}
