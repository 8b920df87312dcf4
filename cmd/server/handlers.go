package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onesong-app/pulse/internal/analysis"
	"github.com/onesong-app/pulse/internal/cache"
	"github.com/onesong-app/pulse/internal/media"
	"github.com/onesong-app/pulse/internal/source"
	"github.com/onesong-app/pulse/internal/storage"
	"github.com/onesong-app/pulse/internal/transcode"
	"github.com/onesong-app/pulse/internal/worker"
	"github.com/onesong-app/pulse/pkg/logger"
	"github.com/onesong-app/pulse/pkg/utils"
)

// Server encapsulates the HTTP server and its dependencies.
type Server struct {
	config   *ServerConfig
	caps     media.Capabilities
	acquirer *media.Acquirer
	cache    *cache.Cache
	pool     *worker.Pool
	store    *storage.Client
	log      *logger.Logger
}

// NewServer wires the handlers to their dependencies. store may be nil.
func NewServer(config *ServerConfig, caps media.Capabilities, acquirer *media.Acquirer, c *cache.Cache, pool *worker.Pool, store *storage.Client) *Server {
	return &Server{
		config:   config,
		caps:     caps,
		acquirer: acquirer,
		cache:    c,
		pool:     pool,
		store:    store,
		log:      logger.GetLogger(),
	}
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Pulse Analysis API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"health":        "GET /health",
			"analyzeURL":    "GET /audio_analysis?url={url-or-id}",
			"analyzeUpload": "POST /audio_analysis",
			"stream":        "GET /stream/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:          "healthy",
		Time:            time.Now().Format(time.RFC3339),
		Tools:           s.caps,
		CanAcquire:      s.caps.CanAcquire(),
		CachedTimelines: s.cache.Len(),
	}
	if s.store != nil {
		if n, err := s.store.Count(); err == nil {
			resp.PersistedTimelines = &n
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleAnalysis routes requests to /audio_analysis.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleAnalysisURL(w, r)
	case http.MethodPost:
		s.handleAnalysisUpload(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleAnalysisURL handles GET /audio_analysis?url={url-or-id}. A valid
// reference always yields a 200 with a full timeline: acquisition or
// analysis failures degrade to the synthetic generator instead of an
// error, so the visualizer on the other end never goes dark.
func (s *Server) handleAnalysisURL(w http.ResponseWriter, r *http.Request) {
	ref := r.URL.Query().Get("url")
	if ref == "" {
		s.respondError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}

	id, err := source.Resolve(ref)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unrecognized source reference: %q", ref))
		return
	}

	if !s.caps.CanAcquire() {
		s.log.Warnf("analysis %s: acquisition tools unavailable, serving synthetic timeline", id)
		s.respondJSON(w, http.StatusOK, s.syntheticFor(id))
		return
	}

	tl, err := s.cache.GetOrCompute(r.Context(), id, func(ctx context.Context) (*analysis.Timeline, error) {
		return s.analyzeSource(ctx, id)
	})
	if err != nil {
		// Synthetic results are served but never memoized, so a later
		// request retries the real path.
		s.log.Warnf("analysis %s: %v, serving synthetic timeline", id, err)
		tl = s.syntheticFor(id)
	}

	s.respondJSON(w, http.StatusOK, tl)
}

// analyzeSource runs the full acquire-and-analyze path on the worker
// pool, bounding how many child-process pipelines run at once.
func (s *Server) analyzeSource(ctx context.Context, id source.ID) (*analysis.Timeline, error) {
	type result struct {
		tl  *analysis.Timeline
		err error
	}
	ch := make(chan result, 1)

	job := worker.Job{
		Name: "analyze " + string(id),
		Ctx:  ctx,
		Run: func(ctx context.Context) {
			wf, err := s.acquirer.Acquire(ctx, id)
			if err != nil {
				ch <- result{nil, err}
				return
			}
			defer wf.Close()

			tl, err := analysis.AnalyzeFile(wf.Path, string(id), s.config.MaxBytes)
			ch <- result{tl, err}
		},
	}
	if err := s.pool.Submit(job); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		return r.tl, r.err
	}
}

// syntheticFor builds the degraded timeline for a source.
func (s *Server) syntheticFor(id source.ID) *analysis.Timeline {
	tl := analysis.Synthetic(analysis.DefaultSyntheticDuration)
	tl.SourceID = string(id)
	return tl
}

// handleAnalysisUpload handles POST /audio_analysis (multipart upload).
// The body is hard-capped; oversized uploads get a 413 instead of being
// spooled to disk.
func (s *Server) handleAnalysisUpload(w http.ResponseWriter, r *http.Request) {
	if !s.caps.FFmpeg {
		s.respondError(w, http.StatusBadGateway, "transcode tool unavailable")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	maxUpload := s.config.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			s.respondError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", maxUpload))
			return
		}
		s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	dir := filepath.Join(s.config.TempDir, "pulse-upload-"+uuid.NewString())
	if err := utils.MakeDir(dir); err != nil {
		s.log.Errorf("upload: creating work dir: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	defer utils.DeleteDir(dir)

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == "/" {
		name = "upload.audio"
	}
	inputPath := filepath.Join(dir, name)
	out, err := os.Create(inputPath)
	if err != nil {
		s.log.Errorf("upload: creating temp file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to process upload")
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		s.log.Errorf("upload: saving file: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to save uploaded file")
		return
	}
	out.Close()

	sourceID := strings.TrimSuffix(name, filepath.Ext(name))

	wavPath, err := s.acquirer.ConvertToWav(ctx, inputPath, dir)
	if err != nil {
		s.respondError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("could not decode uploaded audio: %v", err))
		return
	}

	tl, err := analysis.AnalyzeFile(wavPath, sourceID, s.config.MaxBytes)
	if err != nil {
		var aerr *analysis.Error
		if errors.As(err, &aerr) && aerr.Cause == analysis.CauseTooLarge {
			s.respondError(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		s.respondError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("could not analyze uploaded audio: %v", err))
		return
	}

	s.log.Infof("analyzed upload %s: %.0fs", name, tl.Duration)
	s.respondJSON(w, http.StatusOK, tl)
}

// flushWriter pushes every chunk to the client immediately and remembers
// whether anything was sent, which decides if a failure can still become
// an HTTP error.
type flushWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	wrote   bool
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if n > 0 {
		fw.wrote = true
	}
	if fw.flusher != nil {
		fw.flusher.Flush()
	}
	return n, err
}

// handleStream handles GET /stream/{id}. The response is a chunked MP3
// body produced lazily; the content type is known up front because the
// pipeline always re-encodes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ref := strings.TrimPrefix(r.URL.Path, "/stream/")
	if ref == "" {
		s.respondError(w, http.StatusBadRequest, "source id required")
		return
	}

	id, err := source.Resolve(ref)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("unrecognized source reference: %q", ref))
		return
	}

	if !s.caps.CanAcquire() {
		s.respondError(w, http.StatusBadGateway, "streaming tools unavailable")
		return
	}

	p := transcode.New(transcode.Config{
		Tools:             s.config.Tools,
		FirstChunkTimeout: s.config.FirstChunkTimeout,
	}, id)

	w.Header().Set("Content-Type", transcode.OutputContentType)
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Accept-Ranges", "none")

	fw := &flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}

	if err := p.Run(r.Context(), fw); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Warnf("stream %s: %v", id, err)
		// Headers may only be rewritten while nothing has been sent.
		if !fw.wrote {
			w.Header().Del("Content-Type")
			s.respondError(w, http.StatusBadGateway, "upstream produced no audio")
		}
		return
	}

	s.log.Infof("stream %s: complete", id)
}
