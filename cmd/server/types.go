package main

import (
	"time"

	"github.com/onesong-app/pulse/internal/media"
)

// ServerConfig holds server configuration resolved from flags and
// environment at startup.
type ServerConfig struct {
	Port              int
	TempDir           string
	DBPath            string
	Tools             media.Tools
	AcquireTimeout    time.Duration
	FirstChunkTimeout time.Duration
	MaxBytes          int64
	MaxDuration       time.Duration
	Workers           int
	QueueSize         int
	CacheEntries      int
	MaxUpload         int64
	AllowedOrigins    []string
}

// DefaultMaxUpload caps the multipart body of POST /audio_analysis.
const DefaultMaxUpload = 50 << 20

// HealthResponse reports service liveness and which optional external
// utilities are available. Analysis degrades to the synthetic generator
// when the acquisition tools are missing, so clients can read this to
// know whether timelines will be real.
type HealthResponse struct {
	Status             string             `json:"status"`
	Time               string             `json:"time"`
	Tools              media.Capabilities `json:"tools"`
	CanAcquire         bool               `json:"can_acquire"`
	CachedTimelines    int                `json:"cached_timelines"`
	PersistedTimelines *int64             `json:"persisted_timelines,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
