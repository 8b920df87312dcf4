package main

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/onesong-app/pulse/internal/cache"
	"github.com/onesong-app/pulse/internal/media"
	"github.com/onesong-app/pulse/internal/storage"
	"github.com/onesong-app/pulse/internal/transcode"
	"github.com/onesong-app/pulse/internal/worker"
)

var (
	port              int
	tempDir           string
	dbPath            string
	ytdlpBin          string
	ffmpegBin         string
	ffprobeBin        string
	acquireTimeout    time.Duration
	firstChunkTimeout time.Duration
	maxBytes          int64
	maxDuration       time.Duration
	maxUpload         int64
	workers           int
	cacheEntries      int
	allowedOrigins    string
)

func init() {
	flag.IntVar(&port, "port", getEnvInt("PULSE_PORT", 8080), "HTTP server port")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("PULSE_TEMP_DIR", os.TempDir()), "Temporary directory for acquired audio")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("PULSE_DB_PATH", ""), "Path to SQLite timeline cache (empty disables persistence)")
	flag.StringVar(&ytdlpBin, "ytdlp", getEnvOrDefault("PULSE_YTDLP", ""), "Path to the yt-dlp binary (default: resolve via PATH)")
	flag.StringVar(&ffmpegBin, "ffmpeg", getEnvOrDefault("PULSE_FFMPEG", ""), "Path to the ffmpeg binary (default: resolve via PATH)")
	flag.StringVar(&ffprobeBin, "ffprobe", getEnvOrDefault("PULSE_FFPROBE", ""), "Path to the ffprobe binary (default: resolve via PATH)")
	flag.DurationVar(&acquireTimeout, "acquire-timeout", getEnvDuration("PULSE_ACQUIRE_TIMEOUT", media.DefaultAcquireTimeout), "Wall-clock budget for one acquisition")
	flag.DurationVar(&firstChunkTimeout, "first-chunk-timeout", getEnvDuration("PULSE_FIRST_CHUNK_TIMEOUT", transcode.DefaultFirstChunkTimeout), "Time-to-first-byte budget for /stream")
	flag.Int64Var(&maxBytes, "max-bytes", getEnvInt64("PULSE_MAX_AUDIO_BYTES", media.DefaultMaxBytes), "Size cap for decoded waveforms in bytes")
	flag.DurationVar(&maxDuration, "max-duration", getEnvDuration("PULSE_MAX_DURATION", media.DefaultMaxDuration), "Duration ceiling for remote sources")
	flag.Int64Var(&maxUpload, "max-upload", getEnvInt64("PULSE_MAX_UPLOAD", DefaultMaxUpload), "Size cap for uploaded audio in bytes")
	flag.IntVar(&workers, "workers", getEnvInt("PULSE_WORKERS", 2), "Concurrent acquisition workers")
	flag.IntVar(&cacheEntries, "cache-entries", getEnvInt("PULSE_CACHE_ENTRIES", cache.DefaultMaxEntries), "Maximum timelines held in memory")
	flag.StringVar(&allowedOrigins, "origins", getEnvOrDefault("PULSE_ORIGINS", "*"), "Comma-separated list of allowed CORS origins (use * for all)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	tools := media.Tools{YTDLP: ytdlpBin, FFmpeg: ffmpegBin, FFprobe: ffprobeBin}
	caps := media.DetectTools(tools)

	config := &ServerConfig{
		Port:              port,
		TempDir:           tempDir,
		DBPath:            dbPath,
		Tools:             tools,
		AcquireTimeout:    acquireTimeout,
		FirstChunkTimeout: firstChunkTimeout,
		MaxBytes:          maxBytes,
		MaxDuration:       maxDuration,
		Workers:           workers,
		QueueSize:         workers * 4,
		CacheEntries:      cacheEntries,
		MaxUpload:         maxUpload,
		AllowedOrigins:    origins,
	}

	acquirer := media.NewAcquirer(media.Config{
		Tools:       tools,
		TempDir:     tempDir,
		MaxBytes:    maxBytes,
		MaxDuration: maxDuration,
		Timeout:     acquireTimeout,
	})

	var store *storage.Client
	if dbPath != "" {
		var err error
		store, err = storage.Open(dbPath)
		if err != nil {
			log.Fatalf("Failed to open timeline database: %v", err)
		}
		defer store.Close()
	}

	// The cache takes the store as an interface; a nil *Client must not
	// become a non-nil interface value.
	var tier cache.Store
	if store != nil {
		tier = store
	}
	timelineCache := cache.New(cacheEntries, tier)

	pool := worker.NewPool(workers, config.QueueSize)
	defer pool.Stop()

	server := NewServer(config, caps, acquirer, timelineCache, pool, store)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
