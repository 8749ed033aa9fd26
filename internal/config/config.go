// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Storage drivers.
const (
	DriverS3    = "s3"
	DriverMinIO = "minio"
	DriverLocal = "local"
)

// Static errors for configuration validation.
var (
	// ErrUnknownStorageDriver is returned when STORAGE_DRIVER is not recognized.
	ErrUnknownStorageDriver = errors.New("config: STORAGE_DRIVER must be s3, minio or local")
	// ErrS3BucketRequired is returned when the s3 driver has no S3_BUCKET.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET is required for the s3 driver")
	// ErrS3RegionRequired is returned when the s3 driver has no region or endpoint.
	ErrS3RegionRequired = errors.New("config: S3_REGION or S3_ENDPOINT is required for the s3 driver")
	// ErrMinIOEndpointRequired is returned when the minio driver has no MINIO_ENDPOINT.
	ErrMinIOEndpointRequired = errors.New("config: MINIO_ENDPOINT is required for the minio driver")
	// ErrMinIOBucketRequired is returned when the minio driver has no MINIO_BUCKET.
	ErrMinIOBucketRequired = errors.New("config: MINIO_BUCKET is required for the minio driver")
	// ErrInvalidConcurrency is returned when a concurrency limit is below 1.
	ErrInvalidConcurrency = errors.New("config: concurrency limits must be at least 1")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port               int           `env:"PORT, default=8080" json:"port"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS, default=*" json:"cors_allowed_origins"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT, default=30m" json:"shutdown_timeout"`

	// Workspace settings
	TempDir         string        `env:"TEMP_DIR, default=/tmp/scene-assembler" json:"temp_dir"`
	ArchiveDir      string        `env:"ARCHIVE_DIR" json:"archive_dir,omitempty"`
	RenderLogDir    string        `env:"RENDER_LOG_DIR, default=./render-logs" json:"render_log_dir"`
	WorkspaceMaxAge time.Duration `env:"WORKSPACE_MAX_AGE, default=168h" json:"workspace_max_age"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL, default=1h" json:"sweep_interval"`

	// Processing settings
	MaxConcurrentRenders    int           `env:"MAX_CONCURRENT_RENDERS, default=2" json:"max_concurrent_renders"`
	MaxConcurrentTranscodes int           `env:"MAX_CONCURRENT_TRANSCODES, default=2" json:"max_concurrent_transcodes"`
	TranscodeTimeout        time.Duration `env:"TRANSCODE_TIMEOUT, default=30m" json:"transcode_timeout"`
	ProbeTimeout            time.Duration `env:"PROBE_TIMEOUT, default=30s" json:"probe_timeout"`
	DownloadHeaderTimeout   time.Duration `env:"DOWNLOAD_HEADER_TIMEOUT, default=1m" json:"download_header_timeout"`
	MaxRedirects            int           `env:"MAX_REDIRECTS, default=10" json:"max_redirects"`
	FFmpegPath              string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath             string        `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Storage settings
	StorageDriver string `env:"STORAGE_DRIVER, default=s3" json:"storage_driver"`

	// S3-compatible settings (AWS, Backblaze B2)
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3PublicBaseURL    string `env:"S3_PUBLIC_BASE_URL" json:"s3_public_base_url,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// MinIO settings
	MinIOEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"` // Masked in JSON
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" json:"-"` // Masked in JSON
	MinIOBucket    string `env:"MINIO_BUCKET" json:"minio_bucket,omitempty"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL, default=false" json:"minio_use_ssl"`

	// Local storage settings
	LocalStorageDir    string `env:"LOCAL_STORAGE_DIR" json:"local_storage_dir,omitempty"`
	LocalPublicBaseURL string `env:"LOCAL_PUBLIC_BASE_URL" json:"local_public_base_url,omitempty"`

	// Logging settings
	LogFormat         string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel          string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
	LogFile           string `env:"LOG_FILE" json:"log_file,omitempty"`
	LogFileMaxSizeMB  int    `env:"LOG_FILE_MAX_SIZE_MB, default=100" json:"log_file_max_size_mb"`
	LogFileMaxBackups int    `env:"LOG_FILE_MAX_BACKUPS, default=5" json:"log_file_max_backups"`
	LogFileMaxAgeDays int    `env:"LOG_FILE_MAX_AGE_DAYS, default=30" json:"log_file_max_age_days"`
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is loaded first; variables already
// set in the environment take precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	return cfg, nil
}

// Validate checks that the settings of the selected storage driver are
// present.
func (c *Config) Validate() error {
	if c.MaxConcurrentRenders < 1 || c.MaxConcurrentTranscodes < 1 {
		return ErrInvalidConcurrency
	}

	switch c.StorageDriver {
	case DriverS3:
		if c.S3Bucket == "" {
			return ErrS3BucketRequired
		}
		if c.S3Region == "" && c.S3Endpoint == "" {
			return ErrS3RegionRequired
		}
	case DriverMinIO:
		if c.MinIOEndpoint == "" {
			return ErrMinIOEndpointRequired
		}
		if c.MinIOBucket == "" {
			return ErrMinIOBucketRequired
		}
	case DriverLocal:
	default:
		return ErrUnknownStorageDriver
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. When LogFile is set the
// same records are also written to a size-rotated file.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(c.newHandler(os.Stdout))
}

func (c *Config) newHandler(stdout io.Writer) slog.Handler {
	var w io.Writer = stdout
	if c.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.LogFile), 0o750); err == nil {
			w = io.MultiWriter(stdout, &lumberjack.Logger{
				Filename:   c.LogFile,
				MaxSize:    c.LogFileMaxSizeMB,
				MaxBackups: c.LogFileMaxBackups,
				MaxAge:     c.LogFileMaxAgeDays,
				Compress:   true,
			})
		}
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, ArchiveDir: %s, RenderLogDir: %s, MaxConcurrentRenders: %d, MaxConcurrentTranscodes: %d, StorageDriver: %s, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, MinIOEndpoint: %s, MinIOBucket: %s, LocalStorageDir: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.ArchiveDir,
		c.RenderLogDir,
		c.MaxConcurrentRenders,
		c.MaxConcurrentTranscodes,
		c.StorageDriver,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.MinIOEndpoint,
		c.MinIOBucket,
		c.LocalStorageDir,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
