// Package bootstrap provides dependency initialization for the render
// server and the renderctl CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/scene-assembler/internal/config"
	"github.com/maauso/scene-assembler/internal/fetch"
	"github.com/maauso/scene-assembler/internal/job"
	"github.com/maauso/scene-assembler/internal/media"
	"github.com/maauso/scene-assembler/internal/renderlog"
	"github.com/maauso/scene-assembler/internal/storage"
	"github.com/maauso/scene-assembler/internal/workspace"
)

// Dependencies holds all initialized dependencies.
type Dependencies struct {
	RenderService *job.RenderService
	Workspaces    *workspace.Manager
	Logs          *renderlog.FileStore
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	uploader, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	workspaces, err := workspace.NewManager(cfg.TempDir, cfg.ArchiveDir, logger)
	if err != nil {
		return nil, err
	}

	logs, err := renderlog.NewFileStore(cfg.RenderLogDir)
	if err != nil {
		return nil, err
	}

	runner := media.NewRunner(cfg.FFmpegPath,
		media.WithFFprobePath(cfg.FFprobePath),
		media.WithMaxConcurrent(cfg.MaxConcurrentTranscodes),
		media.WithTimeout(cfg.TranscodeTimeout),
		media.WithProbeTimeout(cfg.ProbeTimeout),
	)

	downloader := fetch.NewDownloader(
		fetch.WithHeaderTimeout(cfg.DownloadHeaderTimeout),
		fetch.WithMaxRedirects(cfg.MaxRedirects),
		fetch.WithLogger(logger),
	)

	svc := job.NewRenderService(job.Dependencies{
		Repo:       job.NewMemoryRepository(),
		Gate:       job.NewGate(cfg.MaxConcurrentRenders),
		Workspaces: workspaces,
		Fetcher:    downloader,
		Media:      media.NewFFmpegProcessor(runner, logger),
		Uploader:   uploader,
		Logs:       logs,
	}, logger)

	logger.Info("render pipeline configured",
		slog.String("temp_dir", cfg.TempDir),
		slog.String("archive_dir", cfg.ArchiveDir),
		slog.String("render_log_dir", cfg.RenderLogDir),
		slog.Int("max_concurrent_renders", cfg.MaxConcurrentRenders),
		slog.Int("max_concurrent_transcodes", cfg.MaxConcurrentTranscodes),
	)

	return &Dependencies{
		RenderService: svc,
		Workspaces:    workspaces,
		Logs:          logs,
	}, nil
}

// initStorage creates the storage backend selected by STORAGE_DRIVER.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Uploader, error) {
	switch cfg.StorageDriver {
	case config.DriverMinIO:
		store, err := storage.NewMinIOStorage(storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create MinIO storage: %w", err)
		}
		logger.Info("MinIO storage configured",
			slog.String("endpoint", cfg.MinIOEndpoint),
			slog.String("bucket", cfg.MinIOBucket),
		)
		return store, nil

	case config.DriverLocal:
		store, err := storage.NewLocalStorage(cfg.LocalStorageDir, cfg.LocalPublicBaseURL)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		logger.Info("local storage configured",
			slog.String("dir", store.Dir()),
		)
		return store, nil

	default:
		store, err := storage.NewS3Storage(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return store, nil
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Workspaces []string
	Jobs       int
}

// Sweep removes workspaces and archives older than maxAge and forgets
// terminal jobs that finished before the same cutoff.
func (d *Dependencies) Sweep(ctx context.Context, maxAge time.Duration) (SweepReport, error) {
	var report SweepReport

	removed, err := d.Workspaces.Sweep(ctx, maxAge)
	report.Workspaces = removed
	if err != nil {
		return report, fmt.Errorf("sweep workspaces: %w", err)
	}

	pruned, err := d.RenderService.PruneJobs(ctx, maxAge)
	report.Jobs = pruned
	if err != nil {
		return report, fmt.Errorf("prune jobs: %w", err)
	}
	return report, nil
}
