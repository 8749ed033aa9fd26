package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/scene-assembler/internal/config"
	"github.com/maauso/scene-assembler/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		TempDir:                 filepath.Join(dir, "work"),
		ArchiveDir:              filepath.Join(dir, "archive"),
		RenderLogDir:            filepath.Join(dir, "logs"),
		MaxConcurrentRenders:    2,
		MaxConcurrentTranscodes: 2,
		TranscodeTimeout:        time.Minute,
		ProbeTimeout:            time.Second,
		DownloadHeaderTimeout:   time.Minute,
		MaxRedirects:            10,
		FFmpegPath:              "ffmpeg",
		FFprobePath:             "ffprobe",
		StorageDriver:           config.DriverLocal,
		LocalStorageDir:         filepath.Join(dir, "public"),
		LocalPublicBaseURL:      "http://localhost:8080/files",
	}
}

func TestNewDependencies_Local(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, err := NewDependencies(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, deps.RenderService)

	active, limit := deps.RenderService.Capacity()
	assert.Equal(t, 0, active)
	assert.Equal(t, 2, limit)
	assert.Equal(t, cfg.RenderLogDir, deps.Logs.Dir())
	assert.DirExists(t, cfg.TempDir)
	assert.DirExists(t, cfg.ArchiveDir)
}

func TestInitStorage(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("local", func(t *testing.T) {
		up, err := initStorage(testConfig(t), logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.LocalStorage{}, up)
	})

	t.Run("minio", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.StorageDriver = config.DriverMinIO
		cfg.MinIOEndpoint = "localhost:9000"
		cfg.MinIOBucket = "renders"
		up, err := initStorage(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.MinIOStorage{}, up)
	})

	t.Run("s3", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.StorageDriver = config.DriverS3
		cfg.S3Bucket = "renders"
		cfg.S3Region = "us-east-1"
		cfg.AWSAccessKeyID = "key"
		cfg.AWSSecretAccessKey = "secret"
		up, err := initStorage(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &storage.S3Storage{}, up)
	})
}

func TestDependencies_Sweep(t *testing.T) {
	cfg := testConfig(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, err := NewDependencies(cfg, logger)
	require.NoError(t, err)

	stale := filepath.Join(cfg.TempDir, "gen-old-12345678")
	fresh := filepath.Join(cfg.ArchiveDir, "gen-new-12345678")
	require.NoError(t, os.MkdirAll(stale, 0o750))
	require.NoError(t, os.MkdirAll(fresh, 0o750))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	report, err := deps.Sweep(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, report.Workspaces)
	assert.Equal(t, 0, report.Jobs)
	assert.NoDirExists(t, stale)
	assert.DirExists(t, fresh)
}
