// Package workspace allocates and tears down the per-job directory tree in
// which assets are downloaded and intermediate media are written.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Directory and file names inside a workspace.
const (
	ClipsDir      = "clips"
	ProcessedDir  = "processed"
	ConcatList    = "concat.txt"
	OutputFile    = "output.mp4"
	narrationBase = "narration"
	captionsBase  = "captions"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Manager owns the workspace root and the optional archive directory.
type Manager struct {
	root       string
	archiveDir string
	logger     *slog.Logger
}

// NewManager creates a Manager rooted at root. The root (and archiveDir, if
// set) is created if it doesn't exist. An empty archiveDir disables archival.
func NewManager(root, archiveDir string, logger *slog.Logger) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "scene-assembler")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if archiveDir != "" {
		if err := os.MkdirAll(archiveDir, 0o750); err != nil {
			return nil, fmt.Errorf("create archive directory: %w", err)
		}
	}
	return &Manager{root: root, archiveDir: archiveDir, logger: logger}, nil
}

// Root returns the workspace root directory.
func (m *Manager) Root() string {
	return m.root
}

// Allocate creates a fresh workspace for generationID. Two allocations for the
// same generation ID never share a directory.
func (m *Manager) Allocate(ctx context.Context, generationID string) (*Workspace, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	name := unsafeChars.ReplaceAllString(generationID, "_") + "-" + uuid.NewString()[:8]
	dir := filepath.Join(m.root, name)

	for _, sub := range []string{ClipsDir, ProcessedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			_ = os.RemoveAll(dir)
			return nil, fmt.Errorf("create workspace %s: %w", sub, err)
		}
	}

	return &Workspace{
		root:         dir,
		generationID: generationID,
		archiveDir:   m.archiveDir,
		logger:       m.logger,
	}, nil
}

// Sweep removes workspaces and archives whose modification time is older
// than maxAge. It continues past individual failures and returns the first
// error encountered.
func (m *Manager) Sweep(ctx context.Context, maxAge time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	var firstErr error

	dirs := []string{m.root}
	if m.archiveDir != "" {
		dirs = append(dirs, m.archiveDir)
	}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("read %s: %w", dir, err)
			}
			continue
		}
		for _, e := range entries {
			select {
			case <-ctx.Done():
				return removed, fmt.Errorf("context cancelled: %w", ctx.Err())
			default:
			}

			info, err := e.Info()
			if err != nil || !e.IsDir() || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.RemoveAll(path); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("remove %s: %w", path, err)
				}
				continue
			}
			removed = append(removed, path)
		}
	}

	if len(removed) > 0 {
		m.logger.Info("swept stale workspaces", slog.Int("count", len(removed)))
	}
	return removed, firstErr
}

// Workspace is the private directory tree of one job.
type Workspace struct {
	root         string
	generationID string
	archiveDir   string
	logger       *slog.Logger

	mu       sync.Mutex
	released bool
}

// Root returns the workspace directory.
func (w *Workspace) Root() string { return w.root }

// ClipPath returns the download destination of scene i.
func (w *Workspace) ClipPath(i int, ext string) string {
	return filepath.Join(w.root, ClipsDir, fmt.Sprintf("scene_%d%s", i, ext))
}

// ProcessedPath returns the normalized clip path of scene i. The zero-padded
// index keeps lexical order equal to scene order.
func (w *Workspace) ProcessedPath(i int) string {
	return filepath.Join(w.root, ProcessedDir, fmt.Sprintf("scene_%03d.mp4", i))
}

// NarrationPath returns the narration download destination.
func (w *Workspace) NarrationPath(ext string) string {
	return filepath.Join(w.root, narrationBase+ext)
}

// MusicPath returns the download destination of music segment i.
func (w *Workspace) MusicPath(i int, ext string) string {
	return filepath.Join(w.root, fmt.Sprintf("music_%d%s", i, ext))
}

// CaptionsPath returns the caption file download destination.
func (w *Workspace) CaptionsPath(ext string) string {
	return filepath.Join(w.root, captionsBase+ext)
}

// ConcatListPath returns the concat demuxer list path.
func (w *Workspace) ConcatListPath() string {
	return filepath.Join(w.root, ConcatList)
}

// OutputPath returns the final encoded file path.
func (w *Workspace) OutputPath() string {
	return filepath.Join(w.root, OutputFile)
}

// Release tears the workspace down. On success with archival enabled the
// directory is moved into the archive and its new path is returned;
// otherwise it is removed. Release is safe to call more than once.
func (w *Workspace) Release(success bool) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.released {
		return "", nil
	}
	w.released = true

	if success && w.archiveDir != "" {
		dst := filepath.Join(w.archiveDir, filepath.Base(w.root))
		err := os.Rename(w.root, dst)
		if err == nil {
			w.logger.Info("workspace archived",
				slog.String("generation_id", w.generationID),
				slog.String("path", dst),
			)
			return dst, nil
		}
		w.logger.Warn("archive workspace failed, removing",
			slog.String("generation_id", w.generationID),
			slog.String("error", err.Error()),
		)
	}

	if err := os.RemoveAll(w.root); err != nil {
		return "", fmt.Errorf("remove workspace: %w", err)
	}
	return "", nil
}

// Released reports whether Release has been called.
func (w *Workspace) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}
