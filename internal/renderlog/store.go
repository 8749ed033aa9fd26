package renderlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrLogNotFound is returned when no log exists for a generation ID.
var ErrLogNotFound = errors.New("render log not found")

// Store persists render logs.
type Store interface {
	// Write persists the log. It is called exactly once per job.
	Write(ctx context.Context, log *RenderLog) error
	// Read loads the log of a generation ID.
	// Returns ErrLogNotFound if none exists.
	Read(ctx context.Context, generationID string) (*RenderLog, error)
}

// Compile-time check that FileStore implements Store.
var _ Store = (*FileStore)(nil)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// rerunSep separates a reused ID from its timestamp suffix. Sanitized names
// never contain it.
const rerunSep = "@"

// FileStore writes one JSON file per job into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore. The directory is created if it doesn't
// exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create render log directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the log directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file that holds the log of generationID.
func (s *FileStore) Path(generationID string) string {
	return filepath.Join(s.dir, fileName(generationID)+".json")
}

// Write persists log without ever replacing an existing file. A clashing
// generation ID gets a timestamp suffix.
func (s *FileStore) Write(ctx context.Context, log *RenderLog) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal render log: %w", err)
	}

	path := s.Path(log.GenerationID)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304 - path is derived from a sanitized ID
	if errors.Is(err, os.ErrExist) {
		suffix := strconv.FormatInt(time.Now().UnixNano(), 10)
		path = filepath.Join(s.dir, fileName(log.GenerationID)+rerunSep+suffix+".json")
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640) // #nosec G304
	}
	if err != nil {
		return fmt.Errorf("create render log: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write render log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close render log: %w", err)
	}
	return nil
}

// Read loads the most recent log of generationID.
func (s *FileStore) Read(ctx context.Context, generationID string) (*RenderLog, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.latest(generationID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) // #nosec G304 - path is derived from a sanitized ID
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrLogNotFound
		}
		return nil, fmt.Errorf("read render log: %w", err)
	}

	var log RenderLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decode render log: %w", err)
	}
	return &log, nil
}

// latest returns the newest file written for generationID. Later runs of
// the same ID carry a larger numeric suffix.
func (s *FileStore) latest(generationID string) (string, error) {
	name := fileName(generationID)
	matches, err := filepath.Glob(filepath.Join(s.dir, name+rerunSep+"*.json"))
	if err != nil {
		return "", fmt.Errorf("list render logs: %w", err)
	}

	best, bestSuffix := s.Path(generationID), int64(-1)
	for _, m := range matches {
		suffix := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), name+rerunSep), ".json")
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			continue
		}
		if n > bestSuffix {
			best, bestSuffix = m, n
		}
	}
	return best, nil
}

func fileName(generationID string) string {
	name := unsafeChars.ReplaceAllString(generationID, "_")
	if name == "" || name == "." || name == ".." {
		name = "_"
	}
	return name
}
