// Package storage provides durable storage for finished renders.
// It defines the Uploader interface (port) for hexagonal architecture and
// implementations for S3-compatible services, MinIO and a local directory.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ErrEmptyKey is returned when an upload has no destination key.
var ErrEmptyKey = errors.New("storage key is empty")

// Uploader durably stores a local file under a key and returns a URL from
// which it can be retrieved. Implementations do not retry.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (url string, err error)
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".srt":  "application/x-subrip",
	".vtt":  "text/vtt",
	".txt":  "text/plain",
}

// DefaultContentType is used for unrecognized extensions.
const DefaultContentType = "application/octet-stream"

// ContentTypeFor returns the MIME type for the extension of path.
func ContentTypeFor(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return DefaultContentType
}

// normalizeKey strips leading slashes so keys are always bucket-relative.
func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

// joinURL appends key to base with exactly one slash between them.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
