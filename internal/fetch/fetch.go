// Package fetch downloads the remote media of a render job into its
// workspace.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Static errors for downloads.
var (
	// ErrEmptyURL is returned when an asset has no URL.
	ErrEmptyURL = errors.New("asset URL is empty")
	// ErrBadStatus is returned for a final response other than 200 OK.
	ErrBadStatus = errors.New("unexpected download status")
	// ErrTooManyRedirects is returned when the redirect limit is exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")
)

// Kind tags what an asset is used for.
type Kind string

// Asset kinds.
const (
	KindClip      Kind = "clip"
	KindNarration Kind = "narration"
	KindMusic     Kind = "music"
	KindCaptions  Kind = "captions"
)

// Asset is one remote file and its local destination.
type Asset struct {
	Kind Kind `json:"type"`
	// Index is the scene or music segment position; unused for singletons.
	Index int    `json:"index,omitempty"`
	URL   string `json:"url"`
	Path  string `json:"path"`
}

// Downloader fetches assets over HTTP.
type Downloader struct {
	httpClient    *http.Client
	headerTimeout time.Duration
	maxRedirects  int
	concurrency   int
	logger        *slog.Logger
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient sets a custom HTTP client. Its CheckRedirect is replaced.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Downloader) {
		if c != nil {
			cp := *c
			d.httpClient = &cp
		}
	}
}

// WithHeaderTimeout bounds the wait for response headers. The body is
// streamed without a deadline. Zero disables it.
func WithHeaderTimeout(timeout time.Duration) Option {
	return func(d *Downloader) {
		d.headerTimeout = timeout
	}
}

// WithMaxRedirects sets how many redirects a single download may follow.
func WithMaxRedirects(n int) Option {
	return func(d *Downloader) {
		if n >= 0 {
			d.maxRedirects = n
		}
	}
}

// WithConcurrency bounds the number of simultaneous downloads. Zero means
// all assets are fetched at once.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		d.concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDownloader creates a Downloader.
func NewDownloader(opts ...Option) *Downloader {
	d := &Downloader{
		httpClient:    &http.Client{},
		headerTimeout: time.Minute,
		maxRedirects:  10,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.headerTimeout > 0 {
		d.httpClient.Transport = withHeaderTimeout(d.httpClient.Transport, d.headerTimeout)
	}
	limit := d.maxRedirects
	d.httpClient.CheckRedirect = func(_ *http.Request, via []*http.Request) error {
		if len(via) > limit {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, limit)
		}
		return nil
	}
	return d
}

func withHeaderTimeout(rt http.RoundTripper, timeout time.Duration) http.RoundTripper {
	if rt == nil {
		rt = http.DefaultTransport
	}
	t, ok := rt.(*http.Transport)
	if !ok {
		return rt
	}
	t = t.Clone()
	t.ResponseHeaderTimeout = timeout
	return t
}

// FetchAll downloads every asset concurrently. It fails as soon as any
// download fails; the remaining downloads are cancelled.
func (d *Downloader) FetchAll(ctx context.Context, assets []Asset) error {
	g, gctx := errgroup.WithContext(ctx)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}

	for _, a := range assets {
		a := a
		g.Go(func() error {
			if err := d.Fetch(gctx, a.URL, a.Path); err != nil {
				return fmt.Errorf("%s %d: %w", a.Kind, a.Index, err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Fetch downloads rawURL to destPath, creating the parent directory.
// A partially written file is removed on failure.
func (d *Downloader) Fetch(ctx context.Context, rawURL, destPath string) error {
	if rawURL == "" {
		return ErrEmptyURL
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create download request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d from %s", ErrBadStatus, resp.StatusCode, rawURL)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o750); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	out, err := os.Create(destPath) // #nosec G304 - destPath is inside the job workspace
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("copy download data: %w", err)
	}

	d.logger.Debug("asset downloaded",
		slog.String("path", destPath),
		slog.Int64("bytes", n),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// ExtFromURL returns the lower-cased file extension of the URL path, or def
// when the path has no usable extension.
func ExtFromURL(rawURL, def string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return def
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if len(ext) < 2 || len(ext) > 5 {
		return def
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return def
		}
	}
	return ext
}
