package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Static errors for transcode operations.
var (
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrTranscodeTimeout is returned when an invocation exceeds its timeout.
	ErrTranscodeTimeout = errors.New("ffmpeg invocation timed out")
)

// StderrTailBytes bounds the diagnostic output kept from a failed invocation.
const StderrTailBytes = 1000

// Runner executes ffmpeg and ffprobe. Every ffmpeg invocation takes a slot
// from a bounded pool sized independently of job admission, and runs with its
// own timeout.
type Runner struct {
	ffmpegPath   string
	ffprobePath  string
	slots        *semaphore.Weighted
	timeout      time.Duration
	probeTimeout time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithFFprobePath sets the ffprobe binary.
func WithFFprobePath(path string) RunnerOption {
	return func(r *Runner) {
		if path != "" {
			r.ffprobePath = path
		}
	}
}

// WithMaxConcurrent sets the number of ffmpeg processes allowed at once.
func WithMaxConcurrent(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithTimeout sets the per-invocation ffmpeg timeout.
func WithTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithProbeTimeout sets the per-invocation ffprobe timeout.
func WithProbeTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// NewRunner creates a Runner.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewRunner(ffmpegPath string, opts ...RunnerOption) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	r := &Runner{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  "ffprobe",
		slots:        semaphore.NewWeighted(2),
		timeout:      30 * time.Minute,
		probeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Command is the argument list of one ffmpeg invocation.
type Command []string

// String renders the command as a shell-like line for render logs.
func (c Command) String() string {
	parts := make([]string, 0, len(c)+1)
	parts = append(parts, "ffmpeg")
	for _, a := range c {
		if a == "" || strings.ContainsAny(a, " \t'\"[];|&()") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Run executes ffmpeg with the given arguments. It blocks until a worker slot
// is free and the process exits.
func (r *Runner) Run(ctx context.Context, args Command) error {
	if err := r.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for transcode slot: %w", err)
	}
	defer r.slots.Release(1)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(runCtx, r.ffmpegPath, args...)

	stderr := &tailBuffer{limit: StderrTailBytes}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTranscodeTimeout, r.timeout)
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// Probe returns the container duration in seconds of a media file.
func (r *Runner) Probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, r.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: StderrTailBytes}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return parseDuration(stdout.String())
}

func parseDuration(out string) (float64, error) {
	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(out), err)
	}
	return duration, nil
}

// FFmpegError represents an error from running ffmpeg, including the tail of
// its stderr output.
type FFmpegError struct {
	Args   Command
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nstderr: %s", e.Err, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// tailBuffer is an io.Writer that keeps only the last limit bytes written.
type tailBuffer struct {
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}
