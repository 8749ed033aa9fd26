// Package renderlog records the structured execution log of a render job and
// persists it once the job finishes.
package renderlog

import (
	"encoding/json"
	"sync"
	"time"
)

// Step names.
const (
	StepDownload   = "download"
	StepClip       = "clip"
	StepPreprocess = "preprocess"
	StepAssemble   = "assemble"
	StepUpload     = "upload"
)

// StepStatus is the outcome of a step.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one stage (or one scene within a stage) of the pipeline.
type Step struct {
	Name        string         `json:"step"`
	Index       *int           `json:"index,omitempty"`
	Status      StepStatus     `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Details     map[string]any `json:"details,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Result is the final outcome recorded in the log.
type Result struct {
	Status                string  `json:"status"`
	Success               bool    `json:"success"`
	URL                   string  `json:"b2_url,omitempty"`
	Duration              float64 `json:"duration,omitempty"`
	FileSize              int64   `json:"file_size,omitempty"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	Error                 string  `json:"error,omitempty"`
}

// RenderLog is the persisted record of one job.
type RenderLog struct {
	GenerationID   string          `json:"generation_id"`
	StartedAt      time.Time       `json:"started_at"`
	Request        json.RawMessage `json:"request"`
	Steps          []Step          `json:"steps"`
	FFmpegCommands []string        `json:"ffmpeg_commands"`
	Result         *Result         `json:"result,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// CountSteps returns how many steps carry the given name.
func (l *RenderLog) CountSteps(name string) int {
	n := 0
	for _, s := range l.Steps {
		if s.Name == name {
			n++
		}
	}
	return n
}

// Recorder appends to a RenderLog. It is safe for concurrent use.
type Recorder struct {
	mu  sync.Mutex
	log RenderLog
	now func() time.Time
}

// NewRecorder starts a log for generationID. The request is stored as JSON;
// if it cannot be marshaled the log keeps a null request.
func NewRecorder(generationID string, request any) *Recorder {
	raw, err := json.Marshal(request)
	if err != nil {
		raw = json.RawMessage("null")
	}
	r := &Recorder{now: time.Now}
	r.log = RenderLog{
		GenerationID:   generationID,
		StartedAt:      r.now().UTC(),
		Request:        raw,
		Steps:          []Step{},
		FFmpegCommands: []string{},
	}
	return r
}

// StepRef identifies a step opened by Begin.
type StepRef int

// Begin opens a step. Pass a negative index for steps that are not per-item.
func (r *Recorder) Begin(name string, index int) StepRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Step{
		Name:      name,
		Status:    StepRunning,
		StartedAt: r.now().UTC(),
	}
	if index >= 0 {
		i := index
		s.Index = &i
	}
	r.log.Steps = append(r.log.Steps, s)
	return StepRef(len(r.log.Steps) - 1)
}

// Complete marks a step as completed with optional details.
func (r *Recorder) Complete(ref StepRef, details map[string]any) {
	r.finish(ref, StepCompleted, details, nil)
}

// Fail marks a step as failed with the error message.
func (r *Recorder) Fail(ref StepRef, err error, details map[string]any) {
	r.finish(ref, StepFailed, details, err)
}

func (r *Recorder) finish(ref StepRef, status StepStatus, details map[string]any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(ref) < 0 || int(ref) >= len(r.log.Steps) {
		return
	}
	s := &r.log.Steps[ref]
	now := r.now().UTC()
	s.Status = status
	s.CompletedAt = &now
	s.DurationMs = now.Sub(s.StartedAt).Milliseconds()
	if len(details) > 0 {
		s.Details = details
	}
	if err != nil {
		s.Error = err.Error()
	}
}

// AddCommand records an ffmpeg command line.
func (r *Recorder) AddCommand(cmd string) {
	if cmd == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.FFmpegCommands = append(r.log.FFmpegCommands, cmd)
}

// Finish records the result and completion time and returns a snapshot.
func (r *Recorder) Finish(result Result) *RenderLog {
	r.mu.Lock()
	now := r.now().UTC()
	r.log.Result = &result
	r.log.CompletedAt = &now
	r.mu.Unlock()
	return r.Snapshot()
}

// Snapshot returns a copy of the current log.
func (r *Recorder) Snapshot() *RenderLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := r.log
	cp.Steps = make([]Step, len(r.log.Steps))
	copy(cp.Steps, r.log.Steps)
	cp.FFmpegCommands = append([]string{}, r.log.FFmpegCommands...)
	cp.Request = append(json.RawMessage(nil), r.log.Request...)
	if r.log.Result != nil {
		res := *r.log.Result
		cp.Result = &res
	}
	return &cp
}
