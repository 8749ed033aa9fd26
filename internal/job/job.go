// Package job provides the render Job aggregate and the RenderService that
// runs a job through the pipeline: download, per-scene normalization,
// assembly and upload.
// It includes the Job entity with its state machine, the admission gate,
// and repository interfaces for persistence.
package job

import (
	"errors"
	"sync"
	"time"
)

// Status represents the current pipeline stage of a Job.
type Status string

const (
	// StatusValidating indicates the job was admitted and is being set up.
	StatusValidating Status = "VALIDATING"
	// StatusDownloading indicates the assets are being fetched.
	StatusDownloading Status = "DOWNLOADING"
	// StatusPreprocessing indicates scene clips are being normalized.
	StatusPreprocessing Status = "PREPROCESSING"
	// StatusAssembling indicates the final encode is running.
	StatusAssembling Status = "ASSEMBLING"
	// StatusUploading indicates the output is being stored.
	StatusUploading Status = "UPLOADING"
	// StatusComplete indicates the job finished successfully.
	StatusComplete Status = "COMPLETE"
	// StatusFailed indicates the job stopped on an error.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Stages advance strictly in order; FAILED is reachable from any stage.
var validTransitions = map[Status][]Status{
	StatusValidating:    {StatusDownloading, StatusFailed},
	StatusDownloading:   {StatusPreprocessing, StatusFailed},
	StatusPreprocessing: {StatusAssembling, StatusFailed},
	StatusAssembling:    {StatusUploading, StatusFailed},
	StatusUploading:     {StatusComplete, StatusFailed},
	StatusComplete:      {},
	StatusFailed:        {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one admitted render.
type Job struct {
	mu sync.RWMutex

	// ID is the generation ID of the render.
	ID string
	// Status is the current job state.
	Status Status
	// Request is the immutable render request.
	Request RenderRequest
	// WorkspacePath is the job's private directory while it runs.
	WorkspacePath string
	// Error contains any error message if the job failed.
	Error string
	// FailedStage is the stage the job was in when it failed.
	FailedStage Status
	// VideoURL is the storage URL of the output.
	VideoURL string
	// Duration is the probed output duration in seconds.
	Duration float64
	// FileSize is the output size in bytes.
	FileSize int64
	// CreatedAt is when the job was admitted.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a Job in VALIDATING state.
func New(generationID string, req RenderRequest) *Job {
	now := time.Now()
	return &Job{
		ID:        generationID,
		Status:    StatusValidating,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()
	if status == StatusComplete || status == StatusFailed {
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Complete records the output and transitions the job to COMPLETE.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Complete(videoURL string, duration float64, fileSize int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusComplete); err != nil {
		return err
	}
	j.VideoURL = videoURL
	j.Duration = duration
	j.FileSize = fileSize
	return nil
}

// Fail transitions the job to FAILED state with an error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	stage := j.Status
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.FailedStage = stage
	return nil
}

// SetWorkspace records the workspace directory.
func (j *Job) SetWorkspace(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.WorkspacePath = path
	j.UpdatedAt = time.Now()
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusComplete || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	req := j.Request
	req.Scenes = append([]Scene(nil), j.Request.Scenes...)
	req.MusicSegments = append([]MusicSegment(nil), j.Request.MusicSegments...)
	if j.Request.MusicVolume != nil {
		v := *j.Request.MusicVolume
		req.MusicVolume = &v
	}

	return &Job{
		ID:            j.ID,
		Status:        j.Status,
		Request:       req,
		WorkspacePath: j.WorkspacePath,
		Error:         j.Error,
		FailedStage:   j.FailedStage,
		VideoURL:      j.VideoURL,
		Duration:      j.Duration,
		FileSize:      j.FileSize,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		CompletedAt:   j.CompletedAt,
	}
}
