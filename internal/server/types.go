// Package server provides the HTTP boundary of the scene assembler.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/scene-assembler/internal/job"
)

// SceneDTO is one scene of a render request.
type SceneDTO struct {
	VideoURL string  `json:"video_url" validate:"required,url"`
	Duration float64 `json:"duration" validate:"gt=0"`
}

// MusicSegmentDTO is one background-music segment of a render request.
type MusicSegmentDTO struct {
	MusicURL  string  `json:"music_url" validate:"required,url"`
	StartTime float64 `json:"start_time" validate:"gte=0"`
	Duration  float64 `json:"duration" validate:"gt=0"`
	FadeIn    float64 `json:"fade_in" validate:"gte=0"`
	FadeOut   float64 `json:"fade_out" validate:"gte=0"`
}

// RenderRequestDTO is the HTTP request body of POST /render.
type RenderRequestDTO struct {
	GenerationID   string            `json:"generation_id" validate:"omitempty,max=128"`
	Scenes         []SceneDTO        `json:"scenes" validate:"required,min=1,dive"`
	NarrationURL   string            `json:"narration_url" validate:"required,url"`
	MusicSegments  []MusicSegmentDTO `json:"music_segments" validate:"omitempty,dive"`
	CaptionFileURL string            `json:"caption_file_url" validate:"omitempty,url"`
	CaptionStyle   string            `json:"caption_style"`
	MusicVolume    *float64          `json:"music_volume" validate:"omitempty,gte=0"`
	B2Path         string            `json:"b2_path" validate:"required"`
	B2Bucket       string            `json:"b2_bucket"`
}

// ToRequest converts the DTO into the domain request.
func (d RenderRequestDTO) ToRequest() job.RenderRequest {
	req := job.RenderRequest{
		GenerationID:   d.GenerationID,
		NarrationURL:   d.NarrationURL,
		CaptionFileURL: d.CaptionFileURL,
		CaptionStyle:   d.CaptionStyle,
		MusicVolume:    d.MusicVolume,
		B2Path:         d.B2Path,
		B2Bucket:       d.B2Bucket,
	}
	for _, sc := range d.Scenes {
		req.Scenes = append(req.Scenes, job.Scene{VideoURL: sc.VideoURL, Duration: sc.Duration})
	}
	for _, m := range d.MusicSegments {
		req.MusicSegments = append(req.MusicSegments, job.MusicSegment{
			MusicURL:  m.MusicURL,
			StartTime: m.StartTime,
			Duration:  m.Duration,
			FadeIn:    m.FadeIn,
			FadeOut:   m.FadeOut,
		})
	}
	return req
}

// RenderResponse is the body of a successful render.
type RenderResponse struct {
	Status                string  `json:"status"`
	Success               bool    `json:"success"`
	GenerationID          string  `json:"generation_id"`
	B2URL                 string  `json:"b2_url"`
	Duration              float64 `json:"duration"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	FileSize              int64   `json:"file_size"`
}

// RenderErrorResponse is the body of a render that was admitted and failed.
type RenderErrorResponse struct {
	Status                string  `json:"status"`
	Success               bool    `json:"success"`
	GenerationID          string  `json:"generation_id,omitempty"`
	Stage                 string  `json:"stage,omitempty"`
	Error                 string  `json:"error"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// BusyResponse is returned when the admission ceiling is reached.
type BusyResponse struct {
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Active  int    `json:"active"`
	Max     int    `json:"max"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// StatusResponse reports render capacity.
type StatusResponse struct {
	Active    int `json:"active"`
	Max       int `json:"max"`
	Available int `json:"available"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Scenes      int        `json:"scenes"`
	Error       string     `json:"error,omitempty"`
	FailedStage string     `json:"failed_stage,omitempty"`
	VideoURL    string     `json:"b2_url,omitempty"`
	Duration    float64    `json:"duration,omitempty"`
	FileSize    int64      `json:"file_size,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse lists known jobs, newest first.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// CaptionStyleResponse describes one caption preset.
type CaptionStyleResponse struct {
	Name       string `json:"name"`
	FontName   string `json:"font_name"`
	FontSize   int    `json:"font_size"`
	ForceStyle string `json:"force_style"`
}

func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Scenes:      len(j.Request.Scenes),
		Error:       j.Error,
		FailedStage: string(j.FailedStage),
		VideoURL:    j.VideoURL,
		Duration:    j.Duration,
		FileSize:    j.FileSize,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}
