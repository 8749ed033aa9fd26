package job

import (
	"fmt"

	"github.com/maauso/scene-assembler/internal/audio"
)

// Scene is one clip and the exact duration it must occupy in the output.
type Scene struct {
	VideoURL string  `json:"video_url"`
	Duration float64 `json:"duration"`
}

// MusicSegment is a background-music clip placed on the timeline.
type MusicSegment struct {
	MusicURL  string  `json:"music_url"`
	StartTime float64 `json:"start_time"`
	Duration  float64 `json:"duration"`
	FadeIn    float64 `json:"fade_in"`
	FadeOut   float64 `json:"fade_out"`
}

// RenderRequest fully specifies one render. It is not modified once a job
// has been admitted.
type RenderRequest struct {
	// GenerationID identifies the job; a time-derived ID is used when empty.
	GenerationID   string         `json:"generation_id,omitempty"`
	Scenes         []Scene        `json:"scenes"`
	NarrationURL   string         `json:"narration_url"`
	MusicSegments  []MusicSegment `json:"music_segments,omitempty"`
	CaptionFileURL string         `json:"caption_file_url,omitempty"`
	CaptionStyle   string         `json:"caption_style,omitempty"`
	// MusicVolume is the linear music gain; nil means audio.DefaultMusicVolume.
	MusicVolume *float64 `json:"music_volume,omitempty"`
	B2Path      string   `json:"b2_path"`
	// B2Bucket is informational only.
	B2Bucket string `json:"b2_bucket,omitempty"`
}

// MaxGenerationIDLength bounds GenerationID so it always fits in a file name.
const MaxGenerationIDLength = 128

// ValidationError describes a request field that must be corrected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Validate checks the request invariants.
func (r RenderRequest) Validate() error {
	if len(r.GenerationID) > MaxGenerationIDLength {
		return &ValidationError{
			Field:  "generation_id",
			Reason: fmt.Sprintf("must be at most %d bytes", MaxGenerationIDLength),
		}
	}
	if len(r.Scenes) == 0 {
		return &ValidationError{Field: "scenes", Reason: "must contain at least one scene"}
	}
	for i, sc := range r.Scenes {
		if sc.VideoURL == "" {
			return &ValidationError{Field: fmt.Sprintf("scenes[%d].video_url", i), Reason: "is required"}
		}
		if sc.Duration <= 0 {
			return &ValidationError{Field: fmt.Sprintf("scenes[%d].duration", i), Reason: "must be greater than zero"}
		}
	}
	if r.NarrationURL == "" {
		return &ValidationError{Field: "narration_url", Reason: "is required"}
	}
	if r.B2Path == "" {
		return &ValidationError{Field: "b2_path", Reason: "is required"}
	}
	for i, m := range r.MusicSegments {
		field := fmt.Sprintf("music_segments[%d]", i)
		switch {
		case m.MusicURL == "":
			return &ValidationError{Field: field + ".music_url", Reason: "is required"}
		case m.Duration <= 0:
			return &ValidationError{Field: field + ".duration", Reason: "must be greater than zero"}
		case m.StartTime < 0:
			return &ValidationError{Field: field + ".start_time", Reason: "must not be negative"}
		case m.FadeIn < 0 || m.FadeOut < 0:
			return &ValidationError{Field: field, Reason: "fades must not be negative"}
		}
	}
	if r.MusicVolume != nil && *r.MusicVolume < 0 {
		return &ValidationError{Field: "music_volume", Reason: "must not be negative"}
	}
	return nil
}

// Volume returns the music gain to apply.
func (r RenderRequest) Volume() float64 {
	if r.MusicVolume == nil {
		return audio.DefaultMusicVolume
	}
	return *r.MusicVolume
}

// TotalDuration is the sum of the scene target durations.
func (r RenderRequest) TotalDuration() float64 {
	var total float64
	for _, sc := range r.Scenes {
		total += sc.Duration
	}
	return total
}
