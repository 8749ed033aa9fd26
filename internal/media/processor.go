// Package media normalizes scene clips and assembles the final video using
// the ffmpeg CLI.
package media

import (
	"context"

	"github.com/maauso/scene-assembler/internal/audio"
)

// Canonical output frame.
const (
	FrameWidth  = 1920
	FrameHeight = 1080
	FrameRate   = 30
)

// MinOutputBytes is the size an assembled file must exceed to be accepted.
const MinOutputBytes = 1000

// Processor defines the video operations a render job needs.
type Processor interface {
	// NormalizeScene probes src, then letterboxes it to the canonical frame
	// and trims (or freeze-pads and trims) it to exactly target seconds,
	// writing the result to dst without audio. The returned plan carries the
	// command that was run, even when err is non-nil.
	NormalizeScene(ctx context.Context, src, dst string, target float64) (ScenePlan, error)

	// Assemble concatenates the processed clips, mixes the audio, applies the
	// optional caption overlay and validates the encoded output. The returned
	// result carries the command that was run, even when err is non-nil.
	Assemble(ctx context.Context, in AssemblyInput) (AssemblyResult, error)
}

// ScenePlan describes how one scene clip is brought to its target duration.
type ScenePlan struct {
	Source string `json:"source"`
	Output string `json:"output"`
	// SourceDuration is the probed duration; zero when probing failed.
	SourceDuration float64 `json:"source_duration"`
	TargetDuration float64 `json:"target_duration"`
	NeedsPadding   bool    `json:"needs_padding"`
	// PadSeconds is how long the last frame is frozen before the trim.
	PadSeconds float64 `json:"pad_seconds,omitempty"`
	Command    Command `json:"-"`
}

// AssemblyInput is everything the final encode consumes.
type AssemblyInput struct {
	// Clips are the processed scene clips in scene order.
	Clips []string
	// ConcatListPath is where the concat demuxer list is written.
	ConcatListPath string
	NarrationPath  string
	Music          []audio.Segment
	// MusicVolume is the linear gain applied to every music segment.
	MusicVolume float64
	// CaptionsPath is the local subtitle file; empty disables captions.
	CaptionsPath string
	CaptionStyle string
	OutputPath   string
}

// AssemblyResult describes a validated output file.
type AssemblyResult struct {
	OutputPath string
	FileSize   int64
	Duration   float64
	Captioned  bool
	Mixed      bool
	Command    Command
}
