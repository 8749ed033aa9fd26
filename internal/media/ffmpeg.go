package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/scene-assembler/internal/audio"
	"github.com/maauso/scene-assembler/internal/captions"
	"github.com/maauso/scene-assembler/internal/filtergraph"
)

// Static errors for media operations.
var (
	// ErrInvalidDuration is returned when a target duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
	// ErrNoClips is returned when assembly is requested without clips.
	ErrNoClips = errors.New("no clips provided")
	// ErrOutputInvalid is returned when the encoded file fails validation.
	ErrOutputInvalid = errors.New("output validation failed")
)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	runner *Runner
	logger *slog.Logger
}

// NewFFmpegProcessor creates a new FFmpegProcessor backed by runner.
func NewFFmpegProcessor(runner *Runner, logger *slog.Logger) *FFmpegProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegProcessor{runner: runner, logger: logger}
}

// NormalizeScene implements Processor.
func (p *FFmpegProcessor) NormalizeScene(ctx context.Context, src, dst string, target float64) (ScenePlan, error) {
	if target <= 0 {
		return ScenePlan{Source: src, Output: dst}, fmt.Errorf("%w: got %.3f", ErrInvalidDuration, target)
	}

	probed, err := p.runner.Probe(ctx, src)
	if err != nil {
		// An unreadable duration is treated as zero, so the clip is padded.
		p.logger.Warn("probe scene clip failed, assuming zero duration",
			slog.String("path", src),
			slog.String("error", err.Error()),
		)
		probed = 0
	}

	plan := PlanScene(src, dst, probed, target)
	if err := p.runner.Run(ctx, plan.Command); err != nil {
		return plan, err
	}
	return plan, nil
}

// PlanScene computes the normalization plan and command for one clip.
func PlanScene(src, dst string, probed, target float64) ScenePlan {
	plan := ScenePlan{
		Source:         src,
		Output:         dst,
		SourceDuration: probed,
		TargetDuration: target,
		NeedsPadding:   probed < target,
	}
	if plan.NeedsPadding {
		plan.PadSeconds = math.Ceil(target-probed) + 1
	}

	plan.Command = Command{
		"-y",
		"-i", src,
		"-vf", sceneFilter(plan).String(),
		"-t", fmt.Sprintf("%.3f", target),
		"-an",
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		dst,
	}
	return plan
}

// sceneFilter fits the clip into the canonical frame and, when needed,
// clones the last frame so the hard trim always has enough material.
func sceneFilter(plan ScenePlan) filtergraph.Chain {
	w, h := strconv.Itoa(FrameWidth), strconv.Itoa(FrameHeight)
	chain := filtergraph.Chain{
		Filters: []filtergraph.Filter{
			filtergraph.New("scale", w, h).With("force_original_aspect_ratio", "decrease"),
			filtergraph.New("pad", w, h, "(ow-iw)/2", "(oh-ih)/2").With("color", "black"),
			filtergraph.New("setsar", "1"),
			filtergraph.New("fps", strconv.Itoa(FrameRate)),
		},
	}
	if plan.NeedsPadding {
		chain.Filters = append(chain.Filters, filtergraph.New("tpad").
			With("stop_mode", "clone").
			With("stop_duration", strconv.FormatFloat(plan.PadSeconds, 'f', -1, 64)))
	}
	return chain
}

// Assemble implements Processor.
func (p *FFmpegProcessor) Assemble(ctx context.Context, in AssemblyInput) (AssemblyResult, error) {
	if len(in.Clips) == 0 {
		return AssemblyResult{OutputPath: in.OutputPath}, ErrNoClips
	}

	if err := WriteConcatList(in.ConcatListPath, in.Clips); err != nil {
		return AssemblyResult{OutputPath: in.OutputPath}, fmt.Errorf("create concat list: %w", err)
	}

	res := BuildAssembly(in)
	if err := p.runner.Run(ctx, res.Command); err != nil {
		return res, err
	}

	size, duration, err := p.ValidateOutput(ctx, in.OutputPath)
	if err != nil {
		return res, err
	}
	res.FileSize = size
	res.Duration = duration
	return res, nil
}

// BuildAssembly builds the final encode command. Input 0 is the concat list,
// input 1 the narration and inputs 2.. the music files in request order.
func BuildAssembly(in AssemblyInput) AssemblyResult {
	opts := audio.DefaultMixOpts()
	opts.MusicVolume = in.MusicVolume
	mix := audio.BuildMix(in.Music, opts)

	graph := mix.Graph
	videoMap := "0:v"
	overlay := captions.Build(in.CaptionsPath, in.CaptionStyle)
	if overlay != nil {
		var video filtergraph.Graph
		video.Add(overlay.Chain("0:v", "vout"))
		graph = video.Merge(mix.Graph)
		videoMap = "[vout]"
	}

	args := Command{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", in.ConcatListPath,
		"-i", in.NarrationPath,
	}
	for _, seg := range in.Music {
		args = append(args, "-i", seg.Path)
	}
	args = append(args,
		"-filter_complex", graph.String(),
		"-map", videoMap,
		"-map", "["+audio.OutputLabel+"]",
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		"-shortest",
		in.OutputPath,
	)

	return AssemblyResult{
		OutputPath: in.OutputPath,
		Captioned:  overlay != nil,
		Mixed:      mix.Mixed,
		Command:    args,
	}
}

// ValidateOutput checks that path exists, exceeds MinOutputBytes and has a
// readable duration.
func (p *FFmpegProcessor) ValidateOutput(ctx context.Context, path string) (int64, float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrOutputInvalid, err)
	}
	if info.Size() <= MinOutputBytes {
		return info.Size(), 0, fmt.Errorf("%w: file too small (%d bytes)", ErrOutputInvalid, info.Size())
	}

	duration, err := p.runner.Probe(ctx, path)
	if err != nil {
		return info.Size(), 0, fmt.Errorf("%w: %w", ErrOutputInvalid, err)
	}
	return info.Size(), duration, nil
}

// WriteConcatList writes the list of clips in the format required by
// ffmpeg's concat demuxer.
func WriteConcatList(listPath string, clips []string) error {
	f, err := os.Create(listPath) // #nosec G304 - listPath is inside the job workspace
	if err != nil {
		return fmt.Errorf("create list file: %w", err)
	}
	defer func() { _ = f.Close() }()

	for _, path := range clips {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("get absolute path for %s: %w", path, err)
		}
		// Escape single quotes in path
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapedPath); err != nil {
			return fmt.Errorf("write to concat list: %w", err)
		}
	}

	return f.Close()
}
