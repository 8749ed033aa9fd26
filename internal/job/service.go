package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/maauso/scene-assembler/internal/audio"
	"github.com/maauso/scene-assembler/internal/captions"
	"github.com/maauso/scene-assembler/internal/fetch"
	"github.com/maauso/scene-assembler/internal/job/id"
	"github.com/maauso/scene-assembler/internal/media"
	"github.com/maauso/scene-assembler/internal/renderlog"
	"github.com/maauso/scene-assembler/internal/storage"
	"github.com/maauso/scene-assembler/internal/workspace"
)

// Stage errors. Every pipeline failure wraps exactly one of these.
var (
	// ErrWorkspace is returned when the job workspace cannot be allocated.
	ErrWorkspace = errors.New("workspace allocation failed")
	// ErrAcquisition is returned when an asset download fails.
	ErrAcquisition = errors.New("asset acquisition failed")
	// ErrTranscode is returned when an ffmpeg invocation fails.
	ErrTranscode = errors.New("transcode failed")
	// ErrOutputInvalid is returned when the encoded output fails validation.
	ErrOutputInvalid = errors.New("output validation failed")
	// ErrUpload is returned when the output cannot be stored.
	ErrUpload = errors.New("upload failed")
)

// DurationTolerance is the accepted difference in seconds between the output
// duration and the sum of the scene durations.
const DurationTolerance = 0.5

// Fetcher downloads a set of assets, failing if any download fails.
type Fetcher interface {
	FetchAll(ctx context.Context, assets []fetch.Asset) error
}

// WorkspaceAllocator hands out private job workspaces.
type WorkspaceAllocator interface {
	Allocate(ctx context.Context, generationID string) (*workspace.Workspace, error)
}

// Dependencies are the collaborators of a RenderService.
type Dependencies struct {
	Repo       Repository
	Gate       *Gate
	Workspaces WorkspaceAllocator
	Fetcher    Fetcher
	Media      media.Processor
	Uploader   storage.Uploader
	Logs       renderlog.Store
}

// Result describes a completed render.
type Result struct {
	GenerationID   string
	VideoURL       string
	Duration       float64
	FileSize       int64
	ProcessingTime time.Duration
	// ArchivePath is set when the workspace was kept for inspection.
	ArchivePath string
}

// Failure is returned for a job that was admitted and then failed. It
// carries the generation ID and elapsed time so callers can report both.
type Failure struct {
	GenerationID   string
	Stage          Status
	ProcessingTime time.Duration
	Err            error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("render %s failed during %s: %v", f.GenerationID, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// RenderService runs render jobs under an admission ceiling.
type RenderService struct {
	repo       Repository
	gate       *Gate
	workspaces WorkspaceAllocator
	fetcher    Fetcher
	media      media.Processor
	uploader   storage.Uploader
	logs       renderlog.Store
	logger     *slog.Logger
}

// NewRenderService creates a new RenderService.
func NewRenderService(deps Dependencies, logger *slog.Logger) *RenderService {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Repo == nil {
		deps.Repo = NewMemoryRepository()
	}
	if deps.Gate == nil {
		deps.Gate = NewGate(2)
	}
	return &RenderService{
		repo:       deps.Repo,
		gate:       deps.Gate,
		workspaces: deps.Workspaces,
		fetcher:    deps.Fetcher,
		media:      deps.Media,
		uploader:   deps.Uploader,
		logs:       deps.Logs,
		logger:     logger,
	}
}

// Submit validates req, admits it and runs it to completion.
//
// A *ValidationError or *BusyError is returned without creating a job,
// workspace or log. Any later failure is returned as a *Failure after the
// render log has been written.
func (s *RenderService) Submit(ctx context.Context, req RenderRequest) (*Result, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	release, err := s.gate.TryAcquire()
	if err != nil {
		s.logger.Warn("render refused", slog.Int("active", s.gate.Active()), slog.Int("max", s.gate.Max()))
		return nil, err
	}
	defer release()

	// An admitted job runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	genID := req.GenerationID
	if genID == "" {
		genID = id.Generate()
	}
	logger := s.logger.With(slog.String("generation_id", genID))

	job := New(genID, req)
	s.save(ctx, job, logger)
	rec := renderlog.NewRecorder(genID, req)

	logger.Info("render started",
		slog.Int("scenes", len(req.Scenes)),
		slog.Int("music_segments", len(req.MusicSegments)),
		slog.String("caption_style", req.CaptionStyle),
	)

	res, runErr := s.run(ctx, job, rec, logger)
	elapsed := time.Since(start)

	var logResult renderlog.Result
	if runErr != nil {
		stage := job.GetStatus()
		_ = job.Fail(runErr.Error())
		logResult = renderlog.Result{
			Status:                "error",
			Error:                 runErr.Error(),
			ProcessingTimeSeconds: elapsed.Seconds(),
		}
		logger.Error("render failed",
			slog.String("stage", string(stage)),
			slog.String("error", runErr.Error()),
			slog.Duration("elapsed", elapsed),
		)
		runErr = &Failure{GenerationID: genID, Stage: stage, ProcessingTime: elapsed, Err: runErr}
	} else {
		_ = job.Complete(res.VideoURL, res.Duration, res.FileSize)
		res.ProcessingTime = elapsed
		logResult = renderlog.Result{
			Status:                "success",
			Success:               true,
			URL:                   res.VideoURL,
			Duration:              res.Duration,
			FileSize:              res.FileSize,
			ProcessingTimeSeconds: elapsed.Seconds(),
		}
		logger.Info("render complete",
			slog.String("url", res.VideoURL),
			slog.Float64("duration", res.Duration),
			slog.Int64("file_size", res.FileSize),
			slog.Duration("elapsed", elapsed),
		)
	}
	s.save(ctx, job, logger)

	if err := s.logs.Write(ctx, rec.Finish(logResult)); err != nil {
		logger.Error("failed to write render log", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return nil, runErr
	}
	return res, nil
}

// run executes the pipeline stages. The workspace is released on every
// return path; it is archived only when the whole pipeline succeeded.
func (s *RenderService) run(ctx context.Context, job *Job, rec *renderlog.Recorder, logger *slog.Logger) (res *Result, err error) {
	req := job.Request

	ws, err := s.workspaces.Allocate(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkspace, err)
	}
	job.SetWorkspace(ws.Root())
	defer func() {
		archived, relErr := ws.Release(err == nil)
		if relErr != nil {
			logger.Warn("failed to release workspace", slog.String("error", relErr.Error()))
		}
		if res != nil {
			res.ArchivePath = archived
		}
	}()

	// Download
	if err := s.advance(ctx, job, StatusDownloading, logger); err != nil {
		return nil, err
	}
	assets, layout := planAssets(req, ws)
	step := rec.Begin(renderlog.StepDownload, -1)
	if err := s.fetcher.FetchAll(ctx, assets); err != nil {
		rec.Fail(step, err, map[string]any{"assets": len(assets)})
		return nil, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	rec.Complete(step, map[string]any{"assets": len(assets)})

	// Per-scene normalization, sequential so scene order is preserved.
	if err := s.advance(ctx, job, StatusPreprocessing, logger); err != nil {
		return nil, err
	}
	pre := rec.Begin(renderlog.StepPreprocess, -1)
	processed := make([]string, len(req.Scenes))
	for i, sc := range req.Scenes {
		clipStep := rec.Begin(renderlog.StepClip, i)
		plan, err := s.media.NormalizeScene(ctx, layout.clips[i], ws.ProcessedPath(i), sc.Duration)
		if len(plan.Command) > 0 {
			rec.AddCommand(plan.Command.String())
		}
		details := map[string]any{
			"source_duration": plan.SourceDuration,
			"target_duration": sc.Duration,
			"needs_padding":   plan.NeedsPadding,
		}
		if err != nil {
			rec.Fail(clipStep, err, details)
			rec.Fail(pre, err, map[string]any{"failed_scene": i})
			return nil, fmt.Errorf("%w: scene %d: %w", ErrTranscode, i, err)
		}
		rec.Complete(clipStep, details)
		processed[i] = ws.ProcessedPath(i)
		logger.Debug("scene normalized",
			slog.Int("scene", i),
			slog.Float64("source_duration", plan.SourceDuration),
			slog.Float64("target_duration", sc.Duration),
			slog.Bool("needs_padding", plan.NeedsPadding),
		)
	}
	rec.Complete(pre, map[string]any{"clips": len(processed)})

	// Assembly
	if err := s.advance(ctx, job, StatusAssembling, logger); err != nil {
		return nil, err
	}
	step = rec.Begin(renderlog.StepAssemble, -1)
	out, err := s.media.Assemble(ctx, media.AssemblyInput{
		Clips:          processed,
		ConcatListPath: ws.ConcatListPath(),
		NarrationPath:  layout.narration,
		Music:          layout.music,
		MusicVolume:    req.Volume(),
		CaptionsPath:   layout.captions,
		CaptionStyle:   req.CaptionStyle,
		OutputPath:     ws.OutputPath(),
	})
	if len(out.Command) > 0 {
		rec.AddCommand(out.Command.String())
	}
	if err != nil {
		rec.Fail(step, err, nil)
		if errors.Is(err, media.ErrOutputInvalid) {
			return nil, fmt.Errorf("%w: %w", ErrOutputInvalid, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTranscode, err)
	}
	expected := req.TotalDuration()
	rec.Complete(step, map[string]any{
		"duration":          out.Duration,
		"expected_duration": expected,
		"file_size":         out.FileSize,
		"mixed":             out.Mixed,
		"captioned":         out.Captioned,
	})
	if math.Abs(out.Duration-expected) > DurationTolerance {
		logger.Warn("output duration differs from scene total",
			slog.Float64("duration", out.Duration),
			slog.Float64("expected", expected),
		)
	}

	// Upload
	if err := s.advance(ctx, job, StatusUploading, logger); err != nil {
		return nil, err
	}
	step = rec.Begin(renderlog.StepUpload, -1)
	url, err := s.uploader.Upload(ctx, out.OutputPath, req.B2Path)
	if err != nil {
		rec.Fail(step, err, map[string]any{"key": req.B2Path})
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	rec.Complete(step, map[string]any{"key": req.B2Path, "bucket": req.B2Bucket, "url": url})

	return &Result{
		GenerationID: job.ID,
		VideoURL:     url,
		Duration:     out.Duration,
		FileSize:     out.FileSize,
	}, nil
}

func (s *RenderService) advance(ctx context.Context, job *Job, status Status, logger *slog.Logger) error {
	if err := job.TransitionTo(status); err != nil {
		return fmt.Errorf("enter %s: %w", status, err)
	}
	s.save(ctx, job, logger)
	logger.Info("stage started", slog.String("stage", string(status)))
	return nil
}

func (s *RenderService) save(ctx context.Context, job *Job, logger *slog.Logger) {
	if err := s.repo.Save(ctx, job); err != nil {
		logger.Error("failed to save job", slog.String("error", err.Error()))
	}
}

// assetLayout records where each downloaded asset lives.
type assetLayout struct {
	clips     []string
	narration string
	music     []audio.Segment
	captions  string
}

// planAssets maps the request onto workspace paths. Captions are fetched
// only when an overlay will be drawn.
func planAssets(req RenderRequest, ws *workspace.Workspace) ([]fetch.Asset, assetLayout) {
	var assets []fetch.Asset
	var layout assetLayout

	for i, sc := range req.Scenes {
		p := ws.ClipPath(i, fetch.ExtFromURL(sc.VideoURL, ".mp4"))
		layout.clips = append(layout.clips, p)
		assets = append(assets, fetch.Asset{Kind: fetch.KindClip, Index: i, URL: sc.VideoURL, Path: p})
	}

	layout.narration = ws.NarrationPath(fetch.ExtFromURL(req.NarrationURL, ".mp3"))
	assets = append(assets, fetch.Asset{Kind: fetch.KindNarration, URL: req.NarrationURL, Path: layout.narration})

	for i, m := range req.MusicSegments {
		p := ws.MusicPath(i, fetch.ExtFromURL(m.MusicURL, ".mp3"))
		layout.music = append(layout.music, audio.Segment{
			Path:      p,
			StartTime: m.StartTime,
			Duration:  m.Duration,
			FadeIn:    m.FadeIn,
			FadeOut:   m.FadeOut,
		})
		assets = append(assets, fetch.Asset{Kind: fetch.KindMusic, Index: i, URL: m.MusicURL, Path: p})
	}

	if captions.Enabled(req.CaptionFileURL, req.CaptionStyle) {
		layout.captions = ws.CaptionsPath(fetch.ExtFromURL(req.CaptionFileURL, ".srt"))
		assets = append(assets, fetch.Asset{Kind: fetch.KindCaptions, URL: req.CaptionFileURL, Path: layout.captions})
	}

	return assets, layout
}

// GetJob retrieves a job by ID.
func (s *RenderService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all known jobs.
func (s *RenderService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// GetLog returns the persisted render log of a generation ID.
func (s *RenderService) GetLog(ctx context.Context, generationID string) (*renderlog.RenderLog, error) {
	return s.logs.Read(ctx, generationID)
}

// Drain stops admitting jobs and waits for the admitted ones to finish.
func (s *RenderService) Drain(ctx context.Context) error {
	return s.gate.Drain(ctx)
}

// Capacity returns the number of running jobs and the admission ceiling.
func (s *RenderService) Capacity() (active, limit int) {
	return s.gate.Active(), s.gate.Max()
}

// PruneJobs forgets terminal jobs that completed more than maxAge ago.
func (s *RenderService) PruneJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	jobs, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for _, j := range jobs {
		if !j.IsTerminal() || j.CompletedAt.After(cutoff) {
			continue
		}
		if err := s.repo.Delete(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}
