package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maauso/scene-assembler/internal/audio"
	"github.com/maauso/scene-assembler/internal/captions"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestVideo creates a simple test video using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, color string) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=%s:s=64x48:d=%.1f", color, duration),
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=44100:cl=mono:d=%.1f", duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-c:a", "aac",
		"-shortest",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

// createTestAudio creates a sine tone of the given duration.
func createTestAudio(t *testing.T, path string, duration float64) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=440:duration=%.1f", duration),
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test audio: %v\noutput: %s", err, output)
	}
}

func newTestProcessor() *FFmpegProcessor {
	return NewFFmpegProcessor(NewRunner("", WithTimeout(2*time.Minute)), nil)
}

func TestNewRunner(t *testing.T) {
	t.Run("default path", func(t *testing.T) {
		r := NewRunner("")
		if r.ffmpegPath != "ffmpeg" {
			t.Errorf("expected default path 'ffmpeg', got %q", r.ffmpegPath)
		}
		if r.ffprobePath != "ffprobe" {
			t.Errorf("expected default probe path 'ffprobe', got %q", r.ffprobePath)
		}
	})

	t.Run("custom paths", func(t *testing.T) {
		r := NewRunner("/usr/local/bin/ffmpeg", WithFFprobePath("/usr/local/bin/ffprobe"))
		if r.ffmpegPath != "/usr/local/bin/ffmpeg" {
			t.Errorf("expected custom path, got %q", r.ffmpegPath)
		}
		if r.ffprobePath != "/usr/local/bin/ffprobe" {
			t.Errorf("expected custom probe path, got %q", r.ffprobePath)
		}
	})

	t.Run("zero values keep defaults", func(t *testing.T) {
		r := NewRunner("", WithTimeout(0), WithProbeTimeout(-1), WithMaxConcurrent(0))
		if r.timeout != 30*time.Minute {
			t.Errorf("expected default timeout, got %s", r.timeout)
		}
		if r.probeTimeout != 30*time.Second {
			t.Errorf("expected default probe timeout, got %s", r.probeTimeout)
		}
	})
}

func TestPlanScene(t *testing.T) {
	tests := []struct {
		name        string
		probed      float64
		target      float64
		wantPadding bool
		wantPad     float64
	}{
		{"shorter source is padded", 3.2, 5, true, 3},
		{"exact ceil difference", 2, 4, true, 3},
		{"failed probe pads whole target", 0, 4.5, true, 6},
		{"longer source is trimmed", 8, 5, false, 0},
		{"equal source is trimmed", 5, 5, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanScene("/w/clips/scene_0.mp4", "/w/processed/scene_000.mp4", tt.probed, tt.target)

			if plan.NeedsPadding != tt.wantPadding {
				t.Errorf("NeedsPadding = %v, want %v", plan.NeedsPadding, tt.wantPadding)
			}
			if plan.PadSeconds != tt.wantPad {
				t.Errorf("PadSeconds = %v, want %v", plan.PadSeconds, tt.wantPad)
			}

			cmd := plan.Command.String()
			if !strings.Contains(cmd, fmt.Sprintf("-t %.3f", tt.target)) {
				t.Errorf("command does not trim to target: %s", cmd)
			}
			if !strings.Contains(cmd, " -an ") {
				t.Errorf("command keeps source audio: %s", cmd)
			}
			if got := strings.Contains(cmd, "tpad"); got != tt.wantPadding {
				t.Errorf("tpad present = %v, want %v", got, tt.wantPadding)
			}
			if plan.Command[len(plan.Command)-1] != "/w/processed/scene_000.mp4" {
				t.Errorf("unexpected output argument %q", plan.Command[len(plan.Command)-1])
			}
		})
	}
}

func TestSceneFilter(t *testing.T) {
	plan := PlanScene("in.mp4", "out.mp4", 1.5, 3)

	want := "scale=1920:1080:force_original_aspect_ratio=decrease," +
		"pad=1920:1080:(ow-iw)/2:(oh-ih)/2:color=black," +
		"setsar=1,fps=30," +
		"tpad=stop_mode=clone:stop_duration=3"
	if got := sceneFilter(plan).String(); got != want {
		t.Errorf("sceneFilter() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildAssembly(t *testing.T) {
	t.Run("narration only without captions", func(t *testing.T) {
		res := BuildAssembly(AssemblyInput{
			Clips:          []string{"/w/processed/scene_000.mp4"},
			ConcatListPath: "/w/concat.txt",
			NarrationPath:  "/w/narration.mp3",
			OutputPath:     "/w/output.mp4",
		})

		if res.Mixed || res.Captioned {
			t.Errorf("expected no mix and no captions, got mixed=%v captioned=%v", res.Mixed, res.Captioned)
		}
		args := strings.Join(res.Command, " ")
		for _, want := range []string{
			"-f concat -safe 0 -i /w/concat.txt -i /w/narration.mp3 -filter_complex",
			"-map 0:v -map [aout]",
			"-c:v libx264 -preset medium -crf 23 -pix_fmt yuv420p",
			"-c:a aac -b:a 192k",
			"-movflags +faststart -shortest /w/output.mp4",
		} {
			if !strings.Contains(args, want) {
				t.Errorf("expected %q in %s", want, args)
			}
		}
		if strings.Contains(args, "subtitles") {
			t.Errorf("unexpected subtitles filter: %s", args)
		}
	})

	t.Run("music and captions", func(t *testing.T) {
		res := BuildAssembly(AssemblyInput{
			Clips:          []string{"a.mp4", "b.mp4"},
			ConcatListPath: "/w/concat.txt",
			NarrationPath:  "/w/narration.mp3",
			Music: []audio.Segment{
				{Path: "/w/music_0.mp3", Duration: 10, FadeIn: 1, FadeOut: 1},
				{Path: "/w/music_1.mp3", StartTime: 4, Duration: 6},
			},
			MusicVolume:  0.2,
			CaptionsPath: "/w/captions.srt",
			CaptionStyle: "word_box",
			OutputPath:   "/w/output.mp4",
		})

		if !res.Mixed || !res.Captioned {
			t.Fatalf("expected mix and captions, got mixed=%v captioned=%v", res.Mixed, res.Captioned)
		}
		args := strings.Join(res.Command, " ")
		if !strings.Contains(args, "-i /w/narration.mp3 -i /w/music_0.mp3 -i /w/music_1.mp3") {
			t.Errorf("music inputs out of order: %s", args)
		}
		if !strings.Contains(args, "-map [vout] -map [aout]") {
			t.Errorf("expected captioned video map: %s", args)
		}

		var graph string
		for i, a := range res.Command {
			if a == "-filter_complex" {
				graph = res.Command[i+1]
			}
		}
		if !strings.HasPrefix(graph, "[0:v]subtitles=filename=/w/captions.srt:") {
			t.Errorf("overlay must be applied to the concatenated stream: %s", graph)
		}
		if !strings.Contains(graph, "volume=0.2") {
			t.Errorf("music volume not applied: %s", graph)
		}
		if !strings.HasSuffix(graph, "amix=inputs=3:duration=first:dropout_transition=2[aout]") {
			t.Errorf("unexpected mix stage: %s", graph)
		}
	})
}

func TestWriteConcatList(t *testing.T) {
	tmpDir := t.TempDir()
	listPath := filepath.Join(tmpDir, "concat.txt")

	err := WriteConcatList(listPath, []string{
		filepath.Join(tmpDir, "scene_000.mp4"),
		filepath.Join(tmpDir, "it's.mp4"),
	})
	if err != nil {
		t.Fatalf("WriteConcatList() error = %v", err)
	}

	data, err := os.ReadFile(listPath)
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	want := fmt.Sprintf("file '%s/scene_000.mp4'\nfile '%s/it'\\''s.mp4'\n", tmpDir, tmpDir)
	if string(data) != want {
		t.Errorf("list =\n%s\nwant\n%s", data, want)
	}
}

func TestCommandString(t *testing.T) {
	cmd := Command{"-y", "-i", "/tmp/a b.mp4", "-filter_complex", "[1:a]anull[aout]"}
	want := `ffmpeg -y -i "/tmp/a b.mp4" -filter_complex "[1:a]anull[aout]"`
	if got := cmd.String(); got != want {
		t.Errorf("String() = %s, want %s", got, want)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{limit: 5}
	_, _ = tb.Write([]byte("abc"))
	_, _ = tb.Write([]byte("defg"))
	if got := tb.String(); got != "cdefg" {
		t.Errorf("after small writes got %q", got)
	}
	_, _ = tb.Write([]byte("0123456789"))
	if got := tb.String(); got != "56789" {
		t.Errorf("after large write got %q", got)
	}
}

func TestRun_FailureKeepsStderrTail(t *testing.T) {
	skipIfNoFFmpeg(t)

	r := NewRunner("")
	err := r.Run(context.Background(), Command{"-i", filepath.Join(t.TempDir(), "missing.mp4"), "-f", "null", "-"})
	if err == nil {
		t.Fatal("expected error for missing input")
	}

	var ffErr *FFmpegError
	if !errors.As(err, &ffErr) {
		t.Fatalf("expected *FFmpegError, got %T", err)
	}
	if ffErr.Stderr == "" {
		t.Error("expected stderr tail")
	}
	if len(ffErr.Stderr) > StderrTailBytes {
		t.Errorf("stderr tail is %d bytes, limit %d", len(ffErr.Stderr), StderrTailBytes)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	skipIfNoFFmpeg(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner("")
	if err := r.Run(ctx, Command{"-version"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestProbe(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	video := filepath.Join(tmpDir, "probe.mp4")
	createTestVideo(t, video, 2.0, "blue")

	duration, err := NewRunner("").Probe(context.Background(), video)
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if duration < 1.9 || duration > 2.1 {
		t.Errorf("Probe() = %.2f, want ~2.0", duration)
	}

	if _, err := NewRunner("").Probe(context.Background(), filepath.Join(tmpDir, "missing.mp4")); !errors.Is(err, ErrFFprobeExecution) {
		t.Errorf("expected ErrFFprobeExecution, got %v", err)
	}
}

func TestNormalizeScene(t *testing.T) {
	skipIfNoFFmpeg(t)

	tests := []struct {
		name        string
		source      float64
		target      float64
		wantPadding bool
	}{
		{"pad short clip", 1.0, 2.5, true},
		{"trim long clip", 3.0, 1.5, false},
	}

	p := newTestProcessor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			src := filepath.Join(tmpDir, "src.mp4")
			dst := filepath.Join(tmpDir, "scene_000.mp4")
			createTestVideo(t, src, tt.source, "green")

			plan, err := p.NormalizeScene(context.Background(), src, dst, tt.target)
			if err != nil {
				t.Fatalf("NormalizeScene() error = %v", err)
			}
			if plan.NeedsPadding != tt.wantPadding {
				t.Errorf("NeedsPadding = %v, want %v", plan.NeedsPadding, tt.wantPadding)
			}

			got, err := p.runner.Probe(context.Background(), dst)
			if err != nil {
				t.Fatalf("probe output: %v", err)
			}
			if got < tt.target-0.1 || got > tt.target+0.1 {
				t.Errorf("output duration = %.3f, want %.3f", got, tt.target)
			}
		})
	}
}

func TestNormalizeScene_InvalidTarget(t *testing.T) {
	_, err := newTestProcessor().NormalizeScene(context.Background(), "in.mp4", "out.mp4", 0)
	if !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestAssemble(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	p := newTestProcessor()

	var clips []string
	for i, d := range []float64{1.0, 1.5} {
		src := filepath.Join(tmpDir, fmt.Sprintf("src_%d.mp4", i))
		dst := filepath.Join(tmpDir, fmt.Sprintf("scene_%03d.mp4", i))
		createTestVideo(t, src, 2.0, "red")
		if _, err := p.NormalizeScene(context.Background(), src, dst, d); err != nil {
			t.Fatalf("normalize scene %d: %v", i, err)
		}
		clips = append(clips, dst)
	}

	narration := filepath.Join(tmpDir, "narration.wav")
	createTestAudio(t, narration, 4.0)
	music := filepath.Join(tmpDir, "music_0.wav")
	createTestAudio(t, music, 1.0)

	res, err := p.Assemble(context.Background(), AssemblyInput{
		Clips:          clips,
		ConcatListPath: filepath.Join(tmpDir, "concat.txt"),
		NarrationPath:  narration,
		Music:          []audio.Segment{{Path: music, StartTime: 0.5, Duration: 1, FadeIn: 0.2, FadeOut: 0.2}},
		MusicVolume:    audio.DefaultMusicVolume,
		OutputPath:     filepath.Join(tmpDir, "output.mp4"),
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if res.FileSize <= MinOutputBytes {
		t.Errorf("FileSize = %d, want > %d", res.FileSize, MinOutputBytes)
	}
	if res.Duration < 2.0 || res.Duration > 3.0 {
		t.Errorf("Duration = %.2f, want ~2.5", res.Duration)
	}
}

// skipIfNoSubtitles skips the test if ffmpeg was built without libass.
func skipIfNoSubtitles(t *testing.T) {
	t.Helper()
	out, err := exec.Command("ffmpeg", "-hide_banner", "-filters").CombinedOutput()
	if err != nil || !strings.Contains(string(out), " subtitles ") {
		t.Skip("ffmpeg has no subtitles filter, skipping test")
	}
}

func TestAssemble_CaptionsInAwkwardDirectory(t *testing.T) {
	skipIfNoFFmpeg(t)
	skipIfNoSubtitles(t)

	tmpDir := t.TempDir()
	p := newTestProcessor()

	src := filepath.Join(tmpDir, "src.mp4")
	clip := filepath.Join(tmpDir, "scene_000.mp4")
	createTestVideo(t, src, 2.0, "blue")
	if _, err := p.NormalizeScene(context.Background(), src, clip, 1.5); err != nil {
		t.Fatalf("normalize scene: %v", err)
	}

	narration := filepath.Join(tmpDir, "narration.wav")
	createTestAudio(t, narration, 1.5)

	// Both filter-graph and option-level separators in the path.
	subDir := filepath.Join(tmpDir, "cap:tions 'dir', [x]")
	if err := os.MkdirAll(subDir, 0o750); err != nil {
		t.Fatal(err)
	}
	srt := filepath.Join(subDir, "captions.srt")
	content := "1\n00:00:00,000 --> 00:00:01,200\nHello, world\n"
	if err := os.WriteFile(srt, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, style := range []string{captions.StyleLineBox, captions.StyleWordBox} {
		t.Run(style, func(t *testing.T) {
			res, err := p.Assemble(context.Background(), AssemblyInput{
				Clips:          []string{clip},
				ConcatListPath: filepath.Join(tmpDir, "concat_"+style+".txt"),
				NarrationPath:  narration,
				MusicVolume:    audio.DefaultMusicVolume,
				CaptionsPath:   srt,
				CaptionStyle:   style,
				OutputPath:     filepath.Join(tmpDir, "output_"+style+".mp4"),
			})
			if err != nil {
				t.Fatalf("Assemble() error = %v", err)
			}
			if !res.Captioned {
				t.Error("expected Captioned = true")
			}
			if res.FileSize <= MinOutputBytes {
				t.Errorf("FileSize = %d, want > %d", res.FileSize, MinOutputBytes)
			}
		})
	}
}

func TestAssemble_NoClips(t *testing.T) {
	_, err := newTestProcessor().Assemble(context.Background(), AssemblyInput{})
	if !errors.Is(err, ErrNoClips) {
		t.Errorf("expected ErrNoClips, got %v", err)
	}
}

func TestValidateOutput(t *testing.T) {
	tmpDir := t.TempDir()
	p := newTestProcessor()

	t.Run("missing file", func(t *testing.T) {
		_, _, err := p.ValidateOutput(context.Background(), filepath.Join(tmpDir, "nope.mp4"))
		if !errors.Is(err, ErrOutputInvalid) {
			t.Errorf("expected ErrOutputInvalid, got %v", err)
		}
	})

	t.Run("undersized file", func(t *testing.T) {
		small := filepath.Join(tmpDir, "small.mp4")
		if err := os.WriteFile(small, make([]byte, MinOutputBytes), 0o600); err != nil {
			t.Fatal(err)
		}
		size, _, err := p.ValidateOutput(context.Background(), small)
		if !errors.Is(err, ErrOutputInvalid) {
			t.Errorf("expected ErrOutputInvalid, got %v", err)
		}
		if size != MinOutputBytes {
			t.Errorf("size = %d, want %d", size, MinOutputBytes)
		}
	})
}
