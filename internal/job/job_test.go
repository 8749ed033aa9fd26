package job

import (
	"testing"
	"time"
)

func testRequest() RenderRequest {
	vol := 0.1
	return RenderRequest{
		GenerationID: "gen-test",
		Scenes: []Scene{
			{VideoURL: "https://cdn.example.com/a.mp4", Duration: 3},
			{VideoURL: "https://cdn.example.com/b.mov", Duration: 2.5},
		},
		NarrationURL: "https://cdn.example.com/narration.mp3",
		MusicSegments: []MusicSegment{
			{MusicURL: "https://cdn.example.com/bed.mp3", StartTime: 0, Duration: 5, FadeIn: 1, FadeOut: 1},
		},
		MusicVolume: &vol,
		B2Path:      "renders/gen-test.mp4",
	}
}

func TestNew(t *testing.T) {
	job := New("gen-1", testRequest())

	if job.ID != "gen-1" {
		t.Errorf("expected ID gen-1, got %s", job.ID)
	}
	if job.Status != StatusValidating {
		t.Errorf("expected status %s, got %s", StatusValidating, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
	if !job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be zero")
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"VALIDATING to DOWNLOADING", StatusValidating, StatusDownloading, false},
		{"DOWNLOADING to PREPROCESSING", StatusDownloading, StatusPreprocessing, false},
		{"PREPROCESSING to ASSEMBLING", StatusPreprocessing, StatusAssembling, false},
		{"ASSEMBLING to UPLOADING", StatusAssembling, StatusUploading, false},
		{"UPLOADING to COMPLETE", StatusUploading, StatusComplete, false},
		{"VALIDATING to FAILED", StatusValidating, StatusFailed, false},
		{"DOWNLOADING to FAILED", StatusDownloading, StatusFailed, false},
		{"PREPROCESSING to FAILED", StatusPreprocessing, StatusFailed, false},
		{"ASSEMBLING to FAILED", StatusAssembling, StatusFailed, false},
		{"UPLOADING to FAILED", StatusUploading, StatusFailed, false},
		// Skipping stages
		{"VALIDATING to PREPROCESSING", StatusValidating, StatusPreprocessing, true},
		{"DOWNLOADING to ASSEMBLING", StatusDownloading, StatusAssembling, true},
		{"ASSEMBLING to COMPLETE", StatusAssembling, StatusComplete, true},
		// Going back
		{"ASSEMBLING to DOWNLOADING", StatusAssembling, StatusDownloading, true},
		// Terminal states
		{"COMPLETE to FAILED", StatusComplete, StatusFailed, true},
		{"COMPLETE to VALIDATING", StatusComplete, StatusValidating, true},
		{"FAILED to DOWNLOADING", StatusFailed, StatusDownloading, true},
		{"FAILED to COMPLETE", StatusFailed, StatusComplete, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := New("test", RenderRequest{})
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
			if tt.wantErr && job.Status != tt.from {
				t.Errorf("status changed on rejected transition: %s", job.Status)
			}
		})
	}
}

func TestJob_Complete(t *testing.T) {
	job := New("test", RenderRequest{})
	for _, s := range []Status{StatusDownloading, StatusPreprocessing, StatusAssembling, StatusUploading} {
		if err := job.TransitionTo(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}

	before := time.Now()
	if err := job.Complete("https://cdn.example.com/out.mp4", 5.5, 123456); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusComplete {
		t.Errorf("expected status %s, got %s", StatusComplete, job.Status)
	}
	if job.VideoURL != "https://cdn.example.com/out.mp4" {
		t.Errorf("unexpected VideoURL %s", job.VideoURL)
	}
	if job.Duration != 5.5 || job.FileSize != 123456 {
		t.Errorf("unexpected output %v/%d", job.Duration, job.FileSize)
	}
	if job.CompletedAt.Before(before) {
		t.Error("expected CompletedAt to be set")
	}
	if !job.IsTerminal() {
		t.Error("expected job to be terminal")
	}
}

func TestJob_Complete_FromWrongStage(t *testing.T) {
	job := New("test", RenderRequest{})
	if err := job.Complete("url", 1, 1); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.VideoURL != "" {
		t.Error("expected VideoURL to stay empty")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New("test", RenderRequest{})
	_ = job.TransitionTo(StatusDownloading)
	_ = job.TransitionTo(StatusPreprocessing)

	if err := job.Fail("scene 1: ffmpeg exited"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.FailedStage != StatusPreprocessing {
		t.Errorf("expected failed stage %s, got %s", StatusPreprocessing, job.FailedStage)
	}
	if job.Error != "scene 1: ffmpeg exited" {
		t.Errorf("unexpected error message %q", job.Error)
	}
	if err := job.Fail("again"); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition on second Fail, got %v", err)
	}
	if job.Error != "scene 1: ffmpeg exited" {
		t.Error("second Fail must not overwrite the error")
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusValidating, false},
		{StatusDownloading, false},
		{StatusPreprocessing, false},
		{StatusAssembling, false},
		{StatusUploading, false},
		{StatusComplete, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := New("test", RenderRequest{})
			job.Status = tt.status
			if job.IsTerminal() != tt.terminal {
				t.Errorf("expected IsTerminal=%v for %s", tt.terminal, tt.status)
			}
		})
	}
}

func TestJob_SetWorkspace(t *testing.T) {
	job := New("test", RenderRequest{})
	job.SetWorkspace("/tmp/renders/test-abc")
	if job.WorkspacePath != "/tmp/renders/test-abc" {
		t.Errorf("unexpected WorkspacePath %s", job.WorkspacePath)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("test", testRequest())
	_ = job.TransitionTo(StatusDownloading)

	clone := job.Clone()

	if clone.ID != job.ID || clone.Status != job.Status {
		t.Error("clone should carry ID and status")
	}

	clone.Request.Scenes[0].Duration = 99
	clone.Request.MusicSegments[0].FadeIn = 42
	*clone.Request.MusicVolume = 0.9

	if job.Request.Scenes[0].Duration != 3 {
		t.Error("modifying clone scenes should not affect original")
	}
	if job.Request.MusicSegments[0].FadeIn != 1 {
		t.Error("modifying clone music should not affect original")
	}
	if *job.Request.MusicVolume != 0.1 {
		t.Error("modifying clone volume should not affect original")
	}
}

func TestJob_ConcurrentAccess(t *testing.T) {
	job := New("test", RenderRequest{})
	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
			_ = job.IsTerminal()
			_ = job.Clone()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			job.SetWorkspace("/tmp/ws")
		}
		done <- true
	}()

	<-done
	<-done
}
