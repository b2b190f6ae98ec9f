package encoder

import (
	"strings"
	"testing"

	"github.com/ScopeCreep-zip/spiritstream/internal/models"
	"github.com/ScopeCreep-zip/spiritstream/internal/platform"
)

func loadRegistry(t *testing.T) *platform.Registry {
	t.Helper()
	reg, err := platform.Load()
	if err != nil {
		t.Fatalf("platform.Load: %v", err)
	}
	return reg
}

func passthroughGroup() models.OutputGroup {
	return models.OutputGroup{
		ID:        "G",
		Video:     models.VideoSettings{Codec: "copy", Bitrate: "0k"},
		Audio:     models.AudioSettings{Codec: "copy", Bitrate: "0k"},
		Container: models.ContainerSettings{Format: "flv"},
		StreamTargets: []models.StreamTarget{
			{ID: "T1", Platform: "twitch", BaseURL: "rtmp://live.twitch.tv/app", StreamKey: "sk_123"},
		},
	}
}

func TestBuildArgsPassthrough(t *testing.T) {
	reg := loadRegistry(t)
	args, err := BuildArgs(passthroughGroup(), "rtmp://0.0.0.0/live/stream", reg, nil, "pipe:3")
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-c:v copy -c:a copy") {
		t.Fatalf("expected passthrough codec flags, got %q", joined)
	}
	if !strings.Contains(joined, "rtmp://live.twitch.tv/app/sk_123") {
		t.Fatalf("expected composed tee sink, got %q", joined)
	}
	if !strings.Contains(joined, "-progress pipe:3") {
		t.Fatalf("expected progress pipe flag, got %q", joined)
	}
}

func TestBuildArgsTranscode(t *testing.T) {
	reg := loadRegistry(t)
	group := passthroughGroup()
	group.Video = models.VideoSettings{Codec: "libx264", Width: 1920, Height: 1080, FPS: 60, Bitrate: "6000k"}
	group.Audio = models.AudioSettings{Codec: "aac", Bitrate: "160k", Channels: 2, SampleRate: 48000}

	args, err := BuildArgs(group, "rtmp://0.0.0.0/live/stream", reg, nil, "")
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-b:v 6000k") {
		t.Fatalf("expected video bitrate flag, got %q", joined)
	}
	if !strings.Contains(joined, "-b:a 160k") {
		t.Fatalf("expected audio bitrate flag, got %q", joined)
	}
	if !strings.Contains(joined, "-s 1920x1080") {
		t.Fatalf("expected resolution flag, got %q", joined)
	}
	if strings.Contains(joined, "-progress") {
		t.Fatalf("expected no progress flag when progressPipe is empty, got %q", joined)
	}
}

func TestBuildArgsOmitsDisabledTargets(t *testing.T) {
	reg := loadRegistry(t)
	group := passthroughGroup()
	group.StreamTargets = append(group.StreamTargets, models.StreamTarget{
		ID: "T2", Platform: "kick", BaseURL: "rtmps://fa723fc1b171.global-contribute.live-video.net/app", StreamKey: "sk_456",
	})

	args, err := BuildArgs(group, "rtmp://0.0.0.0/live/stream", reg, map[string]bool{"T2": true}, "")
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "sk_456") {
		t.Fatalf("expected disabled target to be omitted, got %q", joined)
	}
	if !strings.Contains(joined, "sk_123") {
		t.Fatalf("expected enabled target to remain, got %q", joined)
	}
}

func TestBuildArgsFailsWithNoEnabledTargets(t *testing.T) {
	reg := loadRegistry(t)
	group := passthroughGroup()
	_, err := BuildArgs(group, "rtmp://0.0.0.0/live/stream", reg, map[string]bool{"T1": true}, "")
	if err == nil {
		t.Fatal("expected error when every target is disabled")
	}
}
