package encoder

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveBinaryPrefersEnvOverride(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "my-ffmpeg")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}
	t.Setenv(ffmpegPathEnv, fake)

	got, err := ResolveBinary(t.TempDir())
	if err != nil {
		t.Fatalf("ResolveBinary: %v", err)
	}
	if got != fake {
		t.Fatalf("ResolveBinary = %q, want %q", got, fake)
	}
}

func TestResolveBinaryFallsBackToAppDataDir(t *testing.T) {
	t.Setenv(ffmpegPathEnv, "")
	appData := t.TempDir()
	ffmpegDir := filepath.Join(appData, "ffmpeg")
	if err := os.MkdirAll(ffmpegDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(ffmpegDir, "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fake binary: %v", err)
	}

	got, err := ResolveBinary(appData)
	if err != nil {
		t.Fatalf("ResolveBinary: %v", err)
	}
	if got != path {
		t.Fatalf("ResolveBinary = %q, want %q", got, path)
	}
}
