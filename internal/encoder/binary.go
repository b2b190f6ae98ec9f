package encoder

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
)

const ffmpegPathEnv = "SPIRITSTREAM_FFMPEG_PATH"

// ResolveBinary finds the encoder executable, checked in order: the
// SPIRITSTREAM_FFMPEG_PATH environment variable, <appDataDir>/ffmpeg/ffmpeg
// (.exe on Windows), then the OS search path.
func ResolveBinary(appDataDir string) (string, error) {
	if p := os.Getenv(ffmpegPathEnv); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	name := "ffmpeg"
	if runtime.GOOS == "windows" {
		name = "ffmpeg.exe"
	}
	candidate := filepath.Join(appDataDir, "ffmpeg", name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}

	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", corebus.New("encoder.ResolveBinary", corebus.KindNotFound, err)
	}
	return resolved, nil
}
