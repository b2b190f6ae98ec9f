// Package progress turns FFmpeg progress telemetry — legacy stderr status
// lines and structured "-progress" key=value lines — into typed
// samples.
package progress

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ScopeCreep-zip/spiritstream/internal/models"
)

// tokenPattern matches key=value pairs. FFmpeg's legacy stderr format pads
// fields with spaces after the '=' for column alignment ("frame=  120"), so
// the value is everything up to the next whitespace run rather than
// assumed adjacent to the key.
var tokenPattern = regexp.MustCompile(`([A-Za-z_]+)=\s*(\S+)`)

// ParseLine mutates sample with every recognized token found in line and
// reports whether at least one field was updated. It is pure and stateful
// only through sample.
func ParseLine(line string, sample *models.ProgressSample) bool {
	matches := tokenPattern.FindAllStringSubmatch(line, -1)
	updated := false

	for _, m := range matches {
		key, value := m[1], m[2]
		if value == "N/A" {
			continue
		}
		switch key {
		case "frame":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				sample.Frame = n
				updated = true
			}
		case "fps":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				sample.FPS = f
				updated = true
			}
		case "bitrate":
			if kbps, ok := parseBitrate(value); ok {
				sample.BitrateKbps = kbps
				updated = true
			}
		case "speed":
			if f, ok := parseSpeed(value); ok {
				sample.Speed = f
				updated = true
			}
		case "size":
			if bytes, ok := parseSize(value); ok {
				sample.BytesOut = bytes
				updated = true
			}
		case "total_size":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				sample.BytesOut = n
				updated = true
			}
		case "time", "out_time":
			if secs, ok := parseClock(value); ok {
				sample.ElapsedSeconds = secs
				updated = true
			}
		case "out_time_ms":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				sample.ElapsedSeconds = float64(us) / 1_000_000
				updated = true
			}
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil {
				sample.ElapsedSeconds = float64(us) / 1_000_000
				updated = true
			}
		case "drop", "drop_frames":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				sample.Dropped = n
				updated = true
			}
		case "dup", "dup_frames":
			if n, err := strconv.ParseUint(value, 10, 64); err == nil {
				sample.Duplicate = n
				updated = true
			}
		}
	}

	if sample.BitrateKbps == 0 && sample.BytesOut > 0 && sample.ElapsedSeconds > 0 {
		sample.BitrateKbps = float64(sample.BytesOut) * 8 / 1000 / sample.ElapsedSeconds
	}

	return updated
}

func parseSpeed(value string) (float64, bool) {
	value = strings.TrimSuffix(value, "x")
	f, err := strconv.ParseFloat(value, 64)
	return f, err == nil
}

// bitrateUnits maps a unit suffix to a multiplier that converts the parsed
// number into kbps.
var bitrateUnits = []struct {
	suffix string
	factor float64
}{
	{"kbits/s", 1},
	{"kbit/s", 1},
	{"kb/s", 1},
	{"kbps", 1},
	{"Mbits/s", 1000},
	{"Mbit/s", 1000},
	{"Mb/s", 1000},
	{"Mbps", 1000},
	{"bits/s", 0.001},
}

func parseBitrate(value string) (float64, bool) {
	for _, u := range bitrateUnits {
		if strings.HasSuffix(value, u.suffix) {
			numeric := strings.TrimSuffix(value, u.suffix)
			f, err := strconv.ParseFloat(numeric, 64)
			if err != nil {
				return 0, false
			}
			return f * u.factor, true
		}
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// sizeUnits maps a unit suffix to a multiplier that converts the parsed
// number into bytes. Order matters: "KiB" must be checked before "B".
var sizeUnits = []struct {
	suffix string
	factor float64
}{
	{"KiB", 1024},
	{"MiB", 1024 * 1024},
	{"kB", 1000},
	{"MB", 1000 * 1000},
	{"B", 1},
}

func parseSize(value string) (uint64, bool) {
	for _, u := range sizeUnits {
		if strings.HasSuffix(value, u.suffix) {
			numeric := strings.TrimSuffix(value, u.suffix)
			f, err := strconv.ParseFloat(numeric, 64)
			if err != nil {
				return 0, false
			}
			return uint64(f * u.factor), true
		}
	}
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseClock parses an "HH:MM:SS.fff" timestamp into seconds.
func parseClock(value string) (float64, bool) {
	parts := strings.SplitN(value, ":", 3)
	if len(parts) != 3 {
		return 0, false
	}
	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, false
	}
	return hours*3600 + minutes*60 + seconds, true
}
