package models

import (
	"fmt"
	"strconv"
	"strings"
)

// VideoSettings controls the encoder's video track. Numeric fields are
// ignored in passthrough mode (Codec == "copy").
type VideoSettings struct {
	Codec                  string  `json:"codec"`
	Width                  int     `json:"width,omitempty"`
	Height                 int     `json:"height,omitempty"`
	FPS                    int     `json:"fps,omitempty"`
	Bitrate                string  `json:"bitrate"`
	Preset                 *string `json:"preset,omitempty"`
	Profile                *string `json:"profile,omitempty"`
	KeyframeIntervalSecond *int    `json:"keyframeIntervalSeconds,omitempty"`
}

// Resolution renders WIDTHxHEIGHT for the encoder's -s flag.
func (v VideoSettings) Resolution() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// AudioSettings controls the encoder's audio track.
type AudioSettings struct {
	Codec      string `json:"codec"`
	Bitrate    string `json:"bitrate"`
	Channels   int    `json:"channels,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// ContainerSettings controls the muxer. RTMP targets always use "flv".
type ContainerSettings struct {
	Format string `json:"format"`
}

// OutputGroup is one encoder invocation fanned out to its stream targets.
type OutputGroup struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	IsDefault     bool              `json:"isDefault,omitempty"`
	GeneratePTS   bool              `json:"generatePts"`
	Video         VideoSettings     `json:"video"`
	Audio         AudioSettings     `json:"audio"`
	Container     ContainerSettings `json:"container"`
	StreamTargets []StreamTarget    `json:"streamTargets"`
}

// Passthrough reports whether both tracks are set to "copy", in which case
// numeric encoder fields are ignored entirely.
func (g OutputGroup) Passthrough() bool {
	return strings.EqualFold(g.Video.Codec, "copy") && strings.EqualFold(g.Audio.Codec, "copy")
}

// Validate enforces the OutputGroup invariant: in passthrough mode numeric
// fields are unconstrained; otherwise they must be positive and bitrates
// must parse.
func (g OutputGroup) Validate() error {
	if g.Passthrough() {
		return nil
	}
	if g.Video.Width <= 0 || g.Video.Height <= 0 || g.Video.FPS <= 0 {
		return fmt.Errorf("video width/height/fps must be positive in transcode mode")
	}
	if _, err := ParseBitrateKbps(g.Video.Bitrate); err != nil {
		return fmt.Errorf("video bitrate: %w", err)
	}
	if _, err := ParseBitrateKbps(g.Audio.Bitrate); err != nil {
		return fmt.Errorf("audio bitrate: %w", err)
	}
	return nil
}

// ParseBitrateKbps parses a bitrate string expressed with a k/M suffix
// (e.g. "6000k", "8M") into kilobits per second.
func ParseBitrateKbps(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty bitrate")
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "m"):
		n, err := strconv.Atoi(strings.TrimSuffix(lower, "m"))
		if err != nil {
			return 0, fmt.Errorf("invalid bitrate %q: %w", s, err)
		}
		return n * 1000, nil
	case strings.HasSuffix(lower, "k"):
		n, err := strconv.Atoi(strings.TrimSuffix(lower, "k"))
		if err != nil {
			return 0, fmt.Errorf("invalid bitrate %q: %w", s, err)
		}
		return n, nil
	default:
		n, err := strconv.Atoi(lower)
		if err != nil {
			return 0, fmt.Errorf("invalid bitrate %q: %w", s, err)
		}
		return n, nil
	}
}
