package encoder

import (
	"fmt"
	"strings"

	"github.com/ScopeCreep-zip/spiritstream/internal/models"
	"github.com/ScopeCreep-zip/spiritstream/internal/platform"
)

// BuildArgs composes the argument vector for one output-group invocation:
// input flags, optional genpts, codec parameters, then a tee specification
// fanning the muxed output out to every enabled target. disabled holds
// target ids the user has toggled off at runtime; those are omitted from
// the tee entirely.
func BuildArgs(group models.OutputGroup, inputURL string, reg *platform.Registry, disabled map[string]bool, progressPipe string) ([]string, error) {
	args := []string{"-y", "-i", inputURL}

	if group.GeneratePTS {
		args = append(args, "-fflags", "+genpts")
	}

	if group.Passthrough() {
		args = append(args, "-c:v", "copy", "-c:a", "copy")
	} else {
		videoBitrate, err := models.ParseBitrateKbps(group.Video.Bitrate)
		if err != nil {
			return nil, fmt.Errorf("video bitrate: %w", err)
		}
		audioBitrate, err := models.ParseBitrateKbps(group.Audio.Bitrate)
		if err != nil {
			return nil, fmt.Errorf("audio bitrate: %w", err)
		}
		args = append(args,
			"-c:v", group.Video.Codec,
			"-s", group.Video.Resolution(),
			"-r", fmt.Sprintf("%d", group.Video.FPS),
			"-b:v", fmt.Sprintf("%dk", videoBitrate),
		)
		if group.Video.Preset != nil {
			args = append(args, "-preset", *group.Video.Preset)
		}
		if group.Video.Profile != nil {
			args = append(args, "-profile:v", *group.Video.Profile)
		}
		if group.Video.KeyframeIntervalSecond != nil {
			gop := fmt.Sprintf("%d", (*group.Video.KeyframeIntervalSecond)*group.Video.FPS)
			args = append(args, "-g", gop, "-keyint_min", gop)
		}
		args = append(args,
			"-c:a", group.Audio.Codec,
			"-b:a", fmt.Sprintf("%dk", audioBitrate),
		)
		if group.Audio.Channels > 0 {
			args = append(args, "-ac", fmt.Sprintf("%d", group.Audio.Channels))
		}
		if group.Audio.SampleRate > 0 {
			args = append(args, "-ar", fmt.Sprintf("%d", group.Audio.SampleRate))
		}
	}

	tee, err := teeSpec(group.StreamTargets, reg, disabled)
	if err != nil {
		return nil, err
	}

	args = append(args, "-f", "tee", tee)

	if progressPipe != "" {
		args = append(args, "-progress", progressPipe, "-nostats")
	}

	return args, nil
}

// teeSpec builds the `tee` muxer's |-delimited sink list:
// [f=flv:onfail=ignore]url1|[f=flv:onfail=ignore]url2|… — disabled targets
// are omitted entirely.
func teeSpec(targets []models.StreamTarget, reg *platform.Registry, disabled map[string]bool) (string, error) {
	sinks := make([]string, 0, len(targets))
	for _, t := range targets {
		if disabled[t.ID] {
			continue
		}
		url := reg.Compose(t.Platform, t.BaseURL, t.StreamKey)
		sinks = append(sinks, fmt.Sprintf("[f=flv:onfail=ignore]%s", url))
	}
	if len(sinks) == 0 {
		return "", fmt.Errorf("no enabled stream targets")
	}
	return strings.Join(sinks, "|"), nil
}
