// Package models holds the on-disk data model for streaming profiles:
// profiles, scenes, output groups, and stream targets.
package models

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/google/uuid"
)

// NamePattern is the allowed character class for a profile name.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,100}$`)

// LegacyInput is the single-input specification carried by profiles created
// before multi-source capture existed.
type LegacyInput struct {
	BindAddress string `json:"bindAddress"`
	Port        int    `json:"port"`
	Application string `json:"application"`
}

// Source is a modern capture input. The engine treats its resolved URL as
// opaque; only RTMP sources are interpreted for conflict detection.
type Source struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"` // "rtmp", "file", "device", ...
	BindAddress string `json:"bindAddress,omitempty"`
	Port        int    `json:"port,omitempty"`
	Application string `json:"application,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Profile is a name-addressed, versioned streaming configuration.
type Profile struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	LegacyInput   *LegacyInput    `json:"legacyInput,omitempty"`
	Sources       []Source        `json:"sources,omitempty"`
	Scenes        []Scene         `json:"scenes,omitempty"`
	ActiveSceneID *string         `json:"activeSceneId,omitempty"`
	OutputGroups  []OutputGroup   `json:"outputGroups,omitempty"`
	Settings      json.RawMessage `json:"settings,omitempty"`
}

// NewProfile constructs a profile with a fresh id.
func NewProfile(name string) *Profile {
	return &Profile{ID: uuid.NewString(), Name: name}
}

// MigrateLegacyInput converts a legacy single-input specification into one
// modern RTMP source plus one default fullscreen scene, per the one-shot
// migration the repository performs on load. It is a no-op if the profile
// already has sources, or has no legacy input.
//
// Audio-capture settings are not carried over; LegacyInput does not model
// them.
func (p *Profile) MigrateLegacyInput() {
	if p.LegacyInput == nil || len(p.Sources) > 0 {
		return
	}
	source := Source{
		ID:          uuid.NewString(),
		Kind:        "rtmp",
		BindAddress: p.LegacyInput.BindAddress,
		Port:        p.LegacyInput.Port,
		Application: p.LegacyInput.Application,
	}
	scene := Scene{
		ID:           uuid.NewString(),
		Name:         "Scene",
		CanvasWidth:  1920,
		CanvasHeight: 1080,
		Layers: []SourceLayer{{
			ID:       uuid.NewString(),
			SourceID: source.ID,
			Visible:  true,
			Transform: Transform{
				Width:  1920,
				Height: 1080,
			},
		}},
	}
	p.Sources = []Source{source}
	p.Scenes = append(p.Scenes, scene)
	if p.ActiveSceneID == nil {
		p.ActiveSceneID = &scene.ID
	}
}

// IngestURL returns the RTMP ingest URL a capture client should publish to,
// derived from whichever of legacy-input/sources the invariant in §3
// designates as authoritative (exactly one is consulted).
func (p *Profile) IngestURL() (string, bool) {
	for _, s := range p.Sources {
		if s.Kind == "rtmp" {
			return "rtmp://" + s.BindAddress + ":" + strconv.Itoa(s.Port) + "/" + s.Application, true
		}
	}
	if p.LegacyInput != nil {
		li := p.LegacyInput
		return "rtmp://" + li.BindAddress + ":" + strconv.Itoa(li.Port) + "/" + li.Application, true
	}
	return "", false
}

// RTMPInput extracts the bind address/port pair used for conflict detection,
// reporting ok=false when the profile has no RTMP-carrying input.
func (p *Profile) RTMPInput() (bindAddress string, port int, ok bool) {
	for _, s := range p.Sources {
		if s.Kind == "rtmp" {
			return s.BindAddress, s.Port, true
		}
	}
	if p.LegacyInput != nil {
		return p.LegacyInput.BindAddress, p.LegacyInput.Port, true
	}
	return "", 0, false
}
