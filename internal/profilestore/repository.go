// Package profilestore is the on-disk repository of streaming profiles:
// name-addressed files, optional whole-file password sealing, per-field
// stream-key sealing, and the ordering index used to render profile lists.
package profilestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
	"github.com/ScopeCreep-zip/spiritstream/internal/models"
	"github.com/ScopeCreep-zip/spiritstream/internal/profilecodec"
	"github.com/ScopeCreep-zip/spiritstream/internal/secretstore"
)

const (
	jsonExt      = ".json"
	sealedExt    = ".mgs"
	indexSubdir  = "indexes"
	orderIndexFn = "order_indexes.json"
	orderStep    = 10
)

// Summary is the projected view list-summaries returns: enough to render a
// profile picker without fully loading (or being able to decrypt) it.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Resolution  string   `json:"resolution"`
	BitrateKbps int      `json:"bitrateKbps"`
	Targets     int      `json:"targets"`
	Platforms   []string `json:"platforms"`
	Encrypted   bool     `json:"encrypted"`
}

// Repository is the profile store rooted at dir, backed by a machine-key
// secret store for per-field stream-key sealing.
type Repository struct {
	dir     string
	secrets *secretstore.Store
}

// New builds a Repository rooted at dir.
func New(dir string, secrets *secretstore.Store) *Repository {
	return &Repository{dir: dir, secrets: secrets}
}

func validateName(name string) error {
	if !models.NamePattern.MatchString(name) {
		return corebus.Newf("profilestore.validateName", corebus.KindInvalidArgument, "invalid profile name %q", name)
	}
	if strings.Contains(name, "/") || strings.Contains(name, `\`) || strings.Contains(name, "..") {
		return corebus.Newf("profilestore.validateName", corebus.KindInvalidArgument, "invalid profile name %q", name)
	}
	return nil
}

// normalizeTargetText applies Unicode NFC normalization to each stream
// target's free-text display name and platform tag, so two visually
// identical names entered under different Unicode decompositions compare
// equal everywhere the engine does an exact string match (summary
// rendering, for example).
func normalizeTargetText(profile *models.Profile) {
	for gi := range profile.OutputGroups {
		for ti := range profile.OutputGroups[gi].StreamTargets {
			t := &profile.OutputGroups[gi].StreamTargets[ti]
			t.Name = norm.NFC.String(t.Name)
			t.Platform = norm.NFC.String(t.Platform)
		}
	}
}

func (r *Repository) jsonPath(name string) string   { return filepath.Join(r.dir, name+jsonExt) }
func (r *Repository) sealedPath(name string) string { return filepath.Join(r.dir, name+sealedExt) }

// indexDir is the dedicated subdirectory for the order index, kept out of
// r.dir itself so ListNames never mistakes it for a profile file.
func (r *Repository) indexDir() string { return filepath.Join(r.dir, indexSubdir) }

func (r *Repository) orderIndexPath() string { return filepath.Join(r.indexDir(), orderIndexFn) }

// ListNames returns every profile name found in the directory, order
// unspecified.
func (r *Repository) ListNames() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, corebus.New("profilestore.ListNames", corebus.KindIO, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case jsonExt:
			names = append(names, strings.TrimSuffix(e.Name(), jsonExt))
		case sealedExt:
			names = append(names, strings.TrimSuffix(e.Name(), sealedExt))
		}
	}
	return names, nil
}

// IsSealed reports whether name has a sealed (.mgs) file on disk.
func (r *Repository) IsSealed(name string) bool {
	_, err := os.Stat(r.sealedPath(name))
	return err == nil
}

// Load reads and parses a profile. Sealed profiles require password. After
// parsing, any ENC::-prefixed stream key is opened via the secret store,
// and the legacy-input one-shot migration runs if applicable.
func (r *Repository) Load(name, password string) (*models.Profile, error) {
	const op = "profilestore.Load"
	if err := validateName(name); err != nil {
		return nil, err
	}

	var plaintext []byte
	if r.IsSealed(name) {
		if password == "" {
			return nil, corebus.Newf(op, corebus.KindAuthFailed, "password required for sealed profile %q", name)
		}
		raw, err := os.ReadFile(r.sealedPath(name))
		if err != nil {
			return nil, corebus.New(op, corebus.KindIO, err)
		}
		plaintext, err = profilecodec.OpenFile(raw, password)
		if err != nil {
			return nil, err
		}
	} else {
		raw, err := os.ReadFile(r.jsonPath(name))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, corebus.Newf(op, corebus.KindNotFound, "profile %q not found", name)
			}
			return nil, corebus.New(op, corebus.KindIO, err)
		}
		plaintext = raw
	}

	profile, err := profilecodec.Deserialize(plaintext)
	if err != nil {
		return nil, err
	}

	for gi := range profile.OutputGroups {
		for ti := range profile.OutputGroups[gi].StreamTargets {
			key := profile.OutputGroups[gi].StreamTargets[ti].StreamKey
			if secretstore.IsSealed(key) {
				opened, err := r.secrets.Open(key)
				if err != nil {
					return nil, err
				}
				profile.OutputGroups[gi].StreamTargets[ti].StreamKey = string(opened)
			}
		}
	}

	if profile.LegacyInput != nil && len(profile.Sources) == 0 {
		profile.MigrateLegacyInput()
	}

	return profile, nil
}

// Save validates the name, optionally seals stream keys with the machine
// key and/or the whole file with password, and writes atomically via
// temp-file-plus-rename. Writing a sealed file removes any sibling
// plaintext file, and vice versa.
func (r *Repository) Save(profile *models.Profile, password string, sealKeys bool) error {
	const op = "profilestore.Save"
	if err := validateName(profile.Name); err != nil {
		return err
	}
	for _, group := range profile.OutputGroups {
		if err := group.Validate(); err != nil {
			return corebus.Newf(op, corebus.KindInvalidArgument, "output group %q: %v", group.Name, err)
		}
	}

	normalizeTargetText(profile)

	if sealKeys {
		for gi := range profile.OutputGroups {
			for ti := range profile.OutputGroups[gi].StreamTargets {
				key := profile.OutputGroups[gi].StreamTargets[ti].StreamKey
				if key == "" || secretstore.IsSealed(key) {
					continue
				}
				sealed, err := r.secrets.Seal([]byte(key))
				if err != nil {
					return err
				}
				profile.OutputGroups[gi].StreamTargets[ti].StreamKey = sealed
			}
		}
	}

	plaintext, err := profilecodec.Serialize(profile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return corebus.New(op, corebus.KindIO, err)
	}

	if password != "" {
		sealed, err := profilecodec.SealFile(plaintext, password)
		if err != nil {
			return err
		}
		if err := atomicWrite(r.sealedPath(profile.Name), sealed); err != nil {
			return corebus.New(op, corebus.KindIO, err)
		}
		_ = os.Remove(r.jsonPath(profile.Name))
		return nil
	}

	if err := atomicWrite(r.jsonPath(profile.Name), plaintext); err != nil {
		return corebus.New(op, corebus.KindIO, err)
	}
	_ = os.Remove(r.sealedPath(profile.Name))
	return nil
}

// Delete removes both the plaintext and sealed forms of name, if present.
// Fails with not-found if neither exists.
func (r *Repository) Delete(name string) error {
	const op = "profilestore.Delete"
	if err := validateName(name); err != nil {
		return err
	}

	jsonErr := os.Remove(r.jsonPath(name))
	sealedErr := os.Remove(r.sealedPath(name))

	jsonMissing := jsonErr != nil && os.IsNotExist(jsonErr)
	sealedMissing := sealedErr != nil && os.IsNotExist(sealedErr)

	if jsonMissing && sealedMissing {
		return corebus.Newf(op, corebus.KindNotFound, "profile %q not found", name)
	}
	if jsonErr != nil && !jsonMissing {
		return corebus.New(op, corebus.KindIO, jsonErr)
	}
	if sealedErr != nil && !sealedMissing {
		return corebus.New(op, corebus.KindIO, sealedErr)
	}
	return nil
}

// ListSummaries loads (or, for sealed profiles, stubs) a Summary for every
// name in the directory, ordered per the order-index file with unindexed
// names appended.
func (r *Repository) ListSummaries() ([]Summary, error) {
	names, err := r.ListNames()
	if err != nil {
		return nil, err
	}

	summaries := make(map[string]Summary, len(names))
	for _, name := range names {
		if r.IsSealed(name) {
			summaries[name] = Summary{Name: name, Resolution: "?", BitrateKbps: 0, Targets: 0, Encrypted: true}
			continue
		}
		profile, err := r.Load(name, "")
		if err != nil {
			return nil, err
		}
		summaries[name] = summarize(profile)
	}

	index, err := r.ReadOrderIndex()
	if err != nil {
		return nil, err
	}

	ordered := make([]string, 0, len(names))
	for name := range index {
		if _, ok := summaries[name]; ok {
			ordered = append(ordered, name)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return index[ordered[i]] < index[ordered[j]] })

	seen := make(map[string]bool, len(ordered))
	for _, name := range ordered {
		seen[name] = true
	}
	var unindexed []string
	for name := range summaries {
		if !seen[name] {
			unindexed = append(unindexed, name)
		}
	}
	sort.Strings(unindexed)
	ordered = append(ordered, unindexed...)

	out := make([]Summary, 0, len(ordered))
	for _, name := range ordered {
		out = append(out, summaries[name])
	}
	return out, nil
}

func summarize(p *models.Profile) Summary {
	s := Summary{ID: p.ID, Name: p.Name}
	platformSet := make(map[string]bool)
	for _, g := range p.OutputGroups {
		if s.Resolution == "" && !g.Passthrough() {
			s.Resolution = g.Video.Resolution()
		}
		if s.BitrateKbps == 0 {
			if kbps, err := models.ParseBitrateKbps(g.Video.Bitrate); err == nil {
				s.BitrateKbps = kbps
			}
		}
		s.Targets += len(g.StreamTargets)
		for _, t := range g.StreamTargets {
			platformSet[t.Platform] = true
		}
	}
	if s.Resolution == "" {
		s.Resolution = "?"
	}
	for platform := range platformSet {
		s.Platforms = append(s.Platforms, platform)
	}
	sort.Strings(s.Platforms)
	return s
}

// ValidateInputConflict returns a conflict error if any profile other than
// profileID has an RTMP input whose port matches desiredPort and whose
// bind address either matches desiredBind, is 0.0.0.0, or desiredBind
// itself is 0.0.0.0. Profiles the loader cannot read (sealed, without a
// password) are skipped.
func (r *Repository) ValidateInputConflict(profileID, desiredBind string, desiredPort int) error {
	names, err := r.ListNames()
	if err != nil {
		return err
	}
	for _, name := range names {
		if r.IsSealed(name) {
			continue
		}
		profile, err := r.Load(name, "")
		if err != nil {
			continue
		}
		if profile.ID == profileID {
			continue
		}
		bind, port, ok := profile.RTMPInput()
		if !ok || port != desiredPort {
			continue
		}
		if bind == desiredBind || bind == "0.0.0.0" || desiredBind == "0.0.0.0" {
			return corebus.Newf("profilestore.ValidateInputConflict", corebus.KindConflict,
				"port %d conflicts with profile %q", desiredPort, profile.Name)
		}
	}
	return nil
}

// ReadOrderIndex returns the name-to-position map, or an empty map if the
// file does not yet exist.
func (r *Repository) ReadOrderIndex() (map[string]int, error) {
	data, err := os.ReadFile(r.orderIndexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, corebus.New("profilestore.ReadOrderIndex", corebus.KindIO, err)
	}
	var index map[string]int
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, corebus.New("profilestore.ReadOrderIndex", corebus.KindIO, err)
	}
	return index, nil
}

// WriteOrderIndex atomically replaces the order-index file.
func (r *Repository) WriteOrderIndex(index map[string]int) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return corebus.New("profilestore.WriteOrderIndex", corebus.KindIO, err)
	}
	if err := os.MkdirAll(r.indexDir(), 0o755); err != nil {
		return corebus.New("profilestore.WriteOrderIndex", corebus.KindIO, err)
	}
	if err := atomicWrite(r.orderIndexPath(), data); err != nil {
		return corebus.New("profilestore.WriteOrderIndex", corebus.KindIO, err)
	}
	return nil
}

// EnsureOrderIndexes adds a fresh multiple-of-10 position for any name on
// disk missing from the index, and drops entries for names no longer
// present.
func (r *Repository) EnsureOrderIndexes() error {
	names, err := r.ListNames()
	if err != nil {
		return err
	}
	index, err := r.ReadOrderIndex()
	if err != nil {
		return err
	}

	onDisk := make(map[string]bool, len(names))
	for _, n := range names {
		onDisk[n] = true
	}
	for name := range index {
		if !onDisk[name] {
			delete(index, name)
		}
	}

	maxPos := 0
	for _, pos := range index {
		if pos > maxPos {
			maxPos = pos
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := index[name]; ok {
			continue
		}
		maxPos += orderStep
		index[name] = maxPos
	}

	return r.WriteOrderIndex(index)
}

// RotateStreamKeys re-seals every ENC::-sealed stream key across every
// unsealed-form profile under a freshly generated machine key, via
// secretstore.Store.RotateKeys. Whole-file password-sealed profiles are
// skipped (their stream keys are inaccessible without the password) and
// counted separately; their absence from rotation never affects
// correctness since they are not in active use until opened explicitly.
func (r *Repository) RotateStreamKeys() (rotated, skipped int, err error) {
	const op = "profilestore.RotateStreamKeys"
	names, err := r.ListNames()
	if err != nil {
		return 0, 0, err
	}

	type location struct {
		name     string
		groupIdx int
		tgtIdx   int
	}
	var keys []string
	var locations []location
	profiles := make(map[string]*models.Profile, len(names))

	for _, name := range names {
		if r.IsSealed(name) {
			skipped++
			continue
		}
		raw, readErr := os.ReadFile(r.jsonPath(name))
		if readErr != nil {
			return 0, 0, corebus.New(op, corebus.KindIO, readErr)
		}
		profile, decErr := profilecodec.Deserialize(raw)
		if decErr != nil {
			return 0, 0, decErr
		}
		profiles[name] = profile

		for gi := range profile.OutputGroups {
			for ti := range profile.OutputGroups[gi].StreamTargets {
				key := profile.OutputGroups[gi].StreamTargets[ti].StreamKey
				if secretstore.IsSealed(key) {
					keys = append(keys, key)
					locations = append(locations, location{name: name, groupIdx: gi, tgtIdx: ti})
				}
			}
		}
	}

	if len(keys) == 0 {
		return 0, skipped, nil
	}

	resealed, rotErr := r.secrets.RotateKeys(keys)
	if rotErr != nil {
		return 0, skipped, rotErr
	}

	for i, loc := range locations {
		profiles[loc.name].OutputGroups[loc.groupIdx].StreamTargets[loc.tgtIdx].StreamKey = resealed[i]
	}

	for name, profile := range profiles {
		plaintext, serErr := profilecodec.Serialize(profile)
		if serErr != nil {
			return 0, skipped, serErr
		}
		if writeErr := atomicWrite(r.jsonPath(name), plaintext); writeErr != nil {
			return 0, skipped, corebus.New(op, corebus.KindIO, writeErr)
		}
	}

	return len(keys), skipped, nil
}

// atomicWrite writes data to path via a temp file in the same directory
// plus an atomic rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "profile-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("flush temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	success = true
	return nil
}
