// Package platform is a data-driven table of streaming services: it
// normalizes endpoint URLs, composes ingest URLs from a base and a secret,
// and redacts secrets from URLs before they are logged.
package platform

import (
	_ "embed"
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ScopeCreep-zip/spiritstream/internal/corebus"
)

//go:embed data.json
var embeddedTable []byte

// Placement is the discipline by which a stream key is folded into a
// platform's base URL.
type Placement string

const (
	PlacementAppend        Placement = "append"
	PlacementInURLTemplate Placement = "in_url_template"
	templateToken                    = "{stream_key}"
)

// Entry is one immutable registry row.
type Entry struct {
	Tag            string
	DisplayName    string
	DefaultURL     string
	Placement      Placement
	DefaultAppPath string // first non-empty path segment of DefaultURL, if any
	KeyPosition    int    // path-segment ordinal (1-based) the key occupies in append mode
}

type rawService struct {
	Name               string `json:"name" yaml:"name"`
	DisplayName        string `json:"displayName" yaml:"displayName"`
	DefaultURL         string `json:"defaultUrl" yaml:"defaultUrl"`
	StreamKeyPlacement string `json:"streamKeyPlacement" yaml:"streamKeyPlacement"`
}

// Registry is the loaded, read-only table of platforms.
type Registry struct {
	entries map[string]Entry
}

// Load parses the embedded JSON table, keeping only rows whose default URL
// is rtmp(s):// and whose placement is append or in_url_template.
func Load() (*Registry, error) {
	return LoadFrom(embeddedTable)
}

// LoadFrom parses an arbitrary JSON table in the same shape as the embedded
// one — used by tests that want a custom fixture.
func LoadFrom(data []byte) (*Registry, error) {
	var doc struct {
		Services []rawService `json:"services"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, corebus.New("platform.Load", corebus.KindIO, err)
	}
	return buildRegistry(doc.Services), nil
}

// LoadYAML parses a human-editable YAML table in the same shape as the
// embedded JSON one. Test fixtures use this form since a handful of
// platform rows read more easily as YAML than as JSON.
func LoadYAML(data []byte) (*Registry, error) {
	var doc struct {
		Services []rawService `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, corebus.New("platform.LoadYAML", corebus.KindIO, err)
	}
	return buildRegistry(doc.Services), nil
}

func buildRegistry(services []rawService) *Registry {
	entries := make(map[string]Entry, len(services))
	for _, svc := range services {
		if !strings.HasPrefix(svc.DefaultURL, "rtmp://") && !strings.HasPrefix(svc.DefaultURL, "rtmps://") {
			continue
		}
		var placement Placement
		switch svc.StreamKeyPlacement {
		case string(PlacementAppend):
			placement = PlacementAppend
		case string(PlacementInURLTemplate):
			placement = PlacementInURLTemplate
		default:
			continue
		}

		appPath, keyPosition := extractAppPath(svc.DefaultURL)
		name := svc.DisplayName
		if name == "" {
			name = svc.Name
		}
		entries[svc.Name] = Entry{
			Tag:            svc.Name,
			DisplayName:    name,
			DefaultURL:     svc.DefaultURL,
			Placement:      placement,
			DefaultAppPath: appPath,
			KeyPosition:    keyPosition,
		}
	}
	return &Registry{entries: entries}
}

// extractAppPath pulls the first path segment off url as the default
// application path, and derives the path-segment position the stream key
// will occupy once appended.
func extractAppPath(url string) (string, int) {
	_, rest, ok := strings.Cut(url, "://")
	if !ok {
		return "", 1
	}
	_, path, ok := strings.Cut(rest, "/")
	if !ok {
		return "", 1
	}
	segments := splitSegments(path)
	if len(segments) == 0 {
		return "", 1
	}
	return segments[0], len(segments) + 1
}

func splitSegments(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Get returns the entry for tag, if known.
func (r *Registry) Get(tag string) (Entry, bool) {
	e, ok := r.entries[tag]
	return e, ok
}

// Tags returns every known platform tag, order unspecified.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.entries))
	for t := range r.entries {
		tags = append(tags, t)
	}
	return tags
}

// Normalize ensures userURL carries the platform's default application path
// as its first segment, for append-placement platforms that declare one.
// In-url-template platforms are returned unchanged.
func (r *Registry) Normalize(tag, userURL string) string {
	entry, ok := r.entries[tag]
	if !ok || entry.Placement != PlacementAppend || entry.DefaultAppPath == "" {
		return userURL
	}
	return normalizeAppend(userURL, entry.DefaultAppPath)
}

func normalizeAppend(url, appPath string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url + "/" + appPath
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok {
		return scheme + "://" + rest + "/" + appPath
	}
	if path == "" {
		return scheme + "://" + host + "/" + appPath
	}
	if first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/"); first == appPath {
		return url
	}
	return scheme + "://" + host + "/" + appPath + "/" + strings.TrimPrefix(path, "/")
}

// Compose builds the ingest URL for tag from baseURL and key. Unknown tags
// fall back to append semantics.
func (r *Registry) Compose(tag, baseURL, key string) string {
	entry, ok := r.entries[tag]
	if !ok || entry.Placement == PlacementAppend {
		return composeAppend(baseURL, key)
	}
	return strings.ReplaceAll(baseURL, templateToken, key)
}

func composeAppend(baseURL, key string) string {
	return strings.TrimRight(baseURL, "/") + "/" + key
}

// Redact replaces the secret region of url with "***" for log-safe display.
func (r *Registry) Redact(tag, url string) string {
	entry, ok := r.entries[tag]
	if !ok {
		return GenericRedact(url)
	}
	switch entry.Placement {
	case PlacementInURLTemplate:
		return redactTemplate(entry.DefaultURL, url)
	default:
		return redactAppend(url, entry.KeyPosition)
	}
}

func redactTemplate(template, url string) string {
	idx := strings.Index(template, templateToken)
	if idx < 0 {
		return GenericRedact(url)
	}
	before, after := template[:idx], template[idx+len(templateToken):]
	if !strings.HasPrefix(url, before) {
		return GenericRedact(url)
	}
	rest := url[len(before):]
	if after == "" {
		return before + "***"
	}
	keyEnd := strings.Index(rest, after)
	if keyEnd < 0 {
		return GenericRedact(url)
	}
	return before + "***" + rest[keyEnd:]
}

func redactAppend(url string, keyPosition int) string {
	if keyPosition <= 0 {
		return url
	}
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok {
		return url
	}
	segments := splitSegments(path)
	if len(segments) < keyPosition {
		return url
	}
	safe := segments[:keyPosition-1]
	return scheme + "://" + host + "/" + strings.Join(safe, "/") + "/***"
}

// GenericRedact is the fallback redaction rule for unknown platforms:
// replace the last path segment with "***".
func GenericRedact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	host, path, ok := strings.Cut(rest, "/")
	if !ok {
		return url
	}
	segments := splitSegments(path)
	if len(segments) < 2 {
		return url
	}
	safe := segments[:len(segments)-1]
	return scheme + "://" + host + "/" + strings.Join(safe, "/") + "/***"
}
