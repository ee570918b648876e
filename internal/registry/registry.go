// Package registry loads and validates channel manifests: the declarative
// description of what a channel needs, how sessions scope for it, and what
// security posture it starts with.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// SessionScope enumerates how a channel's sessions key against users.
type SessionScope string

const (
	ScopeUser             SessionScope = "user"
	ScopeUserConversation SessionScope = "user_conversation"
)

// ConfigField describes one entry of a manifest's required_config_fields.
type ConfigField struct {
	Name    string   `json:"name"`
	Secret  bool     `json:"secret,omitempty"`
	Regex   string   `json:"regex,omitempty"`
	Options []string `json:"options,omitempty"`
}

// SecurityDefaults seeds a channel's policy.Policy at registration time.
type SecurityDefaults struct {
	Mode               string   `json:"mode"`
	AllowExecute        bool     `json:"allowExecute"`
	AllowedCommands     []string `json:"allowedCommands"`
	RateLimitPerMinute  int      `json:"rateLimitPerMinute"`
	RetentionDays       int      `json:"retentionDays"`
	RequireSignature    bool     `json:"requireSignature"`
}

// SetupStep is one human-facing instruction rendered during channel setup.
type SetupStep struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Manifest is the declarative description of a channel.
type Manifest struct {
	ID                   string            `json:"id"`
	Display              string            `json:"display"`
	SessionScope         SessionScope      `json:"sessionScope"`
	Capabilities         []string          `json:"capabilities"`
	WebhookPaths         []string          `json:"webhookPaths"`
	RequiredConfigFields []ConfigField     `json:"requiredConfigFields"`
	SecurityDefaults     SecurityDefaults  `json:"securityDefaults"`
	SetupSteps           []SetupStep       `json:"setupSteps"`
}

// Registry holds every loaded manifest, keyed by channel id.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]Manifest
	dir       string
}

// New builds an empty Registry backed by dir for Reload.
func New(dir string) *Registry {
	return &Registry{manifests: map[string]Manifest{}, dir: dir}
}

// Register adds or replaces a manifest in-process, bypassing disk — the
// path tests use.
func (r *Registry) Register(m Manifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests[m.ID] = m
}

// Load reads every *_manifest.json file under the registry's directory.
func (r *Registry) Load() error {
	if r.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read dir %s: %w", r.dir, err)
	}

	loaded := map[string]Manifest{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), "_manifest.json") {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("registry: read %s: %w", path, err)
		}
		var m Manifest
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("registry: parse %s: %w", path, err)
		}
		if m.ID == "" {
			return fmt.Errorf("registry: %s missing id", path)
		}
		loaded[m.ID] = m
	}

	r.mu.Lock()
	r.manifests = loaded
	r.mu.Unlock()
	return nil
}

// Reload re-reads every manifest file from disk, replacing in-process
// registrations made before the call.
func (r *Registry) Reload() error {
	return r.Load()
}

// GetManifest returns the manifest for a channel id.
func (r *Registry) GetManifest(id string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[id]
	return m, ok
}

// ListManifests returns every registered manifest.
func (r *Registry) ListManifests() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	return out
}

// ValidateConfig checks cfg against the manifest's required_config_fields:
// required presence, regex match, and option-set membership.
func ValidateConfig(m Manifest, cfg map[string]string) (bool, error) {
	for _, field := range m.RequiredConfigFields {
		val, present := cfg[field.Name]
		if !present || val == "" {
			return false, fmt.Errorf("registry: missing required field %q", field.Name)
		}
		if field.Regex != "" {
			re, err := regexp.Compile(field.Regex)
			if err != nil {
				return false, fmt.Errorf("registry: invalid regex for field %q: %w", field.Name, err)
			}
			if !re.MatchString(val) {
				return false, fmt.Errorf("registry: field %q does not match required pattern", field.Name)
			}
		}
		if len(field.Options) > 0 && !contains(field.Options, val) {
			return false, fmt.Errorf("registry: field %q must be one of %v", field.Name, field.Options)
		}
	}
	return true, nil
}

// ValidateConfig validates cfg against the manifest registered for id.
func (r *Registry) ValidateConfig(id string, cfg map[string]string) (bool, error) {
	m, ok := r.GetManifest(id)
	if !ok {
		return false, fmt.Errorf("registry: unknown channel %q", id)
	}
	return ValidateConfig(m, cfg)
}

func contains(options []string, val string) bool {
	for _, o := range options {
		if o == val {
			return true
		}
	}
	return false
}
