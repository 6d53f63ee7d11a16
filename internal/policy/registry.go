package policy

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// File is the layout of a policy YAML file.
//
//	profiles:
//	  - key: justino
//	    overlap_minutes: 150
//	    ...
//	establishments:
//	  12: justino
//	  20: highline
type File struct {
	Profiles       []Profile        `yaml:"profiles"`
	Establishments map[int64]string `yaml:"establishments"`
}

// Registry resolves establishments to profiles through their explicit
// profile key. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
	bindings map[int64]string
}

// NewRegistry builds a registry from the given profiles. Tunables left unset
// receive their defaults. Invalid profiles are rejected.
func NewRegistry(profiles ...Profile) (*Registry, error) {
	r := &Registry{
		profiles: make(map[string]Profile, len(profiles)),
		bindings: map[int64]string{},
	}
	for _, p := range profiles {
		if err := r.Put(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewBuiltinRegistry returns a registry holding the built-in profiles.
func NewBuiltinRegistry() *Registry {
	r, err := NewRegistry(Builtin()...)
	if err != nil {
		// built-in profiles are static; failing here is a programming error
		panic(err)
	}
	return r
}

// Put adds or replaces a profile.
func (r *Registry) Put(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.Key] = p.withDefaults()
	return nil
}

// Bind attaches an establishment id to a profile key.
func (r *Registry) Bind(establishmentID int64, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[key]; !ok {
		return fmt.Errorf("establishment %d: unknown policy profile %q", establishmentID, key)
	}
	r.bindings[establishmentID] = key
	return nil
}

// BindEstablishment binds e by its ProfileKey; an empty key selects the
// default profile.
func (r *Registry) BindEstablishment(e model.Establishment) error {
	key := e.ProfileKey
	if key == "" {
		key = KeyDefault
	}
	return r.Bind(e.ID, key)
}

// Profile returns the profile stored under key.
func (r *Registry) Profile(key string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[key]
	return p, ok
}

// ForEstablishment returns the profile bound to the establishment, or the
// default profile when the establishment is unknown.
func (r *Registry) ForEstablishment(id int64) Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key, ok := r.bindings[id]; ok {
		if p, ok := r.profiles[key]; ok {
			return p
		}
	}
	if p, ok := r.profiles[KeyDefault]; ok {
		return p
	}
	return Profile{Key: KeyDefault}.withDefaults()
}

// Establishments returns the ids bound so far.
func (r *Registry) Establishments() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.bindings))
	for id := range r.bindings {
		out = append(out, id)
	}
	return out
}

// Apply overlays a parsed policy file: profiles with an existing key replace
// it, new keys are added, then establishment bindings are applied.
func (r *Registry) Apply(f File) error {
	for _, p := range f.Profiles {
		if err := r.Put(p); err != nil {
			return err
		}
	}
	for id, key := range f.Establishments {
		if err := r.Bind(id, key); err != nil {
			return err
		}
	}
	return nil
}

// ParseFile decodes a policy YAML document.
func ParseFile(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("policy file: %w", err)
	}
	return f, nil
}

// LoadFile reads path and applies it to the registry. An empty path is a
// no-op so the built-ins stay in effect.
func (r *Registry) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return err
	}
	return r.Apply(f)
}
