package artifacts

import (
	"sort"
	"sync"
)

// PublishedComponent is a component version available to deployments.
type PublishedComponent struct {
	Name    string
	Version string
	// Recipe is the rendered recipe as registered.
	Recipe     []byte
	ObjectKeys []string
	// Prefix is <bucket>/<name>/<version>/.
	Prefix string
	// ARN is empty when the version was registered by an earlier run.
	ARN string
}

// Registry records published component versions. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	components map[string]map[string]*PublishedComponent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]map[string]*PublishedComponent)}
}

// Record stores pc, replacing an earlier record of the same version.
func (r *Registry) Record(pc *PublishedComponent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	versions, ok := r.components[pc.Name]
	if !ok {
		versions = make(map[string]*PublishedComponent)
		r.components[pc.Name] = versions
	}
	versions[pc.Version] = pc
}

// Lookup returns the published version, if any.
func (r *Registry) Lookup(name, version string) (*PublishedComponent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.components[name][version]
	return pc, ok
}

// Has reports whether name@version was published.
func (r *Registry) Has(name, version string) bool {
	_, ok := r.Lookup(name, version)
	return ok
}

// List returns every published component sorted by name and version.
func (r *Registry) List() []*PublishedComponent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*PublishedComponent
	for _, versions := range r.components {
		for _, pc := range versions {
			out = append(out, pc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Version < out[j].Version
	})
	return out
}
