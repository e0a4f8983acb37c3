package score

import (
	"sort"
	"sync"

	"github.com/openclinical/klinscore/internal/domain"
)

// Registry holds the compiled scores currently being served. Lookups
// are concurrent; Replace swaps the whole set atomically so a reload
// never exposes a partial catalog.
type Registry struct {
	mu     sync.RWMutex
	scores map[string]*CompiledScore
}

func NewRegistry() *Registry {
	return &Registry{scores: make(map[string]*CompiledScore)}
}

// Register adds or replaces a single compiled score.
func (r *Registry) Register(cs *CompiledScore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scores[cs.Definition.ID] = cs
}

// Get returns the compiled score with the given ID.
func (r *Registry) Get(id string) (*CompiledScore, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.scores[id]
	return cs, ok
}

// List returns every registered definition, sorted by ID.
func (r *Registry) List() []*domain.ScoreDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*domain.ScoreDefinition, 0, len(r.scores))
	for _, cs := range r.scores {
		defs = append(defs, cs.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// BySpecialty returns the definitions for one specialty, sorted by ID.
func (r *Registry) BySpecialty(specialty string) []*domain.ScoreDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []*domain.ScoreDefinition
	for _, cs := range r.scores {
		if cs.Definition.Specialty == specialty {
			defs = append(defs, cs.Definition)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Specialties returns the distinct specialties present, sorted.
func (r *Registry) Specialties() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, cs := range r.scores {
		if s := cs.Definition.Specialty; s != "" {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Replace swaps the registry contents for a freshly loaded set.
func (r *Registry) Replace(scores []*CompiledScore) {
	next := make(map[string]*CompiledScore, len(scores))
	for _, cs := range scores {
		next[cs.Definition.ID] = cs
	}

	r.mu.Lock()
	r.scores = next
	r.mu.Unlock()
}

// Count returns the number of registered scores.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scores)
}
