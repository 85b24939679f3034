package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Entity is a single record held by the Static registry.
type Entity struct {
	ID          string
	DisplayName string
}

// Static is an in-memory Registry keyed by kind. It is safe for concurrent
// use and mainly serves tests and the demo host.
type Static struct {
	mu       sync.RWMutex
	entities map[string][]Entity
}

// NewStatic builds a Static registry from kind → entities.
func NewStatic(entities map[string][]Entity) *Static {
	copied := make(map[string][]Entity, len(entities))
	for kind, list := range entities {
		copied[kind] = append([]Entity(nil), list...)
	}
	return &Static{entities: copied}
}

// Lookup scores every entity of the kind against query and returns the ranked
// candidates at or above threshold.
func (s *Static) Lookup(_ context.Context, kind, query string, threshold float64) ([]Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Candidate
	for _, e := range s.entities[kind] {
		score := Score(query, e.DisplayName)
		if score >= threshold {
			hits = append(hits, Candidate{ID: e.ID, DisplayName: e.DisplayName, Score: score})
		}
	}
	return rank(hits), nil
}

// Create adds a new entity of the given kind with a generated ID.
func (s *Static) Create(_ context.Context, kind, displayName string) (Candidate, error) {
	if displayName == "" {
		return Candidate{}, fmt.Errorf("registry: display name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := Entity{ID: uuid.NewString(), DisplayName: displayName}
	if s.entities == nil {
		s.entities = make(map[string][]Entity)
	}
	s.entities[kind] = append(s.entities[kind], e)
	return Candidate{ID: e.ID, DisplayName: e.DisplayName, Score: 1.0}, nil
}
