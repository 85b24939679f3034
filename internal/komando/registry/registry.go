// Package registry resolves free-text entity mentions ("topu", "chocolates")
// to concrete records of a given kind (partner, product, ...).
//
// The interpretation core only depends on the Registry interface; hosts plug
// in whatever backs their real records. A Static in-memory implementation is
// provided for tests and demos, and a SQLite implementation for hosts that
// mirror their entities into the Komando database.
package registry

import (
	"context"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Candidate is a single ranked lookup hit. Score is in [0, 1].
type Candidate struct {
	ID          string
	DisplayName string
	Score       float64
}

// Registry performs fuzzy lookup of entities by kind.
type Registry interface {
	// Lookup returns all entities of the given kind whose similarity to query
	// is at least threshold, ranked by descending score. An empty slice (not
	// an error) is returned when nothing matches.
	Lookup(ctx context.Context, kind, query string, threshold float64) ([]Candidate, error)
}

// Creator is implemented by registries that can create a new entity on the
// fly, enabling the "create new" branch of the slot clarification flow.
type Creator interface {
	Create(ctx context.Context, kind, displayName string) (Candidate, error)
}

// Score computes the similarity between a query span and an entity display
// name. Scores:
//
//	1.0  query equals the full normalized name
//	0.9  query equals one word of the name ("topu" → "Topu Rahman")
//	else the best per-word or whole-string edit-distance ratio, discounted
//	     for partial matches
//
// The discount keeps single-word hits against multi-word names below 0.95 so
// that a strict threshold demands the full name.
func Score(query, name string) float64 {
	q := normalize(query)
	n := normalize(name)
	if q == "" || n == "" {
		return 0
	}
	if q == n {
		return 1.0
	}

	best := 0.0
	for _, word := range strings.Fields(n) {
		if word == q {
			best = max(best, 0.9)
			continue
		}
		best = max(best, 0.85*ratio(q, word))
	}
	best = max(best, ratio(q, n))

	return best
}

// ratio converts an edit distance into a similarity in [0, 1].
func ratio(a, b string) float64 {
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(longest)
}

// normalize lowercases, collapses whitespace, and strips a trailing plural
// "s" from words longer than three characters so "chocolates" hits
// "Chocolate".
func normalize(s string) string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	for i, w := range words {
		if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			words[i] = strings.TrimSuffix(w, "s")
		}
	}
	return strings.Join(words, " ")
}

// rank sorts candidates by descending score, breaking ties by display name so
// results are stable across runs.
func rank(candidates []Candidate) []Candidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DisplayName < candidates[j].DisplayName
	})
	return candidates
}
