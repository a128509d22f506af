// Package inmemory provides a brute-force vector store for tests and
// single-node development.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/clearway/claimflow/vector"
)

// Store keeps all documents in memory and scans them linearly on search.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]vector.Document
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]map[string]vector.Document)}
}

// Upsert adds or replaces a document in the collection.
func (s *Store) Upsert(_ context.Context, collection string, doc vector.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]vector.Document)
		s.collections[collection] = coll
	}
	coll[doc.ID] = doc
	return nil
}

// Search scans the collection and returns the top-k matches ordered by
// similarity descending, ties broken by most recent first.
func (s *Store) Search(_ context.Context, q vector.Query) ([]vector.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]vector.Match, 0)
	for _, doc := range s.collections[q.Collection] {
		if !matchesFilters(doc.Metadata, q.Filters) {
			continue
		}
		matches = append(matches, vector.Match{
			Document: doc,
			Score:    vector.CosineSimilarity(q.Vector, doc.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if q.TopK > 0 && len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(_ context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection]), nil
}

func matchesFilters(metadata, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := metadata[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}
