package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/clearway/claimflow/vector"
)

func TestUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	s := New()

	docs := []vector.Document{
		{ID: "a", Text: "health claim", Vector: []float32{1, 0, 0}},
		{ID: "b", Text: "auto claim", Vector: []float32{0, 1, 0}},
		{ID: "c", Text: "mixed claim", Vector: []float32{1, 1, 0}},
	}
	for _, d := range docs {
		if err := s.Upsert(ctx, "claims", d); err != nil {
			t.Fatalf("Upsert %s: %v", d.ID, err)
		}
	}

	matches, err := s.Search(ctx, vector.Query{Collection: "claims", Vector: []float32{1, 0, 0}, TopK: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len(matches) = %d, want 2", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("best match = %s, want a", matches[0].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches must be ordered by score descending")
	}
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Upsert(ctx, "claims", vector.Document{ID: "a", Text: "old", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "claims", vector.Document{ID: "a", Text: "new", Vector: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	n, err := s.Count(ctx, "claims")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1 after replacing", n)
	}
}

func TestSearchFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, d := range []vector.Document{
		{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]any{"user_id": "USER001"}},
		{ID: "b", Vector: []float32{1, 0}, Metadata: map[string]any{"user_id": "USER002"}},
		{ID: "c", Vector: []float32{1, 0}},
	} {
		if err := s.Upsert(ctx, "contracts", d); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	matches, err := s.Search(ctx, vector.Query{
		Collection: "contracts",
		Vector:     []float32{1, 0},
		Filters:    map[string]any{"user_id": "USER001"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("matches = %v, want only document a", matches)
	}
}

func TestSearchTiesBreakByRecency(t *testing.T) {
	ctx := context.Background()
	s := New()
	old := time.Now().Add(-time.Hour)
	recent := time.Now()
	for _, d := range []vector.Document{
		{ID: "old", Vector: []float32{1, 0}, CreatedAt: old},
		{ID: "recent", Vector: []float32{1, 0}, CreatedAt: recent},
	} {
		if err := s.Upsert(ctx, "claims", d); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	matches, err := s.Search(ctx, vector.Query{Collection: "claims", Vector: []float32{1, 0}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if matches[0].ID != "recent" {
		t.Errorf("tied scores should order most recent first, got %s", matches[0].ID)
	}
}

func TestSearchEmptyCollection(t *testing.T) {
	matches, err := New().Search(context.Background(), vector.Query{Collection: "nothing", Vector: []float32{1}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("matches = %v, want empty", matches)
	}
}
