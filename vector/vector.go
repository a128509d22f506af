// Package vector defines the embedding and similarity-search contracts shared
// by every retrieval tool. One store implementation backs all collections;
// choosing it is configuration, not a second code path.
package vector

import (
	"context"
	"math"
	"time"
)

// Collection names used by the retrieval tools.
const (
	CollectionContracts     = "user_contracts"
	CollectionClaims        = "claim_documents"
	CollectionKnowledgeBase = "knowledge_base"
)

// Document is one indexed row in a collection.
type Document struct {
	ID        string
	Text      string
	Vector    []float32
	Metadata  map[string]any
	CreatedAt time.Time
}

// Match is a search hit with its cosine similarity score.
type Match struct {
	Document
	Score float64
}

// Query selects candidates from one collection. Filters match against
// document metadata with equality semantics.
type Query struct {
	Collection string
	Vector     []float32
	TopK       int
	Filters    map[string]any
}

// Store is the similarity-search backend. Search returns matches ordered by
// score descending; an empty result is not an error.
type Store interface {
	Upsert(ctx context.Context, collection string, doc Document) error
	Search(ctx context.Context, q Query) ([]Match, error)
	Count(ctx context.Context, collection string) (int, error)
}

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Normalize scales the vector to unit length in place and returns it.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
