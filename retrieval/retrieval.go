// Package retrieval implements the single vector-retrieval capability behind
// the user-info, similar-claims, and knowledge-base tools: embed the query,
// scan the target collection by cosine similarity, filter by threshold and
// cardinality, and return matches ordered by score then recency.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/clearway/claimflow/vector"
)

// Request describes one retrieval.
type Request struct {
	Collection    string
	Query         string
	TopK          int
	MinSimilarity float64
	Filters       map[string]any
	// ExcludeID drops a document from its own result set, e.g. the claim
	// currently being processed.
	ExcludeID string
}

// Retriever wraps an embedder and a vector store. Query embeddings are cached
// so repeated retrievals of the same text don't re-hit the embedding service.
type Retriever struct {
	embedder vector.Embedder
	store    vector.Store
	cache    *gocache.Cache
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithEmbeddingCacheTTL overrides the default five-minute embedding cache TTL.
func WithEmbeddingCacheTTL(ttl time.Duration) Option {
	return func(r *Retriever) {
		r.cache = gocache.New(ttl, 2*ttl)
	}
}

// New creates a Retriever.
func New(embedder vector.Embedder, store vector.Store, opts ...Option) *Retriever {
	r := &Retriever{
		embedder: embedder,
		store:    store,
		cache:    gocache.New(5*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs one retrieval. Zero qualifying rows is an empty slice, never
// an error.
func (r *Retriever) Retrieve(ctx context.Context, req Request) ([]vector.Match, error) {
	if req.Query == "" {
		return nil, fmt.Errorf("retrieval: query cannot be empty")
	}
	embedding, err := r.embedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}

	// Over-fetch by one so excluding the querying document still fills topK.
	fetch := topK
	if req.ExcludeID != "" {
		fetch++
	}

	matches, err := r.store.Search(ctx, vector.Query{
		Collection: req.Collection,
		Vector:     embedding,
		TopK:       fetch,
		Filters:    req.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: search %s: %w", req.Collection, err)
	}

	filtered := make([]vector.Match, 0, len(matches))
	for _, m := range matches {
		if req.ExcludeID != "" && m.ID == req.ExcludeID {
			continue
		}
		if m.Score < req.MinSimilarity {
			continue
		}
		filtered = append(filtered, m)
	}

	// Stores already order results, but the contract is ours to enforce.
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

// Index embeds the text and upserts it into the collection.
func (r *Retriever) Index(ctx context.Context, collection string, doc vector.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if len(doc.Vector) == 0 {
		embedding, err := r.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("retrieval: embed document %s: %w", doc.ID, err)
		}
		doc.Vector = embedding
	}
	return r.store.Upsert(ctx, collection, doc)
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	key := cacheKey(query)
	if cached, ok := r.cache.Get(key); ok {
		return cached.([]float32), nil
	}
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, embedding)
	return embedding, nil
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}
