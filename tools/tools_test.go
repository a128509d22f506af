package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/contrib/vector/inmemory"
	"github.com/clearway/claimflow/message"
	"github.com/clearway/claimflow/retrieval"
	"github.com/clearway/claimflow/store"
	"github.com/clearway/claimflow/vector"
)

// stubEmbedder returns fixed vectors per exact text so tests control
// similarity ordering.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *stubEmbedder) Dimension() int { return 3 }

type stubExtractor struct {
	extraction *Extraction
	err        error
}

func (s *stubExtractor) Extract(_ context.Context, _ ExtractRequest) (*Extraction, error) {
	return s.extraction, s.err
}

type stubReasoner struct {
	response string
	err      error
}

func (s *stubReasoner) Generate(_ context.Context, _ []*message.Message, _ []map[string]any) (*message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return message.New(message.RoleAssistant, s.response), nil
}

func testDeps(embedder vector.Embedder) (Deps, vector.Store) {
	vs := inmemory.New()
	return Deps{
		Extractor: &stubExtractor{extraction: &Extraction{RawText: "text", OverallConfidence: 0.9}},
		Retriever: retrieval.New(embedder, vs),
		Reasoner:  &stubReasoner{response: "Annual physicals are covered."},
		Stores:    store.NewMemoryStores(),
	}, vs
}

func TestExtractDocumentPersistsAndIndexes(t *testing.T) {
	ctx := context.Background()
	deps, vs := testDeps(&stubEmbedder{})
	deps.Extractor = &stubExtractor{extraction: &Extraction{
		RawText: "Annual physical examination, $250",
		Fields: map[string]claim.FieldValue{
			"amount": {Value: "250", Confidence: 0.95},
		},
		OverallConfidence: 0.93,
	}}
	c := claim.New("CLM-2024-0001", "USER001", "Medical", "/claims/CLM-2024-0001.pdf")

	result, err := NewExtractDocument(deps, c).Execute(ctx, map[string]any{
		"document_path": c.DocumentPath,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	output := result.Output.(map[string]any)
	if output["raw_text"] != "Annual physical examination, $250" {
		t.Errorf("Expected raw text in output, got %v", output["raw_text"])
	}
	if result.Confidence != 0.93 {
		t.Errorf("Expected confidence 0.93, got %f", result.Confidence)
	}

	doc, err := deps.Stores.Documents.GetByClaim(ctx, c.ID)
	if err != nil {
		t.Fatalf("Document not persisted: %v", err)
	}
	if doc.Fields["amount"].Value != "250" {
		t.Errorf("Expected structured fields persisted, got %v", doc.Fields)
	}

	count, err := vs.Count(ctx, vector.CollectionClaims)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected document indexed, got %d rows", count)
	}
}

func TestExtractDocumentFailurePropagates(t *testing.T) {
	deps, _ := testDeps(&stubEmbedder{})
	deps.Extractor = &stubExtractor{err: errors.New("unreadable source")}
	c := claim.New("CLM-1", "USER001", "Medical", "/claims/doc.pdf")

	_, err := NewExtractDocument(deps, c).Execute(context.Background(), map[string]any{
		"document_path": c.DocumentPath,
	})
	if err == nil {
		t.Fatal("Expected extraction error")
	}
}

func TestRetrieveUserInfoScopedToUser(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"health coverage":  {1, 0, 0},
		"health contract":  {0.95, 0.05, 0},
		"travel insurance": {0, 1, 0},
	}}
	deps, _ := testDeps(embedder)

	own := &claim.Contract{UserID: "USER001", ContractNumber: "CNT-001", ContractType: "Health Insurance", Deductible: 1000, Active: true, FullText: "health contract"}
	other := &claim.Contract{UserID: "USER002", ContractNumber: "CNT-002", ContractType: "Health Insurance", Active: true, FullText: "health contract"}
	for _, contract := range []*claim.Contract{own, other} {
		if err := deps.Stores.Contracts.Save(ctx, contract); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := deps.Retriever.Index(ctx, vector.CollectionContracts, vector.Document{
			ID:       contract.ID.String(),
			Text:     contract.FullText,
			Metadata: map[string]any{"user_id": contract.UserID},
		}); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}

	result, err := NewRetrieveUserInfo(deps).Execute(ctx, map[string]any{
		"user_id": "USER001",
		"query":   "health coverage",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	output := result.Output.(map[string]any)
	contracts := output["contracts"].([]map[string]any)
	if len(contracts) != 1 {
		t.Fatalf("Expected only USER001 contracts, got %d", len(contracts))
	}
	if contracts[0]["contract_number"] != "CNT-001" {
		t.Errorf("Expected CNT-001, got %v", contracts[0]["contract_number"])
	}
	scores := output["similarity_scores"].([]float64)
	if len(scores) != 1 || scores[0] <= 0 {
		t.Errorf("Expected a positive similarity score, got %v", scores)
	}
}

func TestRetrieveUserInfoNoContracts(t *testing.T) {
	deps, _ := testDeps(&stubEmbedder{})

	result, err := NewRetrieveUserInfo(deps).Execute(context.Background(), map[string]any{
		"user_id": "USER003",
		"query":   "coverage",
	})
	if err != nil {
		t.Fatalf("A user without contracts must not be an error: %v", err)
	}

	output := result.Output.(map[string]any)
	contracts := output["contracts"].([]map[string]any)
	if len(contracts) != 0 {
		t.Errorf("Expected empty contracts, got %d", len(contracts))
	}
	info := output["user_info"].(map[string]any)
	if info["active_contracts"] != 0 {
		t.Errorf("Expected zero active contracts, got %v", info["active_contracts"])
	}
}

func TestRetrieveSimilarClaimsExcludesSelfAndThreshold(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"annual physical":    {1, 0, 0},
		"physical exam":      {0.98, 0.02, 0},
		"dental cleaning":    {0.1, 0.9, 0},
		"physical follow-up": {0.9, 0.1, 0},
	}}
	deps, _ := testDeps(embedder)
	c := claim.New("CLM-SELF", "USER001", "Medical", "/self.pdf")

	docs := []vector.Document{
		{ID: c.ID.String(), Text: "annual physical"},
		{ID: "22222222-2222-2222-2222-222222222222", Text: "physical exam"},
		{ID: "33333333-3333-3333-3333-333333333333", Text: "dental cleaning"},
		{ID: "44444444-4444-4444-4444-444444444444", Text: "physical follow-up"},
	}
	for _, doc := range docs {
		if err := deps.Retriever.Index(ctx, vector.CollectionClaims, doc); err != nil {
			t.Fatalf("Index failed: %v", err)
		}
	}

	result, err := NewRetrieveSimilarClaims(deps, c).Execute(ctx, map[string]any{
		"claim_text": "annual physical",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	output := result.Output.(map[string]any)
	similar := output["similar_claims"].([]map[string]any)

	prev := 1.1
	for _, s := range similar {
		if s["claim_id"] == c.ID.String() {
			t.Error("The querying claim must not appear in its own results")
		}
		score := s["similarity_score"].(float64)
		if score < 0.7 {
			t.Errorf("Result below min_similarity returned: %f", score)
		}
		if score > prev {
			t.Error("Scores must be non-increasing")
		}
		prev = score
	}
	if len(similar) != 2 {
		t.Errorf("Expected 2 qualifying claims, got %d", len(similar))
	}
}

func TestRetrieveSimilarClaimsEmptyIndex(t *testing.T) {
	deps, _ := testDeps(&stubEmbedder{})
	c := claim.New("CLM-1", "USER001", "Medical", "/doc.pdf")

	result, err := NewRetrieveSimilarClaims(deps, c).Execute(context.Background(), map[string]any{
		"claim_text": "anything",
	})
	if err != nil {
		t.Fatalf("Empty index must not be an error: %v", err)
	}
	output := result.Output.(map[string]any)
	if len(output["similar_claims"].([]map[string]any)) != 0 {
		t.Error("Expected empty result set")
	}
}

func TestSearchKnowledgeBaseSynthesizesAnswer(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"deductible policy": {1, 0, 0},
		"deductible rules":  {0.97, 0.03, 0},
	}}
	deps, _ := testDeps(embedder)
	if err := deps.Retriever.Index(ctx, vector.CollectionKnowledgeBase, vector.Document{
		ID:       "kb-1",
		Text:     "deductible rules",
		Metadata: map[string]any{"title": "Deductibles"},
	}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	result, err := NewSearchKnowledgeBase(deps).Execute(ctx, map[string]any{
		"query": "deductible policy",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	output := result.Output.(map[string]any)
	if output["synthesized_answer"] != "Annual physicals are covered." {
		t.Errorf("Expected synthesized answer, got %v", output["synthesized_answer"])
	}
	results := output["results"].([]map[string]any)
	if len(results) != 1 || results[0]["title"] != "Deductibles" {
		t.Errorf("Expected titled knowledge entry, got %v", results)
	}
}

func TestSearchKnowledgeBaseSurvivesReasonerFailure(t *testing.T) {
	ctx := context.Background()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"deductible policy": {1, 0, 0},
		"deductible rules":  {0.97, 0.03, 0},
	}}
	deps, _ := testDeps(embedder)
	deps.Reasoner = &stubReasoner{err: errors.New("model unavailable")}
	if err := deps.Retriever.Index(ctx, vector.CollectionKnowledgeBase, vector.Document{
		ID: "kb-1", Text: "deductible rules",
	}); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	result, err := NewSearchKnowledgeBase(deps).Execute(ctx, map[string]any{
		"query": "deductible policy",
	})
	if err != nil {
		t.Fatalf("Synthesis failure must not fail the tool: %v", err)
	}

	output := result.Output.(map[string]any)
	if output["synthesized_answer"] != "" {
		t.Errorf("Expected empty answer on synthesis failure, got %v", output["synthesized_answer"])
	}
	if len(output["results"].([]map[string]any)) != 1 {
		t.Error("Entries must still be returned when synthesis fails")
	}
}

func TestRegistryContainsAllTools(t *testing.T) {
	deps, _ := testDeps(&stubEmbedder{})
	c := claim.New("CLM-1", "USER001", "Medical", "/doc.pdf")

	registry, err := NewRegistry(deps, c)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	names := registry.Names()
	expected := []string{"extract_document", "retrieve_similar_claims", "retrieve_user_info", "search_knowledge_base"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %d tools, got %v", len(expected), names)
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("Expected tool %s at index %d, got %s", name, i, names[i])
		}
	}
}

func TestExcerptKeepsRuneBoundary(t *testing.T) {
	// The two-byte é starts at the last byte before the cut, so a naive
	// byte slice would split it.
	text := strings.Repeat("a", excerptLength-1) + "émission"
	got := excerpt(text)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt produced invalid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) > excerptLength {
		t.Errorf("len(excerpt) = %d, want at most %d", len(got), excerptLength)
	}

	short := "short text"
	if excerpt(short) != short {
		t.Errorf("excerpt(%q) = %q, want unchanged", short, excerpt(short))
	}
}
