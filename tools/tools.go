// Package tools builds the callable tools the orchestration loop exposes to
// the reasoning engine. A registry is assembled per claim run so that each
// tool is already bound to the claim being processed.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/message"
	"github.com/clearway/claimflow/reasoner"
	"github.com/clearway/claimflow/retrieval"
	"github.com/clearway/claimflow/store"
	"github.com/clearway/claimflow/tool"
	"github.com/clearway/claimflow/vector"
)

const (
	agentOCR = "ocr"
	agentRAG = "rag"

	// Claim text returned by retrieve_similar_claims is truncated to this
	// many characters per result.
	excerptLength = 500
)

// Deps holds the collaborators shared by every tool.
type Deps struct {
	Extractor Extractor
	Retriever *retrieval.Retriever
	Reasoner  reasoner.Client
	Stores    *store.Stores
}

// NewRegistry assembles the tool registry for one claim run.
func NewRegistry(d Deps, c *claim.Claim) (*tool.Registry, error) {
	registry := tool.NewRegistry()
	for _, t := range []*tool.Tool{
		NewExtractDocument(d, c),
		NewRetrieveUserInfo(d),
		NewRetrieveSimilarClaims(d, c),
		NewSearchKnowledgeBase(d),
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewExtractDocument builds the document-extraction tool. The extracted
// document is persisted and indexed so later claims can find it through
// similarity search.
func NewExtractDocument(d Deps, c *claim.Claim) *tool.Tool {
	return &tool.Tool{
		Name:        "extract_document",
		Description: "Extract raw text and structured fields from a claim document. Returns per-field confidence scores.",
		Agent:       agentOCR,
		Parameters: []tool.Parameter{
			{Name: "document_path", Type: "string", Description: "Path to the claim document", Required: true},
			{Name: "document_type", Type: "string", Description: "Document type hint, e.g. invoice or medical_report"},
			{Name: "language", Type: "string", Description: "Document language hint"},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			if d.Extractor == nil {
				return nil, fmt.Errorf("document extraction service is not configured")
			}
			req := ExtractRequest{
				DocumentPath: stringArg(args, "document_path"),
				DocumentType: stringArg(args, "document_type"),
				Language:     stringArg(args, "language"),
			}
			extraction, err := d.Extractor.Extract(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("extract %s: %w", req.DocumentPath, err)
			}

			doc := &claim.Document{
				ClaimID:           c.ID,
				RawText:           extraction.RawText,
				Fields:            extraction.Fields,
				OverallConfidence: extraction.OverallConfidence,
			}
			if err := d.Stores.Documents.Save(ctx, doc); err != nil {
				return nil, fmt.Errorf("persist extracted document: %w", err)
			}
			if err := d.Retriever.Index(ctx, vector.CollectionClaims, vector.Document{
				ID:   c.ID.String(),
				Text: extraction.RawText,
				Metadata: map[string]any{
					"user_id":      c.UserID,
					"claim_type":   c.ClaimType,
					"claim_number": c.ClaimNumber,
				},
			}); err != nil {
				return nil, fmt.Errorf("index extracted document: %w", err)
			}

			return &tool.Result{
				Output: map[string]any{
					"raw_text":          extraction.RawText,
					"structured_fields": extraction.Fields,
					"confidence":        extraction.OverallConfidence,
				},
				Confidence: extraction.OverallConfidence,
			}, nil
		},
	}
}

// NewRetrieveUserInfo builds the user-context tool: the user's profile plus
// their active contracts ranked by similarity to the query.
func NewRetrieveUserInfo(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "retrieve_user_info",
		Description: "Retrieve a user's profile and active insurance contracts ranked by relevance to the query.",
		Agent:       agentRAG,
		Parameters: []tool.Parameter{
			{Name: "user_id", Type: "string", Description: "User identifier", Required: true},
			{Name: "query", Type: "string", Description: "What to look for in the user's contracts", Required: true},
			{Name: "top_k", Type: "integer", Description: "Maximum number of contracts to return", Default: 5},
			{Name: "include_contracts", Type: "boolean", Description: "Whether to include contract details", Default: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			userID := stringArg(args, "user_id")
			query := stringArg(args, "query")
			topK := intArg(args, "top_k", 5)
			includeContracts := boolArg(args, "include_contracts", true)

			active, err := d.Stores.Contracts.ListActiveByUser(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("list contracts for %s: %w", userID, err)
			}

			output := map[string]any{
				"user_info": map[string]any{
					"user_id":          userID,
					"active_contracts": len(active),
				},
				"contracts":         []map[string]any{},
				"similarity_scores": []float64{},
			}
			if !includeContracts || len(active) == 0 {
				return &tool.Result{Output: output, Confidence: 1.0}, nil
			}

			matches, err := d.Retriever.Retrieve(ctx, retrieval.Request{
				Collection: vector.CollectionContracts,
				Query:      query,
				TopK:       topK,
				Filters:    map[string]any{"user_id": userID},
			})
			if err != nil {
				return nil, fmt.Errorf("retrieve contracts for %s: %w", userID, err)
			}

			byID := make(map[string]*claim.Contract, len(active))
			for _, contract := range active {
				byID[contract.ID.String()] = contract
			}

			contracts := make([]map[string]any, 0, topK)
			scores := make([]float64, 0, topK)
			for _, m := range matches {
				contract, ok := byID[m.ID]
				if !ok {
					// Indexed but no longer active.
					continue
				}
				contracts = append(contracts, contractPayload(contract))
				scores = append(scores, m.Score)
			}
			// An unpopulated index must not hide a user's contracts.
			if len(contracts) == 0 {
				for i, contract := range active {
					if i >= topK {
						break
					}
					contracts = append(contracts, contractPayload(contract))
				}
			}

			output["contracts"] = contracts
			output["similarity_scores"] = scores
			return &tool.Result{Output: output, Confidence: 1.0}, nil
		},
	}
}

// NewRetrieveSimilarClaims builds the historical-claims tool. The claim
// being processed is always excluded from its own results.
func NewRetrieveSimilarClaims(d Deps, c *claim.Claim) *tool.Tool {
	return &tool.Tool{
		Name:        "retrieve_similar_claims",
		Description: "Find historical claims similar to the given claim text, with their prior outcomes.",
		Agent:       agentRAG,
		Parameters: []tool.Parameter{
			{Name: "claim_text", Type: "string", Description: "Text of the claim to compare against", Required: true},
			{Name: "claim_type", Type: "string", Description: "Restrict results to this claim type"},
			{Name: "top_k", Type: "integer", Description: "Maximum number of similar claims", Default: 10},
			{Name: "min_similarity", Type: "number", Description: "Minimum cosine similarity", Default: 0.7},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			claimText := stringArg(args, "claim_text")
			req := retrieval.Request{
				Collection:    vector.CollectionClaims,
				Query:         claimText,
				TopK:          intArg(args, "top_k", 10),
				MinSimilarity: floatArg(args, "min_similarity", 0.7),
				ExcludeID:     c.ID.String(),
			}
			if claimType := stringArg(args, "claim_type"); claimType != "" {
				req.Filters = map[string]any{"claim_type": claimType}
			}

			matches, err := d.Retriever.Retrieve(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("retrieve similar claims: %w", err)
			}

			similar := make([]map[string]any, 0, len(matches))
			for _, m := range matches {
				similar = append(similar, map[string]any{
					"claim_id":         m.ID,
					"similarity_score": m.Score,
					"text_excerpt":     excerpt(m.Text),
					"outcome":          d.priorOutcome(ctx, m.ID),
				})
			}
			return &tool.Result{
				Output:     map[string]any{"similar_claims": similar},
				Confidence: 1.0,
			}, nil
		},
	}
}

// NewSearchKnowledgeBase builds the policy-lookup tool. The synthesized
// answer comes from a secondary reasoning call over the retrieved entries;
// if that call fails the entries are still returned.
func NewSearchKnowledgeBase(d Deps) *tool.Tool {
	return &tool.Tool{
		Name:        "search_knowledge_base",
		Description: "Search policy and procedure documents and synthesize an answer from the results.",
		Agent:       agentRAG,
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "Question to answer from the knowledge base", Required: true},
			{Name: "filters", Type: "object", Description: "Metadata filters, e.g. category"},
			{Name: "top_k", Type: "integer", Description: "Maximum number of entries", Default: 5},
		},
		Handler: func(ctx context.Context, args map[string]any) (*tool.Result, error) {
			query := stringArg(args, "query")
			req := retrieval.Request{
				Collection: vector.CollectionKnowledgeBase,
				Query:      query,
				TopK:       intArg(args, "top_k", 5),
			}
			if filters, ok := args["filters"].(map[string]any); ok {
				req.Filters = filters
			}

			matches, err := d.Retriever.Retrieve(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("search knowledge base: %w", err)
			}

			results := make([]map[string]any, 0, len(matches))
			for _, m := range matches {
				entry := map[string]any{
					"id":               m.ID,
					"content":          m.Text,
					"similarity_score": m.Score,
				}
				if title, ok := m.Metadata["title"].(string); ok {
					entry["title"] = title
				}
				results = append(results, entry)
			}

			return &tool.Result{
				Output: map[string]any{
					"results":            results,
					"synthesized_answer": d.synthesizeAnswer(ctx, query, matches),
				},
				Confidence: 1.0,
			}, nil
		},
	}
}

// priorOutcome resolves the adjudicated outcome of a historical claim.
// Unknown or undecided claims report "unknown".
func (d Deps) priorOutcome(ctx context.Context, claimID string) string {
	id, err := uuid.Parse(claimID)
	if err != nil {
		return "unknown"
	}
	decision, err := d.Stores.Decisions.GetByClaim(ctx, id)
	if err != nil {
		return "unknown"
	}
	return string(decision.Effective())
}

func (d Deps) synthesizeAnswer(ctx context.Context, query string, matches []vector.Match) string {
	if len(matches) == 0 || d.Reasoner == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Answer the question using only the policy excerpts below. Be concise.\n\nQuestion: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPolicy excerpts:\n")
	for i, m := range matches {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, m.Text)
	}

	reply, err := d.Reasoner.Generate(ctx, []*message.Message{
		message.New(message.RoleUser, sb.String()),
	}, nil)
	if err != nil || reply == nil {
		return ""
	}
	return reply.Content
}

func contractPayload(c *claim.Contract) map[string]any {
	return map[string]any{
		"id":              c.ID.String(),
		"contract_number": c.ContractNumber,
		"contract_type":   c.ContractType,
		"coverage_amount": c.CoverageAmount,
		"deductible":      c.Deductible,
		"full_text":       c.FullText,
		"key_terms":       c.KeyTerms,
	}
}

func excerpt(text string) string {
	if len(text) <= excerptLength {
		return text
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := excerptLength
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func stringArg(args map[string]any, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, name string, def int) int {
	switch v := args[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

func floatArg(args map[string]any, name string, def float64) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return def
}

func boolArg(args map[string]any, name string, def bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return def
}
