// Package mcpserver exposes the retrieval tools and claim lookups over the
// Model Context Protocol, so external assistants can query the same evidence
// sources the orchestration loop uses.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/tool"
	"github.com/clearway/claimflow/tools"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server serves claim tooling over MCP.
type Server struct {
	deps   tools.Deps
	server *mcp.Server
}

// NewServer builds the MCP server around the shared tool dependencies.
func NewServer(deps tools.Deps) (*Server, error) {
	if deps.Retriever == nil || deps.Stores == nil {
		return nil, fmt.Errorf("mcpserver: retriever and stores are required")
	}

	s := &Server{
		deps: deps,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "claimflow",
			Version: Version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until the context is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = httpServer.Shutdown(context.Background())
	}()

	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// ExtractInput is the input schema for the document extraction tool.
type ExtractInput struct {
	ClaimNumber  string `json:"claim_number" jsonschema:"the claim whose document to extract"`
	DocumentPath string `json:"document_path,omitempty" jsonschema:"overrides the claim's document path"`
	DocumentType string `json:"document_type,omitempty" jsonschema:"document type hint, e.g. invoice"`
	Language     string `json:"language,omitempty" jsonschema:"document language hint"`
}

// ExtractedField is one structured field with its confidence.
type ExtractedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ExtractOutput is the output schema for the document extraction tool.
type ExtractOutput struct {
	RawText          string                    `json:"raw_text"`
	StructuredFields map[string]ExtractedField `json:"structured_fields,omitempty"`
	Confidence       float64                   `json:"confidence"`
}

// UserInfoInput is the input schema for the user info tool.
type UserInfoInput struct {
	UserID string `json:"user_id" jsonschema:"the user identifier to look up"`
	Query  string `json:"query" jsonschema:"what to look for in the user's contracts"`
	TopK   int    `json:"top_k,omitempty" jsonschema:"maximum number of contracts to return (default 5)"`
}

// ContractSummary is one contract in a user info response.
type ContractSummary struct {
	ID             string   `json:"id"`
	ContractNumber string   `json:"contract_number"`
	ContractType   string   `json:"contract_type"`
	CoverageAmount float64  `json:"coverage_amount"`
	Deductible     float64  `json:"deductible"`
	FullText       string   `json:"full_text"`
	KeyTerms       []string `json:"key_terms,omitempty"`
}

// UserInfoOutput is the output schema for the user info tool.
type UserInfoOutput struct {
	UserInfo struct {
		UserID          string `json:"user_id"`
		ActiveContracts int    `json:"active_contracts"`
	} `json:"user_info"`
	Contracts        []ContractSummary `json:"contracts"`
	SimilarityScores []float64         `json:"similarity_scores"`
}

// SimilarClaimsInput is the input schema for the similar claims tool.
type SimilarClaimsInput struct {
	ClaimText     string  `json:"claim_text" jsonschema:"text of the claim to compare against"`
	ClaimType     string  `json:"claim_type,omitempty" jsonschema:"restrict results to this claim type"`
	TopK          int     `json:"top_k,omitempty" jsonschema:"maximum number of similar claims (default 10)"`
	MinSimilarity float64 `json:"min_similarity,omitempty" jsonschema:"minimum cosine similarity (default 0.7)"`
}

// SimilarClaim is one match in a similar claims response.
type SimilarClaim struct {
	ClaimID         string  `json:"claim_id"`
	SimilarityScore float64 `json:"similarity_score"`
	TextExcerpt     string  `json:"text_excerpt"`
	Outcome         string  `json:"outcome"`
}

// SimilarClaimsOutput is the output schema for the similar claims tool.
type SimilarClaimsOutput struct {
	SimilarClaims []SimilarClaim `json:"similar_claims"`
}

// KnowledgeInput is the input schema for the knowledge base tool.
type KnowledgeInput struct {
	Query string `json:"query" jsonschema:"question to answer from the knowledge base"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of entries (default 5)"`
}

// KnowledgeEntry is one entry in a knowledge base response.
type KnowledgeEntry struct {
	ID              string  `json:"id"`
	Title           string  `json:"title,omitempty"`
	Content         string  `json:"content"`
	SimilarityScore float64 `json:"similarity_score"`
}

// KnowledgeOutput is the output schema for the knowledge base tool.
type KnowledgeOutput struct {
	Results           []KnowledgeEntry `json:"results"`
	SynthesizedAnswer string           `json:"synthesized_answer"`
}

// ClaimLookupInput is the input schema for the claim lookup tool.
type ClaimLookupInput struct {
	ClaimNumber string `json:"claim_number" jsonschema:"the external claim number, e.g. CLM-2024-0001"`
}

// ClaimLookupOutput is the output schema for the claim lookup tool.
type ClaimLookupOutput struct {
	ClaimID    string  `json:"claim_id"`
	UserID     string  `json:"user_id"`
	ClaimType  string  `json:"claim_type"`
	Status     string  `json:"status"`
	Decision   string  `json:"decision,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_document",
		Description: "Extract raw text and structured fields from a claim's document",
	}, s.handleExtract)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_user_info",
		Description: "Retrieve a user's profile and active insurance contracts ranked by relevance",
	}, s.handleUserInfo)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "retrieve_similar_claims",
		Description: "Find historical claims similar to the given claim text, with their prior outcomes",
	}, s.handleSimilarClaims)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_knowledge_base",
		Description: "Search policy and procedure documents and synthesize an answer",
	}, s.handleKnowledge)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_claim",
		Description: "Look up a claim's current status and decision by claim number",
	}, s.handleClaimLookup)
}

func (s *Server) handleExtract(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExtractInput,
) (*mcp.CallToolResult, ExtractOutput, error) {
	c, err := s.deps.Stores.Claims.GetByNumber(ctx, input.ClaimNumber)
	if err != nil {
		return nil, ExtractOutput{}, fmt.Errorf("look up claim %s: %w", input.ClaimNumber, err)
	}
	path := input.DocumentPath
	if path == "" {
		path = c.DocumentPath
	}
	args := map[string]any{"document_path": path}
	if input.DocumentType != "" {
		args["document_type"] = input.DocumentType
	}
	if input.Language != "" {
		args["language"] = input.Language
	}
	var out ExtractOutput
	if err := s.execute(ctx, tools.NewExtractDocument(s.deps, c), args, &out); err != nil {
		return nil, ExtractOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleUserInfo(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input UserInfoInput,
) (*mcp.CallToolResult, UserInfoOutput, error) {
	args := map[string]any{"user_id": input.UserID, "query": input.Query}
	if input.TopK > 0 {
		args["top_k"] = input.TopK
	}
	var out UserInfoOutput
	if err := s.execute(ctx, tools.NewRetrieveUserInfo(s.deps), args, &out); err != nil {
		return nil, UserInfoOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleSimilarClaims(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SimilarClaimsInput,
) (*mcp.CallToolResult, SimilarClaimsOutput, error) {
	args := map[string]any{"claim_text": input.ClaimText}
	if input.ClaimType != "" {
		args["claim_type"] = input.ClaimType
	}
	if input.TopK > 0 {
		args["top_k"] = input.TopK
	}
	if input.MinSimilarity > 0 {
		args["min_similarity"] = input.MinSimilarity
	}
	// No claim of our own to exclude here; the zero ID matches nothing.
	var out SimilarClaimsOutput
	if err := s.execute(ctx, tools.NewRetrieveSimilarClaims(s.deps, &claim.Claim{}), args, &out); err != nil {
		return nil, SimilarClaimsOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleKnowledge(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input KnowledgeInput,
) (*mcp.CallToolResult, KnowledgeOutput, error) {
	args := map[string]any{"query": input.Query}
	if input.TopK > 0 {
		args["top_k"] = input.TopK
	}
	var out KnowledgeOutput
	if err := s.execute(ctx, tools.NewSearchKnowledgeBase(s.deps), args, &out); err != nil {
		return nil, KnowledgeOutput{}, err
	}
	return nil, out, nil
}

func (s *Server) handleClaimLookup(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ClaimLookupInput,
) (*mcp.CallToolResult, ClaimLookupOutput, error) {
	c, err := s.deps.Stores.Claims.GetByNumber(ctx, input.ClaimNumber)
	if err != nil {
		return nil, ClaimLookupOutput{}, fmt.Errorf("look up claim %s: %w", input.ClaimNumber, err)
	}
	out := ClaimLookupOutput{
		ClaimID:   c.ID.String(),
		UserID:    c.UserID,
		ClaimType: c.ClaimType,
		Status:    string(c.Status),
	}
	if decision, err := s.deps.Stores.Decisions.GetByClaim(ctx, c.ID); err == nil {
		out.Decision = string(decision.Effective())
		out.Confidence = decision.Confidence
		out.Reasoning = decision.Reasoning
	}
	return nil, out, nil
}

// execute runs a tool and decodes its payload into the typed output.
func (s *Server) execute(ctx context.Context, t *tool.Tool, args map[string]any, out any) error {
	res, err := t.Execute(ctx, args)
	if err != nil {
		return err
	}
	data, err := json.Marshal(res.Output)
	if err != nil {
		return fmt.Errorf("encode %s output: %w", t.Name, err)
	}
	return json.Unmarshal(data, out)
}
