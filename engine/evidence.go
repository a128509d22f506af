package engine

import (
	"fmt"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/tool"
)

// Evidence accumulates what the tools observed during one claim run. It is
// the input to decision synthesis and the provenance attached to the
// resulting decision.
type Evidence struct {
	ExtractedData string
	Contracts     []string
	ContractIDs   []string
	SimilarClaims []string
	SimilarIDs    []string
	Knowledge     []string
	KnowledgeIDs  []string
	Policies      []string
	Guardrails    []string
}

// Observe folds one successful tool result into the evidence.
func (e *Evidence) Observe(toolName string, result *tool.Result) {
	output, ok := result.Output.(map[string]any)
	if !ok {
		return
	}
	switch toolName {
	case "extract_document":
		e.ExtractedData = result.Text()
	case "retrieve_user_info":
		contracts, _ := output["contracts"].([]map[string]any)
		for _, c := range contracts {
			if id, ok := c["id"].(string); ok {
				e.ContractIDs = append(e.ContractIDs, id)
			}
			e.Contracts = append(e.Contracts, fmt.Sprintf("%s %s: coverage %.2f, deductible %.2f. %s",
				stringField(c, "contract_number"), stringField(c, "contract_type"),
				floatField(c, "coverage_amount"), floatField(c, "deductible"),
				stringField(c, "full_text")))
		}
	case "retrieve_similar_claims":
		similar, _ := output["similar_claims"].([]map[string]any)
		for _, s := range similar {
			if id, ok := s["claim_id"].(string); ok {
				e.SimilarIDs = append(e.SimilarIDs, id)
			}
			e.SimilarClaims = append(e.SimilarClaims, fmt.Sprintf("outcome=%s similarity=%.2f: %s",
				stringField(s, "outcome"), floatField(s, "similarity_score"),
				stringField(s, "text_excerpt")))
		}
	case "search_knowledge_base":
		if answer, ok := output["synthesized_answer"].(string); ok && answer != "" {
			e.Knowledge = append(e.Knowledge, answer)
		}
		results, _ := output["results"].([]map[string]any)
		for _, r := range results {
			if id, ok := r["id"].(string); ok {
				e.KnowledgeIDs = append(e.KnowledgeIDs, id)
			}
		}
	}
}

// Cited renders the evidence as decision provenance.
func (e *Evidence) Cited(policies []string) claim.CitedEvidence {
	return claim.CitedEvidence{
		Policies:       policies,
		SimilarClaims:  e.SimilarIDs,
		ContractIDs:    e.ContractIDs,
		KnowledgeBases: e.KnowledgeIDs,
	}
}

func stringField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
