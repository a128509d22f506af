package prompt

import (
	"fmt"
	"strings"

	"github.com/clearway/claimflow/claim"
)

const orchestrationTemplate = `You are an insurance claims processing orchestrator. Your job is to gather the evidence needed to decide a claim by calling the available tools, one at a time.

Claim under review:
- Claim ID: {{.ClaimID}}
- Claim Number: {{.ClaimNumber}}
- User ID: {{.UserID}}
- Claim Type: {{.ClaimType}}
- Document: {{.DocumentPath}}

Guidelines:
- Start by extracting the claim document, then retrieve the user's contracts, then look for similar historical claims. Consult the knowledge base when policy interpretation is needed.
- Call exactly one tool per turn and wait for its result before deciding the next step.
- A failed tool call is an observation, not a dead end. Work with the evidence you have.
- Stop calling tools once you have enough evidence to decide, or when no remaining tool can add useful information.`

// Orchestration renders the system prompt that drives the tool loop for a claim.
func Orchestration(c *claim.Claim) (string, error) {
	tmpl, err := NewTemplate("orchestration", orchestrationTemplate)
	if err != nil {
		return "", err
	}
	return tmpl.Render(map[string]interface{}{
		"ClaimID":      c.ID.String(),
		"ClaimNumber":  c.ClaimNumber,
		"UserID":       c.UserID,
		"ClaimType":    c.ClaimType,
		"DocumentPath": c.DocumentPath,
	})
}

const (
	maxContractsInPrompt     = 3
	maxSimilarClaimsInPrompt = 3
)

// DecisionInput carries the accumulated evidence for decision synthesis.
type DecisionInput struct {
	ClaimID       string
	UserID        string
	ExtractedData string
	Contracts     []string
	SimilarClaims []string
	Knowledge     []string
	Guardrails    string
}

// Decision renders the synthesis prompt. Evidence lists are capped so the
// prompt stays inside the model context window.
func Decision(in DecisionInput) string {
	contracts := capList(in.Contracts, maxContractsInPrompt)
	similar := capList(in.SimilarClaims, maxSimilarClaimsInPrompt)
	guardrails := in.Guardrails
	if guardrails == "" {
		guardrails = "No issues detected"
	}
	extracted := in.ExtractedData
	if extracted == "" {
		extracted = "No document data extracted"
	}

	b := NewBuilder()
	b.Add("You are an expert insurance claims analyst. Analyze this claim and respond with ONLY a JSON object, no other text.")
	b.AddFormat("Claim: %s for User: %s", in.ClaimID, in.UserID)
	b.AddSection("Extracted Document Data", extracted)
	b.AddSection("User Contracts", joinOrNone(contracts, "No active contracts found"))
	b.AddSection("Similar Claims", joinOrNone(similar, "No similar claims found"))
	if len(in.Knowledge) > 0 {
		b.AddSection("Knowledge Base", joinOrNone(in.Knowledge, ""))
	}
	b.AddSection("Guardrails", guardrails)
	b.Add(`Respond with ONLY this JSON format:
{
    "decision": "approve|deny|manual_review",
    "confidence": 0.85,
    "reasoning": "Brief explanation of decision",
    "relevant_policies": ["POLICY-001", "POLICY-002"]
}`)
	return b.Build()
}

func capList(items []string, max int) []string {
	if len(items) > max {
		return items[:max]
	}
	return items
}

func joinOrNone(items []string, none string) string {
	if len(items) == 0 {
		return none
	}
	var sb strings.Builder
	for i, item := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, item)
	}
	return sb.String()
}
