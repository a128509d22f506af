package reasoner

import (
	"strings"
	"testing"

	"github.com/clearway/claimflow/claim"
)

func TestParseDecisionFencedJSON(t *testing.T) {
	text := "Here is my analysis:\n```json\n{\"decision\": \"approve\", \"confidence\": 0.92, \"reasoning\": \"covered by contract\", \"relevant_policies\": [\"POLICY-001\"]}\n```"

	parsed := ParseDecision(text)

	if parsed.Decision != claim.OutcomeApprove {
		t.Errorf("Expected approve, got %s", parsed.Decision)
	}
	if parsed.Confidence != 0.92 {
		t.Errorf("Expected confidence 0.92, got %f", parsed.Confidence)
	}
	if parsed.Reasoning != "covered by contract" {
		t.Errorf("Expected reasoning preserved, got %q", parsed.Reasoning)
	}
	if len(parsed.Policies) != 1 || parsed.Policies[0] != "POLICY-001" {
		t.Errorf("Expected policies [POLICY-001], got %v", parsed.Policies)
	}
	if !parsed.Parsed {
		t.Error("Expected Parsed=true for fenced JSON")
	}
}

func TestParseDecisionBareJSON(t *testing.T) {
	text := `{"decision": "deny", "confidence": 0.8, "reasoning": "not covered"}`

	parsed := ParseDecision(text)

	if parsed.Decision != claim.OutcomeDeny {
		t.Errorf("Expected deny, got %s", parsed.Decision)
	}
	if parsed.Confidence != 0.8 {
		t.Errorf("Expected confidence 0.8, got %f", parsed.Confidence)
	}
}

func TestParseDecisionRecommendationAlias(t *testing.T) {
	text := `{"recommendation": "manual_review", "confidence": 0.4, "explanation": "ambiguous coverage"}`

	parsed := ParseDecision(text)

	if parsed.Decision != claim.OutcomeManualReview {
		t.Errorf("Expected manual_review, got %s", parsed.Decision)
	}
	if parsed.Reasoning != "ambiguous coverage" {
		t.Errorf("Expected explanation used as reasoning, got %q", parsed.Reasoning)
	}
}

func TestParseDecisionEmbeddedJSON(t *testing.T) {
	text := `Based on the evidence I recommend the following: {"decision": "approve", "confidence": 0.75, "reasoning": "within deductible"} Let me know if you need details.`

	parsed := ParseDecision(text)

	if parsed.Decision != claim.OutcomeApprove {
		t.Errorf("Expected approve from embedded JSON, got %s", parsed.Decision)
	}
}

func TestParseDecisionKeywordHeuristic(t *testing.T) {
	parsed := ParseDecision("After careful review, this claim should be approved. Confidence: 90%")

	if parsed.Decision != claim.OutcomeApprove {
		t.Errorf("Expected approve from keywords, got %s", parsed.Decision)
	}
	if parsed.Confidence > 0.6 {
		t.Errorf("Keyword parsing should cap confidence at 0.6, got %f", parsed.Confidence)
	}
	if !parsed.Parsed {
		t.Error("Expected Parsed=true for keyword match")
	}
}

func TestParseDecisionDenyKeyword(t *testing.T) {
	parsed := ParseDecision("The claim must be denied because the contract lapsed.")

	if parsed.Decision != claim.OutcomeDeny {
		t.Errorf("Expected deny, got %s", parsed.Decision)
	}
}

func TestParseDecisionFallback(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"I cannot determine an outcome from this data.",
		`{"decision": "escalate", "confidence": 0.9}`,
	} {
		parsed := ParseDecision(text)
		if parsed.Decision != claim.OutcomeManualReview {
			t.Errorf("ParseDecision(%q): expected manual_review fallback, got %s", text, parsed.Decision)
		}
		if parsed.Confidence != 0.0 {
			t.Errorf("ParseDecision(%q): expected confidence 0.0, got %f", text, parsed.Confidence)
		}
		if parsed.Parsed {
			t.Errorf("ParseDecision(%q): expected Parsed=false", text)
		}
	}
}

func TestParseDecisionFallbackNeverErrors(t *testing.T) {
	parsed := ParseDecision("}{ not json at all {{")
	if parsed.Decision != claim.OutcomeManualReview {
		t.Errorf("Expected manual_review for garbage input, got %s", parsed.Decision)
	}
	if !strings.Contains(parsed.Reasoning, "manual review") {
		t.Errorf("Expected fallback reasoning, got %q", parsed.Reasoning)
	}
}

func TestParseDecisionMissingConfidenceDefaults(t *testing.T) {
	parsed := ParseDecision(`{"decision": "approve", "reasoning": "looks fine"}`)

	if parsed.Confidence != 0.5 {
		t.Errorf("Expected default confidence 0.5, got %f", parsed.Confidence)
	}
}

func TestParseDecisionClampsConfidence(t *testing.T) {
	parsed := ParseDecision(`{"decision": "deny", "confidence": 1.7}`)

	if parsed.Confidence != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %f", parsed.Confidence)
	}
}
