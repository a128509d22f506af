package reasoner

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/clearway/claimflow/claim"
)

// ParsedDecision is the structured output of decision synthesis.
type ParsedDecision struct {
	Decision   claim.Outcome
	Confidence float64
	Reasoning  string
	Policies   []string
	// Parsed is false when the response could not be decoded and the
	// manual-review fallback was applied.
	Parsed bool
}

// FallbackReasoning marks decisions produced by the parse-failure path.
const FallbackReasoning = "unable to parse decision output, flagging for manual review"

type decisionPayload struct {
	Decision       string   `json:"decision"`
	Recommendation string   `json:"recommendation"`
	Confidence     *float64 `json:"confidence"`
	Reasoning      string   `json:"reasoning"`
	Explanation    string   `json:"explanation"`
	Policies       []string `json:"relevant_policies"`
}

var (
	fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bareJSON   = regexp.MustCompile(`(?s)\{.*\}`)
	confidence = regexp.MustCompile(`confidence[:\s]+(\d+(?:\.\d+)?)\s*%?`)
)

// ParseDecision decodes a synthesis response. Decoding is layered: a fenced
// JSON block, then a bare JSON object, then conservative keyword heuristics
// at reduced confidence. When nothing matches, the decision falls back to
// manual_review with confidence 0 — a recoverable condition, never fatal.
func ParseDecision(text string) ParsedDecision {
	fallback := ParsedDecision{
		Decision:   claim.OutcomeManualReview,
		Confidence: 0.0,
		Reasoning:  FallbackReasoning,
	}
	if strings.TrimSpace(text) == "" {
		return fallback
	}

	for _, candidate := range jsonCandidates(text) {
		var payload decisionPayload
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			continue
		}
		if parsed, ok := fromPayload(payload); ok {
			return parsed
		}
	}

	if parsed, ok := fromKeywords(text); ok {
		return parsed
	}
	return fallback
}

func jsonCandidates(text string) []string {
	candidates := make([]string, 0, 3)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	candidates = append(candidates, strings.TrimSpace(text))
	if m := bareJSON.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	return candidates
}

func fromPayload(payload decisionPayload) (ParsedDecision, bool) {
	label := payload.Decision
	if label == "" {
		label = payload.Recommendation
	}
	outcome := claim.Outcome(strings.ToLower(strings.TrimSpace(label)))
	if !outcome.Valid() {
		return ParsedDecision{}, false
	}

	conf := 0.5
	if payload.Confidence != nil {
		conf = clampConfidence(*payload.Confidence)
	}
	reasoning := payload.Reasoning
	if reasoning == "" {
		reasoning = payload.Explanation
	}
	return ParsedDecision{
		Decision:   outcome,
		Confidence: conf,
		Reasoning:  reasoning,
		Policies:   payload.Policies,
		Parsed:     true,
	}, true
}

// fromKeywords infers a decision from free text. Confidence is capped low
// because the structured output contract was not honored.
func fromKeywords(text string) (ParsedDecision, bool) {
	lower := strings.ToLower(text)

	var outcome claim.Outcome
	switch {
	case strings.Contains(lower, "approve") || strings.Contains(lower, "approved"):
		outcome = claim.OutcomeApprove
	case strings.Contains(lower, "deny") || strings.Contains(lower, "denied") || strings.Contains(lower, "reject"):
		outcome = claim.OutcomeDeny
	case strings.Contains(lower, "manual") || strings.Contains(lower, "review") || strings.Contains(lower, "uncertain"):
		outcome = claim.OutcomeManualReview
	default:
		return ParsedDecision{}, false
	}

	conf := 0.5
	if m := confidence.FindStringSubmatch(lower); m != nil {
		if v, err := parseFloat(m[1]); err == nil {
			if v > 1 {
				v /= 100
			}
			conf = clampConfidence(v)
		}
	}
	if conf > 0.6 {
		conf = 0.6
	}

	return ParsedDecision{
		Decision:   outcome,
		Confidence: conf,
		Reasoning:  strings.TrimSpace(text),
		Parsed:     true,
	}, true
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func parseFloat(s string) (float64, error) {
	var v float64
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
