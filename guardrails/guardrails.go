// Package guardrails scans claim text for personally identifiable
// information. Scanning is advisory: findings are recorded for compliance
// review and never influence a claim's status or decision.
package guardrails

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/clearway/claimflow/claim"
)

// Finding is one category of PII detected in a scan.
type Finding struct {
	DetectionType string
	Severity      string
	Fields        []string
	Confidence    float64
}

type pattern struct {
	detectionType string
	severity      string
	confidence    float64
	re            *regexp.Regexp
}

// Scanner detects PII with regular expressions. Pattern matching trades
// recall for determinism; ambiguous identifiers are flagged at lower
// confidence rather than suppressed.
type Scanner struct {
	patterns []pattern
}

// NewScanner builds the default scanner.
func NewScanner() *Scanner {
	return &Scanner{
		patterns: []pattern{
			{
				detectionType: "pii_email",
				severity:      "medium",
				confidence:    0.95,
				re:            regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			},
			{
				detectionType: "pii_phone",
				severity:      "medium",
				confidence:    0.8,
				re:            regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
			},
			{
				detectionType: "pii_national_id",
				severity:      "high",
				confidence:    0.9,
				re:            regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			},
			{
				detectionType: "pii_date_of_birth",
				severity:      "medium",
				confidence:    0.7,
				re:            regexp.MustCompile(`(?i)\b(?:dob|date of birth|born)\b[:\s]*\d{1,4}[/\-.]\d{1,2}[/\-.]\d{1,4}`),
			},
			{
				detectionType: "pii_credit_card",
				severity:      "high",
				confidence:    0.75,
				re:            regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`),
			},
		},
	}
}

// Scan returns one finding per detected PII category with the matched
// spans. An empty slice means a clean text.
func (s *Scanner) Scan(text string) []Finding {
	if text == "" {
		return nil
	}
	findings := make([]Finding, 0)
	for _, p := range s.patterns {
		matches := p.re.FindAllString(text, -1)
		if len(matches) == 0 {
			continue
		}
		findings = append(findings, Finding{
			DetectionType: p.detectionType,
			Severity:      p.severity,
			Fields:        dedupe(matches),
			Confidence:    p.confidence,
		})
	}
	return findings
}

// Detections converts scan findings into audit records for a claim step.
func Detections(claimID uuid.UUID, sourceStep string, findings []Finding) []*claim.Detection {
	now := time.Now().UTC()
	out := make([]*claim.Detection, 0, len(findings))
	for _, f := range findings {
		out = append(out, &claim.Detection{
			ID:             uuid.New(),
			ClaimID:        claimID,
			DetectionType:  f.DetectionType,
			Severity:       f.Severity,
			SourceStep:     sourceStep,
			DetectedFields: f.Fields,
			Confidence:     f.Confidence,
			ActionTaken:    "logged",
			DetectedAt:     now,
		})
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
