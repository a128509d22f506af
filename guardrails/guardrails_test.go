package guardrails

import (
	"testing"

	"github.com/google/uuid"
)

func findingTypes(findings []Finding) map[string]Finding {
	out := make(map[string]Finding, len(findings))
	for _, f := range findings {
		out[f.DetectionType] = f
	}
	return out
}

func TestScanDetectsEmail(t *testing.T) {
	findings := NewScanner().Scan("Contact the claimant at jane.doe@example.com for details.")

	byType := findingTypes(findings)
	f, ok := byType["pii_email"]
	if !ok {
		t.Fatal("Expected pii_email finding")
	}
	if len(f.Fields) != 1 || f.Fields[0] != "jane.doe@example.com" {
		t.Errorf("Expected matched address, got %v", f.Fields)
	}
}

func TestScanDetectsPhoneAndNationalID(t *testing.T) {
	findings := NewScanner().Scan("Phone: (555) 123-4567, SSN 123-45-6789.")

	byType := findingTypes(findings)
	if _, ok := byType["pii_phone"]; !ok {
		t.Error("Expected pii_phone finding")
	}
	f, ok := byType["pii_national_id"]
	if !ok {
		t.Fatal("Expected pii_national_id finding")
	}
	if f.Severity != "high" {
		t.Errorf("Expected high severity for national id, got %s", f.Severity)
	}
}

func TestScanDetectsDateOfBirth(t *testing.T) {
	findings := NewScanner().Scan("Patient DOB: 04/12/1985, annual physical examination.")

	if _, ok := findingTypes(findings)["pii_date_of_birth"]; !ok {
		t.Error("Expected pii_date_of_birth finding")
	}
}

func TestScanCleanText(t *testing.T) {
	findings := NewScanner().Scan("Annual physical examination, covered under the health plan.")

	if len(findings) != 0 {
		t.Errorf("Expected no findings for clean text, got %v", findings)
	}
}

func TestScanEmptyText(t *testing.T) {
	if findings := NewScanner().Scan(""); findings != nil {
		t.Errorf("Expected nil for empty text, got %v", findings)
	}
}

func TestScanDeduplicatesMatches(t *testing.T) {
	findings := NewScanner().Scan("jane@example.com appears twice: jane@example.com")

	f := findingTypes(findings)["pii_email"]
	if len(f.Fields) != 1 {
		t.Errorf("Expected duplicate matches collapsed, got %v", f.Fields)
	}
}

func TestDetectionsCarrySourceStep(t *testing.T) {
	claimID := uuid.New()
	findings := NewScanner().Scan("Reach me at jane@example.com")

	detections := Detections(claimID, "extract_document", findings)
	if len(detections) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(detections))
	}
	d := detections[0]
	if d.ClaimID != claimID {
		t.Error("Expected claim id carried through")
	}
	if d.SourceStep != "extract_document" {
		t.Errorf("Expected source step recorded, got %s", d.SourceStep)
	}
	if d.ActionTaken != "logged" {
		t.Errorf("Expected advisory action, got %s", d.ActionTaken)
	}
}
