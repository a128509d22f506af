package claim

import "testing"

func TestNewClaim(t *testing.T) {
	c := New("CLM-2024-0001", "USER001", "Health Insurance", "/claims/CLM-2024-0001.pdf")
	if c.ID.String() == "" {
		t.Error("New should assign an ID")
	}
	if c.Status != StatusPending {
		t.Errorf("status = %s, want %s", c.Status, StatusPending)
	}
	if c.SubmittedAt.IsZero() {
		t.Error("New should set SubmittedAt")
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusManualReview, true},
		{StatusProcessing, StatusFailed, true},
		{StatusManualReview, StatusProcessing, true},
		{StatusManualReview, StatusCompleted, true},
		{StatusFailed, StatusProcessing, true},
		{StatusPendingInfo, StatusProcessing, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusPending, StatusManualReview, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestTransitionRejectsInvalid(t *testing.T) {
	c := New("CLM-1", "USER001", "Health Insurance", "/d.pdf")
	if err := c.Transition(StatusCompleted); err == nil {
		t.Fatal("pending -> completed should be rejected")
	}
	if c.Status != StatusPending {
		t.Errorf("failed transition must not change status, got %s", c.Status)
	}
	if err := c.Transition(StatusProcessing); err != nil {
		t.Fatalf("pending -> processing should be allowed: %v", err)
	}
}

func TestOutcomeValid(t *testing.T) {
	for _, o := range []Outcome{OutcomeApprove, OutcomeDeny, OutcomeManualReview} {
		if !o.Valid() {
			t.Errorf("%s should be valid", o)
		}
	}
	if Outcome("escalate").Valid() {
		t.Error("escalate should not be a valid outcome")
	}
}

func TestDecisionEffective(t *testing.T) {
	d := &Decision{Decision: OutcomeManualReview}
	if d.Finalized() {
		t.Error("decision without reviewer input should not be finalized")
	}
	if d.Effective() != OutcomeManualReview {
		t.Errorf("Effective() = %s, want system decision", d.Effective())
	}

	d.FinalDecision = OutcomeApprove
	if !d.Finalized() {
		t.Error("decision with reviewer input should be finalized")
	}
	if d.Effective() != OutcomeApprove {
		t.Errorf("Effective() = %s, want reviewer decision", d.Effective())
	}
}
