// Package claim holds the domain model for insurance claim processing:
// claims, their source documents, contracts, decisions, and the audit
// records produced while a claim moves through the orchestration loop.
package claim

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a claim.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusManualReview Status = "manual_review"
	StatusPendingInfo  Status = "pending_info"
)

// Claim is the unit of work driven through the orchestration loop. It is
// mutated only by the loop itself and by human reviewer actions.
type Claim struct {
	ID                  uuid.UUID      `json:"id"`
	ClaimNumber         string         `json:"claim_number"`
	UserID              string         `json:"user_id"`
	ClaimType           string         `json:"claim_type"`
	DocumentPath        string         `json:"document_path"`
	Status              Status         `json:"status"`
	SubmittedAt         time.Time      `json:"submitted_at"`
	ProcessedAt         *time.Time     `json:"processed_at,omitempty"`
	TotalProcessingTime time.Duration  `json:"total_processing_time_ms,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

// New creates a pending claim for the given user and document.
func New(claimNumber, userID, claimType, documentPath string) *Claim {
	return &Claim{
		ID:           uuid.New(),
		ClaimNumber:  claimNumber,
		UserID:       userID,
		ClaimType:    claimType,
		DocumentPath: documentPath,
		Status:       StatusPending,
		SubmittedAt:  time.Now().UTC(),
		Metadata:     make(map[string]any),
	}
}

// FieldValue is one extracted document field with the extractor's confidence.
type FieldValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// Document is a claim's source artifact plus its OCR output. Immutable once
// written, except that a missing embedding may be backfilled later.
type Document struct {
	ID                uuid.UUID             `json:"id"`
	ClaimID           uuid.UUID             `json:"claim_id"`
	RawText           string                `json:"raw_text"`
	Fields            map[string]FieldValue `json:"fields,omitempty"`
	OverallConfidence float64               `json:"overall_confidence"`
	Embedding         []float32             `json:"-"`
	CreatedAt         time.Time             `json:"created_at"`
}

// Contract is a policy record for a user. Read-only to the engine; only its
// embedding is ever queried during processing.
type Contract struct {
	ID             uuid.UUID `json:"id"`
	UserID         string    `json:"user_id"`
	ContractNumber string    `json:"contract_number"`
	ContractType   string    `json:"contract_type"`
	CoverageAmount float64   `json:"coverage_amount"`
	Deductible     float64   `json:"deductible"`
	Active         bool      `json:"is_active"`
	FullText       string    `json:"full_text"`
	KeyTerms       []string  `json:"key_terms,omitempty"`
	Embedding      []float32 `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// KnowledgeEntry is a policy or procedure document in the knowledge base.
type KnowledgeEntry struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Active    bool      `json:"is_active"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// StepStatus is the outcome of a single tool invocation.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step is one audit record per tool invocation. Steps are append-only and
// their insertion order is the execution order.
//
// Step names are an open vocabulary: new tools appear without a schema
// migration, and unknown names are stored as-is rather than rejected.
type Step struct {
	ID           uuid.UUID  `json:"id"`
	ClaimID      uuid.UUID  `json:"claim_id"`
	Seq          int        `json:"seq"`
	Step         string     `json:"step"`
	Agent        string     `json:"agent"`
	Status       StepStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  time.Time  `json:"completed_at"`
	Duration     time.Duration
	InputSummary string  `json:"input_summary,omitempty"`
	Output       []byte  `json:"output_data,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
}

// Outcome is an adjudication label.
type Outcome string

const (
	OutcomeApprove      Outcome = "approve"
	OutcomeDeny         Outcome = "deny"
	OutcomeManualReview Outcome = "manual_review"
)

// Valid reports whether o is one of the known adjudication labels.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeApprove, OutcomeDeny, OutcomeManualReview:
		return true
	}
	return false
}

// CitedEvidence references what the decision rests on, so provenance can be
// reconstructed after the fact.
type CitedEvidence struct {
	Policies       []string `json:"policies,omitempty"`
	SimilarClaims  []string `json:"similar_claims,omitempty"`
	ContractIDs    []string `json:"contract_ids,omitempty"`
	KnowledgeBases []string `json:"knowledge_base,omitempty"`
}

// Decision is the synthesized outcome for a claim. The system decision is
// written once; only the Final* fields may change afterwards, and only
// through a human reviewer action.
type Decision struct {
	ID         uuid.UUID     `json:"id"`
	ClaimID    uuid.UUID     `json:"claim_id"`
	Decision   Outcome       `json:"decision"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
	Evidence   CitedEvidence `json:"cited_evidence"`
	Model      string        `json:"model,omitempty"`
	DecidedAt  time.Time     `json:"decided_at"`

	FinalDecision   Outcome    `json:"final_decision,omitempty"`
	FinalDecisionBy string     `json:"final_decision_by,omitempty"`
	FinalDecisionAt *time.Time `json:"final_decision_at,omitempty"`
	ReviewNotes     string     `json:"review_notes,omitempty"`
}

// Finalized reports whether a human reviewer has recorded a final decision.
func (d *Decision) Finalized() bool {
	return d.FinalDecision != ""
}

// Effective returns the reviewer's final decision when one exists, falling
// back to the system decision.
func (d *Decision) Effective() Outcome {
	if d.Finalized() {
		return d.FinalDecision
	}
	return d.Decision
}

// Detection is a single non-blocking guardrails finding. Detections are
// append-only and never influence a claim's status or decision.
type Detection struct {
	ID             uuid.UUID `json:"id"`
	ClaimID        uuid.UUID `json:"claim_id"`
	DetectionType  string    `json:"detection_type"`
	Severity       string    `json:"severity"`
	SourceStep     string    `json:"source_step"`
	DetectedFields []string  `json:"detected_fields,omitempty"`
	Confidence     float64   `json:"confidence"`
	ActionTaken    string    `json:"action_taken"`
	DetectedAt     time.Time `json:"detected_at"`
}
