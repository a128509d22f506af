// Package store defines the persistence contracts for claims and their
// audit records. Implementations: memory (tests, local runs) and postgres.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/clearway/claimflow/claim"
)

// ListFilter narrows claim listings. Zero values match everything.
type ListFilter struct {
	UserID string
	Status claim.Status
	Limit  int
	Offset int
}

// ClaimStore persists claims.
type ClaimStore interface {
	Create(ctx context.Context, c *claim.Claim) error
	Get(ctx context.Context, id uuid.UUID) (*claim.Claim, error)
	GetByNumber(ctx context.Context, claimNumber string) (*claim.Claim, error)
	List(ctx context.Context, f ListFilter) ([]*claim.Claim, error)
	Update(ctx context.Context, c *claim.Claim) error
	CountByStatus(ctx context.Context) (map[claim.Status]int, error)
}

// StepStore is the append-only audit trail. Steps are never updated or
// deleted; ListByClaim returns them ordered by started_at, then sequence.
type StepStore interface {
	Append(ctx context.Context, s *claim.Step) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*claim.Step, error)
	NextSeq(ctx context.Context, claimID uuid.UUID) (int, error)
}

// DecisionStore persists synthesized decisions, one per claim per run.
// Save overwrites the system decision on reprocessing; Finalize only sets
// the reviewer fields.
type DecisionStore interface {
	Save(ctx context.Context, d *claim.Decision) error
	GetByClaim(ctx context.Context, claimID uuid.UUID) (*claim.Decision, error)
	Finalize(ctx context.Context, claimID uuid.UUID, final claim.Outcome, reviewer, notes string) (*claim.Decision, error)
}

// DetectionStore is the append-only guardrails findings log.
type DetectionStore interface {
	Append(ctx context.Context, d *claim.Detection) error
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*claim.Detection, error)
}

// ContractStore reads policy contracts. Read-mostly during orchestration.
type ContractStore interface {
	Save(ctx context.Context, c *claim.Contract) error
	Get(ctx context.Context, id uuid.UUID) (*claim.Contract, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*claim.Contract, error)
}

// KnowledgeStore holds knowledge-base entries.
type KnowledgeStore interface {
	Save(ctx context.Context, e *claim.KnowledgeEntry) error
	Get(ctx context.Context, id uuid.UUID) (*claim.KnowledgeEntry, error)
}

// DocumentStore persists extracted claim documents.
type DocumentStore interface {
	Save(ctx context.Context, d *claim.Document) error
	GetByClaim(ctx context.Context, claimID uuid.UUID) (*claim.Document, error)
}

// Stores aggregates every persistence contract behind one wiring point.
type Stores struct {
	Claims     ClaimStore
	Steps      StepStore
	Decisions  DecisionStore
	Detections DetectionStore
	Contracts  ContractStore
	Knowledge  KnowledgeStore
	Documents  DocumentStore
}
