package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clearway/claimflow/claim"
)

// In-memory stores back tests and local runs. They intentionally favor
// clarity over performance.

// NewMemoryStores wires a full in-memory persistence layer.
func NewMemoryStores() *Stores {
	return &Stores{
		Claims:     NewMemoryClaimStore(),
		Steps:      NewMemoryStepStore(),
		Decisions:  NewMemoryDecisionStore(),
		Detections: NewMemoryDetectionStore(),
		Contracts:  NewMemoryContractStore(),
		Knowledge:  NewMemoryKnowledgeStore(),
		Documents:  NewMemoryDocumentStore(),
	}
}

type MemoryClaimStore struct {
	mu     sync.RWMutex
	claims map[uuid.UUID]claim.Claim
}

func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{claims: make(map[uuid.UUID]claim.Claim)}
}

func (s *MemoryClaimStore) Create(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[c.ID]; exists {
		return claim.ErrAlreadyExists
	}
	for _, existing := range s.claims {
		if existing.ClaimNumber == c.ClaimNumber {
			return claim.ErrAlreadyExists
		}
	}
	s.claims[c.ID] = *c
	return nil
}

func (s *MemoryClaimStore) Get(_ context.Context, id uuid.UUID) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.claims[id]; ok {
		return &c, nil
	}
	return nil, claim.ErrNotFound
}

func (s *MemoryClaimStore) GetByNumber(_ context.Context, claimNumber string) (*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.claims {
		if c.ClaimNumber == claimNumber {
			out := c
			return &out, nil
		}
	}
	return nil, claim.ErrNotFound
}

func (s *MemoryClaimStore) List(_ context.Context, f ListFilter) ([]*claim.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]*claim.Claim, 0, len(s.claims))
	for _, c := range s.claims {
		if f.UserID != "" && c.UserID != f.UserID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out := c
		matched = append(matched, &out)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})
	return paginate(matched, f.Offset, f.Limit), nil
}

func (s *MemoryClaimStore) Update(_ context.Context, c *claim.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[c.ID]; !exists {
		return claim.ErrNotFound
	}
	s.claims[c.ID] = *c
	return nil
}

func (s *MemoryClaimStore) CountByStatus(_ context.Context) (map[claim.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[claim.Status]int)
	for _, c := range s.claims {
		counts[c.Status]++
	}
	return counts, nil
}

type MemoryStepStore struct {
	mu    sync.RWMutex
	steps map[uuid.UUID][]claim.Step
}

func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{steps: make(map[uuid.UUID][]claim.Step)}
}

func (s *MemoryStepStore) Append(_ context.Context, step *claim.Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	s.steps[step.ClaimID] = append(s.steps[step.ClaimID], *step)
	return nil
}

func (s *MemoryStepStore) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*claim.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.steps[claimID]
	out := make([]*claim.Step, len(stored))
	for i := range stored {
		step := stored[i]
		out[i] = &step
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

func (s *MemoryStepStore) NextSeq(_ context.Context, claimID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := 0
	for _, step := range s.steps[claimID] {
		if step.Seq > max {
			max = step.Seq
		}
	}
	return max + 1, nil
}

type MemoryDecisionStore struct {
	mu        sync.RWMutex
	decisions map[uuid.UUID]claim.Decision
}

func NewMemoryDecisionStore() *MemoryDecisionStore {
	return &MemoryDecisionStore{decisions: make(map[uuid.UUID]claim.Decision)}
}

func (s *MemoryDecisionStore) Save(_ context.Context, d *claim.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.decisions[d.ClaimID] = *d
	return nil
}

func (s *MemoryDecisionStore) GetByClaim(_ context.Context, claimID uuid.UUID) (*claim.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.decisions[claimID]; ok {
		return &d, nil
	}
	return nil, claim.ErrNotFound
}

func (s *MemoryDecisionStore) Finalize(_ context.Context, claimID uuid.UUID, final claim.Outcome, reviewer, notes string) (*claim.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decisions[claimID]
	if !ok {
		return nil, claim.ErrNotFound
	}
	if d.Finalized() {
		return nil, claim.ErrAlreadyFinalized
	}
	now := time.Now().UTC()
	d.FinalDecision = final
	d.FinalDecisionBy = reviewer
	d.FinalDecisionAt = &now
	d.ReviewNotes = notes
	s.decisions[claimID] = d
	return &d, nil
}

type MemoryDetectionStore struct {
	mu         sync.RWMutex
	detections map[uuid.UUID][]claim.Detection
}

func NewMemoryDetectionStore() *MemoryDetectionStore {
	return &MemoryDetectionStore{detections: make(map[uuid.UUID][]claim.Detection)}
}

func (s *MemoryDetectionStore) Append(_ context.Context, d *claim.Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.detections[d.ClaimID] = append(s.detections[d.ClaimID], *d)
	return nil
}

func (s *MemoryDetectionStore) ListByClaim(_ context.Context, claimID uuid.UUID) ([]*claim.Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.detections[claimID]
	out := make([]*claim.Detection, len(stored))
	for i := range stored {
		d := stored[i]
		out[i] = &d
	}
	return out, nil
}

type MemoryContractStore struct {
	mu        sync.RWMutex
	contracts map[uuid.UUID]claim.Contract
}

func NewMemoryContractStore() *MemoryContractStore {
	return &MemoryContractStore{contracts: make(map[uuid.UUID]claim.Contract)}
}

func (s *MemoryContractStore) Save(_ context.Context, c *claim.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.contracts[c.ID] = *c
	return nil
}

func (s *MemoryContractStore) Get(_ context.Context, id uuid.UUID) (*claim.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.contracts[id]; ok {
		return &c, nil
	}
	return nil, claim.ErrNotFound
}

func (s *MemoryContractStore) ListActiveByUser(_ context.Context, userID string) ([]*claim.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*claim.Contract, 0)
	for _, c := range s.contracts {
		if c.UserID != userID || !c.Active {
			continue
		}
		contract := c
		out = append(out, &contract)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ContractNumber < out[j].ContractNumber
	})
	return out, nil
}

type MemoryKnowledgeStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]claim.KnowledgeEntry
}

func NewMemoryKnowledgeStore() *MemoryKnowledgeStore {
	return &MemoryKnowledgeStore{entries: make(map[uuid.UUID]claim.KnowledgeEntry)}
}

func (s *MemoryKnowledgeStore) Save(_ context.Context, e *claim.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	s.entries[e.ID] = *e
	return nil
}

func (s *MemoryKnowledgeStore) Get(_ context.Context, id uuid.UUID) (*claim.KnowledgeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entries[id]; ok {
		return &e, nil
	}
	return nil, claim.ErrNotFound
}

type MemoryDocumentStore struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]claim.Document
}

func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[uuid.UUID]claim.Document)}
}

func (s *MemoryDocumentStore) Save(_ context.Context, d *claim.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	s.docs[d.ClaimID] = *d
	return nil
}

func (s *MemoryDocumentStore) GetByClaim(_ context.Context, claimID uuid.UUID) (*claim.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.docs[claimID]; ok {
		return &d, nil
	}
	return nil, claim.ErrNotFound
}

func paginate(claims []*claim.Claim, offset, limit int) []*claim.Claim {
	if offset >= len(claims) {
		return []*claim.Claim{}
	}
	claims = claims[offset:]
	if limit > 0 && len(claims) > limit {
		claims = claims[:limit]
	}
	return claims
}
