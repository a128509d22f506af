package claim

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and the engine.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAlreadyProcessing = errors.New("claim is already being processed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyFinalized  = errors.New("decision already finalized")
)

// allowed status transitions; the zero entry covers creation.
var transitions = map[Status][]Status{
	StatusPending:      {StatusProcessing},
	StatusProcessing:   {StatusCompleted, StatusFailed, StatusManualReview, StatusPendingInfo},
	StatusManualReview: {StatusProcessing, StatusCompleted, StatusFailed},
	StatusPendingInfo:  {StatusProcessing},
	StatusFailed:       {StatusProcessing},
}

// CanTransition reports whether a claim may move from one status to another.
// Terminal completion never transitions; failed and manual_review claims may
// re-enter processing so reprocessing is possible without data loss.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status change.
func (c *Claim) Transition(to Status) error {
	if !CanTransition(c.Status, to) {
		return fmt.Errorf("claim %s: %s -> %s: %w", c.ClaimNumber, c.Status, to, ErrInvalidTransition)
	}
	c.Status = to
	return nil
}

// Terminal reports whether the status ends processing for good.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}
