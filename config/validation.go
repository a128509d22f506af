package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError is one failed configuration check.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator accumulates configuration checks so every problem is reported
// at once instead of one per startup attempt.
type Validator struct {
	errors []ValidationError
}

// NewValidator creates an empty validator.
func NewValidator() *Validator {
	return &Validator{}
}

// RequireNonEmpty checks that a string field is set.
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if value == "" {
		v.add(field, "value cannot be empty")
	}
	return v
}

// RequirePositiveDuration checks that a duration field is greater than zero.
func (v *Validator) RequirePositiveDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		v.add(field, fmt.Sprintf("duration must be positive, got %s", value))
	}
	return v
}

// ValidateRange checks that an integer field lies within [min, max].
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.add(field, fmt.Sprintf("value must be between %d and %d, got %d", min, max, value))
	}
	return v
}

// ValidateFloatRange checks that a float field lies within [min, max].
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.add(field, fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value))
	}
	return v
}

// ValidatePort checks that a port number is valid.
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber checks that a Redis database number is valid.
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf checks that a string value is one of the allowed options.
func (v *Validator) ValidateOneOf(field, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	v.add(field, fmt.Sprintf("value must be one of %v, got %q", allowed, value))
	return v
}

// HasErrors reports whether any check failed.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns all accumulated failures as one error, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:")
	for _, e := range v.errors {
		sb.WriteString("\n  - ")
		sb.WriteString(e.Error())
	}
	return errors.New(sb.String())
}

func (v *Validator) add(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}
