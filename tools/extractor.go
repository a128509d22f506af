package tools

import (
	"context"

	"github.com/clearway/claimflow/claim"
)

// ExtractRequest identifies the document to extract.
type ExtractRequest struct {
	DocumentPath string
	DocumentType string
	Language     string
}

// Extraction is the structured output of a document extraction.
type Extraction struct {
	RawText           string                     `json:"raw_text"`
	Fields            map[string]claim.FieldValue `json:"structured_fields"`
	OverallConfidence float64                    `json:"confidence"`
}

// Extractor converts a claim document into text and typed fields.
// Implementations live under contrib/extractor.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*Extraction, error)
}
