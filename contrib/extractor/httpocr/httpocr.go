// Package httpocr implements tools.Extractor against an HTTP OCR service.
package httpocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/tools"
)

// Config holds OCR service connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Extractor calls a remote OCR service over HTTP.
type Extractor struct {
	config Config
	client *http.Client
}

// New creates an HTTP OCR extractor.
func New(cfg Config) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Extractor{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type extractRequest struct {
	DocumentPath string `json:"document_path"`
	DocumentType string `json:"document_type,omitempty"`
	Language     string `json:"language,omitempty"`
}

type extractResponse struct {
	RawText           string                      `json:"raw_text"`
	StructuredFields  map[string]claim.FieldValue `json:"structured_fields"`
	OverallConfidence float64                     `json:"confidence"`
}

// Extract sends the document reference to the OCR service and decodes the
// structured extraction it returns.
func (e *Extractor) Extract(ctx context.Context, req tools.ExtractRequest) (*tools.Extraction, error) {
	body, err := json.Marshal(extractRequest{
		DocumentPath: req.DocumentPath,
		DocumentType: req.DocumentType,
		Language:     req.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal extract request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build extract request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocr service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr service returned status %d for %s", resp.StatusCode, req.DocumentPath)
	}

	var decoded extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	return &tools.Extraction{
		RawText:           decoded.RawText,
		Fields:            decoded.StructuredFields,
		OverallConfidence: decoded.OverallConfidence,
	}, nil
}
