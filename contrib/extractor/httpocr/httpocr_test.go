package httpocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clearway/claimflow/tools"
)

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" {
			t.Errorf("path = %s, want /extract", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["document_path"] != "/claims/CLM-1.pdf" {
			t.Errorf("document_path = %q", req["document_path"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"raw_text": "invoice for annual physical",
			"structured_fields": map[string]any{
				"amount": map[string]any{"value": "250", "confidence": 0.95},
			},
			"confidence": 0.92,
		})
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	extraction, err := e.Extract(context.Background(), tools.ExtractRequest{
		DocumentPath: "/claims/CLM-1.pdf",
		DocumentType: "invoice",
	})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if extraction.RawText != "invoice for annual physical" {
		t.Errorf("RawText = %q", extraction.RawText)
	}
	if extraction.OverallConfidence != 0.92 {
		t.Errorf("OverallConfidence = %v, want 0.92", extraction.OverallConfidence)
	}
	if f, ok := extraction.Fields["amount"]; !ok || f.Confidence != 0.95 {
		t.Errorf("Fields[amount] = %+v", f)
	}
}

func TestExtractServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL})
	if _, err := e.Extract(context.Background(), tools.ExtractRequest{DocumentPath: "/x.pdf"}); err == nil {
		t.Fatal("non-200 response should be an error")
	}
}

func TestExtractUnreachable(t *testing.T) {
	e := New(Config{BaseURL: "http://127.0.0.1:1"})
	if _, err := e.Extract(context.Background(), tools.ExtractRequest{DocumentPath: "/x.pdf"}); err == nil {
		t.Fatal("unreachable service should be an error")
	}
}
