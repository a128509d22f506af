package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/contrib/vector/inmemory"
	"github.com/clearway/claimflow/engine"
	"github.com/clearway/claimflow/message"
	"github.com/clearway/claimflow/retrieval"
	"github.com/clearway/claimflow/store"
	"github.com/clearway/claimflow/tools"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (stubEmbedder) Dimension() int { return 3 }

type stubExtractor struct{}

func (stubExtractor) Extract(_ context.Context, _ tools.ExtractRequest) (*tools.Extraction, error) {
	return &tools.Extraction{RawText: "routine checkup invoice", OverallConfidence: 0.9}, nil
}

// decisiveReasoner skips tool use and answers synthesis with a fixed decision.
type decisiveReasoner struct {
	decision string
}

func (d *decisiveReasoner) Generate(_ context.Context, _ []*message.Message, toolSchemas []map[string]any) (*message.Message, error) {
	if len(toolSchemas) == 0 {
		return message.New(message.RoleAssistant, d.decision), nil
	}
	return message.New(message.RoleAssistant, "No further evidence needed."), nil
}

func newTestHandler(t *testing.T) (*Handler, *store.Stores) {
	t.Helper()
	stores := store.NewMemoryStores()
	deps := tools.Deps{
		Extractor: stubExtractor{},
		Retriever: retrieval.New(stubEmbedder{}, inmemory.New()),
		Reasoner:  &decisiveReasoner{decision: `{"decision": "approve", "confidence": 0.9, "reasoning": "covered"}`},
		Stores:    stores,
	}
	e := engine.New(deps.Reasoner, deps)
	return New(e, stores), stores
}

func doRequest(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateClaim(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/claims", createRequest{
		ClaimNumber: "CLM-2024-0001", UserID: "USER001",
		ClaimType: "Health Insurance", DocumentPath: "/claims/CLM-2024-0001.pdf",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != string(claim.StatusPending) {
		t.Errorf("new claim status = %v, want %s", body["status"], claim.StatusPending)
	}

	// same claim number again
	rec = doRequest(t, h, http.MethodPost, "/claims", createRequest{
		ClaimNumber: "CLM-2024-0001", UserID: "USER001", DocumentPath: "/x.pdf",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", rec.Code)
	}
}

func TestCreateClaimValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/claims", createRequest{UserID: "USER001"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListClaimsFiltersByUser(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	for _, tc := range []struct{ number, user string }{
		{"CLM-1", "USER001"}, {"CLM-2", "USER001"}, {"CLM-3", "USER002"},
	} {
		c := claim.New(tc.number, tc.user, "Health Insurance", "/d.pdf")
		if err := stores.Claims.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/claims?user_id=USER001", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestProcessAcceptedAndCompletes(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	c := claim.New("CLM-10", "USER001", "Health Insurance", "/claims/CLM-10.pdf")
	if err := stores.Claims.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/process", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	h.Wait()

	got, err := stores.Claims.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != claim.StatusCompleted {
		t.Errorf("status after processing = %s, want %s", got.Status, claim.StatusCompleted)
	}

	rec = doRequest(t, h, http.MethodGet, "/claims/"+c.ID.String()+"/decision", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("decision status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["decision"] != string(claim.OutcomeApprove) {
		t.Errorf("decision = %v, want approve", body["decision"])
	}
}

func TestProcessConflicts(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()

	c := claim.New("CLM-11", "USER001", "Health Insurance", "/d.pdf")
	if err := stores.Claims.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	c.Status = claim.StatusProcessing
	if err := stores.Claims.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec := doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/process", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("processing claim: status = %d, want 409", rec.Code)
	}

	c.Status = claim.StatusCompleted
	if err := stores.Claims.Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rec = doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/process", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("completed claim: status = %d, want 409", rec.Code)
	}
}

func TestProcessUnknownClaim(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doRequest(t, h, http.MethodPost, "/claims/"+uuid.NewString()+"/process", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/claims/not-a-uuid/process", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatusIncludesSteps(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	c := claim.New("CLM-12", "USER001", "Health Insurance", "/d.pdf")
	if err := stores.Claims.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := stores.Steps.Append(ctx, &claim.Step{ClaimID: c.ID, Seq: 1, Step: "extract_document", Status: claim.StepCompleted}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/claims/"+c.ID.String()+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	steps, ok := body["steps"].([]any)
	if !ok || len(steps) != 1 {
		t.Errorf("steps = %v, want one entry", body["steps"])
	}
}

func TestLogsIncludeDetections(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	c := claim.New("CLM-13", "USER001", "Health Insurance", "/d.pdf")
	if err := stores.Claims.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := stores.Detections.Append(ctx, &claim.Detection{
		ClaimID: c.ID, DetectionType: "pii_email", Severity: "medium",
		SourceStep: "extract_document", ActionTaken: "logged",
	}); err != nil {
		t.Fatalf("Append detection: %v", err)
	}

	rec := doRequest(t, h, http.MethodGet, "/claims/"+c.ID.String()+"/logs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	detections, ok := body["detections"].([]any)
	if !ok || len(detections) != 1 {
		t.Errorf("detections = %v, want one entry", body["detections"])
	}
}

func TestReviewFinalizesDecision(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	c := claim.New("CLM-14", "USER001", "Health Insurance", "/d.pdf")
	c.Status = claim.StatusManualReview
	if err := stores.Claims.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := stores.Decisions.Save(ctx, &claim.Decision{
		ID: uuid.New(), ClaimID: c.ID,
		Decision: claim.OutcomeManualReview, Confidence: 0.4,
		Reasoning: "ambiguous coverage",
	}); err != nil {
		t.Fatalf("Save decision: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/review", reviewRequest{
		FinalDecision: "approve", Reviewer: "adjuster-7", Notes: "coverage confirmed by phone",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["final_decision"] != string(claim.OutcomeApprove) {
		t.Errorf("final_decision = %v, want approve", body["final_decision"])
	}

	got, err := stores.Claims.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != claim.StatusCompleted {
		t.Errorf("status = %s, want %s", got.Status, claim.StatusCompleted)
	}

	// second review must not overwrite
	rec = doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/review", reviewRequest{
		FinalDecision: "deny", Reviewer: "adjuster-8",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("second review status = %d, want 409", rec.Code)
	}
}

func TestReviewValidation(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	c := claim.New("CLM-15", "USER001", "Health Insurance", "/d.pdf")
	c.Status = claim.StatusManualReview
	if err := stores.Claims.Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/review", reviewRequest{
		FinalDecision: "escalate", Reviewer: "adjuster-7",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid outcome status = %d, want 400", rec.Code)
	}
	rec = doRequest(t, h, http.MethodPost, "/claims/"+c.ID.String()+"/review", reviewRequest{
		FinalDecision: "approve",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing reviewer status = %d, want 400", rec.Code)
	}
}

func TestStatisticsOverview(t *testing.T) {
	h, stores := newTestHandler(t)
	ctx := context.Background()
	for i, status := range []claim.Status{claim.StatusPending, claim.StatusPending, claim.StatusCompleted} {
		c := claim.New("CLM-2"+string(rune('0'+i)), "USER001", "Health Insurance", "/d.pdf")
		c.Status = status
		if err := stores.Claims.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	rec := doRequest(t, h, http.MethodGet, "/claims/statistics/overview", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"].(float64) != 3 {
		t.Errorf("total = %v, want 3", body["total"])
	}
	byStatus := body["by_status"].(map[string]any)
	if byStatus[string(claim.StatusPending)].(float64) != 2 {
		t.Errorf("pending = %v, want 2", byStatus[string(claim.StatusPending)])
	}
}

func TestHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, path := range []string{"/healthz/live", "/healthz/ready"} {
		rec := doRequest(t, h, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
