// Package engine runs the bounded reasoning loop that processes a claim:
// the reasoning engine picks tools, the engine executes them, folds results
// and failures back into the conversation, and synthesizes a decision from
// whatever evidence was gathered when the loop stops.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clearway/claimflow/claim"
	"github.com/clearway/claimflow/guardrails"
	"github.com/clearway/claimflow/message"
	"github.com/clearway/claimflow/metrics"
	"github.com/clearway/claimflow/pkg/logging"
	"github.com/clearway/claimflow/pkg/telemetry"
	"github.com/clearway/claimflow/prompt"
	"github.com/clearway/claimflow/reasoner"
	"github.com/clearway/claimflow/tool"
	"github.com/clearway/claimflow/tools"
)

const (
	defaultMaxIterations     = 10
	defaultToolTimeout       = 60 * time.Second
	defaultLLMTimeout        = 90 * time.Second
	defaultDecisionThreshold = 0.7

	stepDecisionSynthesis = "decision_synthesis"

	// maxEvidenceTokens bounds the extracted-document blob in the
	// synthesis prompt.
	maxEvidenceTokens = 4000
)

// Engine orchestrates claim processing.
type Engine struct {
	reasoner          reasoner.Client
	deps              tools.Deps
	scanner           *guardrails.Scanner
	locker            Locker
	metrics           *metrics.Metrics
	logger            *slog.Logger
	tracer            trace.Tracer
	model             string
	maxIterations     int
	toolTimeout       time.Duration
	llmTimeout        time.Duration
	decisionThreshold float64

	// tracks in-flight PII scans so Shutdown can drain them
	scans sync.WaitGroup
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxIterations bounds the number of tool calls per claim run.
func WithMaxIterations(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxIterations = n
		}
	}
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.toolTimeout = d
		}
	}
}

// WithLLMTimeout bounds each reasoning call.
func WithLLMTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.llmTimeout = d
		}
	}
}

// WithDecisionThreshold sets the minimum decision confidence for a claim to
// complete automatically; lower-confidence decisions are routed to manual
// review.
func WithDecisionThreshold(t float64) Option {
	return func(e *Engine) {
		if t > 0 && t <= 1 {
			e.decisionThreshold = t
		}
	}
}

// WithLocker replaces the process-local claim lock, e.g. with the Redis
// locker for multi-instance deployments.
func WithLocker(l Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithModel records the model name stamped on decisions.
func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine.
func New(r reasoner.Client, deps tools.Deps, opts ...Option) *Engine {
	e := &Engine{
		reasoner:          r,
		deps:              deps,
		scanner:           guardrails.NewScanner(),
		locker:            NewMemoryLocker(),
		logger:            logging.WithComponent("engine"),
		tracer:            otel.Tracer("claimflow/engine"),
		maxIterations:     defaultMaxIterations,
		toolTimeout:       defaultToolTimeout,
		llmTimeout:        defaultLLMTimeout,
		decisionThreshold: defaultDecisionThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one orchestration for the claim. At most one run per claim id
// may be active; a concurrent request fails with ErrAlreadyProcessing.
// Failed and manual_review claims may be reprocessed; prior audit records
// are retained.
func (e *Engine) Process(ctx context.Context, claimID uuid.UUID) (err error) {
	release, acquired, err := e.locker.Acquire(ctx, claimID.String())
	if err != nil {
		return fmt.Errorf("acquire claim lock: %w", err)
	}
	if !acquired {
		return claim.ErrAlreadyProcessing
	}
	defer release()

	c, err := e.deps.Stores.Claims.Get(ctx, claimID)
	if err != nil {
		return err
	}
	if c.Status == claim.StatusProcessing {
		return claim.ErrAlreadyProcessing
	}
	if err := c.Transition(claim.StatusProcessing); err != nil {
		return err
	}
	if err := e.deps.Stores.Claims.Update(ctx, c); err != nil {
		return fmt.Errorf("mark claim processing: %w", err)
	}

	ctx, span := e.tracer.Start(ctx, "claim.process", trace.WithAttributes(
		attribute.String("claim.id", c.ID.String()),
		attribute.String("claim.type", c.ClaimType),
	))
	defer func() { telemetry.End(span, err) }()

	started := time.Now()
	evidence, iterations, runErr := e.runLoop(ctx, c)
	if runErr != nil {
		e.markFailed(ctx, c, started)
		return runErr
	}
	e.metrics.ObserveIterations(iterations)

	decision, synthErr := e.synthesize(ctx, c, evidence)
	if synthErr != nil {
		e.markFailed(ctx, c, started)
		return synthErr
	}

	// A claim completes automatically only when the decision is decisive
	// and confident enough; everything else goes to a human.
	final := claim.StatusCompleted
	if decision.Decision == claim.OutcomeManualReview || decision.Confidence < e.decisionThreshold {
		final = claim.StatusManualReview
	}
	if err := c.Transition(final); err != nil {
		return err
	}
	now := time.Now().UTC()
	c.ProcessedAt = &now
	c.TotalProcessingTime = time.Since(started)
	if err := e.deps.Stores.Claims.Update(ctx, c); err != nil {
		return fmt.Errorf("finish claim: %w", err)
	}

	e.metrics.IncrementDecision(string(decision.Decision))
	e.metrics.ObserveProcess(string(final), time.Since(started))
	e.logger.Info("claim processed",
		"claim_id", c.ID,
		"decision", decision.Decision,
		"confidence", decision.Confidence,
		"iterations", iterations,
		"duration", time.Since(started))
	return nil
}

// runLoop drives the tool-calling conversation until the reasoning engine
// stops, the iteration cap is reached, or a structural failure occurs.
// Tool failures are folded back as observations and never abort the loop.
func (e *Engine) runLoop(ctx context.Context, c *claim.Claim) (*Evidence, int, error) {
	registry, err := tools.NewRegistry(e.deps, c)
	if err != nil {
		return nil, 0, err
	}
	schemas := registry.ToJSONSchemas()

	system, err := prompt.Orchestration(c)
	if err != nil {
		return nil, 0, err
	}
	conversation := []*message.Message{
		message.New(message.RoleSystem, system),
		message.New(message.RoleUser, "Gather the evidence needed to decide this claim, then stop."),
	}

	evidence := &Evidence{}
	iterations := 0
	for i := 0; i < e.maxIterations; i++ {
		iterations = i + 1
		reply, err := e.generate(ctx, conversation, schemas)
		if err != nil {
			// The reasoning engine being unreachable is structural, not a
			// tool failure.
			return nil, iterations, fmt.Errorf("reasoning call failed: %w", err)
		}
		conversation = append(conversation, reply)

		action := reasoner.DecodeNextAction(reply, func(name string) bool {
			_, ok := registry.Get(name)
			return ok
		})
		if action.Kind == reasoner.ActionTerminate {
			e.logger.Debug("reasoning loop terminated",
				"claim_id", c.ID, "iteration", iterations, "reason", action.Reason)
			break
		}

		observation := e.invokeTool(ctx, c, registry, action, evidence)
		conversation = append(conversation, message.NewToolResponse(action.CallID, observation))
	}
	return evidence, iterations, nil
}

// invokeTool executes one tool call, records its audit step, accumulates
// evidence, and returns the observation text for the conversation.
func (e *Engine) invokeTool(ctx context.Context, c *claim.Claim, registry *tool.Registry, action reasoner.NextAction, evidence *Evidence) string {
	t, _ := registry.Get(action.Tool)
	started := time.Now().UTC()

	toolCtx, cancel := context.WithTimeout(ctx, e.toolTimeout)
	toolCtx, span := e.tracer.Start(toolCtx, "claim.tool",
		trace.WithAttributes(attribute.String("tool.name", action.Tool)))
	result, err := t.Execute(toolCtx, action.Args)
	telemetry.End(span, err)
	cancel()
	completed := time.Now().UTC()

	step := &claim.Step{
		ClaimID:      c.ID,
		Step:         action.Tool,
		Agent:        t.Agent,
		StartedAt:    started,
		CompletedAt:  completed,
		Duration:     completed.Sub(started),
		InputSummary: summarizeArgs(action.Args),
	}
	if err != nil {
		step.Status = claim.StepFailed
		step.ErrorMessage = err.Error()
		e.metrics.ObserveTool(action.Tool, "failed", step.Duration)
		e.logger.Warn("tool failed", "claim_id", c.ID, "tool", action.Tool, "error", err)
	} else {
		step.Status = claim.StepCompleted
		step.Confidence = result.Confidence
		if data, marshalErr := json.Marshal(result.Output); marshalErr == nil {
			step.Output = data
		}
		e.metrics.ObserveTool(action.Tool, "completed", step.Duration)
	}
	e.appendStep(ctx, step)

	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}

	evidence.Observe(action.Tool, result)
	e.scanAsync(ctx, c.ID, action.Tool, result)
	return result.Text()
}

// scanAsync runs the PII scan off the processing path. Findings are
// recorded as detections; scanner or store failures are logged and dropped.
func (e *Engine) scanAsync(ctx context.Context, claimID uuid.UUID, sourceStep string, result *tool.Result) {
	text := result.Text()
	scanCtx := context.WithoutCancel(ctx)
	e.scans.Add(1)
	go func() {
		defer e.scans.Done()
		findings := e.scanner.Scan(text)
		for _, d := range guardrails.Detections(claimID, sourceStep, findings) {
			if err := e.deps.Stores.Detections.Append(scanCtx, d); err != nil {
				e.logger.Warn("failed to record guardrails detection",
					"claim_id", claimID, "type", d.DetectionType, "error", err)
				continue
			}
			e.metrics.IncrementDetection(d.DetectionType)
		}
	}()
}

// Drain waits for in-flight guardrails scans; called on shutdown.
func (e *Engine) Drain() {
	e.scans.Wait()
}

// truncateForPrompt caps a long evidence blob at a token boundary so the
// synthesis prompt stays inside the model context window. When tiktoken
// resolves neither the model nor the fallback encoding, the text passes
// through untruncated.
func (e *Engine) truncateForPrompt(text string) string {
	if text == "" {
		return text
	}
	tok, err := reasoner.NewTokenizer(e.model)
	if err != nil {
		tok, err = reasoner.NewTokenizer("cl100k_base")
		if err != nil {
			return text
		}
	}
	return tok.Truncate(text, maxEvidenceTokens)
}

// synthesize produces and persists the claim decision from the gathered
// evidence. A response that cannot be parsed falls back to manual review.
func (e *Engine) synthesize(ctx context.Context, c *claim.Claim, evidence *Evidence) (*claim.Decision, error) {
	started := time.Now().UTC()
	for _, f := range e.scanner.Scan(evidence.ExtractedData) {
		evidence.Guardrails = append(evidence.Guardrails,
			fmt.Sprintf("%s (%s severity, %d occurrence(s))", f.DetectionType, f.Severity, len(f.Fields)))
	}
	input := prompt.DecisionInput{
		ClaimID:       c.ClaimNumber,
		UserID:        c.UserID,
		ExtractedData: e.truncateForPrompt(evidence.ExtractedData),
		Contracts:     evidence.Contracts,
		SimilarClaims: evidence.SimilarClaims,
		Knowledge:     evidence.Knowledge,
		Guardrails:    joinGuardrails(evidence.Guardrails),
	}

	reply, err := e.generate(ctx, []*message.Message{
		message.New(message.RoleUser, prompt.Decision(input)),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("decision synthesis call failed: %w", err)
	}

	parsed := reasoner.ParseDecision(reply.Content)
	decision := &claim.Decision{
		ClaimID:    c.ID,
		Decision:   parsed.Decision,
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Evidence:   evidence.Cited(parsed.Policies),
		Model:      e.model,
		DecidedAt:  time.Now().UTC(),
	}
	if err := e.deps.Stores.Decisions.Save(ctx, decision); err != nil {
		return nil, fmt.Errorf("save decision: %w", err)
	}

	completed := time.Now().UTC()
	step := &claim.Step{
		ClaimID:     c.ID,
		Step:        stepDecisionSynthesis,
		Agent:       "reasoner",
		Status:      claim.StepCompleted,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
		Confidence:  parsed.Confidence,
	}
	if data, err := json.Marshal(decision); err == nil {
		step.Output = data
	}
	if !parsed.Parsed {
		step.ErrorMessage = "decision output unparseable, defaulted to manual review"
	}
	e.appendStep(ctx, step)
	return decision, nil
}

// Review records a human reviewer's final decision on a manual_review claim.
// The system decision is retained alongside the reviewer's.
func (e *Engine) Review(ctx context.Context, claimID uuid.UUID, final claim.Outcome, reviewer, notes string) (*claim.Decision, error) {
	if !final.Valid() {
		return nil, fmt.Errorf("invalid review outcome %q", final)
	}
	c, err := e.deps.Stores.Claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if c.Status != claim.StatusManualReview {
		return nil, fmt.Errorf("claim %s is %s: %w", c.ClaimNumber, c.Status, claim.ErrInvalidTransition)
	}

	decision, err := e.deps.Stores.Decisions.Finalize(ctx, claimID, final, reviewer, notes)
	if err != nil {
		return nil, err
	}

	target := claim.StatusCompleted
	if final == claim.OutcomeManualReview {
		// Reviewer kept the claim in review; nothing else to update.
		return decision, nil
	}
	if err := c.Transition(target); err != nil {
		return nil, err
	}
	if err := e.deps.Stores.Claims.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("finish reviewed claim: %w", err)
	}
	e.logger.Info("claim review finalized",
		"claim_id", claimID, "final_decision", final, "reviewer", reviewer)
	return decision, nil
}

func (e *Engine) generate(ctx context.Context, conversation []*message.Message, schemas []map[string]any) (*message.Message, error) {
	llmCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()
	return e.reasoner.Generate(llmCtx, conversation, schemas)
}

func (e *Engine) appendStep(ctx context.Context, step *claim.Step) {
	seq, err := e.deps.Stores.Steps.NextSeq(ctx, step.ClaimID)
	if err != nil {
		e.logger.Error("failed to allocate step sequence", "claim_id", step.ClaimID, "error", err)
		seq = 0
	}
	step.Seq = seq
	if err := e.deps.Stores.Steps.Append(ctx, step); err != nil {
		e.logger.Error("failed to append processing step",
			"claim_id", step.ClaimID, "step", step.Step, "error", err)
	}
}

func (e *Engine) markFailed(ctx context.Context, c *claim.Claim, started time.Time) {
	if err := c.Transition(claim.StatusFailed); err != nil {
		e.logger.Error("cannot mark claim failed", "claim_id", c.ID, "error", err)
		return
	}
	c.TotalProcessingTime = time.Since(started)
	if err := e.deps.Stores.Claims.Update(ctx, c); err != nil {
		e.logger.Error("failed to persist failed claim", "claim_id", c.ID, "error", err)
	}
	e.metrics.ObserveProcess(string(claim.StatusFailed), time.Since(started))
}

func summarizeArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	const maxSummary = 512
	if len(data) > maxSummary {
		return string(data[:maxSummary])
	}
	return string(data)
}

func joinGuardrails(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	out := ""
	for i, n := range notes {
		if i > 0 {
			out += "; "
		}
		out += n
	}
	return out
}
