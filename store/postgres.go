package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	_ "github.com/lib/pq"

	"github.com/clearway/claimflow/claim"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DefaultPostgresConfig returns default PostgreSQL configuration.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		DBName:  "claimflow",
		SSLMode: "disable",
	}
}

// DSN renders the config as a lib/pq connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewPostgresStores connects to PostgreSQL, creates the schema if missing,
// and returns the full persistence layer.
func NewPostgresStores(ctx context.Context, config *PostgresConfig) (*Stores, *sql.DB, error) {
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := createSchema(pingCtx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Stores{
		Claims:     &PostgresClaimStore{db: db},
		Steps:      &PostgresStepStore{db: db},
		Decisions:  &PostgresDecisionStore{db: db},
		Detections: &PostgresDetectionStore{db: db},
		Contracts:  &PostgresContractStore{db: db},
		Knowledge:  &PostgresKnowledgeStore{db: db},
		Documents:  &PostgresDocumentStore{db: db},
	}, db, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS claims (
		id UUID PRIMARY KEY,
		claim_number VARCHAR(64) NOT NULL UNIQUE,
		user_id VARCHAR(64) NOT NULL,
		claim_type VARCHAR(64) NOT NULL,
		document_path TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		submitted_at TIMESTAMPTZ NOT NULL,
		processed_at TIMESTAMPTZ,
		total_processing_ms BIGINT NOT NULL DEFAULT 0,
		metadata JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_claims_user_id ON claims(user_id);
	CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);

	CREATE TABLE IF NOT EXISTS processing_logs (
		id UUID PRIMARY KEY,
		claim_id UUID NOT NULL REFERENCES claims(id),
		seq INTEGER NOT NULL,
		step VARCHAR(128) NOT NULL,
		agent VARCHAR(128),
		status VARCHAR(32) NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		input_summary TEXT,
		output_data JSONB,
		error_message TEXT,
		confidence DOUBLE PRECISION
	);
	CREATE INDEX IF NOT EXISTS idx_processing_logs_claim ON processing_logs(claim_id, started_at, seq);

	CREATE TABLE IF NOT EXISTS claim_decisions (
		id UUID PRIMARY KEY,
		claim_id UUID NOT NULL UNIQUE REFERENCES claims(id),
		decision VARCHAR(32) NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		reasoning TEXT,
		cited_evidence JSONB,
		model VARCHAR(128),
		decided_at TIMESTAMPTZ NOT NULL,
		final_decision VARCHAR(32),
		final_decision_by VARCHAR(128),
		final_decision_at TIMESTAMPTZ,
		review_notes TEXT
	);

	CREATE TABLE IF NOT EXISTS guardrails_detections (
		id UUID PRIMARY KEY,
		claim_id UUID NOT NULL REFERENCES claims(id),
		detection_type VARCHAR(64) NOT NULL,
		severity VARCHAR(32) NOT NULL,
		source_step VARCHAR(128),
		detected_fields TEXT[],
		confidence DOUBLE PRECISION,
		action_taken VARCHAR(64),
		detected_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_guardrails_claim ON guardrails_detections(claim_id);

	CREATE TABLE IF NOT EXISTS contracts (
		id UUID PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		contract_number VARCHAR(64) NOT NULL,
		contract_type VARCHAR(64) NOT NULL,
		coverage_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
		deductible DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		full_text TEXT,
		key_terms TEXT[],
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_user ON contracts(user_id, is_active);

	CREATE TABLE IF NOT EXISTS knowledge_base (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category VARCHAR(64),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS claim_documents (
		id UUID PRIMARY KEY,
		claim_id UUID NOT NULL UNIQUE REFERENCES claims(id),
		raw_text TEXT,
		fields JSONB,
		overall_confidence DOUBLE PRECISION,
		created_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

type PostgresClaimStore struct {
	db *sql.DB
}

func (s *PostgresClaimStore) Create(ctx context.Context, c *claim.Claim) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal claim metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO claims (id, claim_number, user_id, claim_type, document_path, status, submitted_at, processed_at, total_processing_ms, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.ClaimNumber, c.UserID, c.ClaimType, c.DocumentPath, c.Status,
		c.SubmittedAt, c.ProcessedAt, c.TotalProcessingTime.Milliseconds(), metadata)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return claim.ErrAlreadyExists
		}
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

const claimColumns = `id, claim_number, user_id, claim_type, document_path, status, submitted_at, processed_at, total_processing_ms, metadata`

func (s *PostgresClaimStore) Get(ctx context.Context, id uuid.UUID) (*claim.Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	return scanClaim(row)
}

func (s *PostgresClaimStore) GetByNumber(ctx context.Context, claimNumber string) (*claim.Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE claim_number = $1`, claimNumber)
	return scanClaim(row)
}

func (s *PostgresClaimStore) List(ctx context.Context, f ListFilter) ([]*claim.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims WHERE 1=1`
	args := make([]any, 0, 4)
	if f.UserID != "" {
		args = append(args, f.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY submitted_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	claims := make([]*claim.Claim, 0)
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func (s *PostgresClaimStore) Update(ctx context.Context, c *claim.Claim) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal claim metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET status = $2, processed_at = $3, total_processing_ms = $4, metadata = $5
		WHERE id = $1`,
		c.ID, c.Status, c.ProcessedAt, c.TotalProcessingTime.Milliseconds(), metadata)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return claim.ErrNotFound
	}
	return nil
}

func (s *PostgresClaimStore) CountByStatus(ctx context.Context) (map[claim.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM claims GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}
	defer rows.Close()

	counts := make(map[claim.Status]int)
	for rows.Next() {
		var status claim.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*claim.Claim, error) {
	var c claim.Claim
	var processedAt sql.NullTime
	var totalMS int64
	var metadata []byte
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.UserID, &c.ClaimType, &c.DocumentPath,
		&c.Status, &c.SubmittedAt, &processedAt, &totalMS, &metadata)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claim.ErrNotFound
		}
		return nil, fmt.Errorf("scan claim: %w", err)
	}
	if processedAt.Valid {
		t := processedAt.Time
		c.ProcessedAt = &t
	}
	c.TotalProcessingTime = time.Duration(totalMS) * time.Millisecond
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal claim metadata: %w", err)
		}
	}
	return &c, nil
}

type PostgresStepStore struct {
	db *sql.DB
}

func (s *PostgresStepStore) Append(ctx context.Context, step *claim.Step) error {
	if step.ID == uuid.Nil {
		step.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processing_logs (id, claim_id, seq, step, agent, status, started_at, completed_at, duration_ms, input_summary, output_data, error_message, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		step.ID, step.ClaimID, step.Seq, step.Step, step.Agent, step.Status,
		step.StartedAt, step.CompletedAt, step.Duration.Milliseconds(),
		step.InputSummary, nullableJSON(step.Output), step.ErrorMessage, step.Confidence)
	if err != nil {
		return fmt.Errorf("append processing step: %w", err)
	}
	return nil
}

func (s *PostgresStepStore) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*claim.Step, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, claim_id, seq, step, agent, status, started_at, completed_at, duration_ms, input_summary, output_data, error_message, confidence
		FROM processing_logs WHERE claim_id = $1
		ORDER BY started_at, seq`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list processing steps: %w", err)
	}
	defer rows.Close()

	steps := make([]*claim.Step, 0)
	for rows.Next() {
		var step claim.Step
		var agent, inputSummary, errorMessage sql.NullString
		var durationMS int64
		var output []byte
		var confidence sql.NullFloat64
		err := rows.Scan(&step.ID, &step.ClaimID, &step.Seq, &step.Step, &agent, &step.Status,
			&step.StartedAt, &step.CompletedAt, &durationMS, &inputSummary, &output, &errorMessage, &confidence)
		if err != nil {
			return nil, fmt.Errorf("scan processing step: %w", err)
		}
		step.Agent = agent.String
		step.InputSummary = inputSummary.String
		step.ErrorMessage = errorMessage.String
		step.Duration = time.Duration(durationMS) * time.Millisecond
		step.Output = output
		step.Confidence = confidence.Float64
		steps = append(steps, &step)
	}
	return steps, rows.Err()
}

func (s *PostgresStepStore) NextSeq(ctx context.Context, claimID uuid.UUID) (int, error) {
	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM processing_logs WHERE claim_id = $1`, claimID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next step seq: %w", err)
	}
	return next, nil
}

type PostgresDecisionStore struct {
	db *sql.DB
}

func (s *PostgresDecisionStore) Save(ctx context.Context, d *claim.Decision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	evidence, err := json.Marshal(d.Evidence)
	if err != nil {
		return fmt.Errorf("marshal cited evidence: %w", err)
	}
	// Reprocessing replaces the system decision but clears any stale
	// reviewer finalization along with it.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO claim_decisions (id, claim_id, decision, confidence, reasoning, cited_evidence, model, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (claim_id) DO UPDATE SET
			decision = EXCLUDED.decision,
			confidence = EXCLUDED.confidence,
			reasoning = EXCLUDED.reasoning,
			cited_evidence = EXCLUDED.cited_evidence,
			model = EXCLUDED.model,
			decided_at = EXCLUDED.decided_at,
			final_decision = NULL,
			final_decision_by = NULL,
			final_decision_at = NULL,
			review_notes = NULL`,
		d.ID, d.ClaimID, d.Decision, d.Confidence, d.Reasoning, evidence, d.Model, d.DecidedAt)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

func (s *PostgresDecisionStore) GetByClaim(ctx context.Context, claimID uuid.UUID) (*claim.Decision, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, claim_id, decision, confidence, reasoning, cited_evidence, model, decided_at,
		       final_decision, final_decision_by, final_decision_at, review_notes
		FROM claim_decisions WHERE claim_id = $1`, claimID)

	var d claim.Decision
	var reasoning, model, finalDecision, finalBy, notes sql.NullString
	var evidence []byte
	var finalAt sql.NullTime
	err := row.Scan(&d.ID, &d.ClaimID, &d.Decision, &d.Confidence, &reasoning, &evidence, &model, &d.DecidedAt,
		&finalDecision, &finalBy, &finalAt, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claim.ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	d.Reasoning = reasoning.String
	d.Model = model.String
	d.FinalDecision = claim.Outcome(finalDecision.String)
	d.FinalDecisionBy = finalBy.String
	d.ReviewNotes = notes.String
	if finalAt.Valid {
		t := finalAt.Time
		d.FinalDecisionAt = &t
	}
	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &d.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal cited evidence: %w", err)
		}
	}
	return &d, nil
}

func (s *PostgresDecisionStore) Finalize(ctx context.Context, claimID uuid.UUID, final claim.Outcome, reviewer, notes string) (*claim.Decision, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE claim_decisions
		SET final_decision = $2, final_decision_by = $3, final_decision_at = $4, review_notes = $5
		WHERE claim_id = $1 AND final_decision IS NULL`,
		claimID, final, reviewer, time.Now().UTC(), notes)
	if err != nil {
		return nil, fmt.Errorf("finalize decision: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if _, getErr := s.GetByClaim(ctx, claimID); getErr != nil {
			return nil, getErr
		}
		return nil, claim.ErrAlreadyFinalized
	}
	return s.GetByClaim(ctx, claimID)
}

type PostgresDetectionStore struct {
	db *sql.DB
}

func (s *PostgresDetectionStore) Append(ctx context.Context, d *claim.Detection) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guardrails_detections (id, claim_id, detection_type, severity, source_step, detected_fields, confidence, action_taken, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		d.ID, d.ClaimID, d.DetectionType, d.Severity, d.SourceStep,
		pq.Array(d.DetectedFields), d.Confidence, d.ActionTaken, d.DetectedAt)
	if err != nil {
		return fmt.Errorf("append detection: %w", err)
	}
	return nil
}

func (s *PostgresDetectionStore) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*claim.Detection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, claim_id, detection_type, severity, source_step, detected_fields, confidence, action_taken, detected_at
		FROM guardrails_detections WHERE claim_id = $1 ORDER BY detected_at`, claimID)
	if err != nil {
		return nil, fmt.Errorf("list detections: %w", err)
	}
	defer rows.Close()

	detections := make([]*claim.Detection, 0)
	for rows.Next() {
		var d claim.Detection
		var sourceStep, actionTaken sql.NullString
		var confidence sql.NullFloat64
		err := rows.Scan(&d.ID, &d.ClaimID, &d.DetectionType, &d.Severity, &sourceStep,
			pq.Array(&d.DetectedFields), &confidence, &actionTaken, &d.DetectedAt)
		if err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		d.SourceStep = sourceStep.String
		d.ActionTaken = actionTaken.String
		d.Confidence = confidence.Float64
		detections = append(detections, &d)
	}
	return detections, rows.Err()
}

type PostgresContractStore struct {
	db *sql.DB
}

func (s *PostgresContractStore) Save(ctx context.Context, c *claim.Contract) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (id, user_id, contract_number, contract_type, coverage_amount, deductible, is_active, full_text, key_terms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			contract_type = EXCLUDED.contract_type,
			coverage_amount = EXCLUDED.coverage_amount,
			deductible = EXCLUDED.deductible,
			is_active = EXCLUDED.is_active,
			full_text = EXCLUDED.full_text,
			key_terms = EXCLUDED.key_terms`,
		c.ID, c.UserID, c.ContractNumber, c.ContractType, c.CoverageAmount,
		c.Deductible, c.Active, c.FullText, pq.Array(c.KeyTerms), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("save contract: %w", err)
	}
	return nil
}

func (s *PostgresContractStore) Get(ctx context.Context, id uuid.UUID) (*claim.Contract, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, contract_number, contract_type, coverage_amount, deductible, is_active, full_text, key_terms, created_at
		FROM contracts WHERE id = $1`, id)
	return scanContract(row)
}

func (s *PostgresContractStore) ListActiveByUser(ctx context.Context, userID string) ([]*claim.Contract, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, contract_number, contract_type, coverage_amount, deductible, is_active, full_text, key_terms, created_at
		FROM contracts WHERE user_id = $1 AND is_active ORDER BY contract_number`, userID)
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	defer rows.Close()

	contracts := make([]*claim.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

func scanContract(row rowScanner) (*claim.Contract, error) {
	var c claim.Contract
	var fullText sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.ContractNumber, &c.ContractType, &c.CoverageAmount,
		&c.Deductible, &c.Active, &fullText, pq.Array(&c.KeyTerms), &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claim.ErrNotFound
		}
		return nil, fmt.Errorf("scan contract: %w", err)
	}
	c.FullText = fullText.String
	return &c, nil
}

type PostgresKnowledgeStore struct {
	db *sql.DB
}

func (s *PostgresKnowledgeStore) Save(ctx context.Context, e *claim.KnowledgeEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_base (id, title, content, category, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			category = EXCLUDED.category,
			is_active = EXCLUDED.is_active`,
		e.ID, e.Title, e.Content, e.Category, e.Active, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("save knowledge entry: %w", err)
	}
	return nil
}

func (s *PostgresKnowledgeStore) Get(ctx context.Context, id uuid.UUID) (*claim.KnowledgeEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, category, is_active, created_at
		FROM knowledge_base WHERE id = $1`, id)

	var e claim.KnowledgeEntry
	var category sql.NullString
	err := row.Scan(&e.ID, &e.Title, &e.Content, &category, &e.Active, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claim.ErrNotFound
		}
		return nil, fmt.Errorf("scan knowledge entry: %w", err)
	}
	e.Category = category.String
	return &e, nil
}

type PostgresDocumentStore struct {
	db *sql.DB
}

func (s *PostgresDocumentStore) Save(ctx context.Context, d *claim.Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	fields, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("marshal document fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO claim_documents (id, claim_id, raw_text, fields, overall_confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (claim_id) DO UPDATE SET
			raw_text = EXCLUDED.raw_text,
			fields = EXCLUDED.fields,
			overall_confidence = EXCLUDED.overall_confidence`,
		d.ID, d.ClaimID, d.RawText, fields, d.OverallConfidence, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *PostgresDocumentStore) GetByClaim(ctx context.Context, claimID uuid.UUID) (*claim.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, claim_id, raw_text, fields, overall_confidence, created_at
		FROM claim_documents WHERE claim_id = $1`, claimID)

	var d claim.Document
	var rawText sql.NullString
	var fields []byte
	var confidence sql.NullFloat64
	err := row.Scan(&d.ID, &d.ClaimID, &rawText, &fields, &confidence, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, claim.ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	d.RawText = rawText.String
	d.OverallConfidence = confidence.Float64
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &d.Fields); err != nil {
			return nil, fmt.Errorf("unmarshal document fields: %w", err)
		}
	}
	return &d, nil
}

func nullableJSON(data []byte) any {
	if len(data) == 0 {
		return nil
	}
	return json.RawMessage(data)
}
