package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

const leadColumns = `id, name, email, source, business_name, website_url, page_count, content_readiness,
	timeline, budget_range, project_description, notes, features, estimated_price, fit_status, status,
	converted_to_client_id, payload, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var item Lead
	var featuresRaw, payloadRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Email,
		&item.Source,
		&item.BusinessName,
		&item.WebsiteURL,
		&item.PageCount,
		&item.ContentReadiness,
		&item.Timeline,
		&item.BudgetRange,
		&item.ProjectDescription,
		&item.Notes,
		&featuresRaw,
		&item.EstimatedPrice,
		&item.FitStatus,
		&item.Status,
		&item.ConvertedToClientID,
		&payloadRaw,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Lead{}, err
	}
	if err := json.Unmarshal(featuresRaw, &item.Features); err != nil {
		return Lead{}, fmt.Errorf("decode lead features: %w", err)
	}
	if err := json.Unmarshal(payloadRaw, &item.Payload); err != nil {
		return Lead{}, fmt.Errorf("decode lead payload: %w", err)
	}
	if item.Features == nil {
		item.Features = []string{}
	}
	return item, nil
}

func (s *PostgresStore) InsertLead(ctx context.Context, lead Lead) error {
	features := lead.Features
	if features == nil {
		features = []string{}
	}
	encodedFeatures, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("marshal lead features: %w", err)
	}
	payload := lead.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encodedPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal lead payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (id, name, email, source, business_name, website_url, page_count, content_readiness,
			timeline, budget_range, project_description, notes, features, estimated_price, fit_status, status,
			payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15, $16, $17::jsonb, $18, $18)
	`, lead.ID, lead.Name, lead.Email, lead.Source, lead.BusinessName, lead.WebsiteURL, lead.PageCount, lead.ContentReadiness,
		lead.Timeline, lead.BudgetRange, lead.ProjectDescription, lead.Notes, string(encodedFeatures), lead.EstimatedPrice,
		lead.FitStatus, lead.Status, string(encodedPayload), lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=$1`, leadID)
	return scanLead(row)
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE (status=$1 OR $1='') AND (source=$2 OR $2='')
		ORDER BY created_at DESC
		LIMIT $3
	`, filter.Status, filter.Source, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	items := make([]Lead, 0)
	for rows.Next() {
		item, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return items, nil
}

// UpdateLeadStatus never touches converted leads. It reports sql.ErrNoRows
// when no unconverted lead matched.
func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, leadID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET status=$2, updated_at=NOW()
		WHERE id=$1 AND converted_to_client_id IS NULL
	`, leadID, status)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return requireAffected(result)
}

func (s *PostgresStore) MarkLeadConverted(ctx context.Context, leadID, clientID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE leads
		SET status='converted', converted_to_client_id=$2, updated_at=NOW()
		WHERE id=$1 AND (converted_to_client_id IS NULL OR converted_to_client_id=$2)
	`, leadID, clientID)
	if err != nil {
		return fmt.Errorf("mark lead converted: %w", err)
	}
	return requireAffected(result)
}

const intakeColumns = `id, lead_id, name, email, business_name, website_url, project_description, goals, page_count,
	content_readiness, timeline, budget_range, design_examples, advanced_features, update_preference, fit_status,
	suggested_tier, estimated_price, kanban_stage, raw_summary, raw_conversation, discount_offered, discount_amount,
	client_id, created_at, updated_at`

func scanIntake(row rowScanner) (ProjectIntake, error) {
	var item ProjectIntake
	var conversationRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.LeadID,
		&item.Name,
		&item.Email,
		&item.BusinessName,
		&item.WebsiteURL,
		&item.ProjectDescription,
		&item.Goals,
		&item.PageCount,
		&item.ContentReadiness,
		&item.Timeline,
		&item.BudgetRange,
		&item.DesignExamples,
		&item.AdvancedFeatures,
		&item.UpdatePreference,
		&item.FitStatus,
		&item.SuggestedTier,
		&item.EstimatedPrice,
		&item.KanbanStage,
		&item.RawSummary,
		&conversationRaw,
		&item.DiscountOffered,
		&item.DiscountAmount,
		&item.ClientID,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return ProjectIntake{}, err
	}
	if err := json.Unmarshal(conversationRaw, &item.RawConversation); err != nil {
		return ProjectIntake{}, fmt.Errorf("decode intake conversation: %w", err)
	}
	if item.RawConversation == nil {
		item.RawConversation = []ChatTurn{}
	}
	return item, nil
}

func (s *PostgresStore) InsertIntake(ctx context.Context, intake ProjectIntake) error {
	conversation := intake.RawConversation
	if conversation == nil {
		conversation = []ChatTurn{}
	}
	encodedConversation, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal intake conversation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO project_intakes (id, lead_id, name, email, business_name, website_url, project_description, goals,
			page_count, content_readiness, timeline, budget_range, design_examples, advanced_features, update_preference,
			fit_status, suggested_tier, estimated_price, kanban_stage, raw_summary, raw_conversation, discount_offered,
			discount_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21::jsonb, $22, $23, $24, $24)
	`, intake.ID, intake.LeadID, intake.Name, intake.Email, intake.BusinessName, intake.WebsiteURL, intake.ProjectDescription,
		intake.Goals, intake.PageCount, intake.ContentReadiness, intake.Timeline, intake.BudgetRange, intake.DesignExamples,
		intake.AdvancedFeatures, intake.UpdatePreference, intake.FitStatus, intake.SuggestedTier, intake.EstimatedPrice,
		intake.KanbanStage, intake.RawSummary, string(encodedConversation), intake.DiscountOffered, intake.DiscountAmount,
		intake.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert intake: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIntake(ctx context.Context, intakeID string) (ProjectIntake, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+intakeColumns+` FROM project_intakes WHERE id=$1`, intakeID)
	return scanIntake(row)
}

func (s *PostgresStore) ListIntakes(ctx context.Context, limit int) ([]ProjectIntake, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+intakeColumns+`
		FROM project_intakes
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list intakes: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectIntake, 0)
	for rows.Next() {
		item, err := scanIntake(rows)
		if err != nil {
			return nil, fmt.Errorf("scan intake: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intakes: %w", err)
	}
	return items, nil
}

// UpdateIntakeStage sets the stage and returns the one it replaced. A
// same-stage write leaves the row untouched apart from the lock.
func (s *PostgresStore) UpdateIntakeStage(ctx context.Context, intakeID, stage string) (string, error) {
	var previous string
	err := s.db.QueryRowContext(ctx, `
		UPDATE project_intakes AS p
		SET kanban_stage=$2,
			updated_at=CASE WHEN old.kanban_stage=$2 THEN p.updated_at ELSE NOW() END
		FROM (SELECT id, kanban_stage FROM project_intakes WHERE id=$1 FOR UPDATE) AS old
		WHERE p.id=old.id
		RETURNING old.kanban_stage
	`, intakeID, stage).Scan(&previous)
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (s *PostgresStore) LinkIntakeClient(ctx context.Context, intakeID, clientID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE project_intakes
		SET client_id=$2, updated_at=NOW()
		WHERE id=$1
	`, intakeID, clientID)
	if err != nil {
		return fmt.Errorf("link intake client: %w", err)
	}
	return requireAffected(result)
}

const clientColumns = `id, email, name, business_name, website_url, pipeline_stage, plan_type, monthly_fee_cents,
	setup_fee_cents, monthly_included_minutes, active, notes, source_submission_id, created_at, updated_at`

func scanClient(row rowScanner) (Client, error) {
	var item Client
	err := row.Scan(
		&item.ID,
		&item.Email,
		&item.Name,
		&item.BusinessName,
		&item.WebsiteURL,
		&item.PipelineStage,
		&item.PlanType,
		&item.MonthlyFeeCents,
		&item.SetupFeeCents,
		&item.MonthlyIncludedMinutes,
		&item.Active,
		&item.Notes,
		&item.SourceSubmissionID,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) FindClientByEmail(ctx context.Context, email string) (Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE lower(email)=lower($1)`, strings.TrimSpace(email))
	return scanClient(row)
}

func (s *PostgresStore) GetClient(ctx context.Context, clientID string) (Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id=$1`, clientID)
	return scanClient(row)
}

// InsertClient returns ErrDuplicateEmail when the email is already taken.
func (s *PostgresStore) InsertClient(ctx context.Context, client Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, email, name, business_name, website_url, pipeline_stage, plan_type, monthly_fee_cents,
			setup_fee_cents, monthly_included_minutes, active, notes, source_submission_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, client.ID, client.Email, client.Name, client.BusinessName, client.WebsiteURL, client.PipelineStage, client.PlanType,
		client.MonthlyFeeCents, client.SetupFeeCents, client.MonthlyIncludedMinutes, client.Active, client.Notes,
		client.SourceSubmissionID, client.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert client: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListClients(ctx context.Context) ([]Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	items := make([]Client, 0)
	for rows.Next() {
		item, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateClientStage(ctx context.Context, clientID, stage string) (string, error) {
	var previous string
	err := s.db.QueryRowContext(ctx, `
		UPDATE clients AS c
		SET pipeline_stage=$2,
			updated_at=CASE WHEN old.pipeline_stage=$2 THEN c.updated_at ELSE NOW() END
		FROM (SELECT id, pipeline_stage FROM clients WHERE id=$1 FOR UPDATE) AS old
		WHERE c.id=old.id
		RETURNING old.pipeline_stage
	`, clientID, stage).Scan(&previous)
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (s *PostgresStore) UpdateClient(ctx context.Context, client Client) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET plan_type=$2, monthly_fee_cents=$3, setup_fee_cents=$4, monthly_included_minutes=$5, active=$6, notes=$7, updated_at=NOW()
		WHERE id=$1
	`, client.ID, client.PlanType, client.MonthlyFeeCents, client.SetupFeeCents, client.MonthlyIncludedMinutes, client.Active, client.Notes)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return requireAffected(result)
}

const requestColumns = `id, client_id, title, description, size_tier, quoted_price_cents, status, priority,
	attachments, completed_at, created_at, updated_at`

func scanRequest(row rowScanner) (UpdateRequest, error) {
	var item UpdateRequest
	var attachmentsRaw []byte
	if err := row.Scan(
		&item.ID,
		&item.ClientID,
		&item.Title,
		&item.Description,
		&item.SizeTier,
		&item.QuotedPriceCents,
		&item.Status,
		&item.Priority,
		&attachmentsRaw,
		&item.CompletedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return UpdateRequest{}, err
	}
	if err := json.Unmarshal(attachmentsRaw, &item.Attachments); err != nil {
		return UpdateRequest{}, fmt.Errorf("decode request attachments: %w", err)
	}
	if item.Attachments == nil {
		item.Attachments = []Attachment{}
	}
	return item, nil
}

func (s *PostgresStore) InsertRequest(ctx context.Context, request UpdateRequest) error {
	attachments := request.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	encodedAttachments, err := json.Marshal(attachments)
	if err != nil {
		return fmt.Errorf("marshal request attachments: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO update_requests (id, client_id, title, description, size_tier, quoted_price_cents, status, priority,
			attachments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $10)
	`, request.ID, request.ClientID, request.Title, request.Description, request.SizeTier, request.QuotedPriceCents,
		request.Status, request.Priority, string(encodedAttachments), request.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID string) (UpdateRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM update_requests WHERE id=$1`, requestID)
	return scanRequest(row)
}

// ListRequests returns a client's requests, or every open request when
// clientID is blank.
func (s *PostgresStore) ListRequests(ctx context.Context, clientID string) ([]UpdateRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM update_requests WHERE client_id=$1 ORDER BY created_at DESC`
	args := []any{clientID}
	if clientID == "" {
		query = `SELECT ` + requestColumns + ` FROM update_requests WHERE status NOT IN ('done', 'cancelled') ORDER BY created_at`
		args = nil
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	items := make([]UpdateRequest, 0)
	for rows.Next() {
		item, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) OpenRequestCount(ctx context.Context, clientID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM update_requests
		WHERE client_id=$1 AND status NOT IN ('done', 'cancelled')
	`, clientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open requests: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, requestID, status string, completedAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE update_requests
		SET status=$2, completed_at=$3, updated_at=NOW()
		WHERE id=$1
	`, requestID, status, completedAt)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return requireAffected(result)
}

// RecordAllowance creates the month row with one used request or bumps it.
func (s *PostgresStore) RecordAllowance(ctx context.Context, clientID string, month time.Time, included int) (RequestAllowance, error) {
	item := RequestAllowance{ClientID: clientID}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO request_allowances (client_id, month, included_requests, used_requests)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (client_id, month)
		DO UPDATE SET used_requests = request_allowances.used_requests + 1
		RETURNING month, included_requests, used_requests
	`, clientID, month, included).Scan(&item.Month, &item.IncludedRequests, &item.UsedRequests)
	if err != nil {
		return RequestAllowance{}, fmt.Errorf("record allowance: %w", err)
	}
	item.Month = item.Month.UTC()
	return item, nil
}

func (s *PostgresStore) GetAllowance(ctx context.Context, clientID string, month time.Time) (RequestAllowance, error) {
	item := RequestAllowance{ClientID: clientID}
	err := s.db.QueryRowContext(ctx, `
		SELECT month, included_requests, used_requests
		FROM request_allowances
		WHERE client_id=$1 AND month=$2
	`, clientID, month).Scan(&item.Month, &item.IncludedRequests, &item.UsedRequests)
	if err != nil {
		return RequestAllowance{}, err
	}
	item.Month = item.Month.UTC()
	return item, nil
}

// SearchDirectory matches leads and clients by name, email or business name.
func (s *PostgresStore) SearchDirectory(ctx context.Context, text string, limit int) ([]SearchRecord, error) {
	if strings.TrimSpace(text) == "" {
		return []SearchRecord{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + escapeLike(strings.TrimSpace(text)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, id, name, email, business_name, status FROM (
			SELECT 'client'::text AS kind, id, name, email, coalesce(business_name, '') AS business_name,
				pipeline_stage AS status, updated_at
			FROM clients
			WHERE name ILIKE $1 OR email ILIKE $1 OR business_name ILIKE $1
			UNION ALL
			SELECT 'lead'::text AS kind, id, name, email, coalesce(business_name, '') AS business_name,
				status, updated_at
			FROM leads
			WHERE name ILIKE $1 OR email ILIKE $1 OR business_name ILIKE $1
		) AS matches
		ORDER BY updated_at DESC
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search directory: %w", err)
	}
	defer rows.Close()

	items := make([]SearchRecord, 0)
	for rows.Next() {
		var item SearchRecord
		if err := rows.Scan(&item.Kind, &item.ID, &item.Name, &item.Email, &item.BusinessName, &item.Status); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search records: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}
