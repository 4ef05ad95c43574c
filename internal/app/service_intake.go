package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"leadflow/internal/events"
	"leadflow/internal/intake"
	"leadflow/internal/pricing"
	"leadflow/internal/store"
	"leadflow/internal/util"
)

// Submission is a persisted lead plus whatever the channel produced with it.
type Submission struct {
	Lead     store.Lead           `json:"lead"`
	Intake   *store.ProjectIntake `json:"intake,omitempty"`
	Estimate *pricing.Estimate    `json:"estimate,omitempty"`
}

// TurnResult is the outcome of one conversational step. Complete is false
// until the assistant emits a usable final summary.
type TurnResult struct {
	Reply      string           `json:"reply"`
	Transcript []store.ChatTurn `json:"transcript"`
	Complete   bool             `json:"complete"`
	Missing    []string         `json:"missing,omitempty"`
	Submission *Submission      `json:"submission,omitempty"`
}

// Estimate prices inputs against one of the configured tables.
func (s *Service) Estimate(table string, inputs pricing.Inputs) (pricing.Estimate, error) {
	switch table {
	case pricing.TableChecklist, pricing.TableSlider:
	case "":
		table = pricing.TableChecklist
	default:
		return pricing.Estimate{}, validationError("Unknown pricing table", map[string]string{"table": "must be checklist or slider"})
	}
	return s.tables.Compute(table, inputs), nil
}

// SubmitLead normalizes a form submission and persists it.
func (s *Service) SubmitLead(ctx context.Context, source string, raw map[string]any) (Submission, error) {
	parsed, err := intake.ParseSource(source)
	if err != nil {
		return Submission{}, fromNormalize(err)
	}
	result, err := s.normalizer.Normalize(parsed, raw)
	if err != nil {
		return Submission{}, fromNormalize(err)
	}
	return s.persist(ctx, result)
}

// IntakeTurn asks the assistant for its next turn. When that turn carries
// the final summary the intake is persisted in the same call.
func (s *Service) IntakeTurn(ctx context.Context, transcript []store.ChatTurn) (TurnResult, error) {
	if s.assistant == nil {
		return TurnResult{}, domainError(http.StatusServiceUnavailable, CodeAssistantUnavailable, "Intake assistant is not configured", nil)
	}
	for i, turn := range transcript {
		if turn.Role != "user" && turn.Role != "assistant" {
			return TurnResult{}, validationError("Invalid transcript", map[string]string{fmt.Sprintf("transcript[%d].role", i): "must be user or assistant"})
		}
	}

	reply, err := s.assistant.Reply(ctx, transcript)
	if err != nil {
		s.logger.Warn("intake assistant failed", zap.Int("turns", len(transcript)), zap.Error(err))
		return TurnResult{}, domainError(http.StatusBadGateway, CodeAssistantFailed, "The assistant could not respond, try again", nil)
	}

	full := make([]store.ChatTurn, 0, len(transcript)+1)
	full = append(full, transcript...)
	full = append(full, store.ChatTurn{Role: "assistant", Content: reply})

	turn, err := s.CompleteIntake(ctx, reply, full)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) && domainErr.Code == CodeValidation {
			return TurnResult{Reply: reply, Transcript: full, Missing: missingFields(domainErr)}, nil
		}
		return TurnResult{}, err
	}
	return turn, nil
}

// CompleteIntake parses message as the final assistant turn. A message
// without a parseable summary is not an error: the turn is incomplete.
func (s *Service) CompleteIntake(ctx context.Context, message string, transcript []store.ChatTurn) (TurnResult, error) {
	text, _, extractErr := intake.ExtractPayload(message)
	if errors.Is(extractErr, intake.ErrMalformedIntakePayload) {
		return TurnResult{Reply: text, Transcript: transcript}, nil
	}

	result, err := s.normalizer.NormalizeTranscript(message, transcript)
	if err != nil {
		return TurnResult{}, fromNormalize(err)
	}
	submission, err := s.persist(ctx, result)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{Reply: text, Transcript: transcript, Complete: true, Submission: &submission}, nil
}

func (s *Service) persist(ctx context.Context, result intake.Result) (Submission, error) {
	now := s.now()
	lead := result.Lead
	lead.ID = util.NewID("ld")
	lead.CreatedAt = now
	lead.UpdatedAt = now
	if err := s.store.InsertLead(ctx, lead); err != nil {
		return Submission{}, fmt.Errorf("insert lead: %w", err)
	}
	submission := Submission{Lead: lead, Estimate: result.Estimate}

	if result.Intake != nil {
		projectIntake := *result.Intake
		projectIntake.ID = util.NewID("in")
		projectIntake.LeadID = &lead.ID
		projectIntake.CreatedAt = now
		projectIntake.UpdatedAt = now
		if err := s.store.InsertIntake(ctx, projectIntake); err != nil {
			return Submission{}, fmt.Errorf("insert intake: %w", err)
		}
		submission.Intake = &projectIntake
	}

	s.logger.Info("lead submitted",
		zap.String("lead_id", lead.ID),
		zap.String("source", lead.Source),
		zap.String("fit", lead.FitStatus),
	)
	s.indexLead(lead)
	data := map[string]any{
		"source":    lead.Source,
		"name":      lead.Name,
		"email":     lead.Email,
		"fitStatus": lead.FitStatus,
	}
	if lead.EstimatedPrice != nil {
		data["estimatedPrice"] = *lead.EstimatedPrice
	}
	s.emit(events.LeadCreated, lead.ID, data)
	if submission.Intake != nil {
		intakeData := map[string]any{
			"leadId":    lead.ID,
			"name":      submission.Intake.Name,
			"email":     submission.Intake.Email,
			"fitStatus": submission.Intake.FitStatus,
		}
		if submission.Intake.SuggestedTier != nil {
			intakeData["suggestedTier"] = *submission.Intake.SuggestedTier
		}
		s.emit(events.IntakeCreated, submission.Intake.ID, intakeData)
	}
	return submission, nil
}

func missingFields(err *DomainError) []string {
	details, ok := err.Details.(map[string]any)
	if !ok {
		return nil
	}
	fields, _ := details["fields"].(map[string]string)
	names := make([]string, 0, len(fields))
	for _, key := range []string{"name", "email"} {
		if _, ok := fields[key]; ok {
			names = append(names, key)
		}
	}
	return names
}

func (s *Service) GetLead(ctx context.Context, leadID string) (store.Lead, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Lead{}, notFound("Lead")
	}
	return lead, err
}

func (s *Service) ListLeads(ctx context.Context, status, source string, limit int) ([]store.Lead, error) {
	return s.store.ListLeads(ctx, store.LeadFilter{Status: status, Source: source, Limit: limit})
}

func (s *Service) GetIntake(ctx context.Context, intakeID string) (store.ProjectIntake, error) {
	projectIntake, err := s.store.GetIntake(ctx, intakeID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ProjectIntake{}, notFound("Intake")
	}
	return projectIntake, err
}

func (s *Service) ListIntakes(ctx context.Context, limit int) ([]store.ProjectIntake, error) {
	return s.store.ListIntakes(ctx, limit)
}

var leadStatuses = []string{
	store.LeadStatusNew,
	store.LeadStatusReviewed,
	store.LeadStatusContacted,
	store.LeadStatusQualified,
	store.LeadStatusNotFit,
}

// SetLeadStatus moves an unconverted lead through triage. Converted is only
// reachable through conversion.
func (s *Service) SetLeadStatus(ctx context.Context, leadID, status string) (store.Lead, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	valid := false
	for _, candidate := range leadStatuses {
		if candidate == status {
			valid = true
			break
		}
	}
	if !valid {
		return store.Lead{}, validationError("Invalid lead status", map[string]string{"status": "must be one of " + strings.Join(leadStatuses, ", ")})
	}

	lead, err := s.GetLead(ctx, leadID)
	if err != nil {
		return store.Lead{}, err
	}
	if lead.ConvertedToClientID != nil {
		return store.Lead{}, domainError(http.StatusConflict, CodeLeadConverted, "Lead has already been converted", map[string]any{"clientId": *lead.ConvertedToClientID})
	}
	if err := s.store.UpdateLeadStatus(ctx, leadID, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Lead{}, domainError(http.StatusConflict, CodeLeadConverted, "Lead has already been converted", nil)
		}
		return store.Lead{}, err
	}
	return s.GetLead(ctx, leadID)
}
