package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"leadflow/internal/attachments"
	"leadflow/internal/events"
	"leadflow/internal/quota"
	"leadflow/internal/store"
	"leadflow/internal/util"
)

type RequestInput struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	SizeTier    string             `json:"sizeTier"`
	Priority    string             `json:"priority"`
	Attachments []store.Attachment `json:"attachments"`
}

// RequestSubmission is a created request with the quote it was priced at and
// the month's allowance after counting it.
type RequestSubmission struct {
	Request         store.UpdateRequest     `json:"request"`
	Quote           quota.Quote             `json:"quote"`
	Allowance       *store.RequestAllowance `json:"allowance,omitempty"`
	WithinAllowance bool                    `json:"withinAllowance"`
}

// QuoteFor returns the fixed quote for a size tier.
func (s *Service) QuoteFor(tier string) (quota.Quote, error) {
	quote, err := quota.QuoteFor(quota.SizeTier(strings.ToLower(strings.TrimSpace(tier))))
	if err != nil {
		return quota.Quote{}, validationError("Unknown size tier", map[string]string{"sizeTier": "must be tiny, small, medium or large"})
	}
	return quote, nil
}

// CanSubmit reports whether the client is below the open request cap, along
// with the current open count.
func (s *Service) CanSubmit(ctx context.Context, clientID string) (bool, int, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return false, 0, err
	}
	open, err := s.store.OpenRequestCount(ctx, clientID)
	if err != nil {
		return false, 0, err
	}
	return quota.CanSubmit(open), open, nil
}

// RecordSubmission counts one submission against the month containing at.
func (s *Service) RecordSubmission(ctx context.Context, clientID string, at time.Time) (store.RequestAllowance, error) {
	return s.store.RecordAllowance(ctx, clientID, util.MonthStart(at), quota.DefaultIncludedRequests)
}

// Allowance reads the usage row for a month. A month without submissions
// reports the default inclusion and zero use.
func (s *Service) Allowance(ctx context.Context, clientID string, month time.Time) (store.RequestAllowance, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return store.RequestAllowance{}, err
	}
	month = util.MonthStart(month)
	allowance, err := s.store.GetAllowance(ctx, clientID, month)
	if errors.Is(err, sql.ErrNoRows) {
		return store.RequestAllowance{ClientID: clientID, Month: month, IncludedRequests: quota.DefaultIncludedRequests}, nil
	}
	return allowance, err
}

// SubmitRequest creates an update request after the open request check.
// The cap is checked before anything is written.
func (s *Service) SubmitRequest(ctx context.Context, clientID string, input RequestInput) (RequestSubmission, error) {
	fields := map[string]string{}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		fields["title"] = "is required"
	}
	quote, quoteErr := quota.QuoteFor(quota.SizeTier(strings.ToLower(strings.TrimSpace(input.SizeTier))))
	if quoteErr != nil {
		fields["sizeTier"] = "must be tiny, small, medium or large"
	}
	priority, ok := quota.ParsePriority(input.Priority)
	if !ok {
		fields["priority"] = "must be low, normal or high"
	}
	for _, attachment := range input.Attachments {
		if strings.TrimSpace(attachment.URL) == "" || strings.TrimSpace(attachment.Name) == "" {
			fields["attachments"] = "each attachment needs a url and a name"
			break
		}
	}
	if len(fields) > 0 {
		return RequestSubmission{}, validationError("Invalid update request", fields)
	}

	allowed, open, err := s.CanSubmit(ctx, clientID)
	if err != nil {
		return RequestSubmission{}, err
	}
	if !allowed {
		return RequestSubmission{}, domainError(http.StatusConflict, CodeQuotaExceeded, "Too many open requests", map[string]any{
			"openRequests": open,
			"cap":          quota.OpenRequestCap,
		})
	}

	now := s.now()
	request := store.UpdateRequest{
		ID:               util.NewID("rq"),
		ClientID:         clientID,
		Title:            title,
		Description:      strings.TrimSpace(input.Description),
		SizeTier:         string(quote.Tier),
		QuotedPriceCents: quote.PriceCents,
		Status:           string(quota.StatusNew),
		Priority:         string(priority),
		Attachments:      append([]store.Attachment{}, input.Attachments...),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.InsertRequest(ctx, request); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RequestSubmission{}, notFound("Client")
		}
		return RequestSubmission{}, err
	}

	submission := RequestSubmission{Request: request, Quote: quote, WithinAllowance: true}
	allowance, err := s.RecordSubmission(ctx, clientID, now)
	if err != nil {
		s.logger.Error("record allowance failed",
			zap.String("client_id", clientID),
			zap.String("request_id", request.ID),
			zap.Error(err),
		)
	} else {
		submission.Allowance = &allowance
		submission.WithinAllowance = allowance.WithinAllowance()
	}

	data := map[string]any{
		"clientId":        clientID,
		"title":           request.Title,
		"sizeTier":        request.SizeTier,
		"priority":        request.Priority,
		"withinAllowance": submission.WithinAllowance,
	}
	if request.QuotedPriceCents != nil {
		data["quotedPriceCents"] = *request.QuotedPriceCents
	}
	s.emit(events.RequestCreated, request.ID, data)
	return submission, nil
}

// SetRequestStatus moves a request through its lifecycle. CompletedAt
// follows the done status; reopening a closed request counts against the cap.
func (s *Service) SetRequestStatus(ctx context.Context, requestID, status string) (store.UpdateRequest, error) {
	target, ok := quota.ParseStatus(status)
	if !ok {
		return store.UpdateRequest{}, validationError("Invalid request status", map[string]string{"status": "must be new, in_progress, waiting_on_client, done or cancelled"})
	}
	request, err := s.store.GetRequest(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.UpdateRequest{}, notFound("Request")
	}
	if err != nil {
		return store.UpdateRequest{}, err
	}
	current := quota.RequestStatus(request.Status)
	if current == target {
		return request, nil
	}

	if !quota.IsOpen(current) && quota.IsOpen(target) {
		open, err := s.store.OpenRequestCount(ctx, request.ClientID)
		if err != nil {
			return store.UpdateRequest{}, err
		}
		if !quota.CanSubmit(open) {
			return store.UpdateRequest{}, domainError(http.StatusConflict, CodeQuotaExceeded, "Too many open requests", map[string]any{
				"openRequests": open,
				"cap":          quota.OpenRequestCap,
			})
		}
	}

	var completedAt *time.Time
	if target == quota.StatusDone {
		at := s.now()
		completedAt = &at
	}
	if err := s.store.UpdateRequestStatus(ctx, requestID, string(target), completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.UpdateRequest{}, notFound("Request")
		}
		return store.UpdateRequest{}, err
	}
	return s.store.GetRequest(ctx, requestID)
}

func (s *Service) ListRequests(ctx context.Context, clientID string) ([]store.UpdateRequest, error) {
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return nil, err
	}
	return s.store.ListRequests(ctx, clientID)
}

// UploadAttachment stores a file for a client's future request and returns
// the reference to include in it.
func (s *Service) UploadAttachment(ctx context.Context, clientID, name string, size int64, body io.Reader) (store.Attachment, error) {
	if s.uploader == nil {
		return store.Attachment{}, domainError(http.StatusServiceUnavailable, CodeUploadsUnavailable, "Attachment storage is not configured", nil)
	}
	if _, err := s.GetClient(ctx, clientID); err != nil {
		return store.Attachment{}, err
	}
	attachment, err := s.uploader.Upload(ctx, clientID, name, size, body)
	switch {
	case errors.Is(err, attachments.ErrEmpty):
		return store.Attachment{}, validationError("Attachment is empty", map[string]string{"file": "is empty"})
	case errors.Is(err, attachments.ErrTooLarge):
		return store.Attachment{}, validationError("Attachment is too large", map[string]string{"file": "is too large"})
	case err != nil:
		s.logger.Warn("attachment upload failed", zap.String("client_id", clientID), zap.Error(err))
		return store.Attachment{}, domainError(http.StatusBadGateway, CodeUploadFailed, "Attachment could not be stored", nil)
	}
	return attachment, nil
}
