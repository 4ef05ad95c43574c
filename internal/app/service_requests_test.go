package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"leadflow/internal/attachments"
	"leadflow/internal/events"
	"leadflow/internal/store"
)

func TestQuoteFor(t *testing.T) {
	svc, _ := newTestService(Options{})
	tests := []struct {
		tier    string
		cents   int64
		pending bool
	}{
		{tier: "tiny", cents: 0},
		{tier: "Small", cents: 5000},
		{tier: "medium", cents: 10000},
		{tier: "large", pending: true},
	}
	for _, tc := range tests {
		t.Run(tc.tier, func(t *testing.T) {
			quote, err := svc.QuoteFor(tc.tier)
			if err != nil {
				t.Fatalf("QuoteFor() error = %v", err)
			}
			if quote.Pending() != tc.pending {
				t.Fatalf("pending = %v, want %v", quote.Pending(), tc.pending)
			}
			if !tc.pending && *quote.PriceCents != tc.cents {
				t.Fatalf("price = %d, want %d", *quote.PriceCents, tc.cents)
			}
		})
	}

	if _, err := svc.QuoteFor("huge"); !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRequestEnforcesOpenCap(t *testing.T) {
	svc, deps := newTestService(Options{})
	ctx := context.Background()
	client := seedClientWith(t, svc, "cl_1", "c@example.com")

	for _, title := range []string{"Fix footer", "Swap hero image"} {
		submission, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: title, SizeTier: "small"})
		if err != nil {
			t.Fatalf("SubmitRequest(%q) error = %v", title, err)
		}
		if submission.Request.Status != "new" || submission.Request.Priority != "normal" {
			t.Fatalf("unexpected request defaults %+v", submission.Request)
		}
		if !submission.WithinAllowance {
			t.Fatalf("request %q should be within the allowance", title)
		}
	}

	_, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: "Third", SizeTier: "tiny"})
	if !IsCode(err, CodeQuotaExceeded) {
		t.Fatalf("expected QUOTA_EXCEEDED, got %v", err)
	}
	requests, _ := deps.store.ListRequests(ctx, client.ID)
	if len(requests) != 2 {
		t.Fatalf("rejected request must not be written, got %d requests", len(requests))
	}
	allowance, err := svc.Allowance(ctx, client.ID, testNow)
	if err != nil {
		t.Fatalf("Allowance() error = %v", err)
	}
	if allowance.UsedRequests != 2 {
		t.Fatalf("rejected request must not be counted, used = %d", allowance.UsedRequests)
	}

	created := 0
	for _, eventType := range deps.events.types() {
		if eventType == events.RequestCreated {
			created++
		}
	}
	if created != 2 {
		t.Fatalf("expected 2 request.created events, got %d", created)
	}
}

func TestSubmitRequestBeyondAllowanceStillSucceeds(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := context.Background()
	client := seedClientWith(t, svc, "cl_1", "c@example.com")

	for i := 0; i < 3; i++ {
		submission, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: "Change", SizeTier: "medium"})
		if err != nil {
			t.Fatalf("SubmitRequest() error = %v", err)
		}
		if i == 2 && submission.WithinAllowance {
			t.Fatal("third request of the month should be outside the allowance")
		}
		if _, err := svc.SetRequestStatus(ctx, submission.Request.ID, "done"); err != nil {
			t.Fatalf("SetRequestStatus() error = %v", err)
		}
	}

	allowance, err := svc.Allowance(ctx, client.ID, testNow)
	if err != nil {
		t.Fatalf("Allowance() error = %v", err)
	}
	if allowance.UsedRequests != 3 || allowance.Remaining() != 0 {
		t.Fatalf("unexpected allowance %+v", allowance)
	}
}

func TestSubmitRequestValidation(t *testing.T) {
	svc, _ := newTestService(Options{})
	client := seedClientWith(t, svc, "cl_1", "c@example.com")

	tests := map[string]RequestInput{
		"missing title": {SizeTier: "small"},
		"unknown tier":  {Title: "Fix", SizeTier: "gigantic"},
		"bad priority":  {Title: "Fix", SizeTier: "small", Priority: "asap"},
		"bad attachment": {Title: "Fix", SizeTier: "small", Attachments: []store.Attachment{
			{Name: "logo.png"},
		}},
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.SubmitRequest(context.Background(), client.ID, input)
			if !IsCode(err, CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := svc.SubmitRequest(context.Background(), "cl_missing", RequestInput{Title: "Fix", SizeTier: "small"}); !IsCode(err, CodeNotFound) {
		t.Fatalf("expected NOT_FOUND for unknown client, got %v", err)
	}
}

func TestSubmitRequestAllowanceFailureKeepsRequest(t *testing.T) {
	svc, deps := newTestService(Options{})
	ctx := context.Background()
	client := seedClientWith(t, svc, "cl_1", "c@example.com")
	deps.store.recordAllowanceFn = func(context.Context, string, time.Time, int) (store.RequestAllowance, error) {
		return store.RequestAllowance{}, errors.New("timeout")
	}

	submission, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: "Fix", SizeTier: "large"})
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	if submission.Allowance != nil {
		t.Fatalf("expected no allowance, got %+v", submission.Allowance)
	}
	if submission.Request.QuotedPriceCents != nil {
		t.Fatal("large requests carry no price")
	}
}

func TestSetRequestStatusCompletedAt(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := context.Background()
	client := seedClientWith(t, svc, "cl_1", "c@example.com")
	submission, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: "Fix", SizeTier: "small", Priority: "high"})
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	id := submission.Request.ID

	done, err := svc.SetRequestStatus(ctx, id, "done")
	if err != nil {
		t.Fatalf("SetRequestStatus(done) error = %v", err)
	}
	if done.CompletedAt == nil || !done.CompletedAt.Equal(testNow) {
		t.Fatalf("expected completed_at %v, got %v", testNow, done.CompletedAt)
	}

	reopened, err := svc.SetRequestStatus(ctx, id, "in_progress")
	if err != nil {
		t.Fatalf("SetRequestStatus(in_progress) error = %v", err)
	}
	if reopened.CompletedAt != nil {
		t.Fatalf("expected completed_at cleared, got %v", reopened.CompletedAt)
	}

	if _, err := svc.SetRequestStatus(ctx, id, "archived"); !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.SetRequestStatus(ctx, "rq_missing", "done"); !IsCode(err, CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestSetRequestStatusReopenRespectsCap(t *testing.T) {
	svc, _ := newTestService(Options{})
	ctx := context.Background()
	client := seedClientWith(t, svc, "cl_1", "c@example.com")

	first, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: "One", SizeTier: "small"})
	if err != nil {
		t.Fatalf("SubmitRequest() error = %v", err)
	}
	if _, err := svc.SetRequestStatus(ctx, first.Request.ID, "cancelled"); err != nil {
		t.Fatalf("cancel error = %v", err)
	}
	for _, title := range []string{"Two", "Three"} {
		if _, err := svc.SubmitRequest(ctx, client.ID, RequestInput{Title: title, SizeTier: "small"}); err != nil {
			t.Fatalf("SubmitRequest(%q) error = %v", title, err)
		}
	}

	if _, err := svc.SetRequestStatus(ctx, first.Request.ID, "new"); !IsCode(err, CodeQuotaExceeded) {
		t.Fatalf("expected reopen to hit the cap, got %v", err)
	}

	allowed, open, err := svc.CanSubmit(ctx, client.ID)
	if err != nil {
		t.Fatalf("CanSubmit() error = %v", err)
	}
	if allowed || open != 2 {
		t.Fatalf("CanSubmit() = %v, %d; want false, 2", allowed, open)
	}
}

func TestAllowanceDefaultsForEmptyMonth(t *testing.T) {
	svc, _ := newTestService(Options{})
	client := seedClientWith(t, svc, "cl_1", "c@example.com")

	allowance, err := svc.Allowance(context.Background(), client.ID, time.Date(2025, time.December, 20, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Allowance() error = %v", err)
	}
	if allowance.UsedRequests != 0 || allowance.IncludedRequests != 2 {
		t.Fatalf("unexpected default allowance %+v", allowance)
	}
	if want := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC); !allowance.Month.Equal(want) {
		t.Fatalf("month = %v, want %v", allowance.Month, want)
	}
}

func TestUploadAttachment(t *testing.T) {
	var gotName string
	uploader := &fakeUploader{uploadFn: func(_ context.Context, clientID, name string, size int64, body io.Reader) (store.Attachment, error) {
		gotName = name
		data, _ := io.ReadAll(body)
		return store.Attachment{URL: "https://files.example/" + clientID + "/" + name, Name: name, Size: int64(len(data))}, nil
	}}
	svc, _ := newTestService(Options{Uploader: uploader})
	client := seedClientWith(t, svc, "cl_1", "c@example.com")

	attachment, err := svc.UploadAttachment(context.Background(), client.ID, "logo.png", 4, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("UploadAttachment() error = %v", err)
	}
	if gotName != "logo.png" || attachment.Size != 4 {
		t.Fatalf("unexpected attachment %+v", attachment)
	}
}

func TestUploadAttachmentErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "too large", err: attachments.ErrTooLarge, code: CodeValidation},
		{name: "empty", err: attachments.ErrEmpty, code: CodeValidation},
		{name: "storage down", err: errors.New("dial tcp: refused"), code: CodeUploadFailed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			uploader := &fakeUploader{uploadFn: func(context.Context, string, string, int64, io.Reader) (store.Attachment, error) {
				return store.Attachment{}, tc.err
			}}
			svc, _ := newTestService(Options{Uploader: uploader})
			client := seedClientWith(t, svc, "cl_1", "c@example.com")
			_, err := svc.UploadAttachment(context.Background(), client.ID, "a.pdf", 10, strings.NewReader("0123456789"))
			if !IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}

	svc, _ := newTestService(Options{})
	if _, err := svc.UploadAttachment(context.Background(), "cl_1", "a.pdf", 1, strings.NewReader("x")); !IsCode(err, CodeUploadsUnavailable) {
		t.Fatalf("expected uploads unavailable, got %v", err)
	}
}
