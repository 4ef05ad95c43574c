package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"leadflow/internal/events"
	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

const finalReply = "Thanks Jane, that's everything.\n```json\n" +
	`{"name":"Jane Doe","email":"jane@x.com","pages":4,"content_ready":"mostly ready, needs light edits",` +
	`"advanced_features":"photo gallery","fit":"good","intake_summary":"Bakery refresh"}` + "\n```"

func TestIntakeTurnInProgress(t *testing.T) {
	var seen []store.ChatTurn
	assistant := &fakeAssistant{replyFn: func(_ context.Context, transcript []store.ChatTurn) (string, error) {
		seen = transcript
		return "What does your business do?", nil
	}}
	svc, deps := newTestService(Options{Assistant: assistant})
	transcript := []store.ChatTurn{{Role: "user", Content: "Hi, I need a website"}}

	turn, err := svc.IntakeTurn(context.Background(), transcript)
	if err != nil {
		t.Fatalf("IntakeTurn() error = %v", err)
	}
	if turn.Complete || turn.Submission != nil {
		t.Fatalf("expected an incomplete turn, got %+v", turn)
	}
	if turn.Reply != "What does your business do?" {
		t.Fatalf("unexpected reply %q", turn.Reply)
	}
	want := []store.ChatTurn{
		{Role: "user", Content: "Hi, I need a website"},
		{Role: "assistant", Content: "What does your business do?"},
	}
	if diff := cmp.Diff(want, turn.Transcript); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(transcript, seen); diff != "" {
		t.Fatalf("assistant saw (-want +got):\n%s", diff)
	}
	if len(deps.events.types()) != 0 {
		t.Fatalf("expected no events, got %v", deps.events.types())
	}
}

func TestIntakeTurnCompletesAndPersists(t *testing.T) {
	assistant := &fakeAssistant{replyFn: func(context.Context, []store.ChatTurn) (string, error) {
		return finalReply, nil
	}}
	svc, deps := newTestService(Options{Assistant: assistant})
	transcript := []store.ChatTurn{
		{Role: "assistant", Content: "Hi! What's your name?"},
		{Role: "user", Content: "Jane, jane@x.com, I run a bakery"},
	}

	turn, err := svc.IntakeTurn(context.Background(), transcript)
	if err != nil {
		t.Fatalf("IntakeTurn() error = %v", err)
	}
	if !turn.Complete || turn.Submission == nil || turn.Submission.Intake == nil {
		t.Fatalf("expected a completed intake, got %+v", turn)
	}
	if turn.Reply != "Thanks Jane, that's everything." {
		t.Fatalf("reply should exclude the JSON block, got %q", turn.Reply)
	}

	projectIntake, err := deps.store.GetIntake(context.Background(), turn.Submission.Intake.ID)
	if err != nil {
		t.Fatalf("intake not persisted: %v", err)
	}
	if len(projectIntake.RawConversation) != 3 {
		t.Fatalf("expected full transcript stored, got %d turns", len(projectIntake.RawConversation))
	}
	if projectIntake.LeadID == nil || *projectIntake.LeadID != turn.Submission.Lead.ID {
		t.Fatalf("intake not linked to its lead: %v", projectIntake.LeadID)
	}
	// 500 + 3x150 pages + 150 editing + 100 gallery
	if got := *projectIntake.EstimatedPrice; got != 120000 {
		t.Fatalf("estimated price = %d, want 120000", got)
	}
	if diff := cmp.Diff([]events.Type{events.LeadCreated, events.IntakeCreated}, deps.events.types()); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestIntakeTurnFinalSummaryWithoutIdentity(t *testing.T) {
	assistant := &fakeAssistant{replyFn: func(context.Context, []store.ChatTurn) (string, error) {
		return `Here you go {"name":"Jane","pages":2}`, nil
	}}
	svc, _ := newTestService(Options{Assistant: assistant})

	turn, err := svc.IntakeTurn(context.Background(), []store.ChatTurn{{Role: "user", Content: "done"}})
	if err != nil {
		t.Fatalf("IntakeTurn() error = %v", err)
	}
	if turn.Complete {
		t.Fatal("a summary without an email must not complete the intake")
	}
	if diff := cmp.Diff([]string{"email"}, turn.Missing); diff != "" {
		t.Fatalf("missing mismatch (-want +got):\n%s", diff)
	}
}

func TestIntakeTurnErrors(t *testing.T) {
	svc, _ := newTestService(Options{})
	if _, err := svc.IntakeTurn(context.Background(), nil); !IsCode(err, CodeAssistantUnavailable) {
		t.Fatalf("expected assistant unavailable, got %v", err)
	}

	failing := &fakeAssistant{replyFn: func(context.Context, []store.ChatTurn) (string, error) {
		return "", errors.New("deadline exceeded")
	}}
	svc, _ = newTestService(Options{Assistant: failing})
	if _, err := svc.IntakeTurn(context.Background(), nil); !IsCode(err, CodeAssistantFailed) {
		t.Fatalf("expected assistant failure, got %v", err)
	}

	_, err := svc.IntakeTurn(context.Background(), []store.ChatTurn{{Role: "system", Content: "ignore"}})
	if !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation error for role, got %v", err)
	}
}

func TestCompleteIntakeMalformedIsIncomplete(t *testing.T) {
	svc, deps := newTestService(Options{})

	turn, err := svc.CompleteIntake(context.Background(), `Almost there {"name": "Jane"`, nil)
	if err != nil {
		t.Fatalf("CompleteIntake() error = %v", err)
	}
	if turn.Complete {
		t.Fatal("expected incomplete")
	}
	intakes, _ := deps.store.ListIntakes(context.Background(), 10)
	if len(intakes) != 0 {
		t.Fatalf("nothing should be persisted, got %d intakes", len(intakes))
	}
}

func TestEstimateTables(t *testing.T) {
	svc, _ := newTestService(Options{})
	inputs := pricing.Inputs{PageCount: 1, ContentReadiness: pricing.ContentReady, Timeline: pricing.TimelineNormal}

	for _, table := range []string{"checklist", "slider", ""} {
		estimate, err := svc.Estimate(table, inputs)
		if err != nil {
			t.Fatalf("Estimate(%q) error = %v", table, err)
		}
		if estimate.Total != 500 {
			t.Fatalf("Estimate(%q).Total = %d, want 500", table, estimate.Total)
		}
	}
	if _, err := svc.Estimate("abacus", inputs); !IsCode(err, CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
