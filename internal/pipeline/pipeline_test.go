package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestParseClientStage(t *testing.T) {
	cases := []struct {
		in   string
		want ClientStage
		ok   bool
	}{
		{in: "lead", want: ClientLead, ok: true},
		{in: " Care-Plan ", want: ClientCarePlan, ok: true},
		{in: "LOST", want: ClientLost, ok: true},
		{in: "won", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, ok := ParseClientStage(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("ParseClientStage(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestParseKanbanStage(t *testing.T) {
	for _, stage := range KanbanStages {
		got, ok := ParseKanbanStage(string(stage))
		if !ok || got != stage {
			t.Fatalf("ParseKanbanStage(%q) = %q, %v", stage, got, ok)
		}
	}
	if _, ok := ParseKanbanStage("archived"); ok {
		t.Fatal("expected archived to be rejected")
	}
}

func TestTransitionChanged(t *testing.T) {
	if (Transition{PreviousStage: "lead", NewStage: "lead"}).Changed() {
		t.Fatal("same-stage transition must not report a change")
	}
	if !(Transition{PreviousStage: "lead", NewStage: "build"}).Changed() {
		t.Fatal("expected change")
	}
}

func TestBoardMoveConfirms(t *testing.T) {
	board := NewBoard(func(_ context.Context, id, stage string) (Transition, error) {
		return Transition{EntityID: id, PreviousStage: "lead", NewStage: stage}, nil
	}, map[string]string{"cli_1": "lead"})

	result := <-board.Move(context.Background(), "cli_1", "proposal")
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.View != "proposal" || result.RolledBack {
		t.Fatalf("unexpected result %+v", result)
	}
	if confirmed, _ := board.Confirmed("cli_1"); confirmed != "proposal" {
		t.Fatalf("confirmed = %q", confirmed)
	}
}

func TestBoardMoveRollsBackOnCommitFailure(t *testing.T) {
	release := make(chan struct{})
	board := NewBoard(func(context.Context, string, string) (Transition, error) {
		<-release
		return Transition{}, errors.New("store unavailable")
	}, map[string]string{"cli_1": "build"})

	results := board.Move(context.Background(), "cli_1", "launched")
	if view, _ := board.Stage("cli_1"); view != "launched" {
		t.Fatalf("expected optimistic view launched, got %q", view)
	}
	close(release)

	result := <-results
	if result.Err == nil || !result.RolledBack {
		t.Fatalf("expected rollback, got %+v", result)
	}
	if view, _ := board.Stage("cli_1"); view != "build" {
		t.Fatalf("expected view reverted to build, got %q", view)
	}
}

func TestBoardDoubleDropLastCommitWins(t *testing.T) {
	gates := map[string]chan struct{}{
		"proposal": make(chan struct{}),
		"build":    make(chan struct{}),
	}
	var mu sync.Mutex
	stored := "lead"
	board := NewBoard(func(_ context.Context, id, stage string) (Transition, error) {
		<-gates[stage]
		mu.Lock()
		defer mu.Unlock()
		previous := stored
		stored = stage
		return Transition{EntityID: id, PreviousStage: previous, NewStage: stage}, nil
	}, map[string]string{"cli_1": "lead"})

	ctx := context.Background()
	first := board.Move(ctx, "cli_1", "proposal")
	second := board.Move(ctx, "cli_1", "build")

	// Second drop commits first; the earlier drop's commit lands last.
	close(gates["build"])
	<-second
	close(gates["proposal"])
	last := <-first

	if last.View != "proposal" {
		t.Fatalf("expected last committed stage proposal, got %q", last.View)
	}
	if confirmed, _ := board.Confirmed("cli_1"); confirmed != stored {
		t.Fatalf("board confirmed %q, store holds %q", confirmed, stored)
	}
}

func TestBoardFailedMoveDoesNotClobberNewerPendingMove(t *testing.T) {
	failGate := make(chan struct{})
	okGate := make(chan struct{})
	board := NewBoard(func(_ context.Context, id, stage string) (Transition, error) {
		if stage == "qualified" {
			<-failGate
			return Transition{}, errors.New("conflict")
		}
		<-okGate
		return Transition{EntityID: id, PreviousStage: "lead", NewStage: stage}, nil
	}, map[string]string{"cli_1": "lead"})

	ctx := context.Background()
	failing := board.Move(ctx, "cli_1", "qualified")
	succeeding := board.Move(ctx, "cli_1", "proposal")

	close(failGate)
	failed := <-failing
	if failed.RolledBack {
		t.Fatal("a newer move is still pending; the view must not be reverted yet")
	}
	if view, _ := board.Stage("cli_1"); view != "proposal" {
		t.Fatalf("expected optimistic proposal to remain, got %q", view)
	}

	close(okGate)
	done := <-succeeding
	if done.View != "proposal" {
		t.Fatalf("expected proposal, got %q", done.View)
	}
}
