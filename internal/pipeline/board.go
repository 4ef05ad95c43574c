package pipeline

import (
	"context"
	"sync"
)

// CommitFunc persists a stage move. Its result is the only truth a Board
// rolls back against.
type CommitFunc func(ctx context.Context, entityID, stage string) (Transition, error)

// MoveResult is delivered once the commit for a Move has finished.
type MoveResult struct {
	EntityID   string
	Requested  string
	Transition Transition
	Err        error
	// RolledBack is set when the failed move reverted the local view.
	RolledBack bool
	// View is the locally displayed stage after the result was applied.
	View string
}

type boardEntry struct {
	view      string
	confirmed string
	pending   int
}

// Board is a caller-side cache of entity stages. Moves apply to the view
// immediately and reconcile when their commit returns. Concurrent moves on
// one entity resolve by commit order: the last confirmed write wins.
type Board struct {
	commit CommitFunc

	mu      sync.Mutex
	entries map[string]*boardEntry
}

func NewBoard(commit CommitFunc, stages map[string]string) *Board {
	entries := make(map[string]*boardEntry, len(stages))
	for id, stage := range stages {
		entries[id] = &boardEntry{view: stage, confirmed: stage}
	}
	return &Board{commit: commit, entries: entries}
}

// Stage returns the displayed stage and whether the entity is known.
func (b *Board) Stage(entityID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[entityID]
	if !ok {
		return "", false
	}
	return entry.view, true
}

// Confirmed returns the last stage a commit acknowledged.
func (b *Board) Confirmed(entityID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[entityID]
	if !ok {
		return "", false
	}
	return entry.confirmed, true
}

// Move applies stage to the view and commits it in the background. The
// returned channel receives exactly one result.
func (b *Board) Move(ctx context.Context, entityID, stage string) <-chan MoveResult {
	results := make(chan MoveResult, 1)

	b.mu.Lock()
	entry, ok := b.entries[entityID]
	if !ok {
		entry = &boardEntry{}
		b.entries[entityID] = entry
	}
	entry.view = stage
	entry.pending++
	b.mu.Unlock()

	go func() {
		transition, err := b.commit(ctx, entityID, stage)

		b.mu.Lock()
		entry.pending--
		result := MoveResult{EntityID: entityID, Requested: stage, Transition: transition, Err: err}
		if err == nil {
			entry.confirmed = transition.NewStage
		}
		if entry.pending == 0 {
			result.RolledBack = err != nil && entry.view != entry.confirmed
			entry.view = entry.confirmed
		}
		result.View = entry.view
		b.mu.Unlock()

		results <- result
		close(results)
	}()

	return results
}
