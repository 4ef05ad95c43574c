package app

import (
	"context"
	"io"
	"sync"
	"time"

	"leadflow/internal/events"
	"leadflow/internal/search"
	"leadflow/internal/store"
)

// fakeStore runs on a MemoryStore; the xxxFn hooks override single calls.
type fakeStore struct {
	*store.MemoryStore
	pingFn              func(context.Context) error
	getLeadFn           func(context.Context, string) (store.Lead, error)
	findClientByEmailFn func(context.Context, string) (store.Client, error)
	insertClientFn      func(context.Context, store.Client) error
	updateClientStageFn func(context.Context, string, string) (string, error)
	updateIntakeStageFn func(context.Context, string, string) (string, error)
	recordAllowanceFn   func(context.Context, string, time.Time, int) (store.RequestAllowance, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetLead(ctx context.Context, leadID string) (store.Lead, error) {
	if f.getLeadFn != nil {
		return f.getLeadFn(ctx, leadID)
	}
	return f.MemoryStore.GetLead(ctx, leadID)
}

func (f *fakeStore) FindClientByEmail(ctx context.Context, email string) (store.Client, error) {
	if f.findClientByEmailFn != nil {
		return f.findClientByEmailFn(ctx, email)
	}
	return f.MemoryStore.FindClientByEmail(ctx, email)
}

func (f *fakeStore) InsertClient(ctx context.Context, client store.Client) error {
	if f.insertClientFn != nil {
		return f.insertClientFn(ctx, client)
	}
	return f.MemoryStore.InsertClient(ctx, client)
}

func (f *fakeStore) UpdateClientStage(ctx context.Context, clientID, stage string) (string, error) {
	if f.updateClientStageFn != nil {
		return f.updateClientStageFn(ctx, clientID, stage)
	}
	return f.MemoryStore.UpdateClientStage(ctx, clientID, stage)
}

func (f *fakeStore) UpdateIntakeStage(ctx context.Context, intakeID, stage string) (string, error) {
	if f.updateIntakeStageFn != nil {
		return f.updateIntakeStageFn(ctx, intakeID, stage)
	}
	return f.MemoryStore.UpdateIntakeStage(ctx, intakeID, stage)
}

func (f *fakeStore) RecordAllowance(ctx context.Context, clientID string, month time.Time, included int) (store.RequestAllowance, error) {
	if f.recordAllowanceFn != nil {
		return f.recordAllowanceFn(ctx, clientID, month, included)
	}
	return f.MemoryStore.RecordAllowance(ctx, clientID, month, included)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingEmitter) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]events.Type, len(r.events))
	for i, event := range r.events {
		types[i] = event.Type
	}
	return types
}

type fakeAssistant struct {
	replyFn func(context.Context, []store.ChatTurn) (string, error)
}

func (f *fakeAssistant) Reply(ctx context.Context, transcript []store.ChatTurn) (string, error) {
	return f.replyFn(ctx, transcript)
}

type fakeUploader struct {
	uploadFn func(context.Context, string, string, int64, io.Reader) (store.Attachment, error)
}

func (f *fakeUploader) Upload(ctx context.Context, clientID, name string, size int64, body io.Reader) (store.Attachment, error) {
	return f.uploadFn(ctx, clientID, name, size, body)
}

type fakeDirectory struct {
	mu      sync.Mutex
	leads   []search.LeadRecord
	clients []search.ClientRecord
}

func (f *fakeDirectory) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeDirectory) IndexLead(lead search.LeadRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leads = append(f.leads, lead)
}

func (f *fakeDirectory) IndexClient(client search.ClientRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients = append(f.clients, client)
}

var testNow = time.Date(2026, time.March, 14, 10, 30, 0, 0, time.UTC)

type testDeps struct {
	store     *fakeStore
	events    *recordingEmitter
	directory *fakeDirectory
}

func newTestService(opts Options) (*Service, testDeps) {
	deps := testDeps{store: newFakeStore(), events: &recordingEmitter{}, directory: &fakeDirectory{}}
	if opts.Events == nil {
		opts.Events = deps.events
	}
	if opts.Directory == nil {
		opts.Directory = deps.directory
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	return New(deps.store, opts), deps
}
