package app

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"leadflow/internal/events"
	"leadflow/internal/intake"
	"leadflow/internal/pricing"
	"leadflow/internal/search"
	"leadflow/internal/store"
)

// DataStore is the persistence surface the service relies on. Both
// store.PostgresStore and store.MemoryStore satisfy it.
type DataStore interface {
	InsertLead(ctx context.Context, lead store.Lead) error
	GetLead(ctx context.Context, leadID string) (store.Lead, error)
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]store.Lead, error)
	UpdateLeadStatus(ctx context.Context, leadID, status string) error
	MarkLeadConverted(ctx context.Context, leadID, clientID string) error

	InsertIntake(ctx context.Context, intake store.ProjectIntake) error
	GetIntake(ctx context.Context, intakeID string) (store.ProjectIntake, error)
	ListIntakes(ctx context.Context, limit int) ([]store.ProjectIntake, error)
	UpdateIntakeStage(ctx context.Context, intakeID, stage string) (string, error)
	LinkIntakeClient(ctx context.Context, intakeID, clientID string) error

	FindClientByEmail(ctx context.Context, email string) (store.Client, error)
	GetClient(ctx context.Context, clientID string) (store.Client, error)
	InsertClient(ctx context.Context, client store.Client) error
	ListClients(ctx context.Context) ([]store.Client, error)
	UpdateClientStage(ctx context.Context, clientID, stage string) (string, error)
	UpdateClient(ctx context.Context, client store.Client) error

	InsertRequest(ctx context.Context, request store.UpdateRequest) error
	GetRequest(ctx context.Context, requestID string) (store.UpdateRequest, error)
	ListRequests(ctx context.Context, clientID string) ([]store.UpdateRequest, error)
	OpenRequestCount(ctx context.Context, clientID string) (int, error)
	UpdateRequestStatus(ctx context.Context, requestID, status string, completedAt *time.Time) error
	RecordAllowance(ctx context.Context, clientID string, month time.Time, included int) (store.RequestAllowance, error)
	GetAllowance(ctx context.Context, clientID string, month time.Time) (store.RequestAllowance, error)

	Ping(ctx context.Context) error
}

// Emitter receives notification facts; delivery happens elsewhere.
type Emitter interface {
	Emit(event events.Event)
}

type Directory interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexLead(lead search.LeadRecord)
	IndexClient(client search.ClientRecord)
}

type Uploader interface {
	Upload(ctx context.Context, clientID, name string, size int64, body io.Reader) (store.Attachment, error)
}

// Assistant produces the next assistant turn of an intake conversation.
type Assistant interface {
	Reply(ctx context.Context, transcript []store.ChatTurn) (string, error)
}

// Options carries the optional collaborators. Nil members disable the
// feature that depends on them.
type Options struct {
	Logger    *zap.Logger
	Pricing   *pricing.Tables
	Events    Emitter
	Directory Directory
	Uploader  Uploader
	Assistant Assistant
	Now       func() time.Time
}

type Service struct {
	store      DataStore
	tables     pricing.Tables
	normalizer *intake.Normalizer
	logger     *zap.Logger
	events     Emitter
	directory  Directory
	uploader   Uploader
	assistant  Assistant
	now        func() time.Time
}

func New(dataStore DataStore, opts Options) *Service {
	tables := pricing.DefaultTables()
	if opts.Pricing != nil {
		tables = *opts.Pricing
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		store:      dataStore,
		tables:     tables,
		normalizer: intake.NewNormalizer(tables),
		logger:     logger,
		events:     opts.Events,
		directory:  opts.Directory,
		uploader:   opts.Uploader,
		assistant:  opts.Assistant,
		now:        now,
	}
}

// Ping checks database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) emit(eventType events.Type, entityID string, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Emit(events.Event{
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: s.now(),
		Data:       data,
	})
}

func (s *Service) indexLead(lead store.Lead) {
	if s.directory != nil {
		s.directory.IndexLead(search.LeadRecordFrom(lead))
	}
}

func (s *Service) indexClient(client store.Client) {
	if s.directory != nil {
		s.directory.IndexClient(search.ClientRecordFrom(client))
	}
}

// Search queries the staff directory. Without a directory every search is
// empty.
func (s *Service) Search(ctx context.Context, text, kind string, limit int) search.Response {
	if s.directory == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.directory.Search(ctx, search.Query{
		Text:       text,
		FilterType: search.ResultType(kind),
		Limit:      limit,
	})
}
