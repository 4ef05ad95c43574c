package store

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"leadflow/internal/quota"
)

// MemoryStore keeps every record in process. It honours the same contract as
// PostgresStore, including sql.ErrNoRows and ErrDuplicateEmail, and is used
// for local development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	now         func() time.Time
	leads       map[string]Lead
	intakes     map[string]ProjectIntake
	clients     map[string]Client
	clientEmail map[string]string
	requests    map[string]UpdateRequest
	allowances  map[allowanceKey]RequestAllowance
}

type allowanceKey struct {
	clientID string
	month    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:         func() time.Time { return time.Now().UTC() },
		leads:       make(map[string]Lead),
		intakes:     make(map[string]ProjectIntake),
		clients:     make(map[string]Client),
		clientEmail: make(map[string]string),
		requests:    make(map[string]UpdateRequest),
		allowances:  make(map[allowanceKey]RequestAllowance),
	}
}

func (m *MemoryStore) InsertLead(_ context.Context, lead Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.leads[lead.ID]; exists {
		return ErrDuplicateID
	}
	lead.Features = append([]string{}, lead.Features...)
	lead.UpdatedAt = lead.CreatedAt
	m.leads[lead.ID] = lead
	return nil
}

func (m *MemoryStore) GetLead(_ context.Context, leadID string) (Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return Lead{}, sql.ErrNoRows
	}
	return lead, nil
}

func (m *MemoryStore) ListLeads(_ context.Context, filter LeadFilter) ([]Lead, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]Lead, 0, len(m.leads))
	for _, lead := range m.leads {
		if filter.Status != "" && lead.Status != filter.Status {
			continue
		}
		if filter.Source != "" && lead.Source != filter.Source {
			continue
		}
		items = append(items, lead)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) UpdateLeadStatus(_ context.Context, leadID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok || lead.ConvertedToClientID != nil {
		return sql.ErrNoRows
	}
	lead.Status = status
	lead.UpdatedAt = m.now()
	m.leads[leadID] = lead
	return nil
}

func (m *MemoryStore) MarkLeadConverted(_ context.Context, leadID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return sql.ErrNoRows
	}
	if lead.ConvertedToClientID != nil && *lead.ConvertedToClientID != clientID {
		return sql.ErrNoRows
	}
	lead.Status = LeadStatusConverted
	lead.ConvertedToClientID = &clientID
	lead.UpdatedAt = m.now()
	m.leads[leadID] = lead
	return nil
}

func (m *MemoryStore) InsertIntake(_ context.Context, intake ProjectIntake) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.intakes[intake.ID]; exists {
		return ErrDuplicateID
	}
	intake.RawConversation = append([]ChatTurn{}, intake.RawConversation...)
	intake.UpdatedAt = intake.CreatedAt
	m.intakes[intake.ID] = intake
	return nil
}

func (m *MemoryStore) GetIntake(_ context.Context, intakeID string) (ProjectIntake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	intake, ok := m.intakes[intakeID]
	if !ok {
		return ProjectIntake{}, sql.ErrNoRows
	}
	intake.RawConversation = append([]ChatTurn{}, intake.RawConversation...)
	return intake, nil
}

func (m *MemoryStore) ListIntakes(_ context.Context, limit int) ([]ProjectIntake, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]ProjectIntake, 0, len(m.intakes))
	for _, intake := range m.intakes {
		items = append(items, intake)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if limit <= 0 {
		limit = 100
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) UpdateIntakeStage(_ context.Context, intakeID, stage string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intake, ok := m.intakes[intakeID]
	if !ok {
		return "", sql.ErrNoRows
	}
	previous := intake.KanbanStage
	if previous == stage {
		return previous, nil
	}
	intake.KanbanStage = stage
	intake.UpdatedAt = m.now()
	m.intakes[intakeID] = intake
	return previous, nil
}

func (m *MemoryStore) LinkIntakeClient(_ context.Context, intakeID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	intake, ok := m.intakes[intakeID]
	if !ok {
		return sql.ErrNoRows
	}
	intake.ClientID = &clientID
	intake.UpdatedAt = m.now()
	m.intakes[intakeID] = intake
	return nil
}

func (m *MemoryStore) FindClientByEmail(_ context.Context, email string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.clientEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return Client{}, sql.ErrNoRows
	}
	return m.clients[id], nil
}

func (m *MemoryStore) GetClient(_ context.Context, clientID string) (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[clientID]
	if !ok {
		return Client{}, sql.ErrNoRows
	}
	return client, nil
}

func (m *MemoryStore) InsertClient(_ context.Context, client Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(strings.TrimSpace(client.Email))
	if _, taken := m.clientEmail[key]; taken {
		return ErrDuplicateEmail
	}
	if _, exists := m.clients[client.ID]; exists {
		return ErrDuplicateID
	}
	client.UpdatedAt = client.CreatedAt
	m.clients[client.ID] = client
	m.clientEmail[key] = client.ID
	return nil
}

func (m *MemoryStore) ListClients(_ context.Context) ([]Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]Client, 0, len(m.clients))
	for _, client := range m.clients {
		items = append(items, client)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

func (m *MemoryStore) UpdateClientStage(_ context.Context, clientID, stage string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	client, ok := m.clients[clientID]
	if !ok {
		return "", sql.ErrNoRows
	}
	previous := client.PipelineStage
	if previous == stage {
		return previous, nil
	}
	client.PipelineStage = stage
	client.UpdatedAt = m.now()
	m.clients[clientID] = client
	return previous, nil
}

func (m *MemoryStore) UpdateClient(_ context.Context, client Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.clients[client.ID]
	if !ok {
		return sql.ErrNoRows
	}
	current.PlanType = client.PlanType
	current.MonthlyFeeCents = client.MonthlyFeeCents
	current.SetupFeeCents = client.SetupFeeCents
	current.MonthlyIncludedMinutes = client.MonthlyIncludedMinutes
	current.Active = client.Active
	current.Notes = client.Notes
	current.UpdatedAt = m.now()
	m.clients[client.ID] = current
	return nil
}

func (m *MemoryStore) InsertRequest(_ context.Context, request UpdateRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[request.ClientID]; !ok {
		return sql.ErrNoRows
	}
	if _, exists := m.requests[request.ID]; exists {
		return ErrDuplicateID
	}
	request.Attachments = append([]Attachment{}, request.Attachments...)
	request.UpdatedAt = request.CreatedAt
	m.requests[request.ID] = request
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, requestID string) (UpdateRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	request, ok := m.requests[requestID]
	if !ok {
		return UpdateRequest{}, sql.ErrNoRows
	}
	return request, nil
}

func (m *MemoryStore) ListRequests(_ context.Context, clientID string) ([]UpdateRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]UpdateRequest, 0)
	for _, request := range m.requests {
		if clientID == "" && !isOpenStatus(request.Status) {
			continue
		}
		if clientID != "" && request.ClientID != clientID {
			continue
		}
		items = append(items, request)
	}
	if clientID == "" {
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	} else {
		sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	}
	return items, nil
}

func (m *MemoryStore) OpenRequestCount(_ context.Context, clientID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, request := range m.requests {
		if request.ClientID == clientID && isOpenStatus(request.Status) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) UpdateRequestStatus(_ context.Context, requestID, status string, completedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	request, ok := m.requests[requestID]
	if !ok {
		return sql.ErrNoRows
	}
	request.Status = status
	request.CompletedAt = completedAt
	request.UpdatedAt = m.now()
	m.requests[requestID] = request
	return nil
}

func (m *MemoryStore) RecordAllowance(_ context.Context, clientID string, month time.Time, included int) (RequestAllowance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := allowanceKey{clientID: clientID, month: month.Format("2006-01")}
	var existing *RequestAllowance
	if item, ok := m.allowances[key]; ok {
		existing = &item
	}
	next := quota.Next(existing, clientID, month, included)
	m.allowances[key] = next
	return next, nil
}

func (m *MemoryStore) GetAllowance(_ context.Context, clientID string, month time.Time) (RequestAllowance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.allowances[allowanceKey{clientID: clientID, month: month.Format("2006-01")}]
	if !ok {
		return RequestAllowance{}, sql.ErrNoRows
	}
	return item, nil
}

func (m *MemoryStore) SearchDirectory(_ context.Context, text string, limit int) ([]SearchRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return []SearchRecord{}, nil
	}
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		record  SearchRecord
		updated time.Time
	}
	matches := make([]scored, 0)
	for _, client := range m.clients {
		business := derefOrEmpty(client.BusinessName)
		if containsAny(needle, client.Name, client.Email, business) {
			matches = append(matches, scored{
				record:  SearchRecord{Kind: "client", ID: client.ID, Name: client.Name, Email: client.Email, BusinessName: business, Status: client.PipelineStage},
				updated: client.UpdatedAt,
			})
		}
	}
	for _, lead := range m.leads {
		business := derefOrEmpty(lead.BusinessName)
		if containsAny(needle, lead.Name, lead.Email, business) {
			matches = append(matches, scored{
				record:  SearchRecord{Kind: "lead", ID: lead.ID, Name: lead.Name, Email: lead.Email, BusinessName: business, Status: lead.Status},
				updated: lead.UpdatedAt,
			})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].updated.After(matches[j].updated) })

	items := make([]SearchRecord, 0, len(matches))
	for _, match := range matches {
		if len(items) == limit {
			break
		}
		items = append(items, match.record)
	}
	return items, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func isOpenStatus(status string) bool {
	return quota.IsOpen(quota.RequestStatus(status))
}

func containsAny(needle string, values ...string) bool {
	for _, value := range values {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
