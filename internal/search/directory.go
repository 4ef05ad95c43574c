package search

import (
	"context"
	"fmt"
	"strings"

	"leadflow/internal/store"
)

// DirectoryStore is the part of the record store the fallback searcher needs.
type DirectoryStore interface {
	SearchDirectory(ctx context.Context, text string, limit int) ([]store.SearchRecord, error)
	ListLeads(ctx context.Context, filter store.LeadFilter) ([]store.Lead, error)
	ListClients(ctx context.Context) ([]store.Client, error)
}

// Directory searches the record store directly. It backs the search facade
// whenever Meilisearch is missing or unhealthy.
type Directory struct {
	store DirectoryStore
}

func NewDirectory(s DirectoryStore) *Directory {
	return &Directory{store: s}
}

// Healthy always returns true; if the store is down the whole app is down.
func (d *Directory) Healthy() bool {
	return true
}

func (d *Directory) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	records, err := d.store.SearchDirectory(ctx, q.Text, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("directory search: %w", err)
	}
	results := make([]Result, 0, len(records))
	for _, record := range records {
		if q.FilterType != "" && ResultType(record.Kind) != q.FilterType {
			continue
		}
		results = append(results, Result{
			Type:         ResultType(record.Kind),
			ID:           record.ID,
			Name:         record.Name,
			Email:        record.Email,
			BusinessName: record.BusinessName,
			Status:       record.Status,
		})
	}
	return results, len(results), nil
}

// LoadAllRecords returns every searchable record for a full reindex.
func (d *Directory) LoadAllRecords(ctx context.Context) ([]LeadRecord, []ClientRecord, error) {
	leads, err := d.store.ListLeads(ctx, store.LeadFilter{Limit: 10000})
	if err != nil {
		return nil, nil, fmt.Errorf("load leads: %w", err)
	}
	clients, err := d.store.ListClients(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load clients: %w", err)
	}

	leadRecords := make([]LeadRecord, 0, len(leads))
	for _, lead := range leads {
		leadRecords = append(leadRecords, LeadRecordFrom(lead))
	}
	clientRecords := make([]ClientRecord, 0, len(clients))
	for _, client := range clients {
		clientRecords = append(clientRecords, ClientRecordFrom(client))
	}
	return leadRecords, clientRecords, nil
}

func LeadRecordFrom(lead store.Lead) LeadRecord {
	record := LeadRecord{ID: lead.ID, Name: lead.Name, Email: lead.Email, Source: lead.Source, Status: lead.Status}
	if lead.BusinessName != nil {
		record.BusinessName = *lead.BusinessName
	}
	return record
}

func ClientRecordFrom(client store.Client) ClientRecord {
	record := ClientRecord{ID: client.ID, Name: client.Name, Email: client.Email, PipelineStage: client.PipelineStage, PlanType: client.PlanType}
	if client.BusinessName != nil {
		record.BusinessName = *client.BusinessName
	}
	return record
}
