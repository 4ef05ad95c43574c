package search

import (
	"context"

	"go.uber.org/zap"
)

// Service is the facade that tries Meilisearch first and falls back to the
// record store.
type Service struct {
	index     Index
	directory *Directory
	logger    *zap.Logger
}

// NewService creates a search service. index may be nil if Meilisearch is not configured.
func NewService(index Index, directory *Directory, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{index: index, directory: directory, logger: logger}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to directory", zap.Error(err))
	}

	results, total, err := s.directory.Search(ctx, q)
	if err != nil {
		s.logger.Error("directory search failed", zap.Error(err))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexLead indexes a lead (fire-and-forget).
func (s *Service) IndexLead(lead LeadRecord) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.IndexLeads([]LeadRecord{lead}); err != nil {
			s.logger.Warn("index lead", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}()
}

// IndexClient indexes a client (fire-and-forget).
func (s *Service) IndexClient(client ClientRecord) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	go func() {
		if err := s.index.IndexClients([]ClientRecord{client}); err != nil {
			s.logger.Warn("index client", zap.String("client_id", client.ID), zap.Error(err))
		}
	}()
}

// ReindexAll pushes every lead and client from the store into the index.
func (s *Service) ReindexAll(ctx context.Context) {
	if s.index == nil || !s.index.Healthy() || s.directory == nil {
		return
	}
	leads, clients, err := s.directory.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Warn("reindex load failed", zap.Error(err))
		return
	}
	if err := s.index.IndexLeads(leads); err != nil {
		s.logger.Warn("reindex leads", zap.Error(err))
	}
	if err := s.index.IndexClients(clients); err != nil {
		s.logger.Warn("reindex clients", zap.Error(err))
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
