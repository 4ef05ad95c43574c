package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultLead   ResultType = "lead"
	ResultClient ResultType = "client"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type         ResultType `json:"type"`
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	BusinessName string     `json:"businessName"`
	Status       string     `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a directory search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Index is a Searcher that also accepts records.
type Index interface {
	Searcher
	IndexLeads(leads []LeadRecord) error
	IndexClients(clients []ClientRecord) error
}

// LeadRecord is the data we index for a lead.
type LeadRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	BusinessName string `json:"businessName"`
	Source       string `json:"source"`
	Status       string `json:"status"`
}

// ClientRecord is the data we index for a client.
type ClientRecord struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	BusinessName  string `json:"businessName"`
	PipelineStage string `json:"pipelineStage"`
	PlanType      string `json:"planType"`
}
