package store

import (
	"time"

	"leadflow/internal/quota"
)

const (
	LeadStatusNew       = "new"
	LeadStatusReviewed  = "reviewed"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusNotFit    = "not_fit"
)

const (
	FitGood       = "good"
	FitBorderline = "borderline"
	FitNotFit     = "not_fit"
)

const (
	PlanBuildOnly = "build_only"
	PlanCarePlan  = "care_plan"
)

// Lead is a prospect's submission from any channel. Source and the payload
// fields are fixed at creation; only Status and the conversion link change.
type Lead struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	Email               string         `json:"email"`
	Source              string         `json:"source"`
	BusinessName        *string        `json:"businessName"`
	WebsiteURL          *string        `json:"websiteUrl"`
	PageCount           *int           `json:"pageCount"`
	ContentReadiness    *string        `json:"contentReadiness"`
	Timeline            *string        `json:"timeline"`
	BudgetRange         *string        `json:"budgetRange"`
	ProjectDescription  *string        `json:"projectDescription"`
	Notes               *string        `json:"notes"`
	Features            []string       `json:"features"`
	EstimatedPrice      *int64         `json:"estimatedPrice"`
	FitStatus           string         `json:"fitStatus"`
	Status              string         `json:"status"`
	ConvertedToClientID *string        `json:"convertedToClientId"`
	Payload             map[string]any `json:"payload"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ProjectIntake is the structured outcome of a conversational intake.
// RawConversation is written once and never mutated.
type ProjectIntake struct {
	ID                 string     `json:"id"`
	LeadID             *string    `json:"leadId"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	BusinessName       *string    `json:"businessName"`
	WebsiteURL         *string    `json:"websiteUrl"`
	ProjectDescription *string    `json:"projectDescription"`
	Goals              *string    `json:"goals"`
	PageCount          *int       `json:"pageCount"`
	ContentReadiness   *string    `json:"contentReadiness"`
	Timeline           *string    `json:"timeline"`
	BudgetRange        *string    `json:"budgetRange"`
	DesignExamples     *string    `json:"designExamples"`
	AdvancedFeatures   *string    `json:"advancedFeatures"`
	UpdatePreference   *string    `json:"updatePreference"`
	FitStatus          string     `json:"fitStatus"`
	SuggestedTier      *int       `json:"suggestedTier"`
	EstimatedPrice     *int64     `json:"estimatedPrice"`
	KanbanStage        string     `json:"kanbanStage"`
	RawSummary         string     `json:"rawSummary"`
	RawConversation    []ChatTurn `json:"rawConversation"`
	DiscountOffered    bool       `json:"discountOffered"`
	DiscountAmount     int        `json:"discountAmount"`
	ClientID           *string    `json:"clientId"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// Client is keyed by its normalized email; at most one exists per address.
type Client struct {
	ID                     string    `json:"id"`
	Email                  string    `json:"email"`
	Name                   string    `json:"name"`
	BusinessName           *string   `json:"businessName"`
	WebsiteURL             *string   `json:"websiteUrl"`
	PipelineStage          string    `json:"pipelineStage"`
	PlanType               string    `json:"planType"`
	MonthlyFeeCents        int64     `json:"monthlyFeeCents"`
	SetupFeeCents          int64     `json:"setupFeeCents"`
	MonthlyIncludedMinutes int       `json:"monthlyIncludedMinutes"`
	Active                 bool      `json:"active"`
	Notes                  string    `json:"notes"`
	SourceSubmissionID     *string   `json:"sourceSubmissionId"`
	CreatedAt              time.Time `json:"createdAt"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// ClientPatch carries the staff-editable engagement fields; nil means unchanged.
type ClientPatch struct {
	PlanType               *string `json:"planType"`
	MonthlyFeeCents        *int64  `json:"monthlyFeeCents"`
	SetupFeeCents          *int64  `json:"setupFeeCents"`
	MonthlyIncludedMinutes *int    `json:"monthlyIncludedMinutes"`
	Active                 *bool   `json:"active"`
	Notes                  *string `json:"notes"`
}

func (p ClientPatch) Apply(client Client) Client {
	if p.PlanType != nil {
		client.PlanType = *p.PlanType
	}
	if p.MonthlyFeeCents != nil {
		client.MonthlyFeeCents = *p.MonthlyFeeCents
	}
	if p.SetupFeeCents != nil {
		client.SetupFeeCents = *p.SetupFeeCents
	}
	if p.MonthlyIncludedMinutes != nil {
		client.MonthlyIncludedMinutes = *p.MonthlyIncludedMinutes
	}
	if p.Active != nil {
		client.Active = *p.Active
	}
	if p.Notes != nil {
		client.Notes = *p.Notes
	}
	return client
}

type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// UpdateRequest is a bounded change request. CompletedAt is set exactly
// while Status is done.
type UpdateRequest struct {
	ID               string       `json:"id"`
	ClientID         string       `json:"clientId"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	SizeTier         string       `json:"sizeTier"`
	QuotedPriceCents *int64       `json:"quotedPriceCents"`
	Status           string       `json:"status"`
	Priority         string       `json:"priority"`
	Attachments      []Attachment `json:"attachments"`
	CompletedAt      *time.Time   `json:"completedAt"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// RequestAllowance is stored per (client, month).
type RequestAllowance = quota.Allowance

// LeadFilter narrows ListLeads; blank fields match everything.
type LeadFilter struct {
	Status string
	Source string
	Limit  int
}

// SearchRecord is a row in the staff directory search.
type SearchRecord struct {
	Kind         string `json:"kind"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	BusinessName string `json:"businessName"`
	Status       string `json:"status"`
}
