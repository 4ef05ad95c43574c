package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"leadflow/internal/pipeline"
	"leadflow/internal/store"
	"leadflow/internal/util"
)

// Conversion is the client a lead or intake converted into. Created is false
// when an existing client was reused.
type Conversion struct {
	Client  store.Client `json:"client"`
	Created bool         `json:"created"`
}

type clientSeed struct {
	email        string
	name         string
	businessName *string
	websiteURL   *string
	notes        string
	sourceID     string
}

// ConvertLead promotes a lead to a client. Converting the same lead twice,
// or two leads sharing an email, resolves to a single client.
func (s *Service) ConvertLead(ctx context.Context, leadID string) (Conversion, error) {
	lead, err := s.store.GetLead(ctx, leadID)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversion{}, notFound("Lead")
	}
	if err != nil {
		return Conversion{}, conversionFailed(err)
	}
	if lead.ConvertedToClientID != nil {
		client, err := s.store.GetClient(ctx, *lead.ConvertedToClientID)
		if err != nil {
			return Conversion{}, conversionFailed(err)
		}
		return Conversion{Client: client}, nil
	}

	conversion, err := s.ensureClient(ctx, clientSeed{
		email:        lead.Email,
		name:         lead.Name,
		businessName: lead.BusinessName,
		websiteURL:   lead.WebsiteURL,
		notes:        leadNotes(lead),
		sourceID:     lead.ID,
	})
	if err != nil {
		return Conversion{}, err
	}
	if err := s.store.MarkLeadConverted(ctx, lead.ID, conversion.Client.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.ConvertLead(ctx, leadID)
		}
		return Conversion{}, conversionFailed(err)
	}
	s.logger.Info("lead converted",
		zap.String("lead_id", lead.ID),
		zap.String("client_id", conversion.Client.ID),
		zap.Bool("created", conversion.Created),
	)
	return conversion, nil
}

// ConvertIntake promotes an intake and the lead it came with.
func (s *Service) ConvertIntake(ctx context.Context, intakeID string) (Conversion, error) {
	projectIntake, err := s.store.GetIntake(ctx, intakeID)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversion{}, notFound("Intake")
	}
	if err != nil {
		return Conversion{}, conversionFailed(err)
	}
	if projectIntake.ClientID != nil {
		client, err := s.store.GetClient(ctx, *projectIntake.ClientID)
		if err != nil {
			return Conversion{}, conversionFailed(err)
		}
		return Conversion{Client: client}, nil
	}

	sourceID := projectIntake.ID
	if projectIntake.LeadID != nil {
		sourceID = *projectIntake.LeadID
	}
	conversion, err := s.ensureClient(ctx, clientSeed{
		email:        projectIntake.Email,
		name:         projectIntake.Name,
		businessName: projectIntake.BusinessName,
		websiteURL:   projectIntake.WebsiteURL,
		notes:        intakeNotes(projectIntake),
		sourceID:     sourceID,
	})
	if err != nil {
		return Conversion{}, err
	}
	if err := s.store.LinkIntakeClient(ctx, projectIntake.ID, conversion.Client.ID); err != nil {
		return Conversion{}, conversionFailed(err)
	}
	if projectIntake.LeadID != nil {
		err := s.store.MarkLeadConverted(ctx, *projectIntake.LeadID, conversion.Client.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return Conversion{}, conversionFailed(err)
		}
	}
	s.logger.Info("intake converted",
		zap.String("intake_id", projectIntake.ID),
		zap.String("client_id", conversion.Client.ID),
		zap.Bool("created", conversion.Created),
	)
	return conversion, nil
}

// ensureClient returns the client for seed.email, creating it when absent.
// A concurrent creator that wins the unique email constraint is adopted.
func (s *Service) ensureClient(ctx context.Context, seed clientSeed) (Conversion, error) {
	email := util.NormalizeEmail(seed.email)
	existing, err := s.store.FindClientByEmail(ctx, email)
	if err == nil {
		return Conversion{Client: existing}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Conversion{}, conversionFailed(err)
	}

	now := s.now()
	client := store.Client{
		ID:            util.NewID("cl"),
		Email:         email,
		Name:          seed.name,
		BusinessName:  seed.businessName,
		WebsiteURL:    seed.websiteURL,
		PipelineStage: string(pipeline.ClientLead),
		PlanType:      store.PlanBuildOnly,
		Active:        true,
		Notes:         seed.notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if seed.sourceID != "" {
		sourceID := seed.sourceID
		client.SourceSubmissionID = &sourceID
	}

	if err := s.store.InsertClient(ctx, client); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			winner, findErr := s.store.FindClientByEmail(ctx, email)
			if findErr != nil {
				return Conversion{}, conversionFailed(findErr)
			}
			return Conversion{Client: winner}, nil
		}
		return Conversion{}, conversionFailed(err)
	}
	s.indexClient(client)
	return Conversion{Client: client, Created: true}, nil
}

func conversionFailed(err error) error {
	return &conversionError{
		DomainError: domainError(http.StatusServiceUnavailable, CodeConversionFailed, "Conversion could not be completed, retry later", nil),
		cause:       err,
	}
}

// conversionError keeps the store failure for logs and errors.Is.
type conversionError struct {
	*DomainError
	cause error
}

func (e *conversionError) Unwrap() []error {
	return []error{e.DomainError, e.cause}
}

func (e *conversionError) Error() string {
	return fmt.Sprintf("%s: %v", e.DomainError.Error(), e.cause)
}

type noteBuilder struct {
	lines []string
}

func (b *noteBuilder) add(label string, value *string) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return
	}
	b.lines = append(b.lines, label+": "+strings.TrimSpace(*value))
}

func (b *noteBuilder) addInt(label string, value *int) {
	if value != nil {
		b.lines = append(b.lines, fmt.Sprintf("%s: %d", label, *value))
	}
}

func (b *noteBuilder) String() string {
	return strings.Join(b.lines, "\n")
}

func leadNotes(lead store.Lead) string {
	var b noteBuilder
	b.add("Project", lead.ProjectDescription)
	b.addInt("Pages", lead.PageCount)
	b.add("Content", lead.ContentReadiness)
	b.add("Timeline", lead.Timeline)
	b.add("Budget", lead.BudgetRange)
	if len(lead.Features) > 0 {
		features := strings.Join(lead.Features, ", ")
		b.add("Features", &features)
	}
	if lead.EstimatedPrice != nil {
		b.lines = append(b.lines, fmt.Sprintf("Estimate: %d", *lead.EstimatedPrice/100))
	}
	b.add("Notes", lead.Notes)
	return b.String()
}

func intakeNotes(projectIntake store.ProjectIntake) string {
	var b noteBuilder
	b.add("Project", projectIntake.ProjectDescription)
	b.add("Goals", projectIntake.Goals)
	b.addInt("Pages", projectIntake.PageCount)
	b.add("Content", projectIntake.ContentReadiness)
	b.add("Timeline", projectIntake.Timeline)
	b.add("Budget", projectIntake.BudgetRange)
	b.add("Design examples", projectIntake.DesignExamples)
	b.add("Features", projectIntake.AdvancedFeatures)
	b.add("Updates", projectIntake.UpdatePreference)
	b.addInt("Suggested tier", projectIntake.SuggestedTier)
	summary := projectIntake.RawSummary
	b.add("Summary", &summary)
	return b.String()
}
