package intake

import (
	"strings"

	"leadflow/internal/pipeline"
	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

var descriptionKeys = []string{"project_description", "description", "project_details", "details", "message", "wish", "what_to_change", "about_project"}

func (n *Normalizer) quote(f fields) Result {
	level := readiness(valueOf(f, "content_readiness", "content_ready", "content"))
	timeline := f.optional("timeline")
	features := featuresFrom(f, "features", "add_ons", "addons", "extras")

	inputs := pricing.Inputs{
		PageCount: 1,
		Features:  features,
		Timeline:  timelineOf(derefString(timeline), f.boolean("rush")),
	}
	pages := f.integer("pages", "page_count", "number_of_pages")
	if pages != nil {
		inputs.PageCount = *pages
	}
	if level != nil {
		inputs.ContentReadiness = *level
	} else {
		inputs.ContentReadiness = pricing.ContentReady
	}

	table := pricing.TableChecklist
	if strings.EqualFold(f.text("estimator", "pricing_table"), pricing.TableSlider) {
		table = pricing.TableSlider
	}
	estimate := n.tables.Compute(table, inputs)
	price := estimate.MinorUnits()

	return Result{
		Lead: store.Lead{
			BusinessName:       f.optional("business_name", "business", "company"),
			WebsiteURL:         f.optional("website_url", "website", "current_website", "url"),
			PageCount:          pages,
			ContentReadiness:   readinessString(level),
			Timeline:           timeline,
			BudgetRange:        f.optional("budget_range", "budget"),
			ProjectDescription: f.optional(descriptionKeys...),
			Notes:              f.optional("notes", "additional_notes"),
			Features:           featureNames(features),
			EstimatedPrice:     &price,
			FitStatus:          store.FitGood,
		},
		Estimate: &estimate,
	}
}

func checkup(f fields) Result {
	return Result{Lead: store.Lead{
		BusinessName:       f.optional("business_name", "business", "company"),
		WebsiteURL:         f.optional("website_url", "website", "site", "url"),
		ProjectDescription: f.optional(descriptionKeys...),
		Notes:              f.optional("notes", "concerns"),
		FitStatus:          store.FitGood,
	}}
}

func contact(f fields) Result {
	return Result{Lead: store.Lead{
		BusinessName:       f.optional("business_name", "business", "company"),
		WebsiteURL:         f.optional("website_url", "website", "url"),
		ProjectDescription: f.optional(descriptionKeys...),
		Notes:              f.optional("notes", "subject"),
		FitStatus:          store.FitGood,
	}}
}

// aiIntake maps the fixed intake JSON contract. The prompt schema and older
// parsers disagree on several names, so both spellings are accepted.
func (n *Normalizer) aiIntake(f fields, conversation []store.ChatTurn) Result {
	level := readiness(valueOf(f, "content_ready", "content_readiness"))
	timeline := f.optional("timeline")
	advanced := f.optional("advanced_features", "features")
	features := featuresFrom(f, "advanced_features", "features")
	pages := f.integer("pages", "page_count")
	fit := fitStatus(f.text("fit", "fit_status"))

	inputs := pricing.Inputs{
		PageCount: 1,
		Features:  features,
		Timeline:  timelineOf(derefString(timeline), false),
	}
	if pages != nil {
		inputs.PageCount = *pages
	}
	if level != nil {
		inputs.ContentReadiness = *level
	} else {
		inputs.ContentReadiness = pricing.ContentReady
	}
	estimate := n.tables.Compute(pricing.TableChecklist, inputs)
	price := estimate.MinorUnits()

	if conversation == nil {
		if value, ok := f.lookup("raw_chat", "conversation", "transcript"); ok {
			conversation = conversationFrom(value)
		}
	}
	if conversation == nil {
		conversation = []store.ChatTurn{}
	}

	summary := f.text("intake_summary", "summary")
	description := f.optional(descriptionKeys...)
	goals := f.optional("goals", "goal")
	businessName := f.optional("business_name", "business")
	websiteURL := f.optional("website_url", "website")
	budget := f.optional("budget_range", "budget")

	projectIntake := &store.ProjectIntake{
		BusinessName:       businessName,
		WebsiteURL:         websiteURL,
		ProjectDescription: description,
		Goals:              goals,
		PageCount:          pages,
		ContentReadiness:   readinessString(level),
		Timeline:           timeline,
		BudgetRange:        budget,
		DesignExamples:     f.optional("design_examples", "examples"),
		AdvancedFeatures:   advanced,
		UpdatePreference:   f.optional("update_preference", "updates"),
		FitStatus:          fit,
		SuggestedTier:      suggestedTier(f.integer("suggested_tier", "tier"), estimate.Total),
		EstimatedPrice:     &price,
		KanbanStage:        string(pipeline.KanbanNew),
		RawSummary:         summary,
		RawConversation:    conversation,
		DiscountOffered:    f.boolean("discount_offered"),
	}
	if amount := f.integer("discount_amount"); amount != nil {
		projectIntake.DiscountAmount = *amount
	}

	var notes *string
	if summary != "" {
		notes = &summary
	}
	return Result{
		Lead: store.Lead{
			BusinessName:       businessName,
			WebsiteURL:         websiteURL,
			PageCount:          pages,
			ContentReadiness:   readinessString(level),
			Timeline:           timeline,
			BudgetRange:        budget,
			ProjectDescription: description,
			Notes:              notes,
			Features:           featureNames(features),
			EstimatedPrice:     &price,
			FitStatus:          fit,
		},
		Intake:   projectIntake,
		Estimate: &estimate,
	}
}

func valueOf(f fields, keys ...string) any {
	value, _ := f.lookup(keys...)
	return value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
