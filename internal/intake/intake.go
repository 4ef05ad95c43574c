// Package intake turns raw channel payloads into canonical lead records.
//
// Every channel has its own mapper; channel-specific field names never leave
// this package. Normalization is a pure transformation: identifiers and
// timestamps are assigned by the caller when the records are persisted.
package intake

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"leadflow/internal/pricing"
	"leadflow/internal/store"
)

type Source string

const (
	SourceQuote    Source = "quote"
	SourceCheckup  Source = "checkup"
	SourceContact  Source = "contact"
	SourceAIIntake Source = "ai_intake"
)

var ErrUnknownSource = errors.New("unknown submission source")

// ErrMalformedIntakePayload means the assistant message carries no parseable
// final JSON object yet. Callers treat it as a conversation still in progress.
var ErrMalformedIntakePayload = errors.New("malformed intake payload")

func ParseSource(value string) (Source, error) {
	switch source := Source(strings.ToLower(strings.TrimSpace(value))); source {
	case SourceQuote, SourceCheckup, SourceContact, SourceAIIntake:
		return source, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSource, value)
}

// ValidationError lists required identity fields that were absent.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+" "+e.Fields[key])
	}
	return "invalid submission: " + strings.Join(parts, ", ")
}

// Result is the canonical form of one submission. Intake is only set for
// the AI channel; Estimate is nil when the channel carries no pricing inputs.
type Result struct {
	Lead     store.Lead
	Intake   *store.ProjectIntake
	Estimate *pricing.Estimate
}

type Normalizer struct {
	tables pricing.Tables
}

func NewNormalizer(tables pricing.Tables) *Normalizer {
	return &Normalizer{tables: tables}
}

// Normalize maps raw into canonical records for source.
func (n *Normalizer) Normalize(source Source, raw map[string]any) (Result, error) {
	f := newFields(raw)
	name := f.text("name", "full_name", "your_name", "contact_name")
	email := strings.ToLower(f.text("email", "email_address", "contact_email"))
	if err := requireIdentity(name, email); err != nil {
		return Result{}, err
	}

	var result Result
	switch source {
	case SourceQuote:
		result = n.quote(f)
	case SourceCheckup:
		result = checkup(f)
	case SourceContact:
		result = contact(f)
	case SourceAIIntake:
		result = n.aiIntake(f, nil)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	result.Lead.Name = name
	result.Lead.Email = email
	result.Lead.Source = string(source)
	result.Lead.Status = store.LeadStatusNew
	result.Lead.Payload = raw
	if result.Lead.FitStatus == "" {
		result.Lead.FitStatus = store.FitGood
	}
	if result.Lead.Features == nil {
		result.Lead.Features = []string{}
	}
	if result.Intake != nil {
		result.Intake.Name = name
		result.Intake.Email = email
	}
	return result, nil
}

func requireIdentity(name, email string) error {
	missing := map[string]string{}
	if name == "" {
		missing["name"] = "is required"
	}
	switch {
	case email == "":
		missing["email"] = "is required"
	case !strings.Contains(email, "@"):
		missing["email"] = "must be an email address"
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
