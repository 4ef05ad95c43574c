package app

import (
	"errors"
	"fmt"
	"net/http"

	"leadflow/internal/intake"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeConversionFailed     = "CONVERSION_FAILED"
	CodeQuotaExceeded        = "QUOTA_EXCEEDED"
	CodeStaleStage           = "STALE_STAGE_TRANSITION"
	CodeLeadConverted        = "LEAD_CONVERTED"
	CodeUploadFailed         = "ATTACHMENT_UPLOAD_FAILED"
	CodeUploadsUnavailable   = "ATTACHMENTS_UNAVAILABLE"
	CodeAssistantUnavailable = "ASSISTANT_UNAVAILABLE"
	CodeAssistantFailed      = "ASSISTANT_FAILED"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, fields map[string]string) *DomainError {
	var details any
	if len(fields) > 0 {
		details = map[string]any{"fields": fields}
	}
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, details)
}

func notFound(entity string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, entity+" not found", nil)
}

// fromNormalize converts normalizer failures into API errors.
func fromNormalize(err error) error {
	var invalid *intake.ValidationError
	if errors.As(err, &invalid) {
		return validationError("Submission is missing required fields", invalid.Fields)
	}
	if errors.Is(err, intake.ErrUnknownSource) {
		return validationError(err.Error(), map[string]string{"source": "unknown"})
	}
	return err
}

// IsCode reports whether err carries the given domain error code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
