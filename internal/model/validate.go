package model

import (
	"encoding/json"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// ValidateCharter checks a new Charter row before it is created.
// It returns a *ValidationError if any rules fail, or nil if the charter is valid.
func ValidateCharter(c *Charter) error {
	var ve ValidationError

	if strings.TrimSpace(c.ID) == "" {
		ve.Add("charter_id", "is required")
	}
	if strings.TrimSpace(c.ProjectID) == "" {
		ve.Add("project_id", "is required")
	}
	if strings.TrimSpace(c.CreatedBy) == "" {
		ve.Add("created_by", "is required")
	}

	// Document: must be a JSON object.
	switch {
	case len(c.Document) == 0:
		ve.Add("document", "is required")
	case !json.Valid(c.Document):
		ve.Add("document", "contains invalid JSON")
	default:
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(c.Document, &obj); err != nil {
			ve.Add("document", "must be a JSON object")
		}
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
