package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/kbukum/opkit/errors"
)

// NamePattern matches pipeline and operation names accepted over HTTP and
// in definition files.
const NamePattern = `^[a-zA-Z0-9][a-zA-Z0-9._-]*$`

// MaxNameLength bounds pipeline and operation names.
const MaxNameLength = 128

var nameRe = regexp.MustCompile(NamePattern)

// Validator collects field errors for values that have no struct to tag,
// such as URL parameters and headers.
type Validator struct {
	errors []FieldError
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// AddError adds a field error.
func (v *Validator) AddError(field, rule, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Rule: rule, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an INVALID_INPUT AppError listing every field error, or
// nil when there is none.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return errors.Validation(strings.Join(messages, "; ")).WithDetail("fields", v.errors)
}

// Required checks that value is not blank.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "required", "is required")
	}
	return v
}

// MaxLength checks that value has at most maxLen bytes.
func (v *Validator) MaxLength(field, value string, maxLen int) *Validator {
	if len(value) > maxLen {
		v.AddError(field, "max", fmt.Sprintf("must be %d characters or less", maxLen))
	}
	return v
}

// Matches checks that a non-empty value matches re.
func (v *Validator) Matches(field, value string, re *regexp.Regexp) *Validator {
	if value != "" && !re.MatchString(value) {
		v.AddError(field, "pattern", "does not match required format")
	}
	return v
}

// OptionalUUID checks that a non-empty value is a valid UUID.
func (v *Validator) OptionalUUID(field, value string) *Validator {
	if value == "" {
		return v
	}
	if _, err := uuid.Parse(value); err != nil {
		v.AddError(field, "uuid", "must be a valid UUID")
	}
	return v
}

// Name validates a pipeline or operation name.
func Name(field, value string) error {
	v := New().
		Required(field, value).
		MaxLength(field, value, MaxNameLength).
		Matches(field, value, nameRe)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}
