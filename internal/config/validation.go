package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks that the configuration can support the login flow.
// All problems are reported at once rather than stopping at the first.
func (c Config) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(c.ClientID) == "" {
		errs.Add("client_id", "is required")
	}

	if c.Issuer == "" {
		if !c.Endpoints.IsComplete() {
			errs.Add("issuer", "is required unless endpoints.authorization and endpoints.token are both set")
		}
	} else if !isAbsoluteURL(c.Issuer) {
		errs.Add("issuer", "must be an absolute URL", c.Issuer)
	}

	if len(c.Scopes) == 0 {
		errs.Add("scopes", "must list at least one scope")
	}

	if c.Callback.Port < 0 || c.Callback.Port > 65535 {
		errs.Add("callback.port", "must be between 0 and 65535", c.Callback.Port)
	}
	if c.Callback.Path != "" && !strings.HasPrefix(c.Callback.Path, "/") {
		errs.Add("callback.path", "must start with '/'", c.Callback.Path)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func isAbsoluteURL(value string) bool {
	u, err := url.Parse(value)
	return err == nil && u.IsAbs() && u.Host != ""
}
