package config

import (
	"fmt"
	"strings"
)

const (
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
)

// ConfigurationError represents a structured error that occurs during configuration loading
type ConfigurationError struct {
	Source      string   `json:"source"`    // File path or "env"
	Field       string   `json:"field"`     // Dotted field path, empty for whole-file errors
	ErrorType   string   `json:"errorType"` // parse or validation
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface
func (ce ConfigurationError) Error() string {
	if ce.Field == "" {
		return fmt.Sprintf("[%s/%s] %s", ce.Source, ce.ErrorType, ce.Message)
	}
	return fmt.Sprintf("[%s/%s] %s: %s", ce.Source, ce.ErrorType, ce.Field, ce.Message)
}

// DetailedError returns a detailed error message with all context
func (ce ConfigurationError) DetailedError() string {
	parts := []string{
		fmt.Sprintf("Configuration Error in %s", ce.Source),
		fmt.Sprintf("  Type: %s", ce.ErrorType),
	}
	if ce.Field != "" {
		parts = append(parts, fmt.Sprintf("  Field: %s", ce.Field))
	}
	parts = append(parts, fmt.Sprintf("  Error: %s", ce.Message))
	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, s := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", s))
		}
	}
	return strings.Join(parts, "\n")
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(source, field, errorType, message string) ConfigurationError {
	return ConfigurationError{
		Source:    source,
		Field:     field,
		ErrorType: errorType,
		Message:   message,
	}
}

// ConfigurationErrorCollection holds multiple configuration errors
type ConfigurationErrorCollection struct {
	Errors []ConfigurationError `json:"errors"`
}

// Error implements the error interface for the collection
func (cec ConfigurationErrorCollection) Error() string {
	switch len(cec.Errors) {
	case 0:
		return "no configuration errors"
	case 1:
		return cec.Errors[0].Error()
	}
	return fmt.Sprintf("%d configuration errors: %s (and %d more)",
		len(cec.Errors), cec.Errors[0].Error(), len(cec.Errors)-1)
}

// HasErrors returns true if there are any errors in the collection
func (cec *ConfigurationErrorCollection) HasErrors() bool {
	return len(cec.Errors) > 0
}

// Count returns the number of errors in the collection
func (cec *ConfigurationErrorCollection) Count() int {
	return len(cec.Errors)
}

// Add appends an error to the collection
func (cec *ConfigurationErrorCollection) Add(err ConfigurationError) {
	cec.Errors = append(cec.Errors, err)
}

// GetDetailedReport returns every error in DetailedError form.
func (cec *ConfigurationErrorCollection) GetDetailedReport() string {
	var b strings.Builder
	for i, e := range cec.Errors {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(e.DetailedError())
	}
	return b.String()
}
