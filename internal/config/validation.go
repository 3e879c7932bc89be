package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure with enough context to locate it.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface.
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation failures, reported together rather than
// failing on the first one so a misconfigured proxy can be fixed in a single pass.
type ValidationErrors []ValidationError

// Error implements the error interface for the aggregated collection.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	messages := make([]string, 0, len(ve))
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors reports whether any validation errors were recorded.
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add appends a new validation error.
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{Field: field, Value: val, Message: message})
}

func validateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

func validateOneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return ValidationError{Field: field, Value: value, Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", "))}
}

var validTransportTypes = []string{string(TransportStdio), string(TransportDocker), string(TransportHTTP)}

var validConflictStrategies = []string{string(PrefixWithServerName), string(FirstWins), string(Reject)}

// Validate checks the whole configuration document and returns every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.ConflictStrategy != "" {
		if err := validateOneOf("conflictStrategy", string(c.ConflictStrategy), validConflictStrategies); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	}

	if len(c.MCPServers) == 0 {
		errs.Add("mcpServers", "at least one upstream server must be configured")
	}

	for name, server := range c.MCPServers {
		if strings.TrimSpace(name) == "" {
			errs.Add("mcpServers", "server name must not be blank")
			continue
		}
		if err := server.validate(name); err != nil {
			if ve, ok := err.(ValidationErrors); ok {
				errs = append(errs, ve...)
			} else {
				errs.Add(fmt.Sprintf("mcpServers.%s", name), err.Error())
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (s ServerConfig) validate(name string) error {
	var errs ValidationErrors
	prefix := fmt.Sprintf("mcpServers.%s", name)

	if err := validateOneOf(prefix+".transportType", string(s.TransportType), validTransportTypes); err != nil {
		errs = append(errs, err.(ValidationError))
		return errs
	}

	switch s.TransportType {
	case TransportStdio:
		if err := validateRequired(prefix+".command", s.Command); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		if s.Image != "" {
			errs.Add(prefix+".image", "must not be set for stdio transport")
		}
		if s.URL != "" {
			errs.Add(prefix+".url", "must not be set for stdio transport")
		}
	case TransportDocker:
		if err := validateRequired(prefix+".image", s.Image); err != nil {
			errs = append(errs, err.(ValidationError))
		}
	case TransportHTTP:
		if err := validateRequired(prefix+".url", s.URL); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		if s.Command != "" {
			errs.Add(prefix+".command", "must not be set for http transport")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
