// Package models defines the taskr entities: tasks, devlogs, agent
// sessions and the append-only activity log, with their closed value
// domains and decoders from storage rows.
package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrValidation classifies rejected input. No write happens when it is
// returned.
var ErrValidation = errors.New("validation error")

// ValidationError names the offending field and, for enum fields, the
// allowed values.
type ValidationError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *ValidationError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %q: must be one of %s", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// Is reports ErrValidation so callers can use errors.Is.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func checkEnum(field, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return &ValidationError{Field: field, Value: value, Allowed: allowed}
}

// Required returns a validation error when value is blank.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Value: "must not be empty"}
	}
	return nil
}
