package db

import (
	"errors"
	"fmt"
)

// ErrConfig classifies configuration errors. They are raised before any I/O.
var ErrConfig = errors.New("configuration error")

// ErrStore classifies failures of the underlying store: connection refused,
// malformed SQL, constraint violations.
var ErrStore = errors.New("storage error")

// ErrIdentifier is returned for a malformed table or column name.
var ErrIdentifier = errors.New("invalid identifier")

// ConfigError names the setting that is missing or invalid.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	if e.Setting == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s (%s)", e.Reason, e.Setting)
}

// Is reports ErrConfig so callers can use errors.Is.
func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// StoreError wraps a driver error crossing the adapter boundary.
type StoreError struct {
	Backend Kind
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is reports ErrStore so callers can use errors.Is.
func (e *StoreError) Is(target error) bool { return target == ErrStore }

func storeErr(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Backend: kind, Op: op, Err: err}
}
