package db

import (
	"context"
	"fmt"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthReport describes whether an adapter can answer a trivial query.
type HealthReport struct {
	Status       string `json:"status"`
	DatabaseType Kind   `json:"database_type"`
	Capabilities
	Error string `json:"error,omitempty"`
}

// Health runs SELECT 1 against a. A failed check is reported, not returned.
func Health(ctx context.Context, a Adapter) HealthReport {
	r := HealthReport{Status: StatusUnhealthy, DatabaseType: a.Kind(), Capabilities: a.Capabilities()}
	v, err := a.FetchScalar(ctx, "SELECT 1")
	if err != nil {
		r.Error = err.Error()
		return r
	}
	if fmt.Sprint(v) != "1" {
		r.Error = fmt.Sprintf("health query returned %v", v)
		return r
	}
	// Vector is checked on first connect, so re-read after the query.
	r.Capabilities = a.Capabilities()
	r.Status = StatusHealthy
	return r
}
