// Package resources implements MCP resource handlers for taskr.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (taskr://...) following MCP conventions.
package resources

import (
	"context"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	HealthURI     = "taskr://health"
	CategoriesURI = "taskr://devlog/categories"
)

// Handler manages taskr resource endpoints.
type Handler struct {
	adapter db.Adapter
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(adapter db.Adapter) *Handler {
	return &Handler{adapter: adapter}
}

// HealthResource returns the MCP resource definition for backend health.
func (h *Handler) HealthResource() mcp.Resource {
	return mcp.NewResource(
		HealthURI,
		"taskr Health",
		mcp.WithResourceDescription("Database backend, connectivity and capabilities"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleHealth checks the adapter and returns the report as JSON.
func (h *Handler) HandleHealth(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, db.Health(ctx, h.adapter))
}

// CategoriesResource returns the MCP resource definition for devlog categories.
func (h *Handler) CategoriesResource() mcp.Resource {
	return mcp.NewResource(
		CategoriesURI,
		"Devlog Categories",
		mcp.WithResourceDescription("Categories accepted by devlog_add"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleCategories lists the devlog categories.
func (h *Handler) HandleCategories(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(req.Params.URI, map[string][]string{"categories": models.DevlogCategories})
}
