// Package httpapi serves taskr over HTTP: the MCP streamable transport at
// /mcp and a small read-only JSON API under /v1 for dashboards and scripts.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
	"github.com/HendryAvila/taskr/internal/services"
)

// BasePath prefixes every JSON API route.
const BasePath = "/v1"

// Config for the HTTP handler.
type Config struct {
	Adapter  db.Adapter
	Tasks    *services.TaskService
	Devlogs  *services.DevlogService
	Sessions *services.SessionService
	// MCP is mounted at /mcp when non-nil.
	MCP     http.Handler
	Version string
	Logger  *slog.Logger
	// Now is the clock used for relative time windows.
	Now func() time.Time
}

// New returns the HTTP handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Adapter == nil || cfg.Tasks == nil || cfg.Devlogs == nil || cfg.Sessions == nil {
		return nil, errors.New("httpapi: adapter and services are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Logger))

	if cfg.MCP != nil {
		router.Handle("/mcp", cfg.MCP)
	}

	hcfg := huma.DefaultConfig("taskr API", cfg.Version)
	hcfg.OpenAPIPath = BasePath + "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, BasePath)

	registerHealth(group, cfg.Adapter)
	registerTasks(group, cfg.Tasks)
	registerDevlogs(group, cfg.Devlogs)
	registerChanges(group, cfg.Sessions, cfg.Now)

	return router, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}

// handleError maps service errors to HTTP statuses.
func handleError(err error) huma.StatusError {
	switch {
	case errors.Is(err, models.ErrValidation):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, db.ErrConfig):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	return huma.Error500InternalServerError(err.Error())
}

type healthOutput struct {
	Status int `json:"-"`
	Body   db.HealthReport
}

func registerHealth(api huma.API, adapter db.Adapter) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Database health",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		r := db.Health(ctx, adapter)
		status := http.StatusOK
		if r.Status != db.StatusHealthy {
			status = http.StatusServiceUnavailable
		}
		return &healthOutput{Status: status, Body: r}, nil
	})
}

type taskList struct {
	Tasks []*models.Task `json:"tasks"`
	Count int            `json:"count"`
}

func registerTasks(api huma.API, tasks *services.TaskService) {
	type listInput struct {
		Status   string `query:"status"`
		Priority string `query:"priority"`
		Assignee string `query:"assignee"`
		Tag      string `query:"tag" doc:"Comma-separated; matches any"`
		Query    string `query:"q" doc:"Full-text search instead of filtering"`
		Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
		Offset   int    `query:"offset" minimum:"0"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List or search tasks",
	}, func(ctx context.Context, in *listInput) (*struct{ Body taskList }, error) {
		var (
			list []*models.Task
			err  error
		)
		if in.Query != "" {
			list, err = tasks.Search(ctx, in.Query, in.Status, in.Limit)
		} else {
			list, err = tasks.List(ctx, services.TaskFilter{
				Status:   in.Status,
				Priority: in.Priority,
				Assignee: in.Assignee,
				Tags:     splitCSV(in.Tag),
				Limit:    in.Limit,
				Offset:   in.Offset,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		if list == nil {
			list = []*models.Task{}
		}
		return &struct{ Body taskList }{Body: taskList{Tasks: list, Count: len(list)}}, nil
	})

	type idPath struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get a task",
	}, func(ctx context.Context, in *idPath) (*struct{ Body *models.Task }, error) {
		t, err := tasks.Get(ctx, in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if t == nil {
			return nil, huma.Error404NotFound("task not found: " + in.ID)
		}
		return &struct{ Body *models.Task }{Body: t}, nil
	})
}

type devlogList struct {
	Devlogs []*models.Devlog `json:"devlogs"`
	Count   int              `json:"count"`
}

func registerDevlogs(api huma.API, devlogs *services.DevlogService) {
	type listInput struct {
		Category    string `query:"category"`
		ServiceName string `query:"service_name"`
		AgentID     string `query:"agent_id"`
		Tag         string `query:"tag" doc:"Comma-separated; matches any"`
		Query       string `query:"q" doc:"Full-text search instead of filtering"`
		Limit       int    `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-devlogs",
		Method:      http.MethodGet,
		Path:        "/devlogs",
		Summary:     "List or search devlogs",
	}, func(ctx context.Context, in *listInput) (*struct{ Body devlogList }, error) {
		var (
			list []*models.Devlog
			err  error
		)
		if in.Query != "" {
			list, err = devlogs.Search(ctx, in.Query, in.Category, in.ServiceName, in.Limit)
		} else {
			list, err = devlogs.List(ctx, services.DevlogFilter{
				Category:    in.Category,
				ServiceName: in.ServiceName,
				AgentID:     in.AgentID,
				Tags:        splitCSV(in.Tag),
				Limit:       in.Limit,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		if list == nil {
			list = []*models.Devlog{}
		}
		return &struct{ Body devlogList }{Body: devlogList{Devlogs: list, Count: len(list)}}, nil
	})
}

func registerChanges(api huma.API, sessions *services.SessionService, now func() time.Time) {
	type changesInput struct {
		HoursAgo int    `query:"hours_ago" default:"24" minimum:"1"`
		AgentID  string `query:"agent_id"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "what-changed",
		Method:      http.MethodGet,
		Path:        "/changes",
		Summary:     "Activity and sessions in a recent window",
	}, func(ctx context.Context, in *changesInput) (*struct{ Body *services.Changes }, error) {
		since := now().Add(-time.Duration(in.HoursAgo) * time.Hour)
		c, err := sessions.WhatChanged(ctx, since, in.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct{ Body *services.Changes }{Body: c}, nil
	})
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
