package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
)

const devlogsTable = "devlogs"

// DevlogService manages development log entries.
type DevlogService struct {
	base
}

// NewDevlogService creates a DevlogService over a.
func NewDevlogService(a db.Adapter, opts ...Option) *DevlogService {
	return &DevlogService{base: newBase(a, opts)}
}

// CreateDevlogParams holds the input for a new devlog.
type CreateDevlogParams struct {
	Category    string         `json:"category"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Author      string         `json:"author,omitempty"`
	AgentID     string         `json:"agent_id,omitempty"`
	ServiceName string         `json:"service_name,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// DevlogUpdate holds partial update fields. Nil fields are left unchanged.
type DevlogUpdate struct {
	Category    *string        `json:"category,omitempty"`
	Title       *string        `json:"title,omitempty"`
	Content     *string        `json:"content,omitempty"`
	ServiceName *string        `json:"service_name,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (u DevlogUpdate) empty() bool {
	return u.Category == nil && u.Title == nil && u.Content == nil && u.ServiceName == nil &&
		u.Tags == nil && u.Metadata == nil
}

// DevlogFilter holds AND-combined list filters.
type DevlogFilter struct {
	Category    string   `json:"category,omitempty"`
	Author      string   `json:"author,omitempty"`
	AgentID     string   `json:"agent_id,omitempty"`
	ServiceName string   `json:"service_name,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Limit       int      `json:"limit,omitempty"`
	Offset      int      `json:"offset,omitempty"`
}

var devlogSelect = strings.Join(models.DevlogColumns, ", ")

// Add validates and inserts a devlog.
func (s *DevlogService) Add(ctx context.Context, p CreateDevlogParams) (*models.Devlog, error) {
	d, err := models.NewDevlog(p.Category, p.Title, p.Content, s.clock.tick())
	if err != nil {
		return nil, err
	}
	d.Author = p.Author
	d.ServiceName = p.ServiceName
	if p.AgentID != "" {
		d.AgentID = p.AgentID
	}
	if p.Tags != nil {
		d.Tags = p.Tags
	}
	if p.Metadata != nil {
		d.Metadata = p.Metadata
	}

	// Placeholders bind in text order on SQLite, so every value is appended
	// at its column position.
	meta, err := s.dialect().JSONValue(d.Metadata)
	if err != nil {
		return nil, fmt.Errorf("add devlog: %w", err)
	}
	q := db.NewQuery(s.dialect())
	values := []string{
		q.Arg(d.ID), q.Arg(d.Category), q.Arg(d.Title), q.Arg(d.Content), q.Arg(nullable(d.Author)),
		q.Arg(d.AgentID), q.Arg(nullable(d.ServiceName)), q.Tags(d.Tags), q.Arg(meta),
		q.Time(d.CreatedAt), q.Time(d.UpdatedAt),
	}
	sql := fmt.Sprintf(`INSERT INTO %s
		(id, category, title, content, author, agent_id, service_name, tags, metadata, created_at, updated_at)
		VALUES (%s)`, q.Table(devlogsTable), strings.Join(values, ", "))
	if _, err := s.db.Execute(ctx, sql, q.Args()...); err != nil {
		return nil, fmt.Errorf("add devlog: %w", err)
	}
	s.logger.Info("devlog added", "id", d.ID, "category", d.Category)
	return d, nil
}

// Get returns the devlog, or nil when it does not exist or is soft-deleted.
func (s *DevlogService) Get(ctx context.Context, id string) (*models.Devlog, error) {
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s AND deleted_at IS NULL",
		devlogSelect, q.Table(devlogsTable), q.Arg(id))
	row, err := s.db.FetchOne(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("get devlog: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return models.DevlogFromRow(row), nil
}

// Update writes the supplied fields. A new category is validated before
// anything is written. Returns nil when the devlog does not exist.
func (s *DevlogService) Update(ctx context.Context, id string, u DevlogUpdate) (*models.Devlog, error) {
	if u.Category != nil {
		if err := models.ValidateCategory(*u.Category); err != nil {
			return nil, err
		}
	}
	if u.Title != nil {
		if err := models.Required("title", *u.Title); err != nil {
			return nil, err
		}
	}
	if u.empty() {
		return s.Get(ctx, id)
	}

	q := db.NewQuery(s.dialect())
	var sets []string
	if u.Category != nil {
		sets = append(sets, "category = "+q.Arg(*u.Category))
	}
	if u.Title != nil {
		sets = append(sets, "title = "+q.Arg(*u.Title))
	}
	if u.Content != nil {
		sets = append(sets, "content = "+q.Arg(*u.Content))
	}
	if u.ServiceName != nil {
		sets = append(sets, "service_name = "+q.Arg(nullable(*u.ServiceName)))
	}
	if u.Tags != nil {
		sets = append(sets, "tags = "+q.Tags(u.Tags))
	}
	if u.Metadata != nil {
		meta, err := q.JSON(u.Metadata)
		if err != nil {
			return nil, fmt.Errorf("update devlog: %w", err)
		}
		sets = append(sets, "metadata = "+meta)
	}
	sets = append(sets, "updated_at = "+q.Time(s.clock.tick()))

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s AND deleted_at IS NULL RETURNING %s",
		q.Table(devlogsTable), strings.Join(sets, ", "), q.Arg(id), devlogSelect)
	row, err := s.db.FetchOne(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("update devlog: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return models.DevlogFromRow(row), nil
}

// Delete soft-deletes the devlog and reports whether a row was affected.
func (s *DevlogService) Delete(ctx context.Context, id string) (bool, error) {
	now := s.clock.tick()
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf("UPDATE %s SET deleted_at = %s, updated_at = %s WHERE id = %s AND deleted_at IS NULL",
		q.Table(devlogsTable), q.Time(now), q.Time(now), q.Arg(id))
	res, err := s.db.Execute(ctx, sql, q.Args()...)
	if err != nil {
		return false, fmt.Errorf("delete devlog: %w", err)
	}
	return res.RowsAffected == 1, nil
}

// List returns live devlogs matching f, newest first.
func (s *DevlogService) List(ctx context.Context, f DevlogFilter) ([]*models.Devlog, error) {
	if f.Category != "" {
		if err := models.ValidateCategory(f.Category); err != nil {
			return nil, err
		}
	}

	q := db.NewQuery(s.dialect())
	conds := []string{"deleted_at IS NULL"}
	if f.Category != "" {
		conds = append(conds, "category = "+q.Arg(f.Category))
	}
	if f.Author != "" {
		conds = append(conds, "author = "+q.Arg(f.Author))
	}
	if f.AgentID != "" {
		conds = append(conds, "agent_id = "+q.Arg(f.AgentID))
	}
	if f.ServiceName != "" {
		conds = append(conds, "service_name = "+q.Arg(f.ServiceName))
	}
	if len(f.Tags) > 0 {
		conds = append(conds, q.TagsOverlap("tags", f.Tags))
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		devlogSelect, q.Table(devlogsTable), db.Where(conds...),
		q.Arg(clampLimit(f.Limit, defaultListLimit)), q.Arg(max(f.Offset, 0)))

	rows, err := s.db.Fetch(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list devlogs: %w", err)
	}
	return devlogsFromRows(rows), nil
}

// Search matches title and content, optionally narrowed by category and
// service.
func (s *DevlogService) Search(ctx context.Context, query, category, serviceName string, limit int) ([]*models.Devlog, error) {
	var conds []string
	var args []any
	if category != "" {
		if err := models.ValidateCategory(category); err != nil {
			return nil, err
		}
		conds = append(conds, "category = ?")
		args = append(args, category)
	}
	if serviceName != "" {
		conds = append(conds, "service_name = ?")
		args = append(args, serviceName)
	}

	req := db.SearchRequest{
		Table:   devlogsTable,
		Query:   query,
		Columns: []string{"title", "content"},
		Select:  models.DevlogColumns,
		Limit:   clampLimit(limit, defaultSearchLimit),
	}
	if len(conds) > 0 {
		req.Where = db.E(strings.Join(conds, " AND "), args...)
	}
	rows, err := s.db.SearchText(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search devlogs: %w", err)
	}
	return devlogsFromRows(rows), nil
}

// Categories returns the valid devlog categories.
func (s *DevlogService) Categories() []string {
	return append([]string(nil), models.DevlogCategories...)
}

func devlogsFromRows(rows []db.Row) []*models.Devlog {
	out := make([]*models.Devlog, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.DevlogFromRow(r))
	}
	return out
}
