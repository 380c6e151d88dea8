package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/taskr/internal/db"
	"github.com/HendryAvila/taskr/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	sessionsTable = "agent_sessions"
	activityTable = "agent_activity"

	defaultSessionLimit = 20
)

// SessionService tracks agent sessions and the activity log, and
// coordinates work claims across agents.
type SessionService struct {
	base
}

// NewSessionService creates a SessionService over a.
func NewSessionService(a db.Adapter, opts ...Option) *SessionService {
	return &SessionService{base: newBase(a, opts)}
}

var (
	sessionSelect  = strings.Join(models.SessionColumns, ", ")
	activitySelect = strings.Join(models.ActivityColumns, ", ")
)

// StartResult is the new session plus what the agent left behind last
// time.
type StartResult struct {
	Session           *models.Session `json:"session"`
	PreviousSessionID string          `json:"previous_session_id,omitempty"`
	HandoffNotes      string          `json:"handoff_notes,omitempty"`
	LastSummary       string          `json:"last_summary,omitempty"`
}

// Start opens a session for agentID, surfacing the handoff notes and
// summary of that agent's most recently ended session.
func (s *SessionService) Start(ctx context.Context, agentID, sessionContext string) (*StartResult, error) {
	if err := models.Required("agent_id", agentID); err != nil {
		return nil, err
	}

	q := db.NewQuery(s.dialect())
	prevSQL := fmt.Sprintf(`SELECT id, summary, handoff_notes FROM %s
		WHERE agent_id = %s AND ended_at IS NOT NULL
		ORDER BY ended_at DESC LIMIT 1`, q.Table(sessionsTable), q.Arg(agentID))
	prev, err := s.db.FetchOne(ctx, prevSQL, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	now := s.clock.tick()
	sess := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   agentID,
		StartedAt: now,
		Context:   sessionContext,
		CreatedAt: now,
		UpdatedAt: now,
	}
	q = db.NewQuery(s.dialect())
	insert := fmt.Sprintf(`INSERT INTO %s (id, agent_id, started_at, context, created_at, updated_at)
		VALUES (%s, %s, %s, %s, %s, %s)`, q.Table(sessionsTable),
		q.Arg(sess.ID), q.Arg(sess.AgentID), q.Time(now), q.Arg(nullable(sessionContext)), q.Time(now), q.Time(now))
	if _, err := s.db.Execute(ctx, insert, q.Args()...); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	res := &StartResult{Session: sess}
	if prev != nil {
		p := models.SessionFromRow(prev)
		res.PreviousSessionID = p.ID
		res.HandoffNotes = p.HandoffNotes
		res.LastSummary = p.Summary
	}
	s.logger.Info("session started", "id", sess.ID, "agent", agentID, "resumed_from", res.PreviousSessionID)
	return res, nil
}

// EndResult reports a closed session.
type EndResult struct {
	SessionID       string    `json:"session_id"`
	EndedAt         time.Time `json:"ended_at"`
	Summary         string    `json:"summary,omitempty"`
	HandoffNotes    string    `json:"handoff_notes,omitempty"`
	DurationSeconds int64     `json:"duration_seconds"`
}

// End closes the session. Ending an already-ended session overwrites its
// end time, summary and handoff notes. Returns nil when the session does
// not exist.
func (s *SessionService) End(ctx context.Context, sessionID, summary, handoffNotes string) (*EndResult, error) {
	now := s.clock.tick()
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf(`UPDATE %s SET ended_at = %s, summary = %s, handoff_notes = %s, updated_at = %s
		WHERE id = %s RETURNING started_at`, q.Table(sessionsTable),
		q.Time(now), q.Arg(nullable(summary)), q.Arg(nullable(handoffNotes)), q.Time(now), q.Arg(sessionID))
	row, err := s.db.FetchOne(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	started, _ := db.ParseTime(row["started_at"])
	res := &EndResult{
		SessionID:       sessionID,
		EndedAt:         now,
		Summary:         summary,
		HandoffNotes:    handoffNotes,
		DurationSeconds: int64(now.Sub(started) / time.Second),
	}
	s.logger.Info("session ended", "id", sessionID, "duration_s", res.DurationSeconds)
	return res, nil
}

// Get returns the session or nil.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", sessionSelect, q.Table(sessionsTable), q.Arg(id))
	row, err := s.db.FetchOne(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return models.SessionFromRow(row), nil
}

// SessionFilter narrows List.
type SessionFilter struct {
	AgentID    string `json:"agent_id,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// List returns sessions, most recently started first.
func (s *SessionService) List(ctx context.Context, f SessionFilter) ([]*models.Session, error) {
	q := db.NewQuery(s.dialect())
	var conds []string
	if f.AgentID != "" {
		conds = append(conds, "agent_id = "+q.Arg(f.AgentID))
	}
	if f.ActiveOnly {
		conds = append(conds, "ended_at IS NULL")
	}
	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY started_at DESC LIMIT %s",
		sessionSelect, q.Table(sessionsTable), db.Where(conds...), q.Arg(clampLimit(f.Limit, defaultSessionLimit)))
	rows, err := s.db.Fetch(ctx, sql, q.Args()...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*models.Session, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.SessionFromRow(r))
	}
	return out, nil
}

// ClaimRequest identifies the work an agent wants to own.
type ClaimRequest struct {
	AgentID   string `json:"agent_id"`
	WorkType  string `json:"work_type"`
	WorkID    string `json:"work_id"`
	Repo      string `json:"repo,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (r ClaimRequest) target() string {
	if r.Repo == "" {
		return r.WorkID
	}
	return models.TargetKey(r.Repo, r.WorkID)
}

func (r ClaimRequest) validate() error {
	if err := models.Required("agent_id", r.AgentID); err != nil {
		return err
	}
	if err := models.ValidateTargetType(r.WorkType); err != nil {
		return err
	}
	return models.Required("work_id", r.WorkID)
}

// ClaimResult reports a claim attempt. Claimed is false when another
// unreleased claim holds the target; ClaimedBy and ClaimedAt then describe
// the holder.
type ClaimResult struct {
	Claimed   bool       `json:"claimed"`
	Message   string     `json:"message"`
	TargetID  string     `json:"target_id"`
	ClaimID   string     `json:"claim_id,omitempty"`
	ClaimedBy string     `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// ClaimWork claims a work item for an agent. The claim exists only as a
// claim_work row in the activity log; it is active until a release_work row
// for the same target is written after it.
//
// The unreleased-claim scan and the insert run in one transaction holding
// a per-target lock, so two concurrent claims on a target never both
// succeed.
func (s *SessionService) ClaimWork(ctx context.Context, r ClaimRequest) (*ClaimResult, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	target := r.target()
	res := &ClaimResult{TargetID: target}

	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if err := tx.LockKey(ctx, claimLockKey(r.WorkType, target)); err != nil {
			return err
		}
		holder, err := s.activeClaim(ctx, tx, r.WorkType, target)
		if err != nil {
			return err
		}
		if holder != nil {
			res.ClaimedBy = holder.AgentID
			at := holder.CreatedAt
			res.ClaimedAt = &at
			res.Message = "Work already claimed by " + holder.AgentID
			return nil
		}

		a := &models.Activity{
			ID:           uuid.NewString(),
			AgentID:      r.AgentID,
			SessionID:    r.SessionID,
			ActivityType: models.ActivityClaimWork,
			TargetType:   r.WorkType,
			TargetID:     target,
			Repo:         r.Repo,
		}
		if err := s.appendOrdered(ctx, tx, a); err != nil {
			return err
		}
		res.Claimed = true
		res.ClaimID = a.ID
		res.ClaimedBy = a.AgentID
		res.ClaimedAt = &a.CreatedAt
		res.Message = fmt.Sprintf("Successfully claimed %s %s", r.WorkType, target)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim work: %w", err)
	}
	s.logger.Info("claim attempt", "agent", r.AgentID, "target", target, "claimed", res.Claimed, "holder", res.ClaimedBy)
	return res, nil
}

// ReleaseRequest hands a claimed work item back.
type ReleaseRequest struct {
	AgentID   string `json:"agent_id"`
	WorkType  string `json:"work_type"`
	WorkID    string `json:"work_id"`
	Repo      string `json:"repo,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ReleaseResult reports a release.
type ReleaseResult struct {
	Released  bool   `json:"released"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	TargetID  string `json:"target_id"`
	ReleaseID string `json:"release_id"`
}

// ReleaseWork appends a release_work row for the target, ending any active
// claim. Status defaults to completed and is recorded at the head of the
// notes as "[status]".
func (s *SessionService) ReleaseWork(ctx context.Context, r ReleaseRequest) (*ReleaseResult, error) {
	claim := ClaimRequest{AgentID: r.AgentID, WorkType: r.WorkType, WorkID: r.WorkID, Repo: r.Repo}
	if err := claim.validate(); err != nil {
		return nil, err
	}
	status := r.Status
	if status == "" {
		status = models.ReleaseCompleted
	}
	if err := models.ValidateReleaseStatus(status); err != nil {
		return nil, err
	}
	target := claim.target()
	notes := "[" + status + "]"
	if r.Notes != "" {
		notes += " " + r.Notes
	}

	a := &models.Activity{
		ID:           uuid.NewString(),
		AgentID:      r.AgentID,
		SessionID:    r.SessionID,
		ActivityType: models.ActivityReleaseWork,
		TargetType:   r.WorkType,
		TargetID:     target,
		Repo:         r.Repo,
		Notes:        notes,
	}
	err := s.db.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		if err := tx.LockKey(ctx, claimLockKey(r.WorkType, target)); err != nil {
			return err
		}
		return s.appendOrdered(ctx, tx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("release work: %w", err)
	}
	s.logger.Info("work released", "agent", r.AgentID, "target", target, "status", status)
	return &ReleaseResult{
		Released:  true,
		Message:   fmt.Sprintf("Released %s %s (%s)", r.WorkType, target, status),
		Status:    status,
		TargetID:  target,
		ReleaseID: a.ID,
	}, nil
}

// ActiveClaim returns the unreleased claim on a target, or nil.
func (s *SessionService) ActiveClaim(ctx context.Context, workType, workID, repo string) (*models.Activity, error) {
	r := ClaimRequest{AgentID: "-", WorkType: workType, WorkID: workID, Repo: repo}
	if err := r.validate(); err != nil {
		return nil, err
	}
	a, err := s.activeClaim(ctx, s.db, workType, r.target())
	if err != nil {
		return nil, fmt.Errorf("active claim: %w", err)
	}
	return a, nil
}

func claimLockKey(workType, target string) string {
	return "taskr:claim:" + workType + ":" + target
}

// activeClaim finds the newest claim_work row for the target with no
// release_work row strictly after it.
func (s *SessionService) activeClaim(ctx context.Context, qr db.Querier, workType, target string) (*models.Activity, error) {
	q := db.NewQuery(s.dialect())
	table := q.Table(activityTable)
	sql := fmt.Sprintf(`SELECT %s FROM %s c
		WHERE c.activity_type = %s AND c.target_type = %s AND c.target_id = %s
		AND NOT EXISTS (
			SELECT 1 FROM %s r
			WHERE r.activity_type = %s AND r.target_type = c.target_type
			AND r.target_id = c.target_id AND r.created_at > c.created_at
		)
		ORDER BY c.created_at DESC LIMIT 1`,
		prefixed("c", models.ActivityColumns), table,
		q.Arg(models.ActivityClaimWork), q.Arg(workType), q.Arg(target),
		table, q.Arg(models.ActivityReleaseWork))
	row, err := qr.FetchOne(ctx, sql, q.Args()...)
	if err != nil || row == nil {
		return nil, err
	}
	return models.ActivityFromRow(row), nil
}

// appendOrdered stamps a and inserts it, placing its created_at strictly
// after every existing row for the same target. Claim state is derived from
// created_at order, so a claim and a release must never tie.
func (s *SessionService) appendOrdered(ctx context.Context, tx db.Tx, a *models.Activity) error {
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf("SELECT MAX(created_at) FROM %s WHERE target_type = %s AND target_id = %s",
		q.Table(activityTable), q.Arg(a.TargetType), q.Arg(a.TargetID))
	latest, err := tx.FetchScalar(ctx, sql, q.Args()...)
	if err != nil {
		return err
	}
	a.CreatedAt = s.clock.tick()
	if last, ok := db.ParseTime(latest); ok && !a.CreatedAt.After(last) {
		a.CreatedAt = last.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return s.insertActivity(ctx, tx, a)
}

// LogActivity appends an entry to the activity log. ID and CreatedAt are
// assigned here.
func (s *SessionService) LogActivity(ctx context.Context, a models.Activity) (*models.Activity, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	a.ID = uuid.NewString()
	a.CreatedAt = s.clock.tick()
	if err := s.insertActivity(ctx, s.db, &a); err != nil {
		return nil, fmt.Errorf("log activity: %w", err)
	}
	return &a, nil
}

func (s *SessionService) insertActivity(ctx context.Context, qr db.Querier, a *models.Activity) error {
	q := db.NewQuery(s.dialect())
	sql := fmt.Sprintf(`INSERT INTO %s
		(id, agent_id, session_id, activity_type, target_type, target_id, repo, notes, created_at)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s)`, q.Table(activityTable),
		q.Arg(a.ID), q.Arg(a.AgentID), q.Arg(nullable(a.SessionID)), q.Arg(a.ActivityType),
		q.Arg(nullable(a.TargetType)), q.Arg(nullable(a.TargetID)), q.Arg(nullable(a.Repo)),
		q.Arg(nullable(a.Notes)), q.Time(a.CreatedAt))
	_, err := qr.Execute(ctx, sql, q.Args()...)
	return err
}

// Changes is everything that happened after Since.
type Changes struct {
	Since         time.Time          `json:"since"`
	AgentID       string             `json:"agent_id,omitempty"`
	Activities    []*models.Activity `json:"activities"`
	Sessions      []*models.Session  `json:"sessions"`
	ActivityCount int                `json:"activity_count"`
	SessionCount  int                `json:"session_count"`
}

// WhatChanged returns activities created after since and sessions created
// or ended after since, oldest first. A non-empty agentID restricts both.
func (s *SessionService) WhatChanged(ctx context.Context, since time.Time, agentID string) (*Changes, error) {
	var actRows, sessRows []db.Row
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		q := db.NewQuery(s.dialect())
		conds := []string{"created_at > " + q.Time(since)}
		if agentID != "" {
			conds = append(conds, "agent_id = "+q.Arg(agentID))
		}
		sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at ASC",
			activitySelect, q.Table(activityTable), db.Where(conds...))
		var err error
		actRows, err = s.db.Fetch(gctx, sql, q.Args()...)
		return err
	})

	g.Go(func() error {
		q := db.NewQuery(s.dialect())
		created, ended := q.Time(since), q.Time(since)
		conds := []string{fmt.Sprintf("(created_at > %s OR ended_at > %s)", created, ended)}
		if agentID != "" {
			conds = append(conds, "agent_id = "+q.Arg(agentID))
		}
		sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at ASC",
			sessionSelect, q.Table(sessionsTable), db.Where(conds...))
		var err error
		sessRows, err = s.db.Fetch(gctx, sql, q.Args()...)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("what changed: %w", err)
	}

	c := &Changes{
		Since:      since.UTC(),
		AgentID:    agentID,
		Activities: make([]*models.Activity, 0, len(actRows)),
		Sessions:   make([]*models.Session, 0, len(sessRows)),
	}
	for _, r := range actRows {
		c.Activities = append(c.Activities, models.ActivityFromRow(r))
	}
	for _, r := range sessRows {
		c.Sessions = append(c.Sessions, models.SessionFromRow(r))
	}
	c.ActivityCount = len(c.Activities)
	c.SessionCount = len(c.Sessions)
	return c, nil
}

func prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}
