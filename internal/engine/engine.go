package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"approline/internal/config"
	"approline/internal/domain"
	"approline/internal/events"
	"approline/internal/repo"
	"approline/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func actorID(id domain.Identity) string {
	return fmt.Sprintf("%s:%s", id.Role, id.Name)
}

// SubmitOptions are parameters for submitting a new project dossier.
type SubmitOptions struct {
	ID            string
	Title         string
	Description   string
	Sector        string
	Location      string
	Authority     string
	CapexUSD      int64
	OpexUSD       int64
	DurationYears int
	Submitter     domain.Identity
}

// SubmitProject registers a dossier at the first review stage with an
// empty approval history. The supervising ministry is resolved from
// the contracting-authority directory when the authority is known.
func (e Engine) SubmitProject(ctx context.Context, opts SubmitOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Project{}, errors.New("title is required")
	}
	if strings.TrimSpace(opts.Authority) == "" {
		return domain.Project{}, errors.New("authority is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	now := e.now().UTC().Format(time.RFC3339)
	p := domain.Project{
		ID:            opts.ID,
		Title:         opts.Title,
		Description:   opts.Description,
		Sector:        opts.Sector,
		Location:      opts.Location,
		Stage:         workflow.First().ID,
		Authority:     opts.Authority,
		CapexUSD:      opts.CapexUSD,
		OpexUSD:       opts.OpexUSD,
		DurationYears: opts.DurationYears,
		Progress:      0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if e.Config != nil {
		if auth, ok := e.Config.Authorities.Directory[opts.Authority]; ok {
			p.SupervisingMinistry = auth.Ministry
			p.AuthorityType = auth.Type
			if p.Sector == "" {
				p.Sector = auth.Sector
			}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.submitted", p.ID, "project", p.ID, actorID(opts.Submitter), events.EventPayload{
		"stage":     string(p.Stage),
		"authority": p.Authority,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// RecordDecision applies one review decision and persists it
// atomically: stage advance, approval-log append and audit event
// commit together or not at all. A concurrent decision on the same
// stage surfaces as repo.ErrStageConflict.
func (e Engine) RecordDecision(ctx context.Context, projectID string, action domain.Action, comment string, id domain.Identity) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	priorStage := p.Stage
	priorLen := len(p.History)

	next, err := workflow.RecordDecision(p, action, comment, id, e.now())
	if err != nil {
		return domain.Project{}, err
	}
	next.Progress = progressFor(next.Stage, p.Progress)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SaveDecisionTx(ctx, tx, next, priorStage, priorLen); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "decision.recorded", p.ID, "project", p.ID, actorID(id), events.EventPayload{
		"action": string(action),
		"from":   string(priorStage),
		"to":     string(next.Stage),
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return next, nil
}

// ForceStage moves a project to an arbitrary stage, bypassing the
// decision flow. Only the administrator and the coordinator may use
// it; this is the recovery path for terminal stages, so the target is
// validated against the catalog plus the two terminals.
func (e Engine) ForceStage(ctx context.Context, projectID string, stage domain.StageID, reason string, id domain.Identity) (domain.Project, error) {
	if id.Role != domain.RoleAdmin && id.Role != domain.RoleCoordinator {
		return domain.Project{}, fmt.Errorf("role %q may not force stages", id.Role)
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Project{}, errors.New("reason is required")
	}
	if workflow.IndexOf(stage) == workflow.NotFound && !workflow.IsTerminal(stage) {
		return domain.Project{}, fmt.Errorf("unknown stage %q", stage)
	}
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.SetStageTx(ctx, tx, projectID, stage, now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "stage.forced", p.ID, "project", p.ID, actorID(id), events.EventPayload{
		"from":   string(p.Stage),
		"to":     string(stage),
		"reason": reason,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Stage = stage
	p.UpdatedAt = now
	p.Progress = progressFor(stage, p.Progress)
	return p, nil
}

// ListFilters narrows ListProjects. Phase expands to the catalog
// stages it groups; Stage wins when both are set.
type ListFilters struct {
	Phase     domain.Phase
	Stage     domain.StageID
	Authority string
	Ministry  string
	Sector    string
}

func (e Engine) ListProjects(ctx context.Context, f ListFilters) ([]domain.Project, error) {
	rf := repo.ProjectFilters{Authority: f.Authority, Ministry: f.Ministry, Sector: f.Sector}
	switch {
	case f.Stage != "":
		rf.Stages = []domain.StageID{f.Stage}
	case f.Phase != "":
		stages := workflow.ByPhase(f.Phase)
		if len(stages) == 0 {
			return nil, fmt.Errorf("unknown phase %q", f.Phase)
		}
		for _, s := range stages {
			rf.Stages = append(rf.Stages, s.ID)
		}
	}
	return e.Repo.ListProjects(ctx, rf)
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return e.Repo.GetProject(ctx, id)
}

// PendingFor returns the projects the given identity is currently
// authorized to decide on, i.e. its review queue.
func (e Engine) PendingFor(ctx context.Context, id domain.Identity) ([]domain.Project, error) {
	all, err := e.Repo.ListProjects(ctx, repo.ProjectFilters{})
	if err != nil {
		return nil, err
	}
	var pending []domain.Project
	for _, p := range all {
		if workflow.IsTerminal(p.Stage) {
			continue
		}
		full, err := e.Repo.GetProject(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if workflow.IsAuthorized(full, id) {
			pending = append(pending, full)
		}
	}
	return pending, nil
}

// AttachDocument records dossier file metadata.
func (e Engine) AttachDocument(ctx context.Context, projectID, name, kind, url string, id domain.Identity) (domain.Document, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Document{}, errors.New("name is required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Document{}, err
	}
	d := domain.Document{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Name:       name,
		Kind:       kind,
		URL:        url,
		UploadedBy: actorID(id),
		UploadedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Document{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertDocumentTx(ctx, tx, d); err != nil {
		return domain.Document{}, err
	}
	if err := e.Events.Append(ctx, tx, "document.attached", projectID, "document", d.ID, actorID(id), events.EventPayload{
		"name": d.Name,
		"kind": d.Kind,
	}); err != nil {
		return domain.Document{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

// RegisterProfile upserts a platform user profile.
func (e Engine) RegisterProfile(ctx context.Context, p domain.UserProfile) (domain.UserProfile, error) {
	if strings.TrimSpace(p.Name) == "" {
		return domain.UserProfile{}, errors.New("name is required")
	}
	if p.Role == "" {
		return domain.UserProfile{}, errors.New("role is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if p.CreatedAt == "" {
		p.CreatedAt = e.now().UTC().Format(time.RFC3339)
	}
	if err := e.Repo.UpsertProfile(ctx, p); err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

// CreateAPIKey mints a new API key bound to an actor and role and
// returns the clear key once; only the hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, actorName string, role domain.Role, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorName) == "" {
		return domain.APIKey{}, "", errors.New("actor name is required")
	}
	clear := uuid.NewString() + uuid.NewString()
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorName: actorName,
		Role:      role,
		Name:      name,
		KeyHash:   repo.HashAPIKey(clear),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, clear, nil
}

func progressFor(stage domain.StageID, prior int) int {
	switch stage {
	case domain.StageActive:
		return 100
	case domain.StageRejected:
		return prior
	}
	idx := workflow.IndexOf(stage)
	if idx == workflow.NotFound {
		return prior
	}
	return idx * 100 / workflow.Len()
}
