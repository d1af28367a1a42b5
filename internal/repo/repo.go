package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"approline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")

	// ErrStageConflict means the guarded save detected a concurrent
	// decision: the stored stage or history length moved since the
	// project was read. The caller must reload and retry.
	ErrStageConflict = errors.New("project stage changed concurrently")
)

const projectColumns = `id,title,COALESCE(description,''),COALESCE(sector,''),COALESCE(location,''),stage,authority,COALESCE(supervising_ministry,''),COALESCE(authority_type,''),capex_usd,opex_usd,duration_years,progress,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	err := scan(&p.ID, &p.Title, &p.Description, &p.Sector, &p.Location, &p.Stage, &p.Authority,
		&p.SupervisingMinistry, &p.AuthorityType, &p.CapexUSD, &p.OpexUSD, &p.DurationYears,
		&p.Progress, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,title,description,sector,location,stage,authority,supervising_ministry,authority_type,capex_usd,opex_usd,duration_years,progress,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Title, nullable(p.Description), nullable(p.Sector), nullable(p.Location), p.Stage,
		p.Authority, nullable(p.SupervisingMinistry), nullable(p.AuthorityType),
		p.CapexUSD, p.OpexUSD, p.DurationYears, p.Progress, p.CreatedAt, p.UpdatedAt)
	return err
}

// GetProject loads a project together with its full approval history.
func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id)
	p, err := scanProject(row.Scan)
	if err != nil {
		return p, err
	}
	p.History, err = r.ListHistory(ctx, id)
	return p, err
}

// ProjectFilters narrows ListProjects. Stages filters structurally by
// stage id (callers derive phase groups from the stage catalog).
type ProjectFilters struct {
	Stages    []domain.StageID
	Authority string
	Ministry  string
	Sector    string
}

func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects`
	var (
		clauses []string
		args    []any
	)
	if len(f.Stages) > 0 {
		marks := make([]string, len(f.Stages))
		for i, s := range f.Stages {
			marks[i] = "?"
			args = append(args, s)
		}
		clauses = append(clauses, fmt.Sprintf("stage IN (%s)", strings.Join(marks, ",")))
	}
	if f.Authority != "" {
		clauses = append(clauses, "authority=?")
		args = append(args, f.Authority)
	}
	if f.Ministry != "" {
		clauses = append(clauses, "supervising_ministry=?")
		args = append(args, f.Ministry)
	}
	if f.Sector != "" {
		clauses = append(clauses, "sector=?")
		args = append(args, f.Sector)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListHistory returns the ordered, append-only approval log.
func (r Repo) ListHistory(ctx context.Context, projectID string) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ts,action,actor_role,actor_name,comment,new_stage FROM approval_logs WHERE project_id=? ORDER BY seq`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var history []domain.Decision
	for rows.Next() {
		var d domain.Decision
		if err := rows.Scan(&d.TS, &d.Action, &d.ActorRole, &d.ActorName, &d.Comment, &d.NewStage); err != nil {
			return nil, err
		}
		history = append(history, d)
	}
	return history, rows.Err()
}

// SaveDecisionTx persists one recorded decision: it advances the stage
// with an optimistic guard on the previously read stage and history
// length, then appends the new log entry. Two reviewers racing on the
// same stale stage cannot both win; the loser gets ErrStageConflict.
func (r Repo) SaveDecisionTx(ctx context.Context, tx *sql.Tx, p domain.Project, priorStage domain.StageID, priorHistoryLen int) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET stage=?, progress=?, updated_at=?
WHERE id=? AND stage=? AND (SELECT COUNT(*) FROM approval_logs WHERE project_id=?)=?`,
		p.Stage, p.Progress, p.UpdatedAt, p.ID, priorStage, p.ID, priorHistoryLen)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := scanProject(tx.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, p.ID).Scan); getErr != nil {
			return getErr
		}
		return ErrStageConflict
	}
	last := p.History[len(p.History)-1]
	_, err = tx.ExecContext(ctx, `INSERT INTO approval_logs(project_id,seq,ts,action,actor_role,actor_name,comment,new_stage) VALUES (?,?,?,?,?,?,?,?)`,
		p.ID, priorHistoryLen, last.TS, last.Action, last.ActorRole, last.ActorName, last.Comment, last.NewStage)
	return err
}

// SetStageTx updates the stage without the optimistic guard; reserved
// for administrative stage forcing, which is recorded in the audit
// event log instead of the approval history.
func (r Repo) SetStageTx(ctx context.Context, tx *sql.Tx, id string, stage domain.StageID, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET stage=?, updated_at=? WHERE id=?`, stage, updatedAt, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendLogTx appends a log entry at the next sequence position.
func (r Repo) AppendLogTx(ctx context.Context, tx *sql.Tx, projectID string, d domain.Decision) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO approval_logs(project_id,seq,ts,action,actor_role,actor_name,comment,new_stage)
SELECT ?, COALESCE(MAX(seq)+1,0), ?,?,?,?,?,? FROM approval_logs WHERE project_id=?`,
		projectID, d.TS, d.Action, d.ActorRole, d.ActorName, d.Comment, d.NewStage, projectID)
	return err
}

// CountProjectsByStage returns a stage -> count map for dashboards.
func (r Repo) CountProjectsByStage(ctx context.Context) (map[domain.StageID]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT stage, COUNT(*) FROM projects GROUP BY stage`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.StageID]int{}
	for rows.Next() {
		var stage domain.StageID
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[stage] = n
	}
	return counts, rows.Err()
}

// DeleteProject removes a project and its dependents. Rejection is a
// terminal stage, not an erasure; this exists for workspace cleanup
// only and is gated to the administrator at the call sites.
func (r Repo) DeleteProject(ctx context.Context, id string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM approval_logs WHERE project_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE project_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// LatestEvents returns recent audit events, newest first.
func (r Repo) LatestEvents(ctx context.Context, n int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	if n <= 0 {
		n = 20
	}
	query := `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var (
		clauses []string
		args    []any
	)
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, n)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, or 0 when empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

// EventsAfter returns events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, cursor int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>? ORDER BY id LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
