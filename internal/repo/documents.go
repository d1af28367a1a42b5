package repo

import (
	"context"
	"database/sql"

	"approline/internal/domain"
)

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(id,project_id,name,kind,url,uploaded_by,uploaded_at) VALUES (?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.Name, d.Kind, nullable(d.URL), d.UploadedBy, d.UploadedAt)
	return err
}

func (r Repo) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,name,kind,COALESCE(url,''),uploaded_by,uploaded_at FROM documents WHERE project_id=? ORDER BY uploaded_at`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Name, &d.Kind, &d.URL, &d.UploadedBy, &d.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	var d domain.Document
	err := r.DB.QueryRowContext(ctx, `SELECT id,project_id,name,kind,COALESCE(url,''),uploaded_by,uploaded_at FROM documents WHERE id=?`, id).
		Scan(&d.ID, &d.ProjectID, &d.Name, &d.Kind, &d.URL, &d.UploadedBy, &d.UploadedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}
