package repo

import (
	"context"
	"database/sql"

	"approline/internal/domain"
)

func (r Repo) UpsertProfile(ctx context.Context, p domain.UserProfile) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(id,name,email,role,department,supervising_ministry,status,created_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(name) DO UPDATE SET email=excluded.email, role=excluded.role, department=excluded.department, supervising_ministry=excluded.supervising_ministry`,
		p.ID, p.Name, p.Email, p.Role, nullable(p.Department), nullable(p.SupervisingMinistry), p.Status, p.CreatedAt)
	return err
}

func (r Repo) GetProfileByName(ctx context.Context, name string) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,email,role,COALESCE(department,''),COALESCE(supervising_ministry,''),status,created_at FROM profiles WHERE name=?`, name).
		Scan(&p.ID, &p.Name, &p.Email, &p.Role, &p.Department, &p.SupervisingMinistry, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProfiles(ctx context.Context) ([]domain.UserProfile, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,email,role,COALESCE(department,''),COALESCE(supervising_ministry,''),status,created_at FROM profiles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserProfile
	for rows.Next() {
		var p domain.UserProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Role, &p.Department, &p.SupervisingMinistry, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) SetProfileStatus(ctx context.Context, name, status string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE profiles SET status=? WHERE name=?`, status, name)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
