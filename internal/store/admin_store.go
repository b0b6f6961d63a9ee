package store

import (
	"context"
	"database/sql"
	"errors"
)

type AdminStore struct {
	db DB
}

type Admin struct {
	ID           string  `db:"id"`
	Username     string  `db:"username"`
	PasswordHash string  `db:"password_hash"`
	IsSuper      bool    `db:"is_super"`
	CreatedBy    *string `db:"created_by"`
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) IsAdmin(ctx context.Context, adminID string) (bool, bool, error) {
	var isSuper bool
	err := s.db.GetContext(ctx, &isSuper, `
		SELECT is_super
		FROM admins
		WHERE id = $1
	`, adminID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, false, nil
		}
		return false, false, err
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, adminID, role string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM admin_roles
		WHERE admin_id = $1 AND role = $2
	`, adminID, role)
	return count > 0, err
}

func (s *AdminStore) GetByUsername(ctx context.Context, username string) (Admin, error) {
	var row Admin
	err := s.db.GetContext(ctx, &row, `
		SELECT id, username, password_hash, is_super, created_by
		FROM admins
		WHERE username = $1
	`, username)
	if err != nil {
		return Admin{}, mapNoRows(err)
	}
	return row, nil
}

func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, admin Admin) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admins (id, username, password_hash, is_super, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, admin.ID, admin.Username, admin.PasswordHash, admin.IsSuper, admin.CreatedBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, adminID, role)
	return err
}

func (s *AdminStore) HasAnyAdmin(ctx context.Context) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM admins`)
	return count > 0, err
}
