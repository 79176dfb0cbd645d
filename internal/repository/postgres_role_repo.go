package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresRoleRepo はPostgreSQLを使用したロール割当リポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// Assign はユーザーにロールを割り当てる。
// user_idが主キーのため、同一ユーザーへの二重割当は一意制約違反になる。
func (r *PostgresRoleRepo) Assign(ctx context.Context, userID string, role model.Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role, created_at)
		 VALUES ($1, $2, now())`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーのロール割当を取得する。
// 割当が存在しない場合はnilを返す。
func (r *PostgresRoleRepo) FindByUserID(ctx context.Context, userID string) (*model.RoleAssignment, error) {
	assignment := &model.RoleAssignment{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, created_at
		 FROM user_roles WHERE user_id = $1`,
		userID,
	).Scan(&assignment.UserID, &assignment.Role, &assignment.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find role assignment: %w", err)
	}

	return assignment, nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
