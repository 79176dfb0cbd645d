package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresStaffRepo はPostgreSQLを使用した教職員プロフィールリポジトリ。
type PostgresStaffRepo struct {
	db *sql.DB
}

// NewPostgresStaffRepo はPostgresStaffRepoを生成する。
func NewPostgresStaffRepo(db *sql.DB) *PostgresStaffRepo {
	return &PostgresStaffRepo{db: db}
}

// Create は教職員プロフィールを作成する。
func (r *PostgresStaffRepo) Create(ctx context.Context, staff *model.StaffProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO staff (id, user_id, department, designation, subject, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		staff.ID, staff.UserID, staff.Department, staff.Designation, staff.Subject, staff.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}
	return nil
}

// FindByUserID は所有ユーザーIDで教職員プロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresStaffRepo) FindByUserID(ctx context.Context, userID string) (*model.StaffProfile, error) {
	staff := &model.StaffProfile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, department, designation, subject, created_at
		 FROM staff WHERE user_id = $1`,
		userID,
	).Scan(&staff.ID, &staff.UserID, &staff.Department, &staff.Designation,
		&staff.Subject, &staff.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff: %w", err)
	}

	return staff, nil
}

// FindByUserIDWithUser は教職員プロフィールをusersとJOINして取得する。見つからない場合はnilを返す。
func (r *PostgresStaffRepo) FindByUserIDWithUser(ctx context.Context, userID string) (*StaffWithUser, error) {
	staff := &StaffWithUser{}
	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.department, s.designation, s.subject, s.created_at,
		        u.full_name, u.email
		 FROM staff s
		 INNER JOIN users u ON s.user_id = u.id
		 WHERE s.user_id = $1`,
		userID,
	).Scan(&staff.ID, &staff.UserID, &staff.Department, &staff.Designation,
		&staff.Subject, &staff.CreatedAt, &staff.FullName, &staff.Email)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find staff with user: %w", err)
	}

	return staff, nil
}

// ListWithUsers は全教職員の名簿をusersとJOINして返す。
func (r *PostgresStaffRepo) ListWithUsers(ctx context.Context) ([]StaffWithUser, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.department, s.designation, s.subject, s.created_at,
		        u.full_name, u.email
		 FROM staff s
		 INNER JOIN users u ON s.user_id = u.id
		 ORDER BY u.full_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var list []StaffWithUser
	for rows.Next() {
		var staff StaffWithUser
		if err := rows.Scan(&staff.ID, &staff.UserID, &staff.Department, &staff.Designation,
			&staff.Subject, &staff.CreatedAt, &staff.FullName, &staff.Email); err != nil {
			return nil, fmt.Errorf("failed to scan staff row: %w", err)
		}
		list = append(list, staff)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate staff rows: %w", err)
	}
	return list, nil
}

// Count は教職員プロフィールの総数を返す。
func (r *PostgresStaffRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM staff`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count staff: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ StaffRepository = (*PostgresStaffRepo)(nil)
