package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresFeeRepo はPostgreSQLを使用した納付金リポジトリ。
type PostgresFeeRepo struct {
	db *sql.DB
}

// NewPostgresFeeRepo はPostgresFeeRepoを生成する。
func NewPostgresFeeRepo(db *sql.DB) *PostgresFeeRepo {
	return &PostgresFeeRepo{db: db}
}

// Create は納付金を作成する。
func (r *PostgresFeeRepo) Create(ctx context.Context, fee *model.Fee) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO fees (id, student_id, fee_type, amount, due_date, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fee.ID, fee.StudentID, fee.FeeType, fee.Amount, fee.DueDate, fee.Status, fee.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create fee: %w", err)
	}
	return nil
}

// ListPendingByStudent は指定学生の未納の納付金を期日昇順で返す。
func (r *PostgresFeeRepo) ListPendingByStudent(ctx context.Context, studentID string) ([]model.Fee, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, fee_type, amount, due_date, status, created_at
		 FROM fees
		 WHERE student_id = $1 AND status = 'pending'
		 ORDER BY due_date ASC NULLS LAST`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending fees: %w", err)
	}
	defer rows.Close()

	var fees []model.Fee
	for rows.Next() {
		var fee model.Fee
		if err := rows.Scan(&fee.ID, &fee.StudentID, &fee.FeeType, &fee.Amount,
			&fee.DueDate, &fee.Status, &fee.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fee row: %w", err)
		}
		fees = append(fees, fee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate fee rows: %w", err)
	}
	return fees, nil
}

// compile-time interface check
var _ FeeRepository = (*PostgresFeeRepo)(nil)
