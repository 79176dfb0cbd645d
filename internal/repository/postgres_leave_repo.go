package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresLeaveRepo はPostgreSQLを使用した休暇申請リポジトリ。
type PostgresLeaveRepo struct {
	db *sql.DB
}

// NewPostgresLeaveRepo はPostgresLeaveRepoを生成する。
func NewPostgresLeaveRepo(db *sql.DB) *PostgresLeaveRepo {
	return &PostgresLeaveRepo{db: db}
}

const leaveColumns = `id, student_id, start_date, end_date, leave_type, reason,
	status, reviewed_by, document_url, applied_at`

// Create は休暇申請を作成する。
func (r *PostgresLeaveRepo) Create(ctx context.Context, req *model.LeaveRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leave_requests (id, student_id, start_date, end_date, leave_type,
		                             reason, status, reviewed_by, document_url, applied_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.StudentID, req.StartDate, req.EndDate, req.LeaveType,
		req.Reason, req.Status, nullString(req.ReviewedBy), req.DocumentURL,
		req.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

// FindByID は指定IDの申請を取得する。見つからない場合はnilを返す。
func (r *PostgresLeaveRepo) FindByID(ctx context.Context, id string) (*model.LeaveRequest, error) {
	req := &model.LeaveRequest{}
	var reviewedBy sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT `+leaveColumns+` FROM leave_requests WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.StudentID, &req.StartDate, &req.EndDate, &req.LeaveType,
		&req.Reason, &req.Status, &reviewedBy, &req.DocumentURL, &req.AppliedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find leave request: %w", err)
	}

	req.ReviewedBy = nullStringValue(reviewedBy)
	return req, nil
}

// ListByStudent は指定学生の申請を申請日時降順で返す。
func (r *PostgresLeaveRepo) ListByStudent(ctx context.Context, studentID string) ([]model.LeaveRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+leaveColumns+` FROM leave_requests
		 WHERE student_id = $1
		 ORDER BY applied_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests by student: %w", err)
	}
	defer rows.Close()

	return scanLeaveRows(rows)
}

// ListByStatus は指定状態の申請を申請日時昇順で返す。
func (r *PostgresLeaveRepo) ListByStatus(ctx context.Context, status model.LeaveStatus) ([]model.LeaveRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+leaveColumns+` FROM leave_requests
		 WHERE status = $1
		 ORDER BY applied_at ASC`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests by status: %w", err)
	}
	defer rows.Close()

	return scanLeaveRows(rows)
}

// CountByStatus は指定状態の申請数を返す。
func (r *PostgresLeaveRepo) CountByStatus(ctx context.Context, status model.LeaveStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM leave_requests WHERE status = $1`,
		status,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count leave requests: %w", err)
	}
	return count, nil
}

// UpdateReview は審査待ちの申請に審査結果を記録する。
// 状態ガード付きの更新のため、並行する審査が先に確定していた場合は
// 0件更新となりErrLeaveAlreadyReviewedを返す。
func (r *PostgresLeaveRepo) UpdateReview(ctx context.Context, id string, status model.LeaveStatus, reviewerID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE leave_requests SET status = $2, reviewed_by = $3 WHERE id = $1 AND status = 'pending'`,
		id, status, reviewerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave review: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrLeaveAlreadyReviewed
	}
	return nil
}

// scanLeaveRows は休暇申請の行を走査する。
func scanLeaveRows(rows *sql.Rows) ([]model.LeaveRequest, error) {
	var requests []model.LeaveRequest
	for rows.Next() {
		var req model.LeaveRequest
		var reviewedBy sql.NullString
		if err := rows.Scan(&req.ID, &req.StudentID, &req.StartDate, &req.EndDate,
			&req.LeaveType, &req.Reason, &req.Status, &reviewedBy, &req.DocumentURL,
			&req.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan leave request row: %w", err)
		}
		req.ReviewedBy = nullStringValue(reviewedBy)
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leave request rows: %w", err)
	}
	return requests, nil
}

// compile-time interface check
var _ LeaveRequestRepository = (*PostgresLeaveRepo)(nil)
