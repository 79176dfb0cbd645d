package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresAttendanceRepo はPostgreSQLを使用した出席記録リポジトリ。
type PostgresAttendanceRepo struct {
	db *sql.DB
}

// NewPostgresAttendanceRepo はPostgresAttendanceRepoを生成する。
func NewPostgresAttendanceRepo(db *sql.DB) *PostgresAttendanceRepo {
	return &PostgresAttendanceRepo{db: db}
}

// Create は出席記録を作成する。
func (r *PostgresAttendanceRepo) Create(ctx context.Context, record *model.AttendanceRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO attendance (id, student_id, date, status, updated_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.StudentID, record.Date, record.Status,
		nullString(record.UpdatedBy), record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create attendance record: %w", err)
	}
	return nil
}

// ListRecentByStudent は指定学生の出席記録を日付降順でlimit件まで返す。
func (r *PostgresAttendanceRepo) ListRecentByStudent(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, date, status, updated_by, created_at
		 FROM attendance
		 WHERE student_id = $1
		 ORDER BY date DESC
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent attendance: %w", err)
	}
	defer rows.Close()

	return scanAttendanceRows(rows)
}

// ListByStudentFrom は指定学生の指定日以降の出席記録を日付昇順で返す。
func (r *PostgresAttendanceRepo) ListByStudentFrom(ctx context.Context, studentID string, from time.Time) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, date, status, updated_by, created_at
		 FROM attendance
		 WHERE student_id = $1 AND date >= $2
		 ORDER BY date ASC`,
		studentID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance from date: %w", err)
	}
	defer rows.Close()

	return scanAttendanceRows(rows)
}

// scanAttendanceRows は出席記録の行を走査する。
func scanAttendanceRows(rows *sql.Rows) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	for rows.Next() {
		var record model.AttendanceRecord
		var updatedBy sql.NullString
		if err := rows.Scan(&record.ID, &record.StudentID, &record.Date,
			&record.Status, &updatedBy, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance row: %w", err)
		}
		record.UpdatedBy = nullStringValue(updatedBy)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance rows: %w", err)
	}
	return records, nil
}

// compile-time interface check
var _ AttendanceRepository = (*PostgresAttendanceRepo)(nil)
