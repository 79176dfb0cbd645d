package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresMarkRepo はPostgreSQLを使用した成績リポジトリ。
type PostgresMarkRepo struct {
	db *sql.DB
}

// NewPostgresMarkRepo はPostgresMarkRepoを生成する。
func NewPostgresMarkRepo(db *sql.DB) *PostgresMarkRepo {
	return &PostgresMarkRepo{db: db}
}

// Create は成績を作成する。
func (r *PostgresMarkRepo) Create(ctx context.Context, mark *model.Mark) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO marks (id, student_id, subject, exam_type, marks_obtained, max_marks, added_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		mark.ID, mark.StudentID, mark.Subject, mark.ExamType,
		mark.MarksObtained, mark.MaxMarks, nullString(mark.AddedBy), mark.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mark: %w", err)
	}
	return nil
}

// ListByStudent は指定学生の成績を保存順で返す。
func (r *PostgresMarkRepo) ListByStudent(ctx context.Context, studentID string) ([]model.Mark, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, student_id, subject, exam_type, marks_obtained, max_marks, added_by, created_at
		 FROM marks
		 WHERE student_id = $1
		 ORDER BY created_at ASC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list marks: %w", err)
	}
	defer rows.Close()

	var marks []model.Mark
	for rows.Next() {
		var mark model.Mark
		var addedBy sql.NullString
		if err := rows.Scan(&mark.ID, &mark.StudentID, &mark.Subject, &mark.ExamType,
			&mark.MarksObtained, &mark.MaxMarks, &addedBy, &mark.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mark row: %w", err)
		}
		mark.AddedBy = nullStringValue(addedBy)
		marks = append(marks, mark)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mark rows: %w", err)
	}
	return marks, nil
}

// compile-time interface check
var _ MarkRepository = (*PostgresMarkRepo)(nil)
