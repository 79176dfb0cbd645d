package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresStudentRepo はPostgreSQLを使用した学生プロフィールリポジトリ。
type PostgresStudentRepo struct {
	db *sql.DB
}

// NewPostgresStudentRepo はPostgresStudentRepoを生成する。
func NewPostgresStudentRepo(db *sql.DB) *PostgresStudentRepo {
	return &PostgresStudentRepo{db: db}
}

// Create は学生プロフィールを作成する。
func (r *PostgresStudentRepo) Create(ctx context.Context, student *model.StudentProfile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO students (id, user_id, roll_no, department, year_of_study, attendance_percentage, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		student.ID, student.UserID, student.RollNo, student.Department,
		student.YearOfStudy, student.AttendancePercent, student.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

// FindByUserID は所有ユーザーIDで学生プロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByUserID(ctx context.Context, userID string) (*model.StudentProfile, error) {
	student := &model.StudentProfile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, roll_no, department, year_of_study, attendance_percentage, created_at
		 FROM students WHERE user_id = $1`,
		userID,
	).Scan(&student.ID, &student.UserID, &student.RollNo, &student.Department,
		&student.YearOfStudy, &student.AttendancePercent, &student.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student: %w", err)
	}

	return student, nil
}

// FindByUserIDWithUser は学生プロフィールをusersとJOINして取得する。見つからない場合はnilを返す。
func (r *PostgresStudentRepo) FindByUserIDWithUser(ctx context.Context, userID string) (*StudentWithUser, error) {
	student := &StudentWithUser{}
	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.roll_no, s.department, s.year_of_study,
		        s.attendance_percentage, s.created_at, u.full_name, u.email
		 FROM students s
		 INNER JOIN users u ON s.user_id = u.id
		 WHERE s.user_id = $1`,
		userID,
	).Scan(&student.ID, &student.UserID, &student.RollNo, &student.Department,
		&student.YearOfStudy, &student.AttendancePercent, &student.CreatedAt,
		&student.FullName, &student.Email)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find student with user: %w", err)
	}

	return student, nil
}

// Count は学生プロフィールの総数を返す。
func (r *PostgresStudentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM students`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return count, nil
}

// ListIDs は全学生のIDを返す。出席率再計算ジョブが使用する。
func (r *PostgresStudentRepo) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM students ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list student IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan student ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate student IDs: %w", err)
	}
	return ids, nil
}

// UpdateAttendancePercent は非正規化された出席率を更新する。
func (r *PostgresStudentRepo) UpdateAttendancePercent(ctx context.Context, studentID string, percent float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE students SET attendance_percentage = $2 WHERE id = $1`,
		studentID, percent,
	)
	if err != nil {
		return fmt.Errorf("failed to update attendance percentage: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// compile-time interface check
var _ StudentRepository = (*PostgresStudentRepo)(nil)
