package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresHolidayRepo はPostgreSQLを使用した休日リポジトリ。
type PostgresHolidayRepo struct {
	db *sql.DB
}

// NewPostgresHolidayRepo はPostgresHolidayRepoを生成する。
func NewPostgresHolidayRepo(db *sql.DB) *PostgresHolidayRepo {
	return &PostgresHolidayRepo{db: db}
}

// Create は休日を作成する。
func (r *PostgresHolidayRepo) Create(ctx context.Context, holiday *model.Holiday) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO holidays (id, name, date, is_govt)
		 VALUES ($1, $2, $3, $4)`,
		holiday.ID, holiday.Name, holiday.Date, holiday.IsGovt,
	)
	if err != nil {
		return fmt.Errorf("failed to create holiday: %w", err)
	}
	return nil
}

// ListFrom は指定日以降の休日を日付昇順で返す。
func (r *PostgresHolidayRepo) ListFrom(ctx context.Context, from time.Time) ([]model.Holiday, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, date, is_govt
		 FROM holidays
		 WHERE date >= $1
		 ORDER BY date ASC`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var holidays []model.Holiday
	for rows.Next() {
		var holiday model.Holiday
		if err := rows.Scan(&holiday.ID, &holiday.Name, &holiday.Date, &holiday.IsGovt); err != nil {
			return nil, fmt.Errorf("failed to scan holiday row: %w", err)
		}
		holidays = append(holidays, holiday)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holiday rows: %w", err)
	}
	return holidays, nil
}

// compile-time interface check
var _ HolidayRepository = (*PostgresHolidayRepo)(nil)
