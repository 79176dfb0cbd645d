package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用した学内イベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, event *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, name, description, date, created_by, external_ref, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Name, event.Description, event.Date,
		nullString(event.CreatedBy), event.ExternalRef, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// ListFrom は指定日以降のイベントを日付昇順でlimit件まで返す。
func (r *PostgresEventRepo) ListFrom(ctx context.Context, from time.Time, limit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, date, created_by, external_ref, created_at
		 FROM events
		 WHERE date >= $1
		 ORDER BY date ASC
		 LIMIT $2`,
		from, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var event model.Event
		var createdBy sql.NullString
		if err := rows.Scan(&event.ID, &event.Name, &event.Description, &event.Date,
			&createdBy, &event.ExternalRef, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		event.CreatedBy = nullStringValue(createdBy)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}

// CountAll はイベントの総数を返す。
func (r *PostgresEventRepo) CountAll(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM events`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// CountFrom は指定日以降のイベント数を返す。
func (r *PostgresEventRepo) CountFrom(ctx context.Context, from time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM events WHERE date >= $1`,
		from,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count upcoming events: %w", err)
	}
	return count, nil
}

// UpsertExternal は外部フィード由来のイベントをexternal_refで冪等にUPSERTする。
// external_refが空でない行のみを対象とする部分一意インデックスとON CONFLICTで実装する。
// 新規挿入の場合はtrueを返す。
func (r *PostgresEventRepo) UpsertExternal(ctx context.Context, event *model.Event) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO events (id, name, description, date, created_by, external_ref, created_at)
		 VALUES ($1, $2, $3, $4, NULL, $5, $6)
		 ON CONFLICT (external_ref) WHERE external_ref <> '' DO UPDATE SET
		    name = EXCLUDED.name,
		    description = EXCLUDED.description,
		    date = EXCLUDED.date
		 RETURNING (xmax = 0)`,
		event.ID, event.Name, event.Description, event.Date,
		event.ExternalRef, event.CreatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert external event: %w", err)
	}
	return inserted, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
