package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/acadport/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// Create はIdentityをパスワードハッシュとともに作成する。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity, passwordHash string) error {
	metadata, err := json.Marshal(identity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal identity metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, metadata, email_confirmed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		identity.ID, identity.Email, passwordHash, metadata,
		identity.EmailConfirmedAt, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// FindByEmail はメールアドレスでIdentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, string, error) {
	identity := &model.Identity{}
	var passwordHash string
	var metadata []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, metadata, email_confirmed_at, created_at
		 FROM identities WHERE email = $1`,
		email,
	).Scan(&identity.ID, &identity.Email, &passwordHash, &metadata,
		&identity.EmailConfirmedAt, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to find identity by email: %w", err)
	}

	if err := json.Unmarshal(metadata, &identity.Metadata); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal identity metadata: %w", err)
	}

	return identity, passwordHash, nil
}

// FindByID は指定IDのIdentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity := &model.Identity{}
	var metadata []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, metadata, email_confirmed_at, created_at
		 FROM identities WHERE id = $1`,
		id,
	).Scan(&identity.ID, &identity.Email, &metadata,
		&identity.EmailConfirmedAt, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if err := json.Unmarshal(metadata, &identity.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal identity metadata: %w", err)
	}

	return identity, nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
