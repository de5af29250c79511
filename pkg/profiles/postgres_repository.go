package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository backed by Postgres.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new Postgres profile repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a profile by user id.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, display_name, intent, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, id)

	var p Profile
	err := row.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Intent, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}

// FindByUsername retrieves a profile by exact username.
func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, display_name, intent, created_at, updated_at
		FROM profiles
		WHERE username = $1
	`, username)

	var p Profile
	err := row.Scan(&p.ID, &p.Username, &p.DisplayName, &p.Intent, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by username: %w", err)
	}
	return &p, nil
}

// Upsert inserts or updates a profile, conflict-safe on id. Empty parameter
// fields leave existing column values untouched.
func (r *PostgresRepository) Upsert(ctx context.Context, params UpsertParams) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO profiles (id, username, display_name, intent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			username     = COALESCE(NULLIF(EXCLUDED.username, ''), profiles.username),
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), profiles.display_name),
			intent       = COALESCE(NULLIF(EXCLUDED.intent, ''), profiles.intent),
			updated_at   = now()
	`, params.ID, params.Username, params.DisplayName, params.Intent)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// Delete removes a profile.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
