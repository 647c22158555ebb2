package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"custodial-wallet-backend/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

const apiKeyColumns = `id, user_id, name, hashed_secret, permissions, expires_at,
		revoked, revoked_at, last_used_at, created_at`

// Create inserts a new API key row within a transaction block, so the
// ceiling check performed under the user row lock and the insert commit
// together.
func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (` + apiKeyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		k.ID, k.UserID, k.Name, k.HashedSecret, k.Permissions,
		k.ExpiresAt, k.Revoked, k.RevokedAt, k.LastUsedAt, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetByID fetches a key by UUID, revoked or not.
func (r *APIKeyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	k := &domain.APIKey{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&k.ID, &k.UserID, &k.Name, &k.HashedSecret, &k.Permissions,
		&k.ExpiresAt, &k.Revoked, &k.RevokedAt, &k.LastUsedAt, &k.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key by id: %w", err)
	}
	return k, nil
}

// ListByUser returns all of a user's keys, newest first, including revoked
// and expired ones.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE user_id = $1 ORDER BY created_at DESC`

	return r.list(ctx, r.pool, query, userID)
}

// ListActiveByUser returns keys that are neither revoked nor expired at now.
// It reads through the caller's transaction so the count observed under the
// user row lock is the count that commits.
func (r *APIKeyRepo) ListActiveByUser(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY created_at DESC`

	return r.list(ctx, tx, query, userID, now)
}

// ListActive returns every key in the system that is neither revoked nor
// expired at now. Validation scans these and verifies the presented secret
// against each hash.
func (r *APIKeyRepo) ListActive(ctx context.Context, now time.Time) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys
		WHERE revoked = FALSE AND expires_at > $1
		ORDER BY last_used_at DESC NULLS LAST, created_at DESC`

	return r.list(ctx, r.pool, query, now)
}

// Revoke marks a key revoked. Rows are never deleted.
func (r *APIKeyRepo) Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	query := `UPDATE api_keys SET revoked = TRUE, revoked_at = $1
		WHERE id = $2 AND revoked = FALSE`

	tag, err := r.pool.Exec(ctx, query, revokedAt, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found or already revoked: %s", id)
	}
	return nil
}

// TouchLastUsed records a successful authentication with the key.
func (r *APIKeyRepo) TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`

	if _, err := r.pool.Exec(ctx, query, usedAt, id); err != nil {
		return fmt.Errorf("touch api key last used: %w", err)
	}
	return nil
}

// rowQuerier is satisfied by both the pool and pgx.Tx.
type rowQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (r *APIKeyRepo) list(ctx context.Context, q rowQuerier, query string, args ...any) ([]domain.APIKey, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		k := domain.APIKey{}
		err := rows.Scan(
			&k.ID, &k.UserID, &k.Name, &k.HashedSecret, &k.Permissions,
			&k.ExpiresAt, &k.Revoked, &k.RevokedAt, &k.LastUsedAt, &k.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api keys: %w", err)
	}
	return keys, nil
}
