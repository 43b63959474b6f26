package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/database"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

// SessionRepository implements repository.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool database.DBTX
}

func NewSessionRepository(pool database.DBTX) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token_hash, twofa_verified, twofa_verified_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID,
		s.UserID,
		s.RefreshTokenHash,
		s.TwoFactorVerified,
		s.TwoFactorVerifiedAt,
		s.CreatedAt,
		s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var s domain.Session
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, refresh_token_hash, twofa_verified, twofa_verified_at, created_at, expires_at, revoked_at
		FROM sessions
		WHERE id = $1`, id,
	).Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshTokenHash,
		&s.TwoFactorVerified,
		&s.TwoFactorVerifiedAt,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("session", id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// Rotate is a compare-and-swap on the refresh token hash, so a refresh
// token can be exchanged once.
func (r *SessionRepository) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET refresh_token_hash = $1, expires_at = $2
		WHERE id = $3 AND refresh_token_hash = $4 AND revoked_at IS NULL`,
		newHash, expiresAt, id, oldHash,
	)
	if err != nil {
		return fmt.Errorf("rotate session: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("session", id)
	}
	return nil
}

func (r *SessionRepository) MarkTwoFactorVerified(ctx context.Context, id string, at time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET twofa_verified = TRUE, twofa_verified_at = $1
		WHERE id = $2 AND revoked_at IS NULL`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("mark session verified: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("session", id)
	}
	return nil
}

func (r *SessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions
		SET revoked_at = COALESCE(revoked_at, $1)
		WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
