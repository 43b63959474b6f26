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

// TOTPRepository implements repository.TOTPRepository using PostgreSQL.
type TOTPRepository struct {
	pool database.DBTX
}

func NewTOTPRepository(pool database.DBTX) *TOTPRepository {
	return &TOTPRepository{pool: pool}
}

func (r *TOTPRepository) Get(ctx context.Context, userID string) (*domain.TOTPCredential, error) {
	var c domain.TOTPCredential
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, secret_ciphertext, enabled, created_at, updated_at, enabled_at
		FROM totp_credentials
		WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.SecretCiphertext, &c.Enabled, &c.CreatedAt, &c.UpdatedAt, &c.EnabledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("totp credential", userID)
		}
		return nil, fmt.Errorf("get totp credential: %w", err)
	}
	return &c, nil
}

func (r *TOTPRepository) SavePending(ctx context.Context, c *domain.TOTPCredential) error {
	ct, err := r.pool.Exec(ctx, `
		INSERT INTO totp_credentials (user_id, secret_ciphertext, enabled, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET secret_ciphertext = EXCLUDED.secret_ciphertext, updated_at = EXCLUDED.updated_at
		WHERE totp_credentials.enabled = FALSE`,
		c.UserID, c.SecretCiphertext, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save totp credential: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.Conflict("two-factor authentication is already enabled")
	}
	return nil
}

func (r *TOTPRepository) Enable(ctx context.Context, userID string, at time.Time) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE totp_credentials
		SET enabled = TRUE, enabled_at = $1, updated_at = $1
		WHERE user_id = $2`,
		at, userID,
	)
	if err != nil {
		return fmt.Errorf("enable totp credential: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("totp credential", userID)
	}
	return nil
}

func (r *TOTPRepository) Delete(ctx context.Context, userID string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM totp_credentials WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete totp credential: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("totp credential", userID)
	}
	return nil
}
