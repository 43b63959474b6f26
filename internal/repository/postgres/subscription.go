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

const subscriptionColumns = `user_id, tier, status, trial_started_at, trial_ends_at, current_period_end,
		COALESCE(wallet_address, ''), COALESCE(last_tx_hash, ''), updated_at`

// SubscriptionRepository implements repository.SubscriptionRepository using
// PostgreSQL. Every write also updates users.subscription_tier.
type SubscriptionRepository struct {
	pool database.DBTX
}

func NewSubscriptionRepository(pool database.DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.UserID,
		&s.Tier,
		&s.Status,
		&s.TrialStartedAt,
		&s.TrialEndsAt,
		&s.CurrentPeriodEnd,
		&s.WalletAddress,
		&s.LastTxHash,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("subscription", userID)
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return s, nil
}

// StartTrial locks the row so concurrent trial requests see each other's
// marker.
func (r *SubscriptionRepository) StartTrial(ctx context.Context, userID string, now time.Time) (sub *domain.Subscription, started bool, err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "StartTrial", "subscriptions")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin start trial: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err = scanSubscription(tx.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, apperrors.NotFound("subscription", userID)
		}
		return nil, false, fmt.Errorf("lock subscription: %w", err)
	}
	if sub.HasTrialMarker() {
		return sub, false, nil
	}

	sub.StartTrial(now)
	_, err = tx.Exec(ctx, `
		UPDATE subscriptions
		SET tier = $1, status = $2, trial_started_at = $3, trial_ends_at = $4, current_period_end = $5, updated_at = $6
		WHERE user_id = $7`,
		sub.Tier, sub.Status, sub.TrialStartedAt, sub.TrialEndsAt, sub.CurrentPeriodEnd, sub.UpdatedAt, userID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update subscription trial: %w", err)
	}
	if err := mirrorTier(ctx, tx, userID, sub.Tier, now); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit start trial: %w", err)
	}
	return sub, true, nil
}

func (r *SubscriptionRepository) UpdateTier(ctx context.Context, userID string, tier domain.Tier, now time.Time) (sub *domain.Subscription, err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "UpdateTier", "subscriptions")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin update tier: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err = scanSubscription(tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET tier = $1, status = $2, updated_at = $3
		WHERE user_id = $4
		RETURNING `+subscriptionColumns,
		tier, domain.SubscriptionActive, now, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("subscription", userID)
		}
		return nil, fmt.Errorf("update subscription tier: %w", err)
	}
	if err := mirrorTier(ctx, tx, userID, tier, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update tier: %w", err)
	}
	return sub, nil
}

const (
	subscriptionWalletConstraint = "subscriptions_wallet_address_key"
	userWalletConstraint         = "users_wallet_address_key"
)

// BindWallet writes the wallet to both the subscription and the user in one
// transaction. Rebinding replaces the previous wallet.
func (r *SubscriptionRepository) BindWallet(ctx context.Context, userID, wallet string, now time.Time) (sub *domain.Subscription, err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "BindWallet", "subscriptions")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin bind wallet: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err = scanSubscription(tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET wallet_address = $1, updated_at = $2
		WHERE user_id = $3
		RETURNING `+subscriptionColumns,
		wallet, now, userID,
	))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NotFound("subscription", userID)
		case database.IsUniqueViolation(err, subscriptionWalletConstraint):
			return nil, apperrors.AlreadyExists("subscription", "wallet_address", wallet)
		}
		return nil, fmt.Errorf("bind subscription wallet: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET wallet_address = $1, updated_at = $2 WHERE id = $3`,
		wallet, now, userID,
	); err != nil {
		if database.IsUniqueViolation(err, userWalletConstraint) {
			return nil, apperrors.AlreadyExists("user", "wallet_address", wallet)
		}
		return nil, fmt.Errorf("bind user wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit bind wallet: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) ApplyPayment(ctx context.Context, n *domain.PaymentNotice, now time.Time) (sub *domain.Subscription, err error) {
	ctx, end := database.TraceQuery(ctx, "postgresql", "ApplyPayment", "subscriptions")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin apply payment: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err = scanSubscription(tx.QueryRow(ctx, `
		UPDATE subscriptions
		SET tier = $1, status = $2, current_period_end = COALESCE($3, current_period_end), last_tx_hash = $4, updated_at = $5
		WHERE wallet_address = $6
		RETURNING `+subscriptionColumns,
		n.Tier, n.Status, n.PeriodEnd, n.TxHash, now, n.WalletAddress,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("subscription for wallet", n.WalletAddress)
		}
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	if err := mirrorTier(ctx, tx, sub.UserID, sub.Tier, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit apply payment: %w", err)
	}
	return sub, nil
}

func mirrorTier(ctx context.Context, tx pgx.Tx, userID string, tier domain.Tier, now time.Time) error {
	if _, err := tx.Exec(ctx,
		`UPDATE users SET subscription_tier = $1, updated_at = $2 WHERE id = $3`,
		tier, now, userID,
	); err != nil {
		return fmt.Errorf("mirror user tier: %w", err)
	}
	return nil
}
