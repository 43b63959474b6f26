package repository

import (
	"context"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user together with its free subscription row.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateProfile writes the user-editable profile fields.
	UpdateProfile(ctx context.Context, user *domain.User) error
}

// SessionRepository persists signed-in sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error

	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// Rotate swaps the refresh token hash if oldHash is still current and
	// the session is not revoked.
	Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error

	// MarkTwoFactorVerified sets the session's twofa_verified flag.
	MarkTwoFactorVerified(ctx context.Context, id string, at time.Time) error

	// Revoke ends a session. Revoking twice is not an error.
	Revoke(ctx context.Context, id string, at time.Time) error
}

// TOTPRepository stores sealed TOTP secrets.
type TOTPRepository interface {
	Get(ctx context.Context, userID string) (*domain.TOTPCredential, error)

	// SavePending stores a not-yet-enabled secret, replacing an earlier
	// pending one. It fails with a conflict when 2FA is already enabled.
	SavePending(ctx context.Context, cred *domain.TOTPCredential) error

	Enable(ctx context.Context, userID string, at time.Time) error

	Delete(ctx context.Context, userID string) error
}

// SubscriptionRepository persists subscriptions and mirrors the tier onto
// the owning user.
type SubscriptionRepository interface {
	Get(ctx context.Context, userID string) (*domain.Subscription, error)

	// StartTrial starts the trial unless a trial marker already exists.
	// started is false when the stored subscription was returned unchanged.
	StartTrial(ctx context.Context, userID string, now time.Time) (sub *domain.Subscription, started bool, err error)

	UpdateTier(ctx context.Context, userID string, tier domain.Tier, now time.Time) (*domain.Subscription, error)

	// BindWallet sets the payment wallet on the user's subscription and user
	// row. A wallet already bound to another account is ErrAlreadyExists.
	BindWallet(ctx context.Context, userID, wallet string, now time.Time) (*domain.Subscription, error)

	// ApplyPayment updates the subscription bound to notice.WalletAddress.
	ApplyPayment(ctx context.Context, notice *domain.PaymentNotice, now time.Time) (*domain.Subscription, error)
}

// ProposalRepository reads proposals and records votes.
type ProposalRepository interface {
	List(ctx context.Context, offset, limit int) ([]domain.Proposal, int, error)

	GetByID(ctx context.Context, id string) (*domain.Proposal, error)

	// CastVote records a vote weighted by the voter's balance and adds it
	// to the proposal tally in one transaction.
	CastVote(ctx context.Context, proposalID, voterID string, support domain.VoteSupport, now time.Time) (*domain.VoteResult, error)
}

// RevocationStore remembers signed-out sessions for as long as their access
// tokens can still be presented.
type RevocationStore interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// ChallengeStore holds pending two-factor challenges.
type ChallengeStore interface {
	Save(ctx context.Context, challenge *domain.PendingChallenge) error

	// Take returns the challenge and deletes it, so it can be used once.
	Take(ctx context.Context, id string) (*domain.PendingChallenge, error)
}

// NDFCache caches the last fetched network definition.
type NDFCache interface {
	Get(ctx context.Context) (*domain.SignedNDF, error)
	Set(ctx context.Context, ndf *domain.SignedNDF, ttl time.Duration) error
}

// KeystoreRepository stores opaque sealed mixnet keystore records.
type KeystoreRepository interface {
	Load(ctx context.Context, userID string) ([]byte, error)

	// Create stores the first record for a user. It fails with
	// ErrAlreadyExists when one is already stored and never overwrites it.
	Create(ctx context.Context, userID string, record []byte) error
}
