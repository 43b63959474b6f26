package http

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// --- Mock Session Repository ---

type mockSessionRepository struct {
	mock.Mock
}

func (m *mockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *mockSessionRepository) Rotate(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) error {
	args := m.Called(ctx, id, oldHash, newHash, expiresAt)
	return args.Error(0)
}

func (m *mockSessionRepository) MarkTwoFactorVerified(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *mockSessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// --- Mock TOTP Repository ---

type mockTOTPRepository struct {
	mock.Mock
}

func (m *mockTOTPRepository) Get(ctx context.Context, userID string) (*domain.TOTPCredential, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TOTPCredential), args.Error(1)
}

func (m *mockTOTPRepository) SavePending(ctx context.Context, cred *domain.TOTPCredential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *mockTOTPRepository) Enable(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *mockTOTPRepository) Delete(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Mock Challenge Store ---

type mockChallengeStore struct {
	mock.Mock
}

func (m *mockChallengeStore) Save(ctx context.Context, challenge *domain.PendingChallenge) error {
	args := m.Called(ctx, challenge)
	return args.Error(0)
}

func (m *mockChallengeStore) Take(ctx context.Context, id string) (*domain.PendingChallenge, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PendingChallenge), args.Error(1)
}

// --- Mock Subscription Repository ---

type mockSubscriptionRepository struct {
	mock.Mock
}

func (m *mockSubscriptionRepository) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) StartTrial(ctx context.Context, userID string, now time.Time) (*domain.Subscription, bool, error) {
	args := m.Called(ctx, userID, now)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.Subscription), args.Bool(1), args.Error(2)
}

func (m *mockSubscriptionRepository) UpdateTier(ctx context.Context, userID string, tier domain.Tier, now time.Time) (*domain.Subscription, error) {
	args := m.Called(ctx, userID, tier, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) BindWallet(ctx context.Context, userID, wallet string, now time.Time) (*domain.Subscription, error) {
	args := m.Called(ctx, userID, wallet, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepository) ApplyPayment(ctx context.Context, notice *domain.PaymentNotice, now time.Time) (*domain.Subscription, error) {
	args := m.Called(ctx, notice, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

// --- Mock Proposal Repository ---

type mockProposalRepository struct {
	mock.Mock
}

func (m *mockProposalRepository) List(ctx context.Context, offset, limit int) ([]domain.Proposal, int, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]domain.Proposal), args.Int(1), args.Error(2)
}

func (m *mockProposalRepository) GetByID(ctx context.Context, id string) (*domain.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Proposal), args.Error(1)
}

func (m *mockProposalRepository) CastVote(ctx context.Context, proposalID, voterID string, support domain.VoteSupport, now time.Time) (*domain.VoteResult, error) {
	args := m.Called(ctx, proposalID, voterID, support, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VoteResult), args.Error(1)
}

// --- Mock Event Publisher ---

type mockEventPublisher struct {
	mock.Mock
}

func (m *mockEventPublisher) PublishTwoFactorVerified(ctx context.Context, userID, sessionID string, window int) error {
	args := m.Called(ctx, userID, sessionID, window)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishSubscriptionUpdated(ctx context.Context, sub *domain.Subscription, reason string) error {
	args := m.Called(ctx, sub, reason)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishVoteCast(ctx context.Context, vote *domain.Vote) error {
	args := m.Called(ctx, vote)
	return args.Error(0)
}

func (m *mockEventPublisher) PublishBetaSignupRequested(ctx context.Context, signup *domain.BetaSignup) error {
	args := m.Called(ctx, signup)
	return args.Error(0)
}
