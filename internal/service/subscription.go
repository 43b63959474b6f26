package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

type SubscriptionAction string

const (
	ActionStartTrial SubscriptionAction = "start-trial"
	ActionUpdateTier SubscriptionAction = "update-tier"
)

// Reasons attached to subscription.updated events.
const (
	ReasonTrialStarted     = "trial_started"
	ReasonTierChanged      = "tier_changed"
	ReasonPaymentConfirmed = "payment_confirmed"
	ReasonWalletBound      = "wallet_bound"
)

const maxWalletLength = 128

type ManageSubscriptionInput struct {
	Action SubscriptionAction
	Tier   domain.Tier
}

// SubscriptionService starts trials and changes tiers.
type SubscriptionService struct {
	repo   repository.SubscriptionRepository
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewSubscriptionService(repo repository.SubscriptionRepository, events EventPublisher, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{repo: repo, events: events, logger: logger, now: time.Now}
}

func (s *SubscriptionService) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	sub, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *SubscriptionService) Manage(ctx context.Context, userID string, input ManageSubscriptionInput) (*domain.SubscriptionResult, error) {
	switch input.Action {
	case ActionStartTrial:
		return s.startTrial(ctx, userID)
	case ActionUpdateTier:
		return s.updateTier(ctx, userID, input.Tier)
	default:
		return nil, apperrors.InvalidInput("action must be start-trial or update-tier")
	}
}

// startTrial is idempotent: a subscription that ever had a trial is
// returned unchanged.
func (s *SubscriptionService) startTrial(ctx context.Context, userID string) (*domain.SubscriptionResult, error) {
	sub, started, err := s.repo.StartTrial(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("start trial: %w", err)
	}
	if !started {
		return &domain.SubscriptionResult{Subscription: sub, AlreadyStarted: true}, nil
	}

	s.publish(ctx, sub, ReasonTrialStarted)
	s.logger.InfoContext(ctx, "trial started",
		slog.String("user_id", userID),
		slog.String("tier", string(sub.Tier)),
	)
	return &domain.SubscriptionResult{Subscription: sub}, nil
}

func (s *SubscriptionService) updateTier(ctx context.Context, userID string, tier domain.Tier) (*domain.SubscriptionResult, error) {
	if tier == "" {
		return nil, apperrors.InvalidInput("tier is required")
	}
	if !tier.Valid() {
		return nil, apperrors.InvalidInput("tier must be one of free, basic, premium, ultimate")
	}

	sub, err := s.repo.UpdateTier(ctx, userID, tier, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("update tier: %w", err)
	}

	s.publish(ctx, sub, ReasonTierChanged)
	s.logger.InfoContext(ctx, "subscription tier updated",
		slog.String("user_id", userID),
		slog.String("tier", string(tier)),
	)
	return &domain.SubscriptionResult{Subscription: sub}, nil
}

// BindWallet attaches the wallet that pays for the user's subscription, so
// payment webhooks for it can find the account.
func (s *SubscriptionService) BindWallet(ctx context.Context, userID, wallet string) (*domain.Subscription, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, apperrors.InvalidInput("wallet address is required")
	}
	if len(wallet) > maxWalletLength || strings.ContainsFunc(wallet, unicode.IsSpace) {
		return nil, apperrors.InvalidInput("wallet address is malformed")
	}

	sub, err := s.repo.BindWallet(ctx, userID, wallet, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("bind wallet: %w", err)
	}

	s.publish(ctx, sub, ReasonWalletBound)
	s.logger.InfoContext(ctx, "subscription wallet bound", slog.String("user_id", userID))
	return sub, nil
}

func (s *SubscriptionService) publish(ctx context.Context, sub *domain.Subscription, reason string) {
	if err := s.events.PublishSubscriptionUpdated(ctx, sub, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish subscription.updated event",
			slog.String("user_id", sub.UserID),
			slog.String("error", err.Error()),
		)
	}
}
