package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/validator"
)

// WebhookPayload is a confirmed on-chain payment.
type WebhookPayload struct {
	WalletAddress string     `json:"wallet_address" validate:"required,max=128"`
	Tier          string     `json:"tier" validate:"required,oneof=free basic premium ultimate"`
	Status        string     `json:"status" validate:"required,oneof=active trialing past_due canceled expired"`
	TxHash        string     `json:"tx_hash" validate:"required,max=128"`
	PeriodEnd     *time.Time `json:"period_end"`
}

// WebhookService applies signed payment notices from the xx network
// payment watcher.
type WebhookService struct {
	secret []byte
	repo   repository.SubscriptionRepository
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewWebhookService(secret string, repo repository.SubscriptionRepository, events EventPublisher, logger *slog.Logger) *WebhookService {
	return &WebhookService{secret: []byte(secret), repo: repo, events: events, logger: logger, now: time.Now}
}

// Sign returns the hex HMAC-SHA256 of body.
func (s *WebhookService) Sign(body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature header against body in constant time.
func (s *WebhookService) Verify(signature string, body []byte) bool {
	if len(s.secret) == 0 || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Handle verifies body before decoding it, then updates the subscription
// bound to the paying wallet.
func (s *WebhookService) Handle(ctx context.Context, signature string, body []byte) (*domain.Subscription, error) {
	if !s.Verify(signature, body) {
		s.logger.WarnContext(ctx, "webhook signature rejected")
		return nil, apperrors.Unauthorized("invalid webhook signature")
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.InvalidInput("invalid JSON body")
	}
	if err := validator.Validate(payload); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	notice := &domain.PaymentNotice{
		WalletAddress: payload.WalletAddress,
		Tier:          domain.Tier(payload.Tier),
		Status:        domain.SubscriptionStatus(payload.Status),
		TxHash:        payload.TxHash,
		PeriodEnd:     payload.PeriodEnd,
	}
	sub, err := s.repo.ApplyPayment(ctx, notice, s.now().UTC())
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("subscription for wallet", notice.WalletAddress)
		}
		return nil, fmt.Errorf("apply payment: %w", err)
	}

	if err := s.events.PublishSubscriptionUpdated(ctx, sub, ReasonPaymentConfirmed); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish subscription.updated event",
			slog.String("user_id", sub.UserID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "payment applied",
		slog.String("user_id", sub.UserID),
		slog.String("tier", string(sub.Tier)),
		slog.String("tx_hash", notice.TxHash),
	)
	return sub, nil
}
