// Package service holds the xxVPN business operations behind the HTTP
// handlers.
package service

import (
	"context"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
)

// EventPublisher emits domain events. Publishing is best effort: services
// log failures and carry on.
type EventPublisher interface {
	PublishTwoFactorVerified(ctx context.Context, userID, sessionID string, window int) error
	PublishSubscriptionUpdated(ctx context.Context, sub *domain.Subscription, reason string) error
	PublishVoteCast(ctx context.Context, vote *domain.Vote) error
	PublishBetaSignupRequested(ctx context.Context, signup *domain.BetaSignup) error
}

// SecretSealer encrypts TOTP secrets at rest; *secretbox.Box implements it.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(encoded string) (string, error)
}
