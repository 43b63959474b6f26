package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

// BetaService queues beta confirmation emails.
type BetaService struct {
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewBetaService(events EventPublisher, logger *slog.Logger) *BetaService {
	return &BetaService{events: events, logger: logger, now: time.Now}
}

// RequestConfirmation hands the signup to the mail consumer. The email is
// sent asynchronously and at most once.
func (s *BetaService) RequestConfirmation(ctx context.Context, name, email string) error {
	signup := &domain.BetaSignup{
		Name:        strings.TrimSpace(name),
		Email:       normalizeEmail(email),
		RequestedAt: s.now().UTC(),
	}
	if signup.Name == "" || signup.Email == "" {
		return apperrors.InvalidInput("name and email are required")
	}

	if err := s.events.PublishBetaSignupRequested(ctx, signup); err != nil {
		return apperrors.Unavailable("beta signup could not be queued", err)
	}

	s.logger.InfoContext(ctx, "beta signup queued")
	return nil
}
