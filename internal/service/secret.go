package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/ratelimit"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/secretbox"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

type SecretAction string

const (
	ActionEncrypt SecretAction = "encrypt"
	ActionDecrypt SecretAction = "decrypt"
)

// msgSecretFailed is returned for every seal or open failure.
const msgSecretFailed = "secret could not be processed"

// SecretService encrypts and decrypts TOTP secrets on behalf of a signed-in
// user, limited per user.
type SecretService struct {
	box     SecretSealer
	limiter ratelimit.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

func NewSecretService(box SecretSealer, limiter ratelimit.Limiter, logger *slog.Logger) *SecretService {
	return &SecretService{box: box, limiter: limiter, logger: logger, now: time.Now}
}

// SecretResult is the outcome of one operation plus the limiter state.
type SecretResult struct {
	Action    SecretAction
	Value     string
	Remaining int
}

// Process runs action on secret. A nil box means no operator key is
// configured and every call is refused.
func (s *SecretService) Process(ctx context.Context, userID string, action SecretAction, secret string) (*SecretResult, error) {
	if action != ActionEncrypt && action != ActionDecrypt {
		return nil, apperrors.InvalidInput("action must be encrypt or decrypt")
	}
	if s.box == nil {
		return nil, apperrors.Unavailable("encryption is not configured", secretbox.ErrKeyNotConfigured)
	}

	decision, err := s.limiter.Allow(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("rate limit: %w", err))
	}
	if !decision.Allowed {
		s.logger.WarnContext(ctx, "totp secret operation rate limited",
			slog.String("user_id", userID),
			slog.Time("reset_at", decision.ResetAt),
		)
		return nil, &RateLimitedError{RetryAfter: decision.RetryAfter(s.now())}
	}

	var out string
	switch action {
	case ActionEncrypt:
		out, err = s.box.Seal(secret)
	case ActionDecrypt:
		out, err = s.box.Open(secret)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "totp secret operation failed",
			slog.String("user_id", userID),
			slog.String("action", string(action)),
			slog.String("kind", failureKind(err)),
		)
		return nil, apperrors.InvalidInput(msgSecretFailed)
	}

	return &SecretResult{Action: action, Value: out, Remaining: decision.Remaining}, nil
}

// RateLimitedError renders as 429 and tells the client when to retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return "rate limited, retry after " + e.RetryAfter.String()
}

func (e *RateLimitedError) Unwrap() error { return errRateLimited }

var errRateLimited = apperrors.TooManyRequests("too many requests, try again later")

func failureKind(err error) string {
	switch {
	case errors.Is(err, secretbox.ErrEmptyPlaintext):
		return "empty"
	case errors.Is(err, secretbox.ErrTooLarge):
		return "too_large"
	case errors.Is(err, secretbox.ErrMalformed):
		return "malformed"
	case errors.Is(err, secretbox.ErrDecrypt):
		return "unauthenticated"
	}
	return "other"
}
