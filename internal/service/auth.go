package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/auth"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/twofactor"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/middleware"
)

const (
	bcryptCost        = 12
	minPasswordLength = 8
	maxPasswordLength = 72
)

// Client-facing messages at the authentication boundary. They never say
// which check failed.
const (
	msgInvalidCredentials = "invalid email or password"
	msgInvalidCode        = "invalid verification code"
	msgInvalidSession     = "invalid or expired refresh token"
)

// AuthConfig holds the two-factor settings.
type AuthConfig struct {
	Issuer       string
	ChallengeTTL time.Duration
}

// AuthDependencies are the collaborators of AuthService.
type AuthDependencies struct {
	Users      repository.UserRepository
	Sessions   repository.SessionRepository
	Revoked    repository.RevocationStore
	TOTP       repository.TOTPRepository
	Challenges repository.ChallengeStore
	Tokens     *auth.JWTManager
	Secrets    SecretSealer
	Replay     twofactor.ReplayGuard
	Events     EventPublisher
}

// AuthService implements sign-up, sign-in with optional TOTP, sessions and
// TOTP management.
type AuthService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	revoked    repository.RevocationStore
	totp       repository.TOTPRepository
	challenges repository.ChallengeStore
	tokens     *auth.JWTManager
	secrets    SecretSealer
	replay     twofactor.ReplayGuard
	events     EventPublisher
	verifier   *twofactor.Verifier
	locks      *twofactor.UserLock
	cfg        AuthConfig
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

func NewAuthService(deps AuthDependencies, cfg AuthConfig, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:      deps.Users,
		sessions:   deps.Sessions,
		revoked:    deps.Revoked,
		totp:       deps.TOTP,
		challenges: deps.Challenges,
		tokens:     deps.Tokens,
		secrets:    deps.Secrets,
		replay:     deps.Replay,
		events:     deps.Events,
		verifier:   twofactor.NewVerifier(),
		locks:      twofactor.NewUserLock(),
		cfg:        cfg,
		bcryptCost: bcryptCost,
		logger:     logger,
		now:        time.Now,
	}
}

// --- Input types ---

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

type LoginInput struct {
	Email    string
	Password string
}

// VerifyTwoFactorInput carries the second credential check: the password is
// submitted again alongside the code.
type VerifyTwoFactorInput struct {
	ChallengeID string
	Email       string
	Password    string
	Code        string
}

type UpdateProfileInput struct {
	DisplayName *string
}

// --- Sign-up and sign-in ---

// Register creates an account on the free tier and signs it in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:               uuid.New().String(),
		Email:            email,
		PasswordHash:     string(hash),
		DisplayName:      strings.TrimSpace(input.DisplayName),
		SubscriptionTier: domain.TierFree,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.issueSession(ctx, user, false)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user, tokens, nil
}

// Login checks the password. Without TOTP it opens a session; with TOTP it
// only records a pending challenge, so no session ever exists for a user
// who has not passed the second factor.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.LoginResult, error) {
	flow := twofactor.NewFlow()

	user, err := s.checkPassword(ctx, input.Email, input.Password)
	if err != nil {
		_, _ = flow.Fire(twofactor.EventPasswordRejected)
		return nil, err
	}

	cred, err := s.totp.Get(ctx, user.ID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("load totp credential: %w", err)
	}

	if cred == nil || !cred.Enabled {
		if _, err := flow.Fire(twofactor.EventNoSecondFactor); err != nil {
			return nil, err
		}
		tokens, err := s.issueSession(ctx, user, false)
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
		return &domain.LoginResult{UserID: user.ID, Tokens: tokens}, nil
	}

	if _, err := flow.Fire(twofactor.EventPasswordAccepted); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	challenge := &domain.PendingChallenge{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.ChallengeTTL),
	}
	if err := s.challenges.Save(ctx, challenge); err != nil {
		return nil, fmt.Errorf("save challenge: %w", err)
	}

	s.logger.InfoContext(ctx, "two-factor challenge issued",
		slog.String("user_id", user.ID),
		slog.String("state", flow.State().String()),
	)
	return &domain.LoginResult{
		UserID:            user.ID,
		RequiresTwoFactor: true,
		ChallengeID:       challenge.ID,
		ChallengeExpires:  &challenge.ExpiresAt,
	}, nil
}

// VerifyTwoFactor completes a challenged sign-in. A code that is not six
// digits is refused before the challenge is touched; past that point the
// challenge is consumed whatever the outcome and every rejection carries the
// same message.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, input VerifyTwoFactorInput) (*domain.LoginResult, error) {
	code, err := twofactor.SanitizeCode(input.Code)
	if err != nil {
		return nil, apperrors.InvalidInput("verification code must be 6 digits")
	}
	if input.ChallengeID == "" {
		return nil, apperrors.InvalidInput("challenge_id is required")
	}

	flow := twofactor.ResumeFlow(twofactor.PasswordVerifiedPending2FA)
	reject := func(ev twofactor.Event, reason string, attrs ...slog.Attr) error {
		_, _ = flow.Fire(ev)
		attrs = append(attrs, slog.String("reason", reason), slog.String("state", flow.State().String()))
		s.logger.LogAttrs(ctx, slog.LevelWarn, "two-factor verification rejected", attrs...)
		return apperrors.Unauthorized(msgInvalidCode)
	}

	now := s.now().UTC()
	challenge, err := s.challenges.Take(ctx, input.ChallengeID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, reject(twofactor.EventChallengeExpired, "unknown challenge")
		}
		return nil, fmt.Errorf("take challenge: %w", err)
	}
	userAttr := slog.String("user_id", challenge.UserID)
	if challenge.Expired(now) {
		return nil, reject(twofactor.EventChallengeExpired, "challenge expired", userAttr)
	}

	user, err := s.checkPassword(ctx, input.Email, input.Password)
	if err != nil || user.ID != challenge.UserID {
		return nil, reject(twofactor.EventPasswordRejected, "credentials do not match challenge", userAttr)
	}

	cred, err := s.totp.Get(ctx, user.ID)
	if err != nil || !cred.Enabled {
		return nil, reject(twofactor.EventCodeRejected, "no enabled totp credential", userAttr)
	}
	secret, err := s.secrets.Open(cred.SecretCiphertext)
	if err != nil {
		return nil, reject(twofactor.EventCodeRejected, "totp secret unreadable", userAttr)
	}

	match, err := s.verifier.Check(ctx, s.locks, s.replay, user.ID, secret, code, now)
	if err != nil {
		return nil, reject(twofactor.EventCodeRejected, err.Error(), userAttr)
	}
	if _, err := flow.Fire(twofactor.EventCodeAccepted); err != nil {
		return nil, err
	}

	tokens, sessionID, err := s.openSession(ctx, user, true)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishTwoFactorVerified(ctx, user.ID, sessionID, match.Window); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish twofa_verified event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "two-factor verification accepted", slog.String("user_id", user.ID))
	s.logger.DebugContext(ctx, "two-factor match",
		slog.String("user_id", user.ID),
		slog.Int("window", match.Window),
		slog.Int("offset", match.Offset),
	)

	return &domain.LoginResult{UserID: user.ID, Tokens: tokens}, nil
}

// Refresh rotates the refresh token of a live session. The session keeps its
// two-factor flag. Presenting a superseded refresh token revokes the session.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.InvalidInput("refresh token is required")
	}
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized(msgInvalidSession)
	}

	now := s.now().UTC()
	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgInvalidSession)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != claims.UserID || !session.Active(now) {
		return nil, apperrors.Unauthorized(msgInvalidSession)
	}

	oldHash := auth.HashToken(refreshToken)
	if session.RefreshTokenHash != oldHash {
		if err := s.revokeSession(ctx, session.ID, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to revoke session after refresh reuse",
				slog.String("session_id", session.ID),
				slog.String("error", err.Error()),
			)
		}
		s.logger.WarnContext(ctx, "superseded refresh token presented, session revoked",
			slog.String("user_id", session.UserID),
			slog.String("session_id", session.ID),
		)
		return nil, apperrors.Unauthorized(msgInvalidSession)
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user for token refresh: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized(msgInvalidSession)
	}

	tokens, err := s.generateTokens(user, session.ID, session.TwoFactorVerified)
	if err != nil {
		return nil, err
	}
	newHash := auth.HashToken(tokens.RefreshToken)
	if err := s.sessions.Rotate(ctx, session.ID, oldHash, newHash, now.Add(s.tokens.RefreshExpiry())); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgInvalidSession)
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
		slog.String("session_id", session.ID),
	)
	return tokens, nil
}

// Logout revokes the session. Signing out twice is not an error.
func (s *AuthService) Logout(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return apperrors.Unauthorized("missing session")
	}
	flow := twofactor.ResumeFlow(twofactor.SessionActive)
	if err := s.revokeSession(ctx, sessionID, s.now().UTC()); err != nil {
		return err
	}
	_, _ = flow.Fire(twofactor.EventSignedOut)

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
	return nil
}

// revokeSession ends the session row and blocks its outstanding access
// tokens until they expire.
func (s *AuthService) revokeSession(ctx context.Context, sessionID string, now time.Time) error {
	if err := s.sessions.Revoke(ctx, sessionID, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := s.revoked.Revoke(ctx, sessionID, s.tokens.AccessExpiry()); err != nil {
		return fmt.Errorf("mark session revoked: %w", err)
	}
	return nil
}

// TokenValidator checks bearer tokens for the auth middleware. A token whose
// session was signed out is refused, and so is every token while revocation
// state cannot be read.
func (s *AuthService) TokenValidator() middleware.TokenValidator {
	validate := s.tokens.TokenValidator()
	return func(ctx context.Context, token string) (*middleware.Claims, error) {
		claims, err := validate(ctx, token)
		if err != nil {
			return nil, err
		}
		revoked, err := s.revoked.IsRevoked(ctx, claims.SessionID)
		if err != nil {
			s.logger.ErrorContext(ctx, "session revocation check failed",
				slog.String("session_id", claims.SessionID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("check session revocation: %w", err)
		}
		if revoked {
			return nil, errors.New("session has been signed out")
		}
		return claims, nil
	}
}

// --- Profile ---

// Profile returns the user along with whether the current session still owes
// a TOTP code.
func (s *AuthService) Profile(ctx context.Context, userID, sessionID string) (*domain.Profile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	enabled, err := s.twoFactorEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}

	verified := false
	if sessionID != "" {
		session, err := s.sessions.GetByID(ctx, sessionID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("load session: %w", err)
		}
		if session != nil && session.UserID == userID {
			verified = session.TwoFactorVerified
		}
	}

	return &domain.Profile{
		User:              user,
		TwoFactorEnabled:  enabled,
		RequiresTwoFactor: enabled && !verified,
	}, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if len(name) > 100 {
			return nil, apperrors.InvalidInput("display name must be at most 100 characters")
		}
		user.DisplayName = name
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.logger.InfoContext(ctx, "profile updated", slog.String("user_id", userID))
	return user, nil
}

// --- TOTP management ---

// SetupTOTP provisions a fresh secret and stores it sealed and disabled. The
// plaintext secret is returned this one time.
func (s *AuthService) SetupTOTP(ctx context.Context, userID string) (*domain.TOTPProvisioning, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	key, err := twofactor.Provision(s.cfg.Issuer, user.Email)
	if err != nil {
		return nil, fmt.Errorf("provision totp: %w", err)
	}
	sealed, err := s.secrets.Seal(key.Secret())
	if err != nil {
		return nil, fmt.Errorf("seal totp secret: %w", err)
	}

	now := s.now().UTC()
	cred := &domain.TOTPCredential{
		UserID:           userID,
		SecretCiphertext: sealed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.totp.SavePending(ctx, cred); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.Conflict("two-factor authentication is already enabled")
		}
		return nil, fmt.Errorf("save totp credential: %w", err)
	}

	s.logger.InfoContext(ctx, "totp setup started", slog.String("user_id", userID))
	return &domain.TOTPProvisioning{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// EnableTOTP turns on a pending secret once the user proves they hold it,
// and marks the current session as verified.
func (s *AuthService) EnableTOTP(ctx context.Context, userID, sessionID, code string) error {
	cred, err := s.totp.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidInput("two-factor setup has not been started")
		}
		return fmt.Errorf("load totp credential: %w", err)
	}
	if cred.Enabled {
		return apperrors.Conflict("two-factor authentication is already enabled")
	}
	if err := s.checkCode(ctx, userID, cred, code); err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.totp.Enable(ctx, userID, now); err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}
	if sessionID != "" {
		if err := s.sessions.MarkTwoFactorVerified(ctx, sessionID, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to mark session verified",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "totp enabled", slog.String("user_id", userID))
	return nil
}

// DisableTOTP removes the credential after a valid code.
func (s *AuthService) DisableTOTP(ctx context.Context, userID, code string) error {
	cred, err := s.totp.Get(ctx, userID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("load totp credential: %w", err)
	}
	if cred == nil || !cred.Enabled {
		return apperrors.InvalidInput("two-factor authentication is not enabled")
	}
	if err := s.checkCode(ctx, userID, cred, code); err != nil {
		return err
	}
	if err := s.totp.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete totp credential: %w", err)
	}

	s.logger.InfoContext(ctx, "totp disabled", slog.String("user_id", userID))
	return nil
}

// --- helpers ---

func (s *AuthService) checkPassword(ctx context.Context, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}
	return user, nil
}

func (s *AuthService) checkCode(ctx context.Context, userID string, cred *domain.TOTPCredential, code string) error {
	if _, err := twofactor.SanitizeCode(code); err != nil {
		return apperrors.InvalidInput("verification code must be 6 digits")
	}
	secret, err := s.secrets.Open(cred.SecretCiphertext)
	if err != nil {
		s.logger.WarnContext(ctx, "totp secret unreadable", slog.String("user_id", userID))
		return apperrors.Unauthorized(msgInvalidCode)
	}
	if _, err := s.verifier.Check(ctx, s.locks, s.replay, userID, secret, code, s.now()); err != nil {
		return apperrors.Unauthorized(msgInvalidCode)
	}
	return nil
}

func (s *AuthService) twoFactorEnabled(ctx context.Context, userID string) (bool, error) {
	cred, err := s.totp.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load totp credential: %w", err)
	}
	return cred.Enabled, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *domain.User, twoFactorVerified bool) (*domain.TokenPair, error) {
	tokens, _, err := s.openSession(ctx, user, twoFactorVerified)
	return tokens, err
}

func (s *AuthService) openSession(ctx context.Context, user *domain.User, twoFactorVerified bool) (*domain.TokenPair, string, error) {
	now := s.now().UTC()
	session := &domain.Session{
		ID:                uuid.New().String(),
		UserID:            user.ID,
		TwoFactorVerified: twoFactorVerified,
		CreatedAt:         now,
		ExpiresAt:         now.Add(s.tokens.RefreshExpiry()),
	}
	if twoFactorVerified {
		session.TwoFactorVerifiedAt = &now
	}

	tokens, err := s.generateTokens(user, session.ID, twoFactorVerified)
	if err != nil {
		return nil, "", err
	}
	session.RefreshTokenHash = auth.HashToken(tokens.RefreshToken)

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return tokens, session.ID, nil
}

func (s *AuthService) generateTokens(user *domain.User, sessionID string, twoFactorVerified bool) (*domain.TokenPair, error) {
	access, err := s.tokens.GenerateAccessToken(user.ID, user.Email, sessionID, twoFactorVerified)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessExpiry().Seconds()),
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// validatePassword checks length and character classes.
func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, ch := range password {
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return apperrors.InvalidInput("password must contain at least one uppercase letter, one lowercase letter, and one digit")
	}
	return nil
}
