package domain

import "time"

// User is a registered dashboard account.
type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	DisplayName      string    `json:"display_name"`
	SubscriptionTier Tier      `json:"subscription_tier"`
	CoinBalance      int64     `json:"coin_balance"`
	WalletAddress    string    `json:"wallet_address,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Session is one signed-in device. TwoFactorVerified is set once a TOTP
// challenge has been passed and is what decides whether the profile asks for
// a code again.
type Session struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	RefreshTokenHash    string     `json:"-"`
	TwoFactorVerified   bool       `json:"twofa_verified"`
	TwoFactorVerifiedAt *time.Time `json:"twofa_verified_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	ExpiresAt           time.Time  `json:"expires_at"`
	RevokedAt           *time.Time `json:"revoked_at,omitempty"`
}

// Active reports whether the session can still mint tokens at now.
func (s *Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Profile is what the dashboard loads after sign-in.
type Profile struct {
	User              *User `json:"user"`
	TwoFactorEnabled  bool  `json:"two_factor_enabled"`
	RequiresTwoFactor bool  `json:"requires_two_factor"`
}
