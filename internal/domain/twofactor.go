package domain

import "time"

// TOTPCredential is a user's shared secret, sealed at rest. The plaintext
// secret never leaves the server after provisioning.
type TOTPCredential struct {
	UserID           string     `json:"user_id"`
	SecretCiphertext string     `json:"-"`
	Enabled          bool       `json:"enabled"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	EnabledAt        *time.Time `json:"enabled_at,omitempty"`
}

// PendingChallenge records that a password check passed and a TOTP code is
// still owed. It deliberately holds no password or secret.
type PendingChallenge struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *PendingChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// LoginResult is returned by a password login. Exactly one of Tokens and
// ChallengeID is set.
type LoginResult struct {
	UserID            string     `json:"user_id"`
	RequiresTwoFactor bool       `json:"requires_two_factor"`
	ChallengeID       string     `json:"challenge_id,omitempty"`
	ChallengeExpires  *time.Time `json:"challenge_expires_at,omitempty"`
	Tokens            *TokenPair `json:"tokens,omitempty"`
}

// TOTPProvisioning is shown to the user once when 2FA is set up.
type TOTPProvisioning struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}
