package domain

import "time"

type Tier string

const (
	TierFree     Tier = "free"
	TierBasic    Tier = "basic"
	TierPremium  Tier = "premium"
	TierUltimate Tier = "ultimate"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium, TierUltimate:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionTrialing SubscriptionStatus = "trialing"
	SubscriptionPastDue  SubscriptionStatus = "past_due"
	SubscriptionCanceled SubscriptionStatus = "canceled"
	SubscriptionExpired  SubscriptionStatus = "expired"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionTrialing, SubscriptionPastDue, SubscriptionCanceled, SubscriptionExpired:
		return true
	}
	return false
}

// TrialTier and TrialLength describe the free trial.
const (
	TrialTier   = TierPremium
	TrialLength = 7 * 24 * time.Hour
)

type Subscription struct {
	UserID           string             `json:"user_id"`
	Tier             Tier               `json:"tier"`
	Status           SubscriptionStatus `json:"status"`
	TrialStartedAt   *time.Time         `json:"trial_started_at,omitempty"`
	TrialEndsAt      *time.Time         `json:"trial_ends_at,omitempty"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	WalletAddress    string             `json:"wallet_address,omitempty"`
	LastTxHash       string             `json:"last_tx_hash,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// HasTrialMarker reports whether a trial was ever started.
func (s *Subscription) HasTrialMarker() bool {
	return s.TrialStartedAt != nil
}

// StartTrial moves the subscription onto the trial tier from now.
func (s *Subscription) StartTrial(now time.Time) {
	ends := now.Add(TrialLength)
	s.Tier = TrialTier
	s.Status = SubscriptionTrialing
	s.TrialStartedAt = &now
	s.TrialEndsAt = &ends
	s.CurrentPeriodEnd = &ends
	s.UpdatedAt = now
}

// SubscriptionResult is the manage-subscription response body.
type SubscriptionResult struct {
	Subscription   *Subscription `json:"subscription"`
	AlreadyStarted bool          `json:"already_started,omitempty"`
}

// PaymentNotice is a confirmed on-chain payment delivered by the xx webhook.
type PaymentNotice struct {
	WalletAddress string             `json:"wallet_address"`
	Tier          Tier               `json:"tier"`
	Status        SubscriptionStatus `json:"status"`
	TxHash        string             `json:"tx_hash"`
	PeriodEnd     *time.Time         `json:"period_end,omitempty"`
}
