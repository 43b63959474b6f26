// Package twofactor holds the TOTP verification policy and the sign-in
// state machine around it.
package twofactor

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	Period     = 30
	CodeDigits = 6

	// MaxWindow is the widest drift tolerance tried, in steps either side.
	MaxWindow = 3
)

var (
	ErrMalformedCode = errors.New("twofactor: code must be exactly 6 digits")
	ErrInvalidCode   = errors.New("twofactor: code rejected")
	ErrCodeReused    = errors.New("twofactor: code already used")
)

var verifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "twofactor_verifications_total",
	Help: "TOTP verification outcomes",
}, []string{"result"})

// SanitizeCode keeps only ASCII digits and requires exactly six of them.
func SanitizeCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() != CodeDigits {
		return "", ErrMalformedCode
	}
	return b.String(), nil
}

// Match describes which time step a code belonged to.
type Match struct {
	Window int
	Offset int
	Step   int64
}

// Verifier checks codes against a base32 secret, widening the accepted
// window from 1 to MaxWindow steps and taking the first hit.
type Verifier struct {
	opts totp.ValidateOpts
}

func NewVerifier() *Verifier {
	return &Verifier{opts: totp.ValidateOpts{
		Period:    Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}}
}

// Validate returns the matching step or ErrInvalidCode.
func (v *Verifier) Validate(secret, code string, now time.Time) (Match, error) {
	code, err := SanitizeCode(code)
	if err != nil {
		return Match{}, err
	}
	current := now.Unix() / Period

	checked := map[int]bool{}
	for window := 1; window <= MaxWindow; window++ {
		for offset := -window; offset <= window; offset++ {
			if checked[offset] {
				continue
			}
			checked[offset] = true

			at := time.Unix((current+int64(offset))*Period, 0).UTC()
			want, err := totp.GenerateCodeCustom(secret, at, v.opts)
			if err != nil {
				return Match{}, fmt.Errorf("generate code: %w", err)
			}
			if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
				return Match{Window: window, Offset: offset, Step: current + int64(offset)}, nil
			}
		}
	}
	return Match{}, ErrInvalidCode
}

// Generate returns the code for secret at t; used by tests and tooling.
func (v *Verifier) Generate(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, v.opts)
}

// ReplayGuard records that a (user, step) pair has produced a successful
// verification. MarkUsed reports false when it was already recorded.
type ReplayGuard interface {
	MarkUsed(ctx context.Context, userID string, step int64) (bool, error)
}

// Check validates code and consumes its step, serialized per user by lock.
// Any failure is reported as an error; callers map all of them to one
// generic message.
func (v *Verifier) Check(ctx context.Context, lock *UserLock, guard ReplayGuard, userID, secret, code string, now time.Time) (Match, error) {
	unlock := lock.Lock(userID)
	defer unlock()

	m, err := v.Validate(secret, code, now)
	if err != nil {
		verifications.WithLabelValues(resultLabel(err)).Inc()
		return Match{}, err
	}
	fresh, err := guard.MarkUsed(ctx, userID, m.Step)
	if err != nil {
		verifications.WithLabelValues("error").Inc()
		return Match{}, fmt.Errorf("record used code: %w", err)
	}
	if !fresh {
		verifications.WithLabelValues("replayed").Inc()
		return Match{}, ErrCodeReused
	}
	verifications.WithLabelValues("accepted").Inc()
	return m, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrMalformedCode):
		return "malformed"
	case errors.Is(err, ErrInvalidCode):
		return "rejected"
	}
	return "error"
}

// Provision creates a new random secret labelled with issuer and account.
func Provision(issuer, account string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}
