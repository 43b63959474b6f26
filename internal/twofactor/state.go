package twofactor

import (
	"fmt"
	"sync"
)

// State is where a sign-in attempt stands.
type State int

const (
	Unauthenticated State = iota
	PasswordVerifiedPending2FA
	SessionActive
	Rejected
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case PasswordVerifiedPending2FA:
		return "password_verified_pending_2fa"
	case SessionActive:
		return "session_active"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event moves a sign-in attempt between states.
type Event string

const (
	EventPasswordRejected Event = "password_rejected"
	EventPasswordAccepted Event = "password_accepted"
	EventNoSecondFactor   Event = "no_second_factor"
	EventCodeAccepted     Event = "code_accepted"
	EventCodeRejected     Event = "code_rejected"
	EventChallengeExpired Event = "challenge_expired"
	EventSignedOut        Event = "signed_out"
	EventReset            Event = "reset"
)

type edge struct {
	from  State
	event Event
}

var transitions = map[edge]State{
	{Unauthenticated, EventPasswordRejected}:            Rejected,
	{Unauthenticated, EventPasswordAccepted}:            PasswordVerifiedPending2FA,
	{Unauthenticated, EventNoSecondFactor}:              SessionActive,
	{PasswordVerifiedPending2FA, EventCodeAccepted}:     SessionActive,
	{PasswordVerifiedPending2FA, EventCodeRejected}:     Rejected,
	{PasswordVerifiedPending2FA, EventChallengeExpired}: Rejected,
	{PasswordVerifiedPending2FA, EventPasswordRejected}: Rejected,
	{SessionActive, EventSignedOut}:                     Unauthenticated,
	{Rejected, EventReset}:                              Unauthenticated,
}

// ErrIllegalTransition is wrapped by Transition for edges not in the table.
var ErrIllegalTransition = fmt.Errorf("illegal two-factor transition")

// Transition returns the state reached from `from` on ev.
func Transition(from State, ev Event) (State, error) {
	to, ok := transitions[edge{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrIllegalTransition, from, ev)
	}
	return to, nil
}

// Flow tracks one sign-in attempt and the path it took.
type Flow struct {
	mu      sync.Mutex
	state   State
	history []State
}

func NewFlow() *Flow {
	return &Flow{state: Unauthenticated, history: []State{Unauthenticated}}
}

// ResumeFlow starts a flow at a known state, e.g. for a stored challenge.
func ResumeFlow(s State) *Flow {
	return &Flow{state: s, history: []State{s}}
}

func (f *Flow) Fire(ev Event) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	to, err := Transition(f.state, ev)
	if err != nil {
		return f.state, err
	}
	f.state = to
	f.history = append(f.history, to)
	return to, nil
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) History() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.history...)
}
