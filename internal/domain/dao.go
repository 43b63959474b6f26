package domain

import "time"

type VoteSupport string

const (
	SupportFor     VoteSupport = "for"
	SupportAgainst VoteSupport = "against"
	SupportAbstain VoteSupport = "abstain"
)

// TallyColumn is the dao_proposals column a vote of this kind increments.
// It returns "" for unknown values so callers never build SQL from input.
func (s VoteSupport) TallyColumn() string {
	switch s {
	case SupportFor:
		return "votes_for"
	case SupportAgainst:
		return "votes_against"
	case SupportAbstain:
		return "votes_abstain"
	}
	return ""
}

type ProposalStatus string

const (
	ProposalActive ProposalStatus = "active"
	ProposalClosed ProposalStatus = "closed"
)

// MinVotingBalance is the token balance needed to vote.
const MinVotingBalance int64 = 1

type Proposal struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Status       ProposalStatus `json:"status"`
	VotesFor     int64          `json:"votes_for"`
	VotesAgainst int64          `json:"votes_against"`
	VotesAbstain int64          `json:"votes_abstain"`
	EndsAt       time.Time      `json:"ends_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

// OpenAt reports whether the proposal accepts votes at now.
func (p *Proposal) OpenAt(now time.Time) bool {
	return p.Status == ProposalActive && now.Before(p.EndsAt)
}

type Vote struct {
	ID          string      `json:"id"`
	ProposalID  string      `json:"proposal_id"`
	VoterID     string      `json:"voter_id"`
	Support     VoteSupport `json:"support"`
	VotingPower int64       `json:"voting_power"`
	CreatedAt   time.Time   `json:"created_at"`
}

// VoteResult is the validate-dao-vote response body.
type VoteResult struct {
	Success     bool      `json:"success"`
	Vote        *Vote     `json:"vote"`
	Proposal    *Proposal `json:"proposal"`
	VotingPower int64     `json:"voting_power"`
}
