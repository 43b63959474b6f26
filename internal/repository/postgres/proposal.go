package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/database"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

const (
	proposalColumns = `id, title, description, status, votes_for, votes_against, votes_abstain, ends_at, created_at`

	// voteUniqueConstraint guards one vote per (proposal, voter).
	voteUniqueConstraint = "dao_votes_proposal_voter_key"
)

// ProposalRepository implements repository.ProposalRepository using PostgreSQL.
type ProposalRepository struct {
	pool database.DBTX
}

func NewProposalRepository(pool database.DBTX) *ProposalRepository {
	return &ProposalRepository{pool: pool}
}

func scanProposal(row pgx.Row) (*domain.Proposal, error) {
	var p domain.Proposal
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Status,
		&p.VotesFor,
		&p.VotesAgainst,
		&p.VotesAbstain,
		&p.EndsAt,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProposalRepository) List(ctx context.Context, offset, limit int) ([]domain.Proposal, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM dao_proposals`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+proposalColumns+` FROM dao_proposals ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals := make([]domain.Proposal, 0, limit)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate proposals: %w", err)
	}
	return proposals, total, nil
}

func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*domain.Proposal, error) {
	p, err := scanProposal(r.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM dao_proposals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("proposal", id)
		}
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// CastVote locks the voter then the proposal, inserts the vote and bumps the
// matching tally by the voter's balance.
func (r *ProposalRepository) CastVote(ctx context.Context, proposalID, voterID string, support domain.VoteSupport, now time.Time) (res *domain.VoteResult, err error) {
	column := support.TallyColumn()
	if column == "" {
		return nil, apperrors.InvalidInput("support must be one of for, against, abstain")
	}

	ctx, end := database.TraceQuery(ctx, "postgresql", "CastVote", "dao_votes")
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cast vote: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balance int64
	if err := tx.QueryRow(ctx, `SELECT coin_balance FROM users WHERE id = $1 FOR UPDATE`, voterID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("user", voterID)
		}
		return nil, fmt.Errorf("lock voter: %w", err)
	}
	if balance < domain.MinVotingBalance {
		return nil, apperrors.InvalidInput("insufficient balance")
	}

	proposal, err := scanProposal(tx.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM dao_proposals WHERE id = $1 FOR UPDATE`, proposalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("proposal", proposalID)
		}
		return nil, fmt.Errorf("lock proposal: %w", err)
	}
	if !proposal.OpenAt(now) {
		return nil, apperrors.InvalidInput("proposal is not open for voting")
	}

	vote := &domain.Vote{
		ID:          uuid.NewString(),
		ProposalID:  proposalID,
		VoterID:     voterID,
		Support:     support,
		VotingPower: balance,
		CreatedAt:   now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO dao_votes (id, proposal_id, voter_id, support, voting_power, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		vote.ID, vote.ProposalID, vote.VoterID, vote.Support, vote.VotingPower, vote.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, voteUniqueConstraint) {
			return nil, apperrors.Conflict("already voted")
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}

	// column comes from TallyColumn's fixed set, never from input.
	err = tx.QueryRow(ctx,
		`UPDATE dao_proposals SET `+column+` = `+column+` + $1 WHERE id = $2
		RETURNING votes_for, votes_against, votes_abstain`,
		balance, proposalID,
	).Scan(&proposal.VotesFor, &proposal.VotesAgainst, &proposal.VotesAbstain)
	if err != nil {
		return nil, fmt.Errorf("update tally: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cast vote: %w", err)
	}
	return &domain.VoteResult{Success: true, Vote: vote, Proposal: proposal, VotingPower: balance}, nil
}
