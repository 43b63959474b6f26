package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	"github.com/Bulldog-Master/xxvpn-sub001/internal/repository"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/pagination"
)

type CastVoteInput struct {
	ProposalID string
	Support    domain.VoteSupport
}

// DAOService lists proposals and records token-weighted votes.
type DAOService struct {
	repo   repository.ProposalRepository
	events EventPublisher
	logger *slog.Logger
	now    func() time.Time
}

func NewDAOService(repo repository.ProposalRepository, events EventPublisher, logger *slog.Logger) *DAOService {
	return &DAOService{repo: repo, events: events, logger: logger, now: time.Now}
}

func (s *DAOService) ListProposals(ctx context.Context, page pagination.Params) ([]domain.Proposal, int, error) {
	proposals, total, err := s.repo.List(ctx, page.Offset, page.PerPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}
	return proposals, total, nil
}

func (s *DAOService) GetProposal(ctx context.Context, id string) (*domain.Proposal, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

// CastVote records the voter's vote with their full balance as voting
// power. Balance, proposal state and uniqueness are all checked inside the
// repository transaction.
func (s *DAOService) CastVote(ctx context.Context, voterID string, input CastVoteInput) (*domain.VoteResult, error) {
	if input.ProposalID == "" {
		return nil, apperrors.InvalidInput("proposalId is required")
	}
	if input.Support.TallyColumn() == "" {
		return nil, apperrors.InvalidInput("support must be for, against or abstain")
	}

	result, err := s.repo.CastVote(ctx, input.ProposalID, voterID, input.Support, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	if err := s.events.PublishVoteCast(ctx, result.Vote); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish vote_cast event",
			slog.String("proposal_id", input.ProposalID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.InfoContext(ctx, "vote cast",
		slog.String("proposal_id", input.ProposalID),
		slog.String("voter_id", voterID),
		slog.String("support", string(input.Support)),
		slog.Int64("voting_power", result.VotingPower),
	)
	return result, nil
}
