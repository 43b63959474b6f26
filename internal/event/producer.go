package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	pkgkafka "github.com/Bulldog-Master/xxvpn-sub001/pkg/kafka"
	"github.com/Bulldog-Master/xxvpn-sub001/pkg/logger"
)

// Kafka topics for xxVPN domain events.
var (
	TopicTwoFactorVerified   = pkgkafka.Topic("auth", "twofa_verified")
	TopicSubscriptionUpdated = pkgkafka.Topic("subscription", "updated")
	TopicVoteCast            = pkgkafka.Topic("dao", "vote_cast")
	TopicBetaSignupRequested = pkgkafka.Topic("beta", "signup_requested")
)

const (
	AggregateTypeUser     = "user"
	AggregateTypeProposal = "proposal"
	AggregateTypeSignup   = "beta_signup"
)

const Source = "xxvpn-api"

// TwoFactorVerifiedData is the payload for auth.twofa_verified. The matched
// window is kept for operators; it is never returned to clients.
type TwoFactorVerifiedData struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Window    int    `json:"window"`
}

type SubscriptionUpdatedData struct {
	UserID string                    `json:"user_id"`
	Tier   domain.Tier               `json:"tier"`
	Status domain.SubscriptionStatus `json:"status"`
	Reason string                    `json:"reason"`
}

type VoteCastData struct {
	VoteID      string             `json:"vote_id"`
	ProposalID  string             `json:"proposal_id"`
	VoterID     string             `json:"voter_id"`
	Support     domain.VoteSupport `json:"support"`
	VotingPower int64              `json:"voting_power"`
}

type BetaSignupRequestedData struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requested_at"`
}

// Publisher is satisfied by *pkgkafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes xxVPN domain events.
type Producer struct {
	kafka  Publisher
	logger *slog.Logger
}

func NewProducer(kafka Publisher, logger *slog.Logger) *Producer {
	return &Producer{kafka: kafka, logger: logger}
}

func (p *Producer) PublishTwoFactorVerified(ctx context.Context, userID, sessionID string, window int) error {
	data := TwoFactorVerifiedData{UserID: userID, SessionID: sessionID, Window: window}
	return p.publish(ctx, TopicTwoFactorVerified, userID, AggregateTypeUser, data)
}

func (p *Producer) PublishSubscriptionUpdated(ctx context.Context, sub *domain.Subscription, reason string) error {
	data := SubscriptionUpdatedData{UserID: sub.UserID, Tier: sub.Tier, Status: sub.Status, Reason: reason}
	return p.publish(ctx, TopicSubscriptionUpdated, sub.UserID, AggregateTypeUser, data)
}

func (p *Producer) PublishVoteCast(ctx context.Context, vote *domain.Vote) error {
	data := VoteCastData{
		VoteID:      vote.ID,
		ProposalID:  vote.ProposalID,
		VoterID:     vote.VoterID,
		Support:     vote.Support,
		VotingPower: vote.VotingPower,
	}
	return p.publish(ctx, TopicVoteCast, vote.ProposalID, AggregateTypeProposal, data)
}

func (p *Producer) PublishBetaSignupRequested(ctx context.Context, signup *domain.BetaSignup) error {
	data := BetaSignupRequestedData{
		Name:        signup.Name,
		Email:       signup.Email,
		RequestedAt: signup.RequestedAt.UTC(),
	}
	return p.publish(ctx, TopicBetaSignupRequested, signup.Email, AggregateTypeSignup, data)
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	evt, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if err := p.kafka.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", topic),
		slog.String("event_id", evt.EventID),
	)
	return nil
}
