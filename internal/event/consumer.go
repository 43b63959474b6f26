package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/mailer"
	pkgkafka "github.com/Bulldog-Master/xxvpn-sub001/pkg/kafka"
)

// ConsumerGroupID is the group for every consumer in this service.
const ConsumerGroupID = "xxvpn-api"

// IdempotencyTTL bounds how long processed event ids are remembered.
const IdempotencyTTL = 24 * time.Hour

// BetaSignupHandler sends the beta confirmation email for signup events.
// Delivery is best effort: send failures are logged and the event is
// acknowledged.
type BetaSignupHandler struct {
	sender mailer.Sender
	logger *slog.Logger
}

func NewBetaSignupHandler(sender mailer.Sender, logger *slog.Logger) *BetaSignupHandler {
	return &BetaSignupHandler{sender: sender, logger: logger}
}

func (h *BetaSignupHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != TopicBetaSignupRequested {
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data BetaSignupRequestedData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("decode beta signup payload: %w", err)
	}
	if data.Email == "" {
		return fmt.Errorf("beta signup event %s has no email", event.EventID)
	}

	msg, err := mailer.BetaConfirmation(data.Name, data.Email)
	if err != nil {
		return fmt.Errorf("render beta confirmation: %w", err)
	}
	if err := h.sender.Send(ctx, msg); err != nil {
		h.logger.ErrorContext(ctx, "beta confirmation not delivered",
			slog.String("event_id", event.EventID),
			slog.String("sender", h.sender.Name()),
			slog.String("error", err.Error()),
		)
		return nil
	}

	h.logger.InfoContext(ctx, "beta confirmation sent",
		slog.String("event_id", event.EventID),
		slog.String("sender", h.sender.Name()),
	)
	return nil
}

// NewBetaSignupConsumer builds the consumer for beta signup events with
// duplicate suppression and dead-lettering of undecodable messages.
func NewBetaSignupConsumer(
	brokers []string,
	handler *BetaSignupHandler,
	store pkgkafka.IdempotencyStore,
	dlq pkgkafka.DeadLetterPublisher,
	logger *slog.Logger,
) *pkgkafka.Consumer {
	cfg := pkgkafka.ConsumerConfig{
		Brokers:  brokers,
		GroupID:  ConsumerGroupID,
		Topic:    TopicBetaSignupRequested,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	h := pkgkafka.IdempotentHandler(store, handler.Handle, logger)
	return pkgkafka.NewConsumer(cfg, h, logger).WithDLQ(dlq)
}
