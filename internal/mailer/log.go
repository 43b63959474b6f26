package mailer

import (
	"context"
	"log/slog"
)

// LogSender logs messages instead of delivering them. It is used when no
// SMTP host is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "mail not sent, smtp disabled",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("text_bytes", len(msg.TextBody)),
	)
	return nil
}
