package mailer

import "context"

// Message is a rendered email with text and HTML alternatives.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

// Sender delivers a message through one transport.
type Sender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
