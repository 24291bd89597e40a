package projauth

import (
	"context"
	"log/slog"
	"net/url"
)

// SendEmail interface allows applications to provide their own email sending implementation
type SendEmail interface {
	SendPasswordResetEmail(ctx context.Context, to string, resetLink string) error
}

// ConsoleEmailSender is a development implementation that logs emails instead of sending them.
// The token in the reset link is redacted, so the logged link cannot be used.
type ConsoleEmailSender struct {
	Logger *slog.Logger
}

func (c *ConsoleEmailSender) SendPasswordResetEmail(ctx context.Context, to string, resetLink string) error {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "EMAIL: Password Reset",
		"to", to,
		"subject", "Reset your password",
		"link", redactResetLink(resetLink))
	return nil
}

func redactResetLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return "[unparseable link]"
	}
	query := u.Query()
	if query.Has("token") {
		query.Set("token", "REDACTED")
		u.RawQuery = query.Encode()
	}
	return u.String()
}
