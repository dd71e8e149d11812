package mail

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sender delivers notification emails.
type Sender interface {
	Send(ctx context.Context, to, subject, textBody string) error
}

// SendGridSender implements Sender on the SendGrid v3 mail API.
type SendGridSender struct {
	key  string
	from *sgmail.Email
}

// NewSendGridSender builds a sender with a fixed from address.
func NewSendGridSender(apiKey, fromName, fromEmail string) (*SendGridSender, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key required")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, fmt.Errorf("sendgrid from address required")
	}
	return &SendGridSender{
		key:  apiKey,
		from: sgmail.NewEmail(fromName, fromEmail),
	}, nil
}

// Send delivers a plain-text message to a single recipient.
func (s *SendGridSender) Send(ctx context.Context, to, subject, textBody string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("recipient required")
	}
	msg := sgmail.NewSingleEmail(s.from, subject, sgmail.NewEmail("", to), textBody, "")
	req := sendgrid.GetRequest(s.key, "/v3/mail/send", "https://api.sendgrid.com")
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(msg)
	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid api error: status %d", res.StatusCode)
	}
	return nil
}
