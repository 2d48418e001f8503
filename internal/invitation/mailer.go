package invitation

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// SendgridMailer delivers invitation emails through SendGrid.
type SendgridMailer struct {
	apiKey string
	from   string
	log    *zap.SugaredLogger
}

func NewSendgridMailer(apiKey, from string, log *zap.SugaredLogger) *SendgridMailer {
	return &SendgridMailer{apiKey: apiKey, from: from, log: log}
}

func (m *SendgridMailer) SendInvite(ctx context.Context, to, link string) error {
	if m.apiKey == "" {
		return fmt.Errorf("sendgrid: SENDGRID_API_KEY not set")
	}
	subject := "Complete your registration"
	plain := "You have been invited to complete your registration.\n\n" +
		"Open the link below to finish setting up your account. The link is valid for a limited time.\n\n" + link
	html := fmt.Sprintf(`<p>You have been invited to complete your registration.</p><p><a href=%q>Finish setting up your account</a></p><p>The link is valid for a limited time.</p>`, link)
	msg := sgmail.NewSingleEmail(sgmail.NewEmail("", m.from), subject, sgmail.NewEmail("", to), plain, html)

	client := sendgrid.NewSendClient(m.apiKey)
	resp, err := client.SendWithContext(ctx, msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d", resp.StatusCode)
	}
	m.log.Infow("invitation email dispatched", "to", to)
	return nil
}
