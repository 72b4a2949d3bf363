package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mrz1836/postmark"

	"studytracker/internal/config"
)

var ErrDeliveryFailed = errors.New("failed to send email")

const postmarkTimeout = 15 * time.Second

// PostmarkSender delivers mail through the Postmark transactional API.
type PostmarkSender struct {
	client *postmark.Client
	from   string
	tag    string
}

func NewPostmarkSender(cfg config.EmailConfig) (*PostmarkSender, error) {
	if !cfg.PostmarkEnabled() {
		return nil, fmt.Errorf("%w: POSTMARK_SERVER_TOKEN and EMAIL_FROM are required", ErrNotConfigured)
	}
	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	client.HTTPClient = &http.Client{Timeout: postmarkTimeout}
	return &PostmarkSender{
		client: client,
		from:   cfg.From,
		tag:    "auth",
	}, nil
}

func (p *PostmarkSender) Send(ctx context.Context, to, subject, text, html string) error {
	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:     p.from,
		To:       to,
		Subject:  subject,
		Tag:      p.tag,
		TextBody: text,
		HTMLBody: html,
	})
	if err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrDeliveryFailed, fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// Transport is anything that can deliver a rendered email.
type Transport interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// New picks Postmark when its token is configured and SMTP otherwise.
func New(cfg config.EmailConfig) (Transport, error) {
	if cfg.PostmarkEnabled() {
		return NewPostmarkSender(cfg)
	}
	if cfg.Enabled() {
		return NewSender(cfg), nil
	}
	return nil, ErrNotConfigured
}
