// Package messaging delivers composed text as SMS.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var (
	// ErrInvalidMessage means the recipient or the body is empty.
	ErrInvalidMessage = errors.New("recipient and message body are required")
	// ErrNotConfigured means no SMS provider credentials are set.
	ErrNotConfigured = errors.New("sms provider is not configured")
)

// messageCreator is the slice of the Twilio REST API the sender uses.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends SMS through the Twilio Messages API.
type TwilioSender struct {
	from string
	api  messageCreator
	log  *slog.Logger
}

func NewTwilioSender(cfg config.MessagingConfig, logger *slog.Logger) *TwilioSender {
	s := &TwilioSender{
		from: strings.TrimSpace(cfg.From),
		log:  logger.With(slog.String("component", "messaging")),
	}
	if cfg.Enabled && cfg.AccountSID != "" && cfg.AuthToken != "" {
		client := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
		s.api = client.Api
	}
	return s
}

func (s *TwilioSender) Configured() bool {
	return s != nil && s.api != nil && s.from != ""
}

// Send delivers body to the recipient and returns the message sid.
func (s *TwilioSender) Send(ctx context.Context, to, body string) (string, error) {
	to = strings.TrimSpace(to)
	body = strings.TrimSpace(body)
	if to == "" || body == "" {
		return "", ErrInvalidMessage
	}
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			s.log.Warn("sms rejected",
				slog.Int("status", restErr.Status),
				slog.Int("code", restErr.Code),
				slog.String("message", restErr.Message))
		}
		return "", fmt.Errorf("send sms: %w", err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	s.log.Info("sms sent", slog.String("sid", sid), slog.Int("length", len([]rune(body))))
	return sid, nil
}

// SMSLink builds an sms: URI that opens the device messaging app with the
// recipient and body filled in.
func SMSLink(to, body string) (string, error) {
	to = strings.TrimSpace(to)
	body = strings.TrimSpace(body)
	if to == "" || body == "" {
		return "", ErrInvalidMessage
	}
	return "sms:" + escapeComponent(to) + "?body=" + escapeComponent(body), nil
}

// escapeComponent percent-encodes s the way URI components are encoded in
// browsers: spaces become %20 rather than +.
func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
