package twilio

import (
	"context"
	"fmt"
	"strings"
	"time"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// requestTimeout bounds every Twilio API call; the reconciliation pass must
// not stall on a hung gateway.
const requestTimeout = 30 * time.Second

// Client delivers reminders over WhatsApp via Twilio. It is the alternate
// notification gateway, selected with GATEWAY=whatsapp; inbound messages still
// arrive over the LINE webhook, so this gateway only works when recipient ids
// are phone numbers.
type Client struct {
	client       *twilio.RestClient
	fromWhatsApp string
}

// New creates a Twilio client bound to the configured WhatsApp sender number.
func New(accountSID, authToken, fromWhatsApp string) *Client {
	restClient := twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
	restClient.Client.SetTimeout(requestTimeout)
	return &Client{
		client:       restClient,
		fromWhatsApp: fromWhatsApp,
	}
}

// Push sends one WhatsApp message to one recipient.
func (c *Client) Push(_ context.Context, to, body string) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient %q is not a phone number", to)
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send message: %w", err)
	}
	return nil
}

// normalizeWhatsAppAddress renders a phone number as a whatsapp: address.
// Anything that is not a phone number comes back empty: a LINE user id like
// "U123" cannot be routed through this gateway.
func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	trimmed = strings.TrimPrefix(trimmed, "whatsapp:")
	trimmed = strings.TrimPrefix(trimmed, "+")
	if trimmed == "" || !allDigits(trimmed) {
		return ""
	}
	return "whatsapp:+" + trimmed
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
