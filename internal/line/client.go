package line

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// ErrInvalidSignature reports a webhook call whose signature does not match
// the channel secret.
var ErrInvalidSignature = webhook.ErrInvalidSignature

// requestTimeout bounds every call to the LINE API. The SDK's push and reply
// operations take no context, so a reconciliation pass can only be kept from
// stalling on a hung gateway by capping the transport itself.
const requestTimeout = 30 * time.Second

// Client wraps the LINE Messaging API operations required by the bot: push
// delivery for reminders, reply-token responses for webhook acknowledgement,
// and signed webhook parsing.
type Client struct {
	api           *messaging_api.MessagingApiAPI
	channelSecret string
}

// New creates a LINE client bound to the configured channel.
func New(channelSecret, channelToken string) (*Client, error) {
	return newClient(channelSecret, channelToken, "", requestTimeout)
}

// newClient additionally takes the API endpoint and timeout so tests can point
// the client at a local server.
func newClient(channelSecret, channelToken, endpoint string, timeout time.Duration) (*Client, error) {
	if channelSecret == "" || channelToken == "" {
		return nil, fmt.Errorf("line channel secret and access token are required")
	}
	opts := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(endpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("line messaging api init: %w", err)
	}
	return &Client{api: api, channelSecret: channelSecret}, nil
}

// Push sends one message to one user. Fire-and-forget: no delivery receipt,
// no internal retry.
func (c *Client) Push(_ context.Context, to, text string) error {
	if c == nil || c.api == nil {
		return fmt.Errorf("line client not initialised")
	}
	_, err := c.api.PushMessage(&messaging_api.PushMessageRequest{
		To: to,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	}, "")
	if err != nil {
		return fmt.Errorf("line push message: %w", err)
	}
	return nil
}

// Reply answers an inbound message through its reply token. Reply tokens are
// single-use and short-lived, so they cannot carry the asynchronous reminder
// delivery later on; that is what Push is for.
func (c *Client) Reply(replyToken, text string) error {
	if c == nil || c.api == nil {
		return fmt.Errorf("line client not initialised")
	}
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("line reply message: %w", err)
	}
	return nil
}

// ParseWebhook validates the X-Line-Signature header and decodes the callback
// body into events.
func (c *Client) ParseWebhook(r *http.Request) (*webhook.CallbackRequest, error) {
	cb, err := webhook.ParseRequest(c.channelSecret, r)
	if err != nil {
		return nil, fmt.Errorf("line webhook parse: %w", err)
	}
	return cb, nil
}
