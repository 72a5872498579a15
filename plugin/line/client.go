package line

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/pkg/errors"
)

const (
	// MaxTextLength is the LINE limit for one text message, in UTF-16 code units.
	MaxTextLength = 5000
	// MaxMessagesPerRequest is the LINE limit of messages per reply or push.
	MaxMessagesPerRequest = 5
)

// StatusError is returned when the Messaging API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("line api status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client is a Messenger backed by the LINE Messaging API.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

// ClientOption configures the underlying API client.
type ClientOption = messaging_api.MessagingApiAPIOption

// WithEndpoint points the client at another API base URL.
func WithEndpoint(endpoint string) ClientOption {
	return messaging_api.WithEndpoint(endpoint)
}

// NewClient creates a client authenticated with the channel access token.
func NewClient(channelToken string, opts ...ClientOption) (*Client, error) {
	if channelToken == "" {
		return nil, errors.New("line channel access token is required")
	}
	api, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create line messaging client")
	}
	return &Client{api: api}, nil
}

func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	res, _, err := c.api.WithContext(ctx).ReplyMessageWithHttpInfo(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   textMessages(text),
	})
	return wrapStatus(res, err, "reply")
}

func (c *Client) Push(ctx context.Context, to, text string) error {
	res, _, err := c.api.WithContext(ctx).PushMessageWithHttpInfo(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: textMessages(text),
	}, retryKeyFrom(ctx))
	return wrapStatus(res, err, "push")
}

func wrapStatus(res *http.Response, err error, op string) error {
	if err == nil {
		return nil
	}
	if res != nil {
		return errors.Wrapf(&StatusError{StatusCode: res.StatusCode, Err: err}, "failed to %s message", op)
	}
	return errors.Wrapf(err, "failed to %s message", op)
}

type retryKeyCtxKey struct{}

// WithRetryKey attaches an X-Line-Retry-Key so that repeated pushes of the
// same message are delivered once.
func WithRetryKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, retryKeyCtxKey{}, key)
}

func retryKeyFrom(ctx context.Context) string {
	if key, ok := ctx.Value(retryKeyCtxKey{}).(string); ok {
		return key
	}
	return uuid.NewString()
}

func textMessages(text string) []messaging_api.MessageInterface {
	chunks := SplitText(text, MaxTextLength, MaxMessagesPerRequest)
	messages := make([]messaging_api.MessageInterface, 0, len(chunks))
	for _, chunk := range chunks {
		messages = append(messages, messaging_api.TextMessage{Text: chunk})
	}
	return messages
}

// SplitText cuts text into at most maxParts chunks of at most maxLen
// UTF-16 code units, preferring line boundaries. Text beyond the last chunk
// is dropped and the last chunk ends with "…".
func SplitText(text string, maxLen, maxParts int) []string {
	if TextLength(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	var current []rune
	currentLen := 0
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		lineLen := runesLength(runes)
		if len(current) > 0 && currentLen+1+lineLen <= maxLen {
			current = append(append(current, '\n'), runes...)
			currentLen += 1 + lineLen
			continue
		}
		if len(current) > 0 {
			parts = append(parts, string(current))
			current = nil
		}
		// A single line longer than maxLen is cut by characters.
		for lineLen > maxLen {
			cut := fitRunes(runes, maxLen)
			parts = append(parts, string(runes[:cut]))
			runes = runes[cut:]
			lineLen = runesLength(runes)
		}
		current, currentLen = runes, lineLen
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}

	if len(parts) > maxParts {
		parts = parts[:maxParts]
		last := []rune(parts[maxParts-1])
		parts[maxParts-1] = string(last[:fitRunes(last, maxLen-1)]) + "…"
	}
	return parts
}

// TextLength returns the length of text as LINE counts it, in UTF-16 code units.
// Characters outside the Basic Multilingual Plane, such as most emoji, count twice.
func TextLength(text string) int {
	return runesLength([]rune(text))
}

func runesLength(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += runeLength(r)
	}
	return n
}

func runeLength(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// fitRunes returns how many leading runes fit in limit code units.
// It returns at least 1 for a non-empty slice so that cutting always progresses.
func fitRunes(runes []rune, limit int) int {
	n := 0
	for i, r := range runes {
		n += runeLength(r)
		if n > limit {
			return max(i, 1)
		}
	}
	return len(runes)
}
