// Package line delivers bot replies and pushes over the LINE Messaging API.
package line

import (
	"context"
	"log/slog"
	"sync"
)

// Messenger sends text to a chat.
type Messenger interface {
	// Reply answers an inbound event. Reply tokens are single use.
	Reply(ctx context.Context, replyToken, text string) error
	// Push sends text to a user, group or room ID.
	Push(ctx context.Context, to, text string) error
}

// SentMessage is a message recorded by LogMessenger.
type SentMessage struct {
	Kind   string // "reply" or "push"
	Target string
	Text   string
}

// LogMessenger logs messages instead of delivering them and keeps a copy.
// It stands in for the LINE client when no channel token is configured.
type LogMessenger struct {
	mu     sync.Mutex
	sent   []SentMessage
	logger *slog.Logger
}

// NewLogMessenger creates a LogMessenger writing to logger, or slog.Default() when nil.
func NewLogMessenger(logger *slog.Logger) *LogMessenger {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMessenger{logger: logger}
}

func (m *LogMessenger) Reply(_ context.Context, replyToken, text string) error {
	m.record(SentMessage{Kind: "reply", Target: replyToken, Text: text})
	return nil
}

func (m *LogMessenger) Push(_ context.Context, to, text string) error {
	m.record(SentMessage{Kind: "push", Target: to, Text: text})
	return nil
}

func (m *LogMessenger) record(msg SentMessage) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.logger.Info("message sent", slog.String("kind", msg.Kind), slog.String("target", msg.Target), slog.String("text", msg.Text))
}

// Messages returns a copy of every recorded message in order.
func (m *LogMessenger) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}

// Pushes returns the recorded pushes.
func (m *LogMessenger) Pushes() []SentMessage {
	var out []SentMessage
	for _, msg := range m.Messages() {
		if msg.Kind == "push" {
			out = append(out, msg)
		}
	}
	return out
}
