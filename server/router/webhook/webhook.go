// Package webhook exposes the chat bot over HTTP: the LINE webhook and a
// JSON API used in dev mode.
package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/plugin/line"
	"github.com/hrygo/remindbot/server/command"
	apierrors "github.com/hrygo/remindbot/server/internal/errors"
	"github.com/hrygo/remindbot/server/internal/observability"
	"github.com/hrygo/remindbot/server/middleware"
)

const (
	EventTypeLine = "line"
	EventTypeAPI  = "api"

	RateLimitedText = "⚠️ 訊息太頻繁，請稍後再試"
)

// Dispatcher handles one chat message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *command.Message) (*command.Reply, error)
}

// Service serves the HTTP routes of the bot.
type Service struct {
	Profile    *profile.Profile
	Dispatcher Dispatcher
	Messenger  line.Messenger
	Limiter    *middleware.RateLimiter
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Register adds the routes to the echo server. The JSON message API and the
// metrics endpoint are only available in dev mode.
func (s *Service) Register(e *echo.Echo) {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Metrics == nil {
		s.Metrics = observability.NewMetrics()
	}

	e.POST("/webhook", s.HandleWebhook)
	if s.Profile.IsDev() {
		e.POST("/api/v1/messages", s.HandleMessage)
		e.GET("/api/v1/metrics", s.GetMetrics)
	}
}

// handle runs one message through rate limiting and the dispatcher.
func (s *Service) handle(ctx context.Context, requestID, eventType string, msg *command.Message) (*command.Reply, error) {
	reqCtx := observability.NewRequestContextWithID(s.Logger, requestID, eventType, msg.Owner)
	ctx = observability.WithRequestContext(ctx, reqCtx)

	if !s.Limiter.Allow(msg.Owner) {
		reqCtx.Warn("message rate limited")
		return nil, apierrors.RateLimitExceeded("too many messages, please slow down")
	}

	reply, err := s.Dispatcher.Dispatch(ctx, msg)
	kind := command.KindUnknown
	if reply != nil {
		kind = reply.Kind
	}
	s.Metrics.Record(kind, reqCtx.Duration(), err != nil)

	attrs := []slog.Attr{
		slog.String(observability.LogFieldCommand, kind),
		slog.Int(observability.LogFieldMessageLen, len([]rune(msg.Text))),
		slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
	}
	if err != nil {
		reqCtx.Error("message handling failed", err, attrs...)
		return reply, err
	}
	reqCtx.Info("message handled", attrs...)
	return reply, nil
}

func writeError(c echo.Context, err error) error {
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		apiErr = apierrors.Internal(err)
	}
	return c.JSON(apiErr.HTTPStatus(), apiErr)
}

func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

// HandleWebhook handles LINE webhook callbacks.
// POST /webhook
func (s *Service) HandleWebhook(c echo.Context) error {
	cb, err := webhook.ParseRequest(s.Profile.LineChannelSecret, c.Request())
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			s.Logger.Warn("rejected webhook with invalid signature")
			return writeError(c, apierrors.Unauthorized("invalid signature"))
		}
		return writeError(c, apierrors.InvalidArgument("malformed webhook body"))
	}

	ctx := c.Request().Context()
	for _, event := range cb.Events {
		e, ok := event.(webhook.MessageEvent)
		if !ok {
			continue
		}
		text, ok := e.Message.(webhook.TextMessageContent)
		if !ok {
			continue
		}

		msg := &command.Message{Text: text.Text}
		msg.Owner, msg.UserID = sourceIDs(e.Source)
		if msg.Owner == "" {
			continue
		}

		reply, err := s.handle(ctx, requestID(c), EventTypeLine, msg)
		var apiErr *apierrors.APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Code == apierrors.ErrCodeRateLimitExceeded:
			reply = &command.Reply{Text: RateLimitedText}
		case reply == nil:
			continue
		}
		if err := s.Messenger.Reply(ctx, e.ReplyToken, reply.Text); err != nil {
			s.Logger.Error("failed to reply", slog.String(observability.LogFieldOwner, msg.Owner), slog.String("error", err.Error()))
		}
	}
	return c.String(http.StatusOK, "OK")
}

// sourceIDs returns the chat owner and the sending user of an event source.
// Group and room chats are owned by the group or room.
func sourceIDs(source webhook.SourceInterface) (owner, userID string) {
	switch s := source.(type) {
	case webhook.GroupSource:
		return s.GroupId, s.UserId
	case webhook.RoomSource:
		return s.RoomId, s.UserId
	case webhook.UserSource:
		return s.UserId, s.UserId
	}
	return "", ""
}

// MessageRequest is the body of the JSON message API.
type MessageRequest struct {
	Owner  string `json:"owner"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// MessageResponse is the answer of the JSON message API.
type MessageResponse struct {
	Reply   string `json:"reply"`
	Command string `json:"command"`
}

// HandleMessage dispatches a message without going through LINE.
// POST /api/v1/messages
func (s *Service) HandleMessage(c echo.Context) error {
	var req MessageRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apierrors.InvalidArgument("invalid json body"))
	}
	if req.Owner == "" {
		req.Owner = req.UserID
	}
	if req.Owner == "" || req.Text == "" {
		return writeError(c, apierrors.InvalidArgument("owner and text are required"))
	}

	reply, err := s.handle(c.Request().Context(), requestID(c), EventTypeAPI, &command.Message{
		Text:   req.Text,
		UserID: req.UserID,
		Owner:  req.Owner,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, MessageResponse{Reply: reply.Text, Command: reply.Kind})
}

// MetricsResponse is the message metrics overview.
type MetricsResponse struct {
	*observability.MetricsSnapshot
	SuccessRate float64 `json:"success_rate"`
}

// GetMetrics returns the message handling metrics since start.
// GET /api/v1/metrics
func (s *Service) GetMetrics(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	return c.JSON(http.StatusOK, MetricsResponse{
		MetricsSnapshot: snapshot,
		SuccessRate:     snapshot.SuccessRate(),
	})
}
