package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/plugin/line"
	"github.com/hrygo/remindbot/server/command"
	"github.com/hrygo/remindbot/server/internal/observability"
	"github.com/hrygo/remindbot/server/middleware"
	"github.com/hrygo/remindbot/server/service/schedule"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db/memory"
)

const testSecret = "channel-secret"

type testServer struct {
	echo      *echo.Echo
	messenger *line.LogMessenger
	metrics   *observability.Metrics
}

func newTestServer(t *testing.T, mode string, perMinute int) *testServer {
	t.Helper()
	taipei := timezone.MustParseTimezone(timezone.TimezoneAsiaTaipei)
	svc := schedule.NewService(schedule.Config{
		Store:    store.New(memory.NewDB(), &profile.Profile{Driver: profile.DriverMemory}),
		Clock:    timezone.NewFixedClock(time.Date(2024, time.June, 10, 9, 0, 0, 0, taipei)),
		Location: taipei,
	})
	ts := &testServer{
		echo:      echo.New(),
		messenger: line.NewLogMessenger(nil),
		metrics:   observability.NewMetrics(),
	}
	(&Service{
		Profile:    &profile.Profile{Mode: mode, LineChannelSecret: testSecret},
		Dispatcher: command.NewDispatcher(command.Config{Schedules: svc}),
		Messenger:  ts.messenger,
		Limiter:    middleware.NewRateLimiter(perMinute),
		Metrics:    ts.metrics,
	}).Register(ts.echo)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func textEvent(replyToken, source, text string) string {
	event := map[string]any{
		"type":            "message",
		"mode":            "active",
		"timestamp":       1718000000000,
		"webhookEventId":  "01HZX" + replyToken,
		"deliveryContext": map[string]any{"isRedelivery": false},
		"replyToken":      replyToken,
		"source":          json.RawMessage(source),
		"message":         map[string]any{"type": "text", "id": "100" + replyToken, "quoteToken": "q", "text": text},
	}
	raw, _ := json.Marshal(event)
	return string(raw)
}

func webhookRequest(events ...string) *http.Request {
	body := `{"destination":"Ubot","events":[` + strings.Join(events, ",") + `]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", sign(body))
	return req
}

func TestHandleWebhook(t *testing.T) {
	ts := newTestServer(t, "prod", 0)

	rec := ts.do(webhookRequest(
		textEvent("rt-1", `{"type":"user","userId":"U1"}`, "明天下午2點聚餐"),
		textEvent("rt-2", `{"type":"group","groupId":"C1","userId":"U2"}`, "今天 群組午餐"),
		textEvent("rt-3", `{"type":"user","userId":"U1"}`, "明天有哪些行程"),
		textEvent("rt-4", `{"type":"group","groupId":"C1","userId":"U3"}`, "今天行程"),
	))
	require.Equal(t, http.StatusOK, rec.Code)

	replies := ts.messenger.Messages()
	require.Len(t, replies, 4)
	assert.Equal(t, "rt-1", replies[0].Target)
	assert.True(t, strings.HasPrefix(replies[0].Text, "✅ 已加入行程：2024-06-11 14:00 聚餐"), replies[0].Text)
	assert.Contains(t, replies[2].Text, "📝 聚餐")
	// Group entries are shared by every member of the group.
	assert.Contains(t, replies[3].Text, "📝 群組午餐")

	snapshot := ts.metrics.Snapshot()
	assert.Equal(t, int64(4), snapshot.RequestTotal)
	assert.Equal(t, int64(2), snapshot.Commands[command.KindAdd].Count)
	assert.Equal(t, int64(2), snapshot.Commands[command.KindQuery].Count)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	ts := newTestServer(t, "prod", 0)

	req := webhookRequest(textEvent("rt-1", `{"type":"user","userId":"U1"}`, "help"))
	req.Header.Set("X-Line-Signature", "bogus")
	rec := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	assert.Empty(t, ts.messenger.Messages())
}

func TestHandleWebhookIgnoresOtherEvents(t *testing.T) {
	ts := newTestServer(t, "prod", 0)

	follow := `{"type":"follow","mode":"active","timestamp":1718000000000,"webhookEventId":"01HZXF","deliveryContext":{"isRedelivery":false},"replyToken":"rt-f","source":{"type":"user","userId":"U1"},"follow":{"isUnblocked":false}}`
	rec := ts.do(webhookRequest(follow))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.messenger.Messages())
}

func TestHandleWebhookRateLimit(t *testing.T) {
	ts := newTestServer(t, "prod", 1)

	rec := ts.do(webhookRequest(
		textEvent("rt-1", `{"type":"user","userId":"U1"}`, "help"),
		textEvent("rt-2", `{"type":"user","userId":"U1"}`, "help"),
		textEvent("rt-3", `{"type":"user","userId":"U2"}`, "help"),
	))
	require.Equal(t, http.StatusOK, rec.Code)

	replies := ts.messenger.Messages()
	require.Len(t, replies, 3)
	assert.Equal(t, command.HelpText, replies[0].Text)
	assert.Equal(t, RateLimitedText, replies[1].Text)
	assert.Equal(t, command.HelpText, replies[2].Text)
}

func postMessage(ts *testServer, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return ts.do(req)
}

func TestHandleMessage(t *testing.T) {
	ts := newTestServer(t, "dev", 0)

	rec := postMessage(ts, `{"owner":"C1","user_id":"U1","text":"6月30號 盤點"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, command.KindAdd, resp.Command)
	assert.True(t, strings.HasPrefix(resp.Reply, "✅ 已加入行程：2024-06-30 全天 盤點"), resp.Reply)

	rec = postMessage(ts, `{"user_id":"U1","text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")

	rec = postMessage(ts, `{"text":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMessageRateLimit(t *testing.T) {
	ts := newTestServer(t, "dev", 1)

	require.Equal(t, http.StatusOK, postMessage(ts, `{"owner":"U1","text":"help"}`).Code)
	rec := postMessage(ts, `{"owner":"U1","text":"help"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestGetMetrics(t *testing.T) {
	ts := newTestServer(t, "dev", 0)
	postMessage(ts, `{"owner":"U1","text":"help"}`)
	postMessage(ts, `{"owner":"U1","text":"你好"}`)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		RequestTotal int64                                              `json:"request_total"`
		SuccessRate  float64                                            `json:"success_rate"`
		Commands     map[string]*observability.CommandMetricsSnapshot `json:"commands"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.RequestTotal)
	assert.Equal(t, 100.0, resp.SuccessRate)
	assert.Equal(t, int64(1), resp.Commands[command.KindUnknown].Count)
}

func TestDevRoutesHiddenInProd(t *testing.T) {
	ts := newTestServer(t, "prod", 0)
	assert.Equal(t, http.StatusNotFound, postMessage(ts, `{"owner":"U1","text":"help"}`).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)).Code)
}

func TestSourceIDs(t *testing.T) {
	tests := []struct {
		name   string
		source webhook.SourceInterface
		owner  string
		user   string
	}{
		{"user", webhook.UserSource{UserId: "U1"}, "U1", "U1"},
		{"group", webhook.GroupSource{GroupId: "C1", UserId: "U1"}, "C1", "U1"},
		{"room", webhook.RoomSource{RoomId: "R1", UserId: "U2"}, "R1", "U2"},
		{"missing", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, user := sourceIDs(tt.source)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.user, user)
		})
	}
}
