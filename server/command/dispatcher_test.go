package command

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/plugin/reminder"
	"github.com/hrygo/remindbot/server/service/schedule"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db/memory"
)

type fakeCountdown struct {
	started []string
	err     error
}

func (f *fakeCountdown) Start(_ context.Context, target string, minutes int) error {
	if minutes < reminder.MinCountdownMinutes || minutes > reminder.MaxCountdownMinutes {
		return reminder.ErrInvalidDuration
	}
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, target)
	return nil
}

// newTestDispatcher uses a clock fixed at 2024-06-10 09:00 in Taipei (a Monday).
func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeCountdown) {
	t.Helper()
	taipei := timezone.MustParseTimezone(timezone.TimezoneAsiaTaipei)
	svc := schedule.NewService(schedule.Config{
		Store:    store.New(memory.NewDB(), &profile.Profile{Driver: profile.DriverMemory}),
		Clock:    timezone.NewFixedClock(time.Date(2024, time.June, 10, 9, 0, 0, 0, taipei)),
		Location: taipei,
	})
	countdown := &fakeCountdown{}
	return NewDispatcher(Config{Schedules: svc, Countdown: countdown}), countdown
}

func send(t *testing.T, d *Dispatcher, owner, text string) *Reply {
	t.Helper()
	reply, err := d.Dispatch(context.Background(), &Message{Text: text, UserID: "U-sender", Owner: owner})
	require.NoError(t, err)
	return reply
}

func TestDispatchHelp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	for _, text := range []string{"幫助", "說明", "help", "HELP", "?", " ？ "} {
		reply := send(t, d, "U1", text)
		assert.Equal(t, KindHelp, reply.Kind, text)
		assert.Equal(t, HelpText, reply.Text)
	}
}

func TestDispatchCountdown(t *testing.T) {
	d, countdown := newTestDispatcher(t)

	tests := []struct {
		text string
		want string
	}{
		{"倒數 5 分鐘", "倒數 5 分鐘開始！我會在時間到時提醒你。"},
		{"倒數60分鐘", "倒數 60 分鐘開始！我會在時間到時提醒你。"},
		{"倒數 0 分鐘", CountdownRange},
		{"倒數 61 分鐘", CountdownRange},
		{"倒數 五 分鐘", CountdownUsage},
		{"倒數 5 分鐘 後叫我", CountdownUsage},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			reply := send(t, d, "C1", tt.text)
			assert.Equal(t, KindCountdown, reply.Kind)
			assert.Equal(t, tt.want, reply.Text)
		})
	}
	assert.Equal(t, []string{"C1", "C1"}, countdown.started)
}

func TestDispatchCountdownDisabled(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.countdown = nil
	assert.Equal(t, CountdownDisabled, send(t, d, "U1", "倒數 5 分鐘").Text)
}

func TestDispatchCountdownFailure(t *testing.T) {
	d, countdown := newTestDispatcher(t)
	countdown.err = reminder.ErrStopped

	reply, err := d.Dispatch(context.Background(), &Message{Text: "倒數 5 分鐘", Owner: "U1"})
	assert.ErrorIs(t, err, reminder.ErrStopped)
	assert.Equal(t, FailureText, reply.Text)
}

func TestDispatchAdd(t *testing.T) {
	d, _ := newTestDispatcher(t)

	tests := []struct {
		text string
		want string
	}{
		{"7/14 10:00 開會", "✅ 已加入行程：2024-07-14 10:00 開會"},
		{"明天下午2點聚餐", "✅ 已加入行程：2024-06-11 14:00 聚餐"},
		{"新增 6月30號 盤點", "✅ 已加入行程：2024-06-30 全天 盤點"},
		{"7/1 下午3點 看電影", "✅ 已加入行程：2024-07-01 15:00 看電影"},
		{"加入 今天 倒垃圾", "✅ 已加入行程：2024-06-10 全天 倒垃圾"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			reply := send(t, d, "U1", tt.text)
			assert.Equal(t, KindAdd, reply.Kind)
			assert.True(t, strings.HasPrefix(reply.Text, tt.want+"\n🆔 "), reply.Text)
		})
	}

	assert.Equal(t, AddUsageText, send(t, d, "U1", "新增 買牛奶").Text)

	unknown := send(t, d, "U1", "你好")
	assert.Equal(t, KindUnknown, unknown.Kind)
	assert.Equal(t, UnknownText, unknown.Text)
}

func TestDispatchQuery(t *testing.T) {
	d, _ := newTestDispatcher(t)
	send(t, d, "U1", "今天 晨跑")
	send(t, d, "U1", "6/18 14:00 下週會議")
	send(t, d, "C1", "今天 群組聚餐")

	today := send(t, d, "U1", "今天有哪些行程")
	assert.Equal(t, KindQuery, today.Kind)
	assert.True(t, strings.HasPrefix(today.Text, "📋 今天的行程（2024-06-10）\n\n📅 2024-06-10 全天\n📝 晨跑\n🆔 "), today.Text)
	assert.NotContains(t, today.Text, "群組聚餐")

	for _, text := range []string{"下週行程", "下週的行程", "下週有哪些行程？"} {
		reply := send(t, d, "U1", text)
		assert.Contains(t, reply.Text, "📋 下週的行程（2024-06-17 ~ 2024-06-23）", text)
		assert.Contains(t, reply.Text, "📅 2024-06-18 14:00\n📝 下週會議")
	}

	empty := send(t, d, "U1", "明年行程")
	assert.Equal(t, "🔍 明年查無行程（2025-01-01 ~ 2025-12-31）", empty.Text)

	recent := send(t, d, "U1", "最近7天行程")
	assert.Contains(t, recent.Text, "📋 最近 7 天的行程（2024-06-10 ~ 2024-06-16）")
	assert.Contains(t, recent.Text, "晨跑")

	assert.Equal(t, RecentRangeText, send(t, d, "U1", "近0天行程").Text)
	assert.Equal(t, RecentRangeText, send(t, d, "U1", "最近400天的行程").Text)

	group := send(t, d, "C1", "這週行程")
	assert.Contains(t, group.Text, "群組聚餐")
}

func TestDispatchDelete(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	added, err := d.schedules.CreateFromText(ctx, "U1", "明天 看牙醫")
	require.NoError(t, err)
	_, err = d.schedules.CreateFromText(ctx, "U1", "6/20 開會")
	require.NoError(t, err)
	second, err := d.schedules.CreateFromText(ctx, "U1", "6/21 開會 第二場")
	require.NoError(t, err)

	assert.Equal(t, DeleteUsageText, send(t, d, "U1", "刪除").Text)
	assert.Equal(t, "🔍 找不到符合「健身」的行程", send(t, d, "U1", "刪除 健身").Text)

	// Another chat cannot delete by ID.
	assert.Equal(t, "🔍 找不到符合「"+added.ID+"」的行程", send(t, d, "U2", "刪除 "+added.ID).Text)

	byID := send(t, d, "U1", "刪除 "+added.ID)
	assert.Equal(t, "🗑️ 已刪除行程：2024-06-11 全天 看牙醫", byID.Text)

	ambiguous := send(t, d, "U1", "刪除 開會")
	assert.True(t, strings.HasPrefix(ambiguous.Text, "找到多筆符合「開會」的行程，請用 ID 刪除："), ambiguous.Text)
	assert.Contains(t, ambiguous.Text, "🆔 "+second.ID)

	byKeyword := send(t, d, "U1", "刪除 第二場")
	assert.Equal(t, "🗑️ 已刪除行程：2024-06-21 全天 開會 第二場", byKeyword.Text)

	last := send(t, d, "U1", "刪除開會")
	assert.Equal(t, "🗑️ 已刪除行程：2024-06-20 全天 開會", last.Text)
}

type failingSchedules struct {
	schedule.Service
}

func (failingSchedules) CreateFromText(context.Context, string, string) (*store.Schedule, error) {
	return nil, errors.New("database is locked")
}

func TestDispatchUnexpectedError(t *testing.T) {
	d := NewDispatcher(Config{Schedules: failingSchedules{}})
	text, err := d.Handle(context.Background(), &Message{Text: "明天 開會", UserID: "U1"})
	assert.Error(t, err)
	assert.Equal(t, FailureText, text)
}

type fakeStats struct{}

func (fakeStats) Summary(_ context.Context, owner string) (string, error) {
	return "📊 " + owner, nil
}

func TestDispatchStats(t *testing.T) {
	d, _ := newTestDispatcher(t)

	// Without a stats collector the text falls through to the parser.
	assert.Equal(t, KindUnknown, send(t, d, "U1", "統計").Kind)

	d.stats = fakeStats{}
	for _, text := range []string{"統計", "行程統計"} {
		reply := send(t, d, "C1", text)
		assert.Equal(t, KindStats, reply.Kind)
		assert.Equal(t, "📊 C1", reply.Text)
	}
}

func TestPeriodLabel(t *testing.T) {
	assert.Equal(t, "兩週後", PeriodLabel("two_weeks_later_week"))
	assert.Equal(t, "最近 30 天", PeriodLabel("recent_30"))
}
