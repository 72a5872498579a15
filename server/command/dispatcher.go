// Package command turns chat messages into schedule operations and reply text.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/plugin/reminder"
	"github.com/hrygo/remindbot/server/service/schedule"
	"github.com/hrygo/remindbot/store"
)

// Command kinds reported with every reply.
const (
	KindHelp      = "help"
	KindCountdown = "countdown"
	KindDelete    = "delete"
	KindQuery     = "query"
	KindStats     = "stats"
	KindAdd       = "add"
	KindUnknown   = "unknown"
)

const (
	HelpText = `📖 使用說明
・新增行程：7/14 10:00 開會、明天下午2點聚餐、6月30號 盤點
・查詢行程：今天有哪些行程、下週行程、下個月的行程、最近7天行程
・刪除行程：刪除 <行程ID> 或 刪除 <關鍵字>
・倒數計時：倒數 5 分鐘
・行程統計：統計`

	UnknownText       = "請輸入有效指令，或輸入「幫助」查看使用說明"
	AddUsageText      = "請輸入行程內容，例如：7月1日 下午3點 開會"
	CountdownUsage    = "請輸入正確格式：倒數 5 分鐘"
	CountdownRange    = "倒數時間請設定在 1-60 分鐘之間"
	CountdownDisabled = "倒數功能目前未啟用"
	RecentRangeText   = "天數請設定在 1-366 天之間"
	DeleteUsageText   = "請輸入要刪除的行程 ID 或關鍵字，例如：刪除 開會"
	FailureText       = "⚠️ 系統忙碌中，請稍後再試"
)

var (
	helpCommands  = map[string]bool{"幫助": true, "說明": true, "help": true, "?": true, "？": true}
	statsCommands = map[string]bool{"統計": true, "行程統計": true}

	countdownPattern   = regexp.MustCompile(`^倒數\s*(\d+)\s*分鐘$`)
	deletePattern      = regexp.MustCompile(`^刪除\s*(.*)$`)
	namedRangePattern  = regexp.MustCompile(`^(今天|明天|本週|這週|下週|本月|這個月|下個月|明年|兩週後)(?:有哪些|的)?行程[?？]?$`)
	recentRangePattern = regexp.MustCompile(`^(?:最近|近)\s*(\d+)\s*天(?:的)?行程[?？]?$`)
	addPrefixPattern   = regexp.MustCompile(`^(?:新增|加入)\s*`)

	namedPeriods = map[string]nltime.Period{
		"今天":  nltime.PeriodToday,
		"明天":  nltime.PeriodTomorrow,
		"本週":  nltime.PeriodThisWeek,
		"這週":  nltime.PeriodThisWeek,
		"下週":  nltime.PeriodNextWeek,
		"本月":  nltime.PeriodThisMonth,
		"這個月": nltime.PeriodThisMonth,
		"下個月": nltime.PeriodNextMonth,
		"明年":  nltime.PeriodNextYear,
		"兩週後": nltime.PeriodTwoWeeksLaterWeek,
	}
)

// Message is an inbound chat message.
type Message struct {
	Text string
	// UserID is the sender.
	UserID string
	// Owner is the chat the message belongs to: a group or room ID, or the user ID for 1:1 chats.
	Owner string
}

// Reply is the answer to a message.
type Reply struct {
	Text string
	Kind string
}

// Countdown starts chat countdown timers.
type Countdown interface {
	Start(ctx context.Context, target string, minutes int) error
}

// Stats summarises an owner's schedules.
type Stats interface {
	Summary(ctx context.Context, owner string) (string, error)
}

// Config holds the collaborators of a Dispatcher.
type Config struct {
	Schedules schedule.Service
	// Countdown may be nil, which disables the countdown command.
	Countdown Countdown
	// Stats may be nil, which disables the stats command.
	Stats  Stats
	Logger *slog.Logger
}

// Dispatcher routes chat text to commands.
type Dispatcher struct {
	schedules schedule.Service
	countdown Countdown
	stats     Stats
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(config Config) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Dispatcher{
		schedules: config.Schedules,
		countdown: config.Countdown,
		stats:     config.Stats,
		logger:    config.Logger,
	}
}

// Handle returns the reply text for msg.
func (d *Dispatcher) Handle(ctx context.Context, msg *Message) (string, error) {
	reply, err := d.Dispatch(ctx, msg)
	return reply.Text, err
}

// Dispatch returns the reply for msg along with the command kind.
// Recoverable failures become reply text. Unexpected errors are returned
// together with a generic failure reply.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *Message) (*Reply, error) {
	text := strings.TrimSpace(msg.Text)
	owner := msg.Owner
	if owner == "" {
		owner = msg.UserID
	}

	switch {
	case helpCommands[strings.ToLower(text)]:
		return &Reply{Text: HelpText, Kind: KindHelp}, nil
	case statsCommands[text] && d.stats != nil:
		return d.handleStats(ctx, owner)
	case strings.HasPrefix(text, "倒數") && strings.Contains(text, "分鐘"):
		return d.handleCountdown(ctx, owner, text)
	case strings.HasPrefix(text, "刪除"):
		return d.handleDelete(ctx, owner, text)
	}

	if m := namedRangePattern.FindStringSubmatch(text); m != nil {
		return d.handleQuery(ctx, owner, namedPeriods[m[1]])
	}
	if m := recentRangePattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > nltime.MaxRecentDays {
			return &Reply{Text: RecentRangeText, Kind: KindQuery}, nil
		}
		return d.handleQuery(ctx, owner, nltime.RecentPeriod(n))
	}

	return d.handleAdd(ctx, owner, text)
}

func (d *Dispatcher) handleCountdown(ctx context.Context, owner, text string) (*Reply, error) {
	m := countdownPattern.FindStringSubmatch(text)
	if m == nil {
		return &Reply{Text: CountdownUsage, Kind: KindCountdown}, nil
	}
	if d.countdown == nil {
		return &Reply{Text: CountdownDisabled, Kind: KindCountdown}, nil
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil {
		return &Reply{Text: CountdownRange, Kind: KindCountdown}, nil
	}
	if err := d.countdown.Start(ctx, owner, minutes); err != nil {
		if errors.Is(err, reminder.ErrInvalidDuration) {
			return &Reply{Text: CountdownRange, Kind: KindCountdown}, nil
		}
		return d.failure(KindCountdown, err)
	}
	return &Reply{Text: fmt.Sprintf("倒數 %d 分鐘開始！我會在時間到時提醒你。", minutes), Kind: KindCountdown}, nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, owner, text string) (*Reply, error) {
	arg := strings.TrimSpace(deletePattern.FindStringSubmatch(text)[1])
	if arg == "" {
		return &Reply{Text: DeleteUsageText, Kind: KindDelete}, nil
	}

	deleted, err := d.schedules.DeleteByID(ctx, owner, arg)
	if err == nil {
		return deletedReply(deleted), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return d.failure(KindDelete, err)
	}

	deleted, candidates, err := d.schedules.DeleteByKeyword(ctx, owner, arg)
	switch {
	case err == nil:
		return deletedReply(deleted), nil
	case errors.Is(err, store.ErrNotFound):
		return &Reply{Text: fmt.Sprintf("🔍 找不到符合「%s」的行程", arg), Kind: KindDelete}, nil
	case errors.Is(err, schedule.ErrAmbiguous):
		return &Reply{
			Text: fmt.Sprintf("找到多筆符合「%s」的行程，請用 ID 刪除：\n\n%s", arg, FormatSchedules(candidates, true)),
			Kind: KindDelete,
		}, nil
	default:
		return d.failure(KindDelete, err)
	}
}

func deletedReply(s *store.Schedule) *Reply {
	return &Reply{Text: fmt.Sprintf("🗑️ 已刪除行程：%s %s", WhenText(s), s.Content), Kind: KindDelete}
}

func (d *Dispatcher) handleQuery(ctx context.Context, owner string, period nltime.Period) (*Reply, error) {
	r, list, err := d.schedules.FindInPeriod(ctx, owner, period)
	if err != nil {
		return d.failure(KindQuery, err)
	}
	return &Reply{Text: formatRange(r, list), Kind: KindQuery}, nil
}

func (d *Dispatcher) handleStats(ctx context.Context, owner string) (*Reply, error) {
	summary, err := d.stats.Summary(ctx, owner)
	if err != nil {
		return d.failure(KindStats, err)
	}
	return &Reply{Text: summary, Kind: KindStats}, nil
}

func (d *Dispatcher) handleAdd(ctx context.Context, owner, text string) (*Reply, error) {
	body := addPrefixPattern.ReplaceAllString(text, "")
	prefixed := body != text

	created, err := d.schedules.CreateFromText(ctx, owner, body)
	if errors.Is(err, nltime.ErrNoMatch) {
		if prefixed {
			return &Reply{Text: AddUsageText, Kind: KindAdd}, nil
		}
		return &Reply{Text: UnknownText, Kind: KindUnknown}, nil
	}
	if err != nil {
		return d.failure(KindAdd, err)
	}
	return &Reply{
		Text: fmt.Sprintf("✅ 已加入行程：%s %s\n🆔 %s", WhenText(created), created.Content, created.ID),
		Kind: KindAdd,
	}, nil
}

func (d *Dispatcher) failure(kind string, err error) (*Reply, error) {
	d.logger.Error("command failed", slog.String("command", kind), slog.String("error", err.Error()))
	return &Reply{Text: FailureText, Kind: kind}, errors.Wrapf(err, "%s command failed", kind)
}
