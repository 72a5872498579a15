package command

import (
	"fmt"
	"strings"

	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/store"
)

const allDayLabel = "全天"

var periodLabels = map[nltime.Period]string{
	nltime.PeriodToday:             "今天",
	nltime.PeriodTomorrow:          "明天",
	nltime.PeriodThisWeek:          "本週",
	nltime.PeriodNextWeek:          "下週",
	nltime.PeriodThisMonth:         "本月",
	nltime.PeriodNextMonth:         "下個月",
	nltime.PeriodNextYear:          "明年",
	nltime.PeriodTwoWeeksLaterWeek: "兩週後",
}

// PeriodLabel returns the chat label of a period, e.g. "下週" or "最近 7 天".
func PeriodLabel(period nltime.Period) string {
	if label, ok := periodLabels[period]; ok {
		return label
	}
	var days int
	if _, err := fmt.Sscanf(string(period), "recent_%d", &days); err == nil {
		return fmt.Sprintf("最近 %d 天", days)
	}
	return string(period)
}

// WhenText renders the date and time of an entry, using 全天 for all-day entries.
func WhenText(s *store.Schedule) string {
	if s.AllDay() {
		return s.Date + " " + allDayLabel
	}
	return s.Date + " " + s.Time
}

// FormatSchedule renders one entry as chat lines.
func FormatSchedule(s *store.Schedule, withID bool) string {
	var sb strings.Builder
	sb.WriteString("📅 " + WhenText(s) + "\n")
	sb.WriteString("📝 " + s.Content)
	if withID {
		sb.WriteString("\n🆔 " + s.ID)
	}
	return sb.String()
}

// FormatSchedules renders entries separated by blank lines.
func FormatSchedules(list []*store.Schedule, withID bool) string {
	blocks := make([]string, 0, len(list))
	for _, s := range list {
		blocks = append(blocks, FormatSchedule(s, withID))
	}
	return strings.Join(blocks, "\n\n")
}

// FormatDigest renders the digest pushed to one owner.
func FormatDigest(title string, list []*store.Schedule) string {
	return title + "\n\n" + FormatSchedules(list, false)
}

func spanText(r nltime.Range) string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + " ~ " + r.End.String()
}

func formatRange(r nltime.Range, list []*store.Schedule) string {
	if len(list) == 0 {
		return fmt.Sprintf("🔍 %s查無行程（%s）", PeriodLabel(r.Period), spanText(r))
	}
	return fmt.Sprintf("📋 %s的行程（%s）\n\n%s", PeriodLabel(r.Period), spanText(r), FormatSchedules(list, true))
}
