package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db/memory"
)

func TestCollector_Collect(t *testing.T) {
	ctx := context.Background()
	taipei := timezone.MustParseTimezone(timezone.TimezoneAsiaTaipei)
	st := store.New(memory.NewDB(), &profile.Profile{Driver: profile.DriverMemory})

	added := time.Date(2024, time.June, 10, 0, 0, 0, 0, taipei)
	for i, s := range []store.Schedule{
		{Owner: "U1", Date: "2024-06-05", Content: "上週"},
		{Owner: "U1", Date: "2024-06-10", Time: "09:00", Content: "今天"},
		{Owner: "U1", Date: "2024-06-14", Content: "本週"},
		{Owner: "U1", Date: "2024-06-18", Time: "14:00", Content: "下週"},
		{Owner: "U1", Date: "2024-07-02", Content: "下個月"},
		{Owner: "U2", Date: "2024-06-10", Content: "別人"},
	} {
		s.CreatedTs = added.Add(time.Duration(i) * time.Hour).Unix()
		_, err := st.CreateSchedule(ctx, &s)
		require.NoError(t, err)
	}
	deleted, err := st.CreateSchedule(ctx, &store.Schedule{
		Owner:     "U1",
		Date:      "2024-06-11",
		Content:   "已刪除",
		CreatedTs: added.Add(8 * time.Hour).Unix(),
	})
	require.NoError(t, err)
	_, err = st.DeleteSchedule(ctx, &store.DeleteSchedule{ID: deleted.ID, Owner: "U1"})
	require.NoError(t, err)

	clock := timezone.NewFixedClock(time.Date(2024, time.June, 10, 9, 0, 0, 0, taipei))
	stats, err := NewCollector(st, clock, taipei).Collect(ctx, "U1")
	require.NoError(t, err)

	assert.Equal(t, "2024-06-10", stats.Today.String())
	assert.Equal(t, int64(5), stats.TotalSchedules)
	assert.Equal(t, int64(4), stats.UpcomingSchedules)
	assert.Equal(t, int64(2), stats.SchedulesThisWeek)
	assert.Equal(t, int64(1), stats.SchedulesNextWeek)
	assert.Equal(t, int64(4), stats.SchedulesMonth)
	assert.Equal(t, int64(3), stats.AllDaySchedules)
	// Deleted entries and other owners do not count as the last addition.
	assert.True(t, added.Add(4*time.Hour).Equal(stats.LastAddedTime))
}

func TestStats_GetSummary(t *testing.T) {
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	stats := &Stats{
		TotalSchedules:    20,
		UpcomingSchedules: 12,
		SchedulesThisWeek: 3,
		SchedulesNextWeek: 2,
		SchedulesMonth:    8,
		AllDaySchedules:   5,
		LastAddedTime:     now.Add(-3 * time.Hour),
		CollectedAt:       now,
	}
	stats.Today.Year, stats.Today.Month, stats.Today.Day = 2024, time.June, 10

	summary := stats.GetSummary()
	for _, want := range []string{
		"📊 行程統計（2024-06-10）",
		"總計: 20 筆",
		"即將到來: 12 筆",
		"本週: 3 筆",
		"下週: 2 筆",
		"本月: 8 筆",
		"全天: 5 筆",
		"🕒 最近新增: 3小時前",
	} {
		assert.Contains(t, summary, want)
	}
}

func TestFormatLastAdded(t *testing.T) {
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Time{}, "無"},
		{now.Add(-10 * time.Minute), "剛剛"},
		{now.Add(-5 * time.Hour), "5小時前"},
		{now.Add(-50 * time.Hour), "2天前"},
		{time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC), "2024-05-01"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatLastAdded(tt.t, now))
	}
}
