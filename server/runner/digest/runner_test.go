package digest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/plugin/line"
	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/server/service/schedule"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db/memory"
)

var taipei = timezone.MustParseTimezone(timezone.TimezoneAsiaTaipei)

// newTestSchedules returns a service fixed at Friday 2024-06-14 10:00 in Taipei,
// seeded with entries around the week of 2024-06-24.
func newTestSchedules(t *testing.T) schedule.Service {
	t.Helper()
	svc := schedule.NewService(schedule.Config{
		Store:    store.New(memory.NewDB(), &profile.Profile{Driver: profile.DriverMemory}),
		Clock:    timezone.NewFixedClock(time.Date(2024, time.June, 14, 10, 0, 0, 0, taipei)),
		Location: taipei,
	})
	ctx := context.Background()
	for _, e := range []struct{ owner, text string }{
		{"U1", "6/30 盤點"},
		{"U1", "6/24 報告"},
		{"C1", "6/26 10:00 團隊聚會"},
		{"U2", "7/1 範圍外"},
		{"U3", "6/23 前一週"},
	} {
		_, err := svc.CreateFromText(ctx, e.owner, e.text)
		require.NoError(t, err)
	}
	return svc
}

func TestRunOnce(t *testing.T) {
	messenger := line.NewLogMessenger(nil)
	runner, err := NewRunner(Config{Schedules: newTestSchedules(t), Messenger: messenger, Location: taipei})
	require.NoError(t, err)

	sent, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	pushes := map[string]string{}
	for _, m := range messenger.Pushes() {
		pushes[m.Target] = m.Text
	}
	assert.Equal(t, map[string]string{
		"U1": "🔔 兩週後行程提醒\n\n📅 2024-06-24 全天\n📝 報告\n\n📅 2024-06-30 全天\n📝 盤點",
		"C1": "🔔 兩週後行程提醒\n\n📅 2024-06-26 10:00\n📝 團隊聚會",
	}, pushes)
}

func TestRunOnceTargets(t *testing.T) {
	messenger := line.NewLogMessenger(nil)
	runner, err := NewRunner(Config{
		Schedules: newTestSchedules(t),
		Messenger: messenger,
		Targets:   []string{"C1", "U9"},
	})
	require.NoError(t, err)

	sent, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, messenger.Pushes(), 1)
	assert.Equal(t, "C1", messenger.Pushes()[0].Target)
}

func TestRunOncePeriod(t *testing.T) {
	messenger := line.NewLogMessenger(nil)
	runner, err := NewRunner(Config{
		Schedules: newTestSchedules(t),
		Messenger: messenger,
		Period:    nltime.PeriodNextMonth,
	})
	require.NoError(t, err)
	assert.Equal(t, "🔔 下個月行程提醒", runner.Title())

	sent, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "U2", messenger.Pushes()[0].Target)
}

type flakyMessenger struct {
	*line.LogMessenger
	mu     sync.Mutex
	failTo string
}

func (m *flakyMessenger) Push(ctx context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if to == m.failTo {
		return errors.New("push rejected")
	}
	return m.LogMessenger.Push(ctx, to, text)
}

func TestRunOnceCountsOnlyDelivered(t *testing.T) {
	messenger := &flakyMessenger{LogMessenger: line.NewLogMessenger(nil), failTo: "U1"}
	runner, err := NewRunner(Config{Schedules: newTestSchedules(t), Messenger: messenger})
	require.NoError(t, err)

	sent, err := runner.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

type failingSchedules struct {
	Schedules
}

func (failingSchedules) Today() nltime.Date {
	d, _ := nltime.NewDate(2024, time.June, 14)
	return d
}

func (failingSchedules) FindAllInRange(context.Context, nltime.Range) ([]*store.Schedule, error) {
	return nil, errors.New("connection refused")
}

func TestRunOnceStoreError(t *testing.T) {
	runner, err := NewRunner(Config{Schedules: failingSchedules{}, Messenger: line.NewLogMessenger(nil)})
	require.NoError(t, err)
	_, err = runner.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Config{Spec: "every friday"})
	assert.Error(t, err)
	_, err = NewRunner(Config{Period: "last_week"})
	assert.ErrorIs(t, err, nltime.ErrUnknownPeriod)
}

func TestRunFiresOnSchedule(t *testing.T) {
	messenger := line.NewLogMessenger(nil)
	runner, err := NewRunner(Config{
		Schedules: newTestSchedules(t),
		Messenger: messenger,
		Spec:      "@every 1s",
		Location:  taipei,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return len(messenger.Pushes()) >= 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}
