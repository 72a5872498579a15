// Package reminder runs chat countdown timers.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/remindbot/plugin/line"
)

const (
	MinCountdownMinutes = 1
	MaxCountdownMinutes = 60
)

// ErrInvalidDuration is returned for countdowns outside 1..60 minutes.
var ErrInvalidDuration = errors.Errorf("countdown must be between %d and %d minutes", MinCountdownMinutes, MaxCountdownMinutes)

// ErrStopped is returned when starting a countdown after Stop.
var ErrStopped = errors.New("countdown stopped")

// CountdownConfig holds configuration for countdown timers.
type CountdownConfig struct {
	Messenger line.Messenger
	// Unit is the length of one countdown minute. Tests shorten it.
	Unit time.Duration
	// SendTimeout bounds a single push when the timer fires.
	SendTimeout time.Duration
	Logger      *slog.Logger
}

// Countdown pushes a message to a chat after a number of minutes.
type Countdown struct {
	messenger   line.Messenger
	unit        time.Duration
	sendTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	timers  map[int64]*time.Timer
	nextID  int64
	stopped bool
	wg      sync.WaitGroup
}

// NewCountdown creates a countdown runner.
func NewCountdown(config CountdownConfig) *Countdown {
	if config.Unit <= 0 {
		config.Unit = time.Minute
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Countdown{
		messenger:   config.Messenger,
		unit:        config.Unit,
		sendTimeout: config.SendTimeout,
		logger:      config.Logger,
		timers:      make(map[int64]*time.Timer),
	}
}

// FinishedMessage is the text pushed when a countdown of minutes ends.
func FinishedMessage(minutes int) string {
	return fmt.Sprintf("⏰ %d 分鐘倒數結束，時間到囉！", minutes)
}

// Start schedules a push to target after minutes. The push outlives ctx
// cancellation of the inbound request; only values are taken from it.
func (c *Countdown) Start(ctx context.Context, target string, minutes int) error {
	if minutes < MinCountdownMinutes || minutes > MaxCountdownMinutes {
		return ErrInvalidDuration
	}
	if target == "" {
		return errors.New("countdown target is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}

	c.nextID++
	id := c.nextID
	detached := context.WithoutCancel(ctx)
	c.wg.Add(1)
	c.timers[id] = time.AfterFunc(time.Duration(minutes)*c.unit, func() {
		defer c.wg.Done()
		c.mu.Lock()
		delete(c.timers, id)
		c.mu.Unlock()
		c.fire(detached, target, minutes)
	})

	c.logger.Info("countdown started", slog.String("target", target), slog.Int("minutes", minutes))
	return nil
}

func (c *Countdown) fire(ctx context.Context, target string, minutes int) {
	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.messenger.Push(ctx, target, FinishedMessage(minutes)); err != nil {
		c.logger.Error("failed to push countdown message",
			slog.String("target", target),
			slog.Int("minutes", minutes),
			slog.String("error", err.Error()))
	}
}

// Pending returns the number of timers that have not fired.
func (c *Countdown) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Stop cancels outstanding timers and waits for running pushes to finish.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for id, timer := range c.timers {
		if timer.Stop() {
			c.wg.Done()
		}
		delete(c.timers, id)
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("countdown stopped")
}
