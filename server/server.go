package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/plugin/line"
	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/plugin/reminder"
	"github.com/hrygo/remindbot/server/command"
	"github.com/hrygo/remindbot/server/internal/observability"
	ratelimit "github.com/hrygo/remindbot/server/middleware"
	"github.com/hrygo/remindbot/server/router/webhook"
	"github.com/hrygo/remindbot/server/runner/digest"
	"github.com/hrygo/remindbot/server/service/schedule"
	"github.com/hrygo/remindbot/server/stats"
	"github.com/hrygo/remindbot/server/timezone"
	"github.com/hrygo/remindbot/store"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	countdown  *reminder.Countdown
	digest     *digest.Runner
}

func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	schedules, err := NewScheduleService(profile, store)
	if err != nil {
		return nil, err
	}
	messenger, err := NewMessenger(profile)
	if err != nil {
		return nil, err
	}
	digestRunner, err := NewDigestRunner(profile, schedules, messenger)
	if err != nil {
		return nil, err
	}
	location, err := timezone.ParseTimezone(profile.Timezone)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Profile:   profile,
		Store:     store,
		countdown: reminder.NewCountdown(reminder.CountdownConfig{Messenger: messenger}),
		digest:    digestRunner,
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	echoServer.Use(middleware.RequestID())
	s.echoServer = echoServer

	// Healthz
	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})

	(&webhook.Service{
		Profile: profile,
		Dispatcher: command.NewDispatcher(command.Config{
			Schedules: schedules,
			Countdown: s.countdown,
			Stats:     stats.NewCollector(store, timezone.SystemClock{}, location),
		}),
		Messenger: messenger,
		Limiter:   ratelimit.NewRateLimiter(profile.RateLimit),
		Metrics:   observability.NewMetrics(),
	}).Register(echoServer)

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start serves HTTP and runs the digest runner until ctx is done or one of
// them fails, then shuts everything down.
func (s *Server) Start(ctx context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("remindbot server started", "address", address, "mode", s.Profile.Mode, "driver", s.Profile.Driver)
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server failed")
		}
		return nil
	})
	g.Go(func() error {
		return s.digest.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.Shutdown(context.WithoutCancel(gctx))
		return nil
	})

	return g.Wait()
}

// Shutdown stops the HTTP server and cancels pending countdowns.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	slog.Info("server shutting down")
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
	s.countdown.Stop()
	slog.Info("remindbot stopped properly")
}

// NewScheduleService builds the schedule service from the profile's timezone and year policy.
func NewScheduleService(profile *profile.Profile, store *store.Store) (schedule.Service, error) {
	location, err := timezone.ParseTimezone(profile.Timezone)
	if err != nil {
		return nil, err
	}
	policy, err := nltime.ParseYearPolicy(profile.YearPolicy)
	if err != nil {
		return nil, err
	}
	return schedule.NewService(schedule.Config{
		Store:    store,
		Parser:   nltime.NewParser(nltime.WithYearPolicy(policy)),
		Clock:    timezone.SystemClock{},
		Location: location,
	}), nil
}

// NewMessenger returns the LINE client with push retries, or a logging
// messenger when no channel token is configured.
func NewMessenger(profile *profile.Profile) (line.Messenger, error) {
	if profile.LineChannelToken == "" {
		slog.Warn("no line channel token configured, messages are only logged")
		return line.NewLogMessenger(nil), nil
	}
	client, err := line.NewClient(profile.LineChannelToken)
	if err != nil {
		return nil, err
	}
	return line.NewRetryMessenger(client, line.DefaultRetryConfig), nil
}

// NewDigestRunner builds the digest runner from the profile.
func NewDigestRunner(profile *profile.Profile, schedules schedule.Service, messenger line.Messenger) (*digest.Runner, error) {
	location, err := timezone.ParseTimezone(profile.Timezone)
	if err != nil {
		return nil, err
	}
	return digest.NewRunner(digest.Config{
		Schedules: schedules,
		Messenger: messenger,
		Spec:      profile.DigestCron,
		Location:  location,
		Period:    nltime.Period(profile.DigestPeriod),
		Targets:   profile.DigestTargets,
	})
}
