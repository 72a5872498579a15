package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/remindbot/internal/profile"
	"github.com/hrygo/remindbot/server"
	"github.com/hrygo/remindbot/store"
	"github.com/hrygo/remindbot/store/db"
)

// version is set at build time.
var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "remindbot",
		Short: "A LINE chat bot that keeps schedules written in everyday Chinese.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the LINE webhook and run the weekly digest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	parseCmd = &cobra.Command{
		Use:   "parse <text>",
		Short: "Parse a schedule expression and print the result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProfile()
			if err != nil {
				return err
			}
			today, _ := cmd.Flags().GetString("today")
			return runParse(cmd.OutOrStdout(), strings.Join(args, " "), today, p)
		},
	}

	digestCmd = &cobra.Command{
		Use:   "digest",
		Short: "Push the schedule digest once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDigest(cmd.Context(), cmd.OutOrStdout())
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8081)
	viper.SetDefault("rate-limit", 30)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8081, "port of server")
	flags.String("data", "", "data directory for the sqlite driver")
	flags.String("driver", "", "database driver (sqlite, postgres or memory)")
	flags.String("dsn", "", "database source name")
	flags.String("timezone", "", "civil timezone that decides today (default Asia/Taipei)")
	flags.String("year-policy", "", "year of month/day phrases: current, roll_forward or reject_past")
	flags.String("digest-cron", "", "cron spec of the digest push (default \"0 10 * * 5\")")
	flags.String("digest-period", "", "period covered by the digest (default two_weeks_later_week)")
	flags.StringSlice("digest-targets", nil, "owners that receive the digest, empty means everyone")
	flags.Int("rate-limit", 30, "messages per minute allowed per chat, 0 disables limiting")
	flags.String("line-channel-secret", "", "LINE channel secret")
	flags.String("line-channel-token", "", "LINE channel access token")

	parseCmd.Flags().String("today", "", "reference date in YYYY-MM-DD (default today in the configured timezone)")

	for _, key := range []string{
		"mode", "addr", "port", "data", "driver", "dsn", "timezone", "year-policy",
		"digest-cron", "digest-period", "digest-targets", "rate-limit",
		"line-channel-secret", "line-channel-token",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("remindbot")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, parseCmd, digestCmd)
}

func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:              viper.GetString("mode"),
		Addr:              viper.GetString("addr"),
		Port:              viper.GetInt("port"),
		Data:              viper.GetString("data"),
		Driver:            viper.GetString("driver"),
		DSN:               viper.GetString("dsn"),
		Version:           version,
		Timezone:          viper.GetString("timezone"),
		YearPolicy:        viper.GetString("year-policy"),
		DigestCron:        viper.GetString("digest-cron"),
		DigestPeriod:      viper.GetString("digest-period"),
		DigestTargets:     viper.GetStringSlice("digest-targets"),
		RateLimit:         viper.GetInt("rate-limit"),
		LineChannelSecret: viper.GetString("line-channel-secret"),
		LineChannelToken:  viper.GetString("line-channel-token"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	slog.SetDefault(newLogger(p, os.Stderr))
	return p, nil
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, p)
	if err := storeInstance.Migrate(ctx); err != nil {
		_ = storeInstance.Close()
		return nil, err
	}
	return storeInstance, nil
}

func runServe(ctx context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	if !p.HasLineCredentials() {
		slog.Warn("line credentials are incomplete, webhook signatures cannot be verified")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	storeInstance, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if err := storeInstance.Close(); err != nil {
			slog.Error("failed to close store", slog.String("error", err.Error()))
		}
	}()

	s, err := server.NewServer(ctx, p, storeInstance)
	if err != nil {
		return err
	}
	printGreetings(p)
	return s.Start(ctx)
}

func runDigest(ctx context.Context, out io.Writer) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	storeInstance, err := openStore(ctx, p)
	if err != nil {
		return err
	}
	defer storeInstance.Close()

	schedules, err := server.NewScheduleService(p, storeInstance)
	if err != nil {
		return err
	}
	messenger, err := server.NewMessenger(p)
	if err != nil {
		return err
	}
	runner, err := server.NewDigestRunner(p, schedules, messenger)
	if err != nil {
		return err
	}
	sent, err := runner.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "digest pushed to %d chats\n", sent)
	return nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("remindbot %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s, driver: %s, timezone: %s\n", p.Mode, p.Driver, p.Timezone)
	fmt.Printf("Server running on port %d\n", p.Port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
