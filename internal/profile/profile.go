package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/hrygo/remindbot/plugin/nltime"
	"github.com/hrygo/remindbot/server/timezone"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	// DefaultDigestCron fires every Friday at 10:00 in the civil timezone.
	DefaultDigestCron = "0 10 * * 5"
)

// Profile is the configuration to start main server.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Addr is the binding address for server
	Addr string
	// Port is the binding port for server
	Port int
	// Data is the data directory for the sqlite driver
	Data string
	// DSN points to where remindbot stores its schedules
	DSN string
	// Driver is the database driver (sqlite, postgres or memory)
	Driver string
	// Version is the current version of server
	Version string

	// Timezone is the civil timezone used to decide "today".
	Timezone string
	// YearPolicy places month/day phrases without a year (current, roll_forward, reject_past).
	YearPolicy string

	// Digest configuration
	DigestCron    string   // REMINDBOT_DIGEST_CRON (default: "0 10 * * 5")
	DigestPeriod  string   // REMINDBOT_DIGEST_PERIOD (default: two_weeks_later_week)
	DigestTargets []string // REMINDBOT_DIGEST_TARGETS, empty means every owner with entries

	// RateLimit is the number of messages an owner may send per minute. Zero disables limiting.
	RateLimit int

	// LINE Messaging API credentials
	LineChannelSecret string // REMINDBOT_LINE_CHANNEL_SECRET (legacy: LINE_CHANNEL_SECRET)
	LineChannelToken  string // REMINDBOT_LINE_CHANNEL_TOKEN (legacy: LINE_CHANNEL_ACCESS_TOKEN)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// HasLineCredentials reports whether both LINE credentials are configured.
func (p *Profile) HasLineCredentials() bool {
	return p.LineChannelSecret != "" && p.LineChannelToken != ""
}

// FromEnv fills LINE credentials from the variable names used by the LINE
// console when the REMINDBOT_* values were not provided.
func (p *Profile) FromEnv() {
	if p.LineChannelSecret == "" {
		p.LineChannelSecret = os.Getenv("LINE_CHANNEL_SECRET")
	}
	if p.LineChannelToken == "" {
		p.LineChannelToken = os.Getenv("LINE_CHANNEL_ACCESS_TOKEN")
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalises the profile and fills defaults.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Timezone == "" {
		p.Timezone = timezone.DefaultTimezone
	}
	if !timezone.IsValidTimezone(p.Timezone) {
		return errors.Errorf("invalid timezone %q", p.Timezone)
	}

	policy, err := nltime.ParseYearPolicy(p.YearPolicy)
	if err != nil {
		return errors.Wrap(err, "invalid year policy")
	}
	p.YearPolicy = string(policy)

	if p.DigestCron == "" {
		p.DigestCron = DefaultDigestCron
	}
	if _, err := cron.ParseStandard(p.DigestCron); err != nil {
		return errors.Wrapf(err, "invalid digest cron %q", p.DigestCron)
	}
	if p.DigestPeriod == "" {
		p.DigestPeriod = string(nltime.PeriodTwoWeeksLaterWeek)
	}
	if _, err := nltime.ParsePeriod(p.DigestPeriod); err != nil {
		return errors.Wrap(err, "invalid digest period")
	}
	p.DigestTargets = compact(p.DigestTargets)

	if p.RateLimit < 0 {
		p.RateLimit = 0
	}

	return p.validateDriver()
}

func (p *Profile) validateDriver() error {
	if p.Driver == "" {
		switch {
		case p.DSN != "" && strings.HasPrefix(p.DSN, "postgres"):
			p.Driver = DriverPostgres
		case p.Data != "" || p.Mode == "prod":
			p.Driver = DriverSQLite
		default:
			p.Driver = DriverMemory
			slog.Warn("no data directory or dsn configured, schedules are kept in memory only")
		}
	}

	switch p.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		if p.DSN == "" {
			return errors.New("postgres driver requires a dsn")
		}
		return nil
	case DriverSQLite:
		if p.Mode == "prod" && p.Data == "" {
			p.Data = "/var/opt/remindbot"
		}
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("remindbot_%s.db", p.Mode))
		}
		return nil
	default:
		return errors.Errorf("unknown db driver %q: only 'sqlite', 'postgres' and 'memory' are supported", p.Driver)
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
