package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Env overrides applied on top of the file. Secrets should come from the
// environment rather than the config file whenever possible.
const (
	EnvTelegramToken = "DAYPLAN_TELEGRAM_TOKEN"
	EnvJWTSecret     = "DAYPLAN_JWT_SECRET"
)

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	HTTP     HTTPConfig     `json:"http"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Planner  PlannerConfig  `json:"planner"`
	Jobs     JobsConfig     `json:"jobs"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type HTTPConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8080"
	// JWTSecret signs API tokens. Prefer DAYPLAN_JWT_SECRET over the file.
	JWTSecret   string   `json:"jwt_secret,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	// TokenTTL is a Go duration string; default "24h".
	TokenTTL string `json:"token_ttl,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// PlannerConfig bounds the working day the auto-planner fills.
type PlannerConfig struct {
	WorkStartHour int `json:"work_start_hour,omitempty"` // default: 8
	WorkEndHour   int `json:"work_end_hour,omitempty"`   // default: 22
	MinGapMinutes int `json:"min_gap_minutes,omitempty"` // default: 60
	// Timezone is an IANA name (e.g. "Europe/Berlin"); default UTC.
	Timezone string `json:"timezone,omitempty"`
}

// JobsConfig controls the cron schedules. Specs are standard 5-field cron
// expressions; empty keeps the built-in default for that job.
type JobsConfig struct {
	Enabled      bool   `json:"enabled"`
	DailyPlan    string `json:"daily_plan,omitempty"`    // default: "0 8 * * *"
	GapReminders string `json:"gap_reminders,omitempty"` // default: "0 10,12,14,16,18 * * *"
	Overdue      string `json:"overdue,omitempty"`       // default: "0 20 * * *"
	AutoPlan     string `json:"auto_plan,omitempty"`     // default: "0 8 * * *"
}

// NotifierConfig controls the outgoing Telegram message queue.
type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"` // default: 20
	QueueSize  int `json:"queue_size,omitempty"`   // default: 256
}

// ApplyEnv overlays environment secrets onto the parsed config.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvTelegramToken)); v != "" {
		c.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		c.HTTP.JWTSecret = v
	}
}

// Validate checks invariants that would otherwise only fail at service start.
func (c *Config) Validate() error {
	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required when telegram.enabled (or set %s)", EnvTelegramToken)
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.JWTSecret) == "" {
		return fmt.Errorf("http.jwt_secret is required when http.enabled (or set %s)", EnvJWTSecret)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("http.token_ttl", c.HTTP.TokenTTL); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	p := c.Planner
	start, end, minGap := p.EffectiveWindow()
	if start < 0 || start > 23 {
		return fmt.Errorf("planner.work_start_hour: must be 0..23, got %d", p.WorkStartHour)
	}
	if end < 1 || end > 24 {
		return fmt.Errorf("planner.work_end_hour: must be 1..24, got %d", p.WorkEndHour)
	}
	if start >= end {
		return fmt.Errorf("planner: work_start_hour %d must be before work_end_hour %d", start, end)
	}
	if minGap < 1 {
		return fmt.Errorf("planner.min_gap_minutes: must be >= 1, got %d", p.MinGapMinutes)
	}
	if tz := strings.TrimSpace(p.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("planner.timezone: %w", err)
		}
	}
	return nil
}

// EffectiveWindow returns the working window with defaults filled in.
func (p PlannerConfig) EffectiveWindow() (startHour, endHour, minGapMinutes int) {
	startHour, endHour, minGapMinutes = p.WorkStartHour, p.WorkEndHour, p.MinGapMinutes
	if startHour == 0 && endHour == 0 {
		startHour, endHour = 8, 22
	}
	if minGapMinutes == 0 {
		minGapMinutes = 60
	}
	return startHour, endHour, minGapMinutes
}

// Location resolves the planner timezone, falling back to UTC.
func (p PlannerConfig) Location() *time.Location {
	tz := strings.TrimSpace(p.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
