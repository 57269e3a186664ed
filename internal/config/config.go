package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultTimezone          = "UTC"
	defaultDBDriver          = "sqlite"
	defaultDBDSN             = "gudbot.db"
	defaultHaltTransition    = "Stop Progress"
	defaultResumeTransition  = "Start Progress"
	defaultReconcileInterval = 5 * time.Minute
	defaultSessionTimeout    = 1800 * time.Second
)

type Config struct {
	DiscordBotToken string

	JiraBaseURL      string
	JiraUsername     string
	JiraAPIToken     string
	JiraProject      string
	HaltTransition   string
	ResumeTransition string

	Timezone string
	DBDriver string
	DBDSN    string
	TeamFile string

	ReconcileInterval time.Duration
	SessionTimeout    time.Duration
}

func FromEnv() Config {
	tz := strings.TrimSpace(os.Getenv("GUDBOT_TIMEZONE"))
	if tz == "" {
		tz = defaultTimezone
	}
	driver := strings.TrimSpace(os.Getenv("GUDBOT_DB_DRIVER"))
	if driver == "" {
		driver = defaultDBDriver
	}
	dsn := strings.TrimSpace(os.Getenv("GUDBOT_DB_DSN"))
	if dsn == "" {
		dsn = defaultDBDSN
	}
	halt := strings.TrimSpace(os.Getenv("GUDBOT_HALT_TRANSITION"))
	if halt == "" {
		halt = defaultHaltTransition
	}
	resume := strings.TrimSpace(os.Getenv("GUDBOT_RESUME_TRANSITION"))
	if resume == "" {
		resume = defaultResumeTransition
	}
	interval := defaultReconcileInterval
	if raw := strings.TrimSpace(os.Getenv("GUDBOT_RECONCILE_INTERVAL")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err == nil && parsed > 0 {
			interval = parsed
		}
	}
	timeout := defaultSessionTimeout
	if raw := strings.TrimSpace(os.Getenv("GUDBOT_SESSION_TIMEOUT")); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	return Config{
		DiscordBotToken:   strings.TrimSpace(os.Getenv("DISCORD_BOT_TOKEN")),
		JiraBaseURL:       strings.TrimSpace(os.Getenv("JIRA_BASE_URL")),
		JiraUsername:      strings.TrimSpace(os.Getenv("JIRA_USERNAME")),
		JiraAPIToken:      strings.TrimSpace(os.Getenv("JIRA_API_TOKEN")),
		JiraProject:       strings.TrimSpace(os.Getenv("JIRA_PROJECT_KEY")),
		HaltTransition:    halt,
		ResumeTransition:  resume,
		Timezone:          tz,
		DBDriver:          strings.ToLower(driver),
		DBDSN:             dsn,
		TeamFile:          strings.TrimSpace(os.Getenv("GUDBOT_TEAM_FILE")),
		ReconcileInterval: interval,
		SessionTimeout:    timeout,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DiscordBotToken) == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if strings.TrimSpace(c.JiraBaseURL) == "" {
		return fmt.Errorf("JIRA_BASE_URL is required")
	}
	if strings.TrimSpace(c.JiraUsername) == "" {
		return fmt.Errorf("JIRA_USERNAME is required")
	}
	if strings.TrimSpace(c.JiraAPIToken) == "" {
		return fmt.Errorf("JIRA_API_TOKEN is required")
	}
	if strings.TrimSpace(c.JiraProject) == "" {
		return fmt.Errorf("JIRA_PROJECT_KEY is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("GUDBOT_TIMEZONE %q is invalid: %w", c.Timezone, err)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("GUDBOT_DB_DRIVER must be sqlite or postgres")
	}
	if strings.TrimSpace(c.DBDSN) == "" {
		return fmt.Errorf("GUDBOT_DB_DSN must not be empty")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("GUDBOT_RECONCILE_INTERVAL must be > 0")
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("GUDBOT_SESSION_TIMEOUT must be > 0")
	}
	return nil
}

// Location resolves the configured time zone. Validate must have passed.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		panic(fmt.Sprintf("config: timezone %q not validated: %v", c.Timezone, err))
	}
	return loc
}
