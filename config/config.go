package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Search SearchConfig `yaml:"search"`
	Bot    BotConfig    `yaml:"bot"`
	Log    LogConfig    `yaml:"log"`

	// Populated from the environment, never from YAML
	Env EnvConfig `yaml:"-"`
}

// SearchConfig configures the tgstat search engine
type SearchConfig struct {
	BaseURL     string         `yaml:"base_url"`
	CookiesPath string         `yaml:"cookies_path"`
	Headless    bool           `yaml:"headless"`
	BrowserBin  string         `yaml:"browser_bin"`
	UserDataDir string         `yaml:"user_data_dir"`
	Timeouts    TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds the bound of every wait point of a search
type TimeoutsConfig struct {
	Input     time.Duration `yaml:"input"`
	Submit    time.Duration `yaml:"submit"`
	Sort      time.Duration `yaml:"sort"`
	Results   time.Duration `yaml:"results"`
	Lookup    time.Duration `yaml:"lookup"`
	AuthPause time.Duration `yaml:"auth_pause"`
}

// BotConfig configures the Telegram front end
type BotConfig struct {
	MaxRequestsPerDay int           `yaml:"max_requests_per_day"`
	MaxQueryLength    int           `yaml:"max_query_length"`
	MaxResults        int           `yaml:"max_results"`
	ChannelID         int64         `yaml:"channel_id"`
	ChannelURL        string        `yaml:"channel_url"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// LogConfig configures the zap logger and file rotation
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// EnvConfig holds secrets and deployment settings read from the environment
type EnvConfig struct {
	BotToken          string
	OwnerIDs          []int64
	DatabaseURL       string
	SentryDSN         string
	SheetsCredentials string
	SpreadsheetURL    string
}

// LoadConfig loads configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := GetDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetDefaultConfig returns a default configuration
func GetDefaultConfig() *Config {
	cfg := &Config{}

	cfg.Search.BaseURL = "https://tgstat.ru/search"
	cfg.Search.CookiesPath = "cookies.json"
	cfg.Search.Headless = true
	cfg.Search.Timeouts = TimeoutsConfig{
		Input:     10 * time.Second,
		Submit:    60 * time.Second,
		Sort:      10 * time.Second,
		Results:   30 * time.Second,
		Lookup:    2 * time.Second,
		AuthPause: 60 * time.Second,
	}

	cfg.Bot.MaxRequestsPerDay = 5
	cfg.Bot.MaxQueryLength = 100
	cfg.Bot.MaxResults = 30
	cfg.Bot.ChannelID = -1002014716981
	cfg.Bot.ChannelURL = "https://t.me/+6XdMekElAUxiYzhi"
	cfg.Bot.PollInterval = 5 * time.Second

	cfg.Log.Level = "info"
	cfg.Log.File = "logs/logs.log"
	cfg.Log.MaxSize = 50
	cfg.Log.MaxBackups = 7
	cfg.Log.MaxAge = 30
	cfg.Log.Compress = true

	return cfg
}

// Validate checks that limits and timeouts are usable
func (c *Config) Validate() error {
	if c.Search.BaseURL == "" {
		return fmt.Errorf("search.base_url is required")
	}
	if c.Search.CookiesPath == "" {
		return fmt.Errorf("search.cookies_path is required")
	}

	t := c.Search.Timeouts
	timeouts := map[string]time.Duration{
		"input":      t.Input,
		"submit":     t.Submit,
		"sort":       t.Sort,
		"results":    t.Results,
		"lookup":     t.Lookup,
		"auth_pause": t.AuthPause,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("search.timeouts.%s must be positive, got %s", name, d)
		}
	}

	if c.Bot.MaxRequestsPerDay < 0 {
		return fmt.Errorf("bot.max_requests_per_day must not be negative")
	}
	if c.Bot.MaxQueryLength <= 0 {
		return fmt.Errorf("bot.max_query_length must be positive")
	}
	if c.Bot.MaxResults <= 0 {
		return fmt.Errorf("bot.max_results must be positive")
	}
	if c.Bot.PollInterval <= 0 {
		return fmt.Errorf("bot.poll_interval must be positive")
	}

	return nil
}

// LoadEnv reads secrets from the environment into cfg.Env.
// A .env file is loaded first if present; real environment variables win.
func (c *Config) LoadEnv() error {
	_ = godotenv.Load()

	c.Env.BotToken = os.Getenv("BOT_TOKEN")
	c.Env.SentryDSN = os.Getenv("SENTRY_DSN")
	c.Env.SheetsCredentials = os.Getenv("GOOGLE_SHEETS_CREDENTIALS")
	c.Env.SpreadsheetURL = os.Getenv("SPREADSHEET_URL")
	c.Env.DatabaseURL = databaseURL()

	owners, err := parseOwnerIDs(os.Getenv("BOT_OWNER_IDS"))
	if err != nil {
		return err
	}
	c.Env.OwnerIDs = owners

	return nil
}

func databaseURL() string {
	if connStr := os.Getenv("DATABASE_URL"); connStr != "" {
		return connStr
	}

	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "tgstat_bot")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "tgstat_bot")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

func parseOwnerIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid BOT_OWNER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
