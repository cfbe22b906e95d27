// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all plexmon configuration.
type Config struct {
	// Monitored media server
	ServerIP  string
	PlexPort  int
	PlexToken string

	// Telegram
	TelegramToken   string
	TelegramChatID  int64
	TelegramBaseURL string
	WebhookURL      string

	// Cadences
	CheckInterval         time.Duration
	DownloadCheckInterval time.Duration

	// qBittorrent
	QBittorrentHost     string
	QBittorrentPort     int
	QBittorrentUsername string
	QBittorrentPassword string

	// Download destinations
	MoviesPath string
	SeriesPath string

	// Callers allowed to use the bot; empty means open access.
	AuthorizedUsers []int64

	// HTTP
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	Production bool
}

// rawEnv mirrors the environment. Legacy variable names are resolved in
// Load after parsing.
type rawEnv struct {
	ServerIP  string `env:"SERVER_IP"`
	PlexPort  int    `env:"PLEX_PORT" envDefault:"32400"`
	PlexToken string `env:"PLEX_TOKEN"`

	TelegramToken   string `env:"TELEGRAM_TOKEN"`
	TelegramChatID  string `env:"TELEGRAM_CHAT_ID"`
	TelegramBaseURL string `env:"TELEGRAM_BASE_URL" envDefault:"https://api.telegram.org"`
	WebhookURL      string `env:"WEBHOOK_URL"`

	CheckInterval         string `env:"CHECK_INTERVAL" envDefault:"30s"`
	DownloadCheckInterval string `env:"DOWNLOAD_CHECK_INTERVAL" envDefault:"60s"`

	QBittorrentHost     string `env:"QBITTORRENT_HOST"`
	QBittorrentPort     int    `env:"QBITTORRENT_PORT" envDefault:"8080"`
	QBittorrentUsername string `env:"QBITTORRENT_USERNAME" envDefault:"admin"`
	QBittorrentPassword string `env:"QBITTORRENT_PASSWORD" envDefault:"adminadmin"`

	MoviesPath string `env:"MOVIES_PATH" envDefault:"/mnt/films"`
	SeriesPath string `env:"SERIES_PATH" envDefault:"/mnt/films/series"`

	AuthorizedUsers []string `env:"AUTHORIZED_USERS" envSeparator:","`

	Port        string `env:"PORT"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	AppEnv string `env:"APP_ENV"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var raw rawEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{
		ServerIP:            firstNonEmpty(raw.ServerIP, os.Getenv("PLEX_IP"), os.Getenv("IP_SERVER")),
		PlexPort:            raw.PlexPort,
		PlexToken:           raw.PlexToken,
		TelegramToken:       firstNonEmpty(raw.TelegramToken, os.Getenv("TOKEN_TELEGRAM")),
		TelegramBaseURL:     strings.TrimRight(raw.TelegramBaseURL, "/"),
		WebhookURL:          strings.TrimRight(raw.WebhookURL, "/"),
		QBittorrentPort:     raw.QBittorrentPort,
		QBittorrentUsername: raw.QBittorrentUsername,
		QBittorrentPassword: raw.QBittorrentPassword,
		MoviesPath:          raw.MoviesPath,
		SeriesPath:          raw.SeriesPath,
		MetricsAddr:         raw.MetricsAddr,
		LogLevel:            raw.LogLevel,
		LogFormat:           raw.LogFormat,
		Production:          raw.AppEnv == "production" || raw.Port != "",
	}
	cfg.QBittorrentHost = firstNonEmpty(raw.QBittorrentHost, cfg.ServerIP, "localhost")

	port := firstNonEmpty(raw.Port, "3000")
	cfg.ListenAddr = ":" + port

	var err error
	if cfg.CheckInterval, err = parseInterval(raw.CheckInterval); err != nil {
		return nil, fmt.Errorf("CHECK_INTERVAL: %w", err)
	}
	if cfg.DownloadCheckInterval, err = parseInterval(raw.DownloadCheckInterval); err != nil {
		return nil, fmt.Errorf("DOWNLOAD_CHECK_INTERVAL: %w", err)
	}

	if chatID := firstNonEmpty(raw.TelegramChatID, os.Getenv("ID_CHAT")); chatID != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	for _, s := range raw.AuthorizedUsers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("AUTHORIZED_USERS: invalid user id %q", s)
		}
		cfg.AuthorizedUsers = append(cfg.AuthorizedUsers, id)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports configuration errors that prevent start-up.
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramToken == "" {
		errs = append(errs, errors.New("TELEGRAM_TOKEN is required"))
	}
	if c.ServerIP == "" {
		errs = append(errs, errors.New("SERVER_IP is required"))
	}
	if c.CheckInterval <= 0 || c.DownloadCheckInterval <= 0 {
		errs = append(errs, errors.New("intervals must be positive"))
	}
	return errors.Join(errs...)
}

// Warnings returns non-fatal configuration problems worth logging at
// start-up.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.PlexToken == "" {
		warnings = append(warnings, "PLEX_TOKEN is not configured; library commands will fail")
	}
	if c.TelegramChatID == 0 {
		warnings = append(warnings, "TELEGRAM_CHAT_ID is not configured; automatic alerts are disabled")
	}
	if c.QBittorrentHost == "localhost" && c.Production {
		warnings = append(warnings, "QBITTORRENT_HOST resolves to localhost in production; set SERVER_IP or QBITTORRENT_HOST")
	}
	if c.Production && c.WebhookURL == "" {
		warnings = append(warnings, "WEBHOOK_URL is not configured; falling back to long polling")
	}
	return warnings
}

// ProbeAddr is the host:port probed for reachability.
func (c *Config) ProbeAddr() string {
	return net.JoinHostPort(c.ServerIP, strconv.Itoa(c.PlexPort))
}

// PlexBaseURL is the media-library API root.
func (c *Config) PlexBaseURL() string {
	return "http://" + c.ProbeAddr()
}

// QBittorrentBaseURL is the download API root.
func (c *Config) QBittorrentBaseURL() string {
	return "http://" + net.JoinHostPort(c.QBittorrentHost, strconv.Itoa(c.QBittorrentPort))
}

// AlertsEnabled reports whether an alert destination is configured.
func (c *Config) AlertsEnabled() bool {
	return c.TelegramChatID != 0
}

// parseInterval accepts Go durations ("30s") and bare milliseconds
// ("30000").
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
