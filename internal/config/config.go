package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the application configuration.
type Config struct {
	ServerPort         string `validate:"required,numeric"`
	AllowedOrigins     []string
	LogLevel           string `validate:"oneof=trace debug info warn error"`
	LogFormat          string `validate:"oneof=text json"`
	LogFile            string
	RT                 bool
	RateLimitPerMinute int    `validate:"min=1"`
	ProfileFile        string `validate:"required"`

	Spotify Spotify
	Discord Discord
}

// Spotify holds the now-playing credentials. All three must be set for the
// Spotify components to run.
type Spotify struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	PollInterval time.Duration `validate:"gt=0"`
}

// Configured reports whether all credentials are present.
func (s Spotify) Configured() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// Discord holds the gateway and poller settings.
type Discord struct {
	BotToken             string
	UserID               string        `validate:"omitempty,numeric"`
	GatewayURL           string        `validate:"required,url"`
	GatewayIntents       int           `validate:"min=0"`
	MaxReconnectAttempts int           `validate:"min=1"`
	ReconnectDelay       time.Duration `validate:"gt=0"`
	MissedACKLimit       int           `validate:"min=0"`
	PollerEnabled        bool
	PollInterval         time.Duration `validate:"gt=0"`
}

// Configured reports whether the gateway can identify.
func (d Discord) Configured() bool {
	return d.BotToken != "" && d.UserID != ""
}

var validate = validator.New()

// Load loads the configuration from a .env file, if present, and the
// environment. Missing credentials disable components rather than fail.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("no .env file found, using environment variables")
	}

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "3000"),
		LogLevel:    strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogFile:     os.Getenv("LOG_FILE"),
		RT:          getBool("RT"),
		ProfileFile: getEnv("PROFILE_FILE", "profile.toml"),
	}

	if allowedOrigins := os.Getenv("ALLOWED_ORIGINS"); allowedOrigins != "" {
		for _, origin := range strings.Split(allowedOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	cfg.Spotify.ClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	cfg.Spotify.ClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")
	cfg.Spotify.RefreshToken = os.Getenv("SPOTIFY_REFRESH_TOKEN")

	cfg.Discord.BotToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.Discord.UserID = os.Getenv("DISCORD_USER_ID")
	cfg.Discord.GatewayURL = getEnv("DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json")
	cfg.Discord.PollerEnabled = getBool("DISCORD_POLLER_ENABLED")

	var err error
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return nil, err
	}
	if cfg.Spotify.PollInterval, err = getDuration("SPOTIFY_POLL_INTERVAL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.Discord.GatewayIntents, err = getInt("DISCORD_GATEWAY_INTENTS", 0); err != nil {
		return nil, err
	}
	if cfg.Discord.MaxReconnectAttempts, err = getInt("DISCORD_MAX_RECONNECT_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.Discord.ReconnectDelay, err = getDuration("DISCORD_RECONNECT_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Discord.MissedACKLimit, err = getInt("DISCORD_MISSED_ACK_LIMIT", 2); err != nil {
		return nil, err
	}
	if cfg.Discord.PollInterval, err = getDuration("DISCORD_POLL_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if !cfg.Spotify.Configured() {
		logrus.Warn("spotify credentials are not set, now-playing is disabled")
	}
	if !cfg.Discord.Configured() {
		logrus.Warn("discord bot token or user id not set, gateway is disabled")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return b
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
	}
	return d, nil
}
