package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Server struct {
	Port            int
	Env             string
	LogLevel        string
	AllowedOrigins  []string
	SendQueueSize   int
	RoomIdleTimeout time.Duration
	PingInterval    time.Duration
}

type Client struct {
	ServerURL   string
	DisplayName string
	RoomID      string // empty: create a new room and host it
	CachePath   string
	Env         string
	LogLevel    string

	ReconnectBase       time.Duration
	ReconnectCap        time.Duration
	ReconnectMaxRetries int
	SyncSettleDelay     time.Duration
}

// LoadDotEnv reads .env files into the environment. Missing files are fine;
// variables already set are never overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ParseServerFlags reads flags, falling back to environment variables and then defaults.
func ParseServerFlags(args []string) (Server, error) {
	var cfg Server
	var origins string

	fs := flag.NewFlagSet("collab-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.Env, "env", "", "Environment (development or production)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&origins, "origins", "", "Comma separated allowed origins for browsers and sockets")
	fs.IntVar(&cfg.SendQueueSize, "queue", 0, "Per-connection outbound queue size")
	fs.DurationVar(&cfg.RoomIdleTimeout, "room-idle", 0, "Reap rooms nobody joined after this long")
	fs.DurationVar(&cfg.PingInterval, "ping", 0, "Socket keepalive ping interval")

	if err := fs.Parse(args); err != nil {
		return Server{}, err
	}

	var err error
	if cfg.Port == 0 {
		if cfg.Port, err = envInt("PORT", 8080); err != nil {
			return Server{}, err
		}
	}
	if cfg.Env == "" {
		cfg.Env = envString("APP_ENV", "development")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = envString("LOG_LEVEL", "info")
	}
	if origins == "" {
		origins = envString("ALLOWED_ORIGINS", "*")
	}
	cfg.AllowedOrigins = splitList(origins)
	if cfg.SendQueueSize == 0 {
		if cfg.SendQueueSize, err = envInt("SEND_QUEUE_SIZE", 256); err != nil {
			return Server{}, err
		}
	}
	if cfg.RoomIdleTimeout == 0 {
		if cfg.RoomIdleTimeout, err = envDuration("ROOM_IDLE_TIMEOUT", 5*time.Minute); err != nil {
			return Server{}, err
		}
	}
	if cfg.PingInterval == 0 {
		if cfg.PingInterval, err = envDuration("PING_INTERVAL", 30*time.Second); err != nil {
			return Server{}, err
		}
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Server{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.SendQueueSize <= 0 {
		return Server{}, errors.New("send queue size must be positive")
	}
	return cfg, nil
}

func ParseClientFlags(args []string) (Client, error) {
	var cfg Client

	fs := flag.NewFlagSet("collab-client", flag.ContinueOnError)
	fs.StringVar(&cfg.ServerURL, "server", "", "Collaboration server base URL")
	fs.StringVar(&cfg.DisplayName, "name", "", "Display name shown to other participants")
	fs.StringVar(&cfg.RoomID, "room", "", "Room to join (empty creates one)")
	fs.StringVar(&cfg.CachePath, "cache", "", "Drawing cache file")
	fs.StringVar(&cfg.Env, "env", "", "Environment (development or production)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level")
	fs.DurationVar(&cfg.ReconnectBase, "reconnect-base", 0, "First reconnect delay")
	fs.DurationVar(&cfg.ReconnectCap, "reconnect-cap", 0, "Largest reconnect delay")
	fs.IntVar(&cfg.ReconnectMaxRetries, "reconnect-retries", 0, "Reconnect attempts before giving up")
	fs.DurationVar(&cfg.SyncSettleDelay, "settle", 0, "Host delay before answering a join with full state")

	if err := fs.Parse(args); err != nil {
		return Client{}, err
	}

	var err error
	if cfg.ServerURL == "" {
		cfg.ServerURL = envString("COLLAB_SERVER_URL", "http://localhost:8080")
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = envString("DISPLAY_NAME", "")
	}
	if cfg.RoomID == "" {
		cfg.RoomID = envString("ROOM_ID", "")
	}
	if cfg.CachePath == "" {
		cfg.CachePath = envString("DRAWING_CACHE_PATH", "drawings.db")
	}
	if cfg.Env == "" {
		cfg.Env = envString("APP_ENV", "development")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = envString("LOG_LEVEL", "info")
	}
	if cfg.ReconnectBase == 0 {
		if cfg.ReconnectBase, err = envDuration("RECONNECT_BASE", time.Second); err != nil {
			return Client{}, err
		}
	}
	if cfg.ReconnectCap == 0 {
		if cfg.ReconnectCap, err = envDuration("RECONNECT_CAP", 30*time.Second); err != nil {
			return Client{}, err
		}
	}
	if cfg.ReconnectMaxRetries == 0 {
		if cfg.ReconnectMaxRetries, err = envInt("RECONNECT_MAX_RETRIES", 5); err != nil {
			return Client{}, err
		}
	}
	if cfg.SyncSettleDelay == 0 {
		if cfg.SyncSettleDelay, err = envDuration("SYNC_SETTLE_DELAY", 100*time.Millisecond); err != nil {
			return Client{}, err
		}
	}

	if cfg.DisplayName == "" {
		return Client{}, errors.New("display name required (use -name or DISPLAY_NAME env)")
	}
	if cfg.ReconnectCap < cfg.ReconnectBase {
		return Client{}, errors.New("reconnect cap must not be below the base delay")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
