package config

import (
	room_constants "Gamebuddies/constants/room"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type PostgresConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Database string
	Verbose  bool
	Migrate  bool
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

// Config is everything the process reads from the environment
type Config struct {
	Port        string
	Prod        bool
	LogLevel    string
	Postgres    PostgresConfig
	RedisURL    string
	JWTSecret   string
	SessionKey  string
	CORSOrigins []string
	ProxyConfig string

	HeartbeatTimeout      time.Duration
	PresenceSweepInterval time.Duration
	DisconnectGrace       time.Duration
	SettleWindow          time.Duration
	StartWindow           time.Duration
	LobbyMajority         float64
	RoomIdleTimeout       time.Duration
	SweepInterval         time.Duration
	MemberEvictAfter      time.Duration
	StaleRowAge           time.Duration
	HealthInterval        time.Duration
	HealthTimeout         time.Duration
	UpstreamTimeout       time.Duration
	ShutdownTimeout       time.Duration
	ForceExitAfter        time.Duration

	NotifyBackend string
	NATSURL       string
}

// Load reads .env when present and then the environment. A missing .env is
// fine; a malformed value is not.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only
func FromEnv() (*Config, error) {
	r := envReader{}
	cfg := &Config{
		Port:     r.str("PORT", "8080"),
		Prod:     r.boolean("PROD"),
		LogLevel: r.str("LOG_LEVEL", "info"),
		Postgres: PostgresConfig{
			User:     r.str("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Host:     r.str("POSTGRES_HOST", "localhost"),
			Port:     r.str("POSTGRES_PORT", "5432"),
			Database: r.str("POSTGRES_DATABASE", "gamebuddies"),
			Verbose:  r.boolean("VERBOSE_POSTGRES"),
			Migrate:  r.boolean("MIGRATE_POSTGRES"),
		},
		RedisURL:    r.str("REDIS_URL", "localhost:6379"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		SessionKey:  os.Getenv("KEY"),
		CORSOrigins: r.list("CORS_ORIGINS", []string{"*"}),
		ProxyConfig: os.Getenv("PROXY_CONFIG"),

		HeartbeatTimeout:      r.duration("HEARTBEAT_TIMEOUT", room_constants.DefaultHeartbeatTimeout),
		PresenceSweepInterval: r.duration("PRESENCE_SWEEP_INTERVAL", room_constants.DefaultPresenceInterval),
		DisconnectGrace:       r.duration("DISCONNECT_GRACE", room_constants.DefaultDisconnectGrace),
		SettleWindow:          r.duration("SETTLE_WINDOW", room_constants.DefaultSettleWindow),
		StartWindow:           r.duration("START_WINDOW", room_constants.DefaultStartWindow),
		LobbyMajority:         r.float("LOBBY_MAJORITY", room_constants.DefaultLobbyMajority),
		RoomIdleTimeout:       r.duration("ROOM_IDLE_TIMEOUT", room_constants.DefaultRoomIdleTimeout),
		SweepInterval:         r.duration("SWEEP_INTERVAL", room_constants.DefaultSweepInterval),
		MemberEvictAfter:      r.duration("MEMBER_EVICT_AFTER", room_constants.DefaultMemberEvictAfter),
		StaleRowAge:           r.duration("STALE_ROW_AGE", room_constants.DefaultStaleRowAge),
		HealthInterval:        r.duration("HEALTH_INTERVAL", room_constants.DefaultHealthInterval),
		HealthTimeout:         r.duration("HEALTH_TIMEOUT", room_constants.DefaultHealthTimeout),
		UpstreamTimeout:       r.duration("UPSTREAM_TIMEOUT", room_constants.DefaultUpstreamTimeout),
		ShutdownTimeout:       r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ForceExitAfter:        r.duration("FORCE_EXIT_AFTER", 20*time.Second),

		NotifyBackend: r.str("NOTIFY_BACKEND", "log"),
		NATSURL:       r.str("NATS_URL", "nats://localhost:4222"),
	}
	if len(r.errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(r.errs, "; "))
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if len(c.SessionKey) < 16 {
		return fmt.Errorf("KEY must be at least 16 bytes")
	}
	if c.LobbyMajority <= 0 || c.LobbyMajority >= 1 {
		return fmt.Errorf("LOBBY_MAJORITY must be between 0 and 1, got %v", c.LobbyMajority)
	}
	if c.ForceExitAfter <= c.ShutdownTimeout {
		return fmt.Errorf("FORCE_EXIT_AFTER (%s) must be longer than SHUTDOWN_TIMEOUT (%s)", c.ForceExitAfter, c.ShutdownTimeout)
	}
	switch c.NotifyBackend {
	case "log", "asynq", "nats":
	default:
		return fmt.Errorf("NOTIFY_BACKEND must be log, asynq or nats, got %q", c.NotifyBackend)
	}
	return nil
}

// SetUpLogger configures logrus: text for development, JSON in production
func SetUpLogger(cfg *Config) {
	if cfg.Prod {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logrus.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

type envReader struct {
	errs []string
}

func (r *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *envReader) boolean(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.errs = append(r.errs, fmt.Sprintf("%s: %q is not a positive duration", key, v))
		return def
	}
	return d
}

func (r *envReader) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (r *envReader) list(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
