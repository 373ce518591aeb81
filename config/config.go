package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"laundromat-backend/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. LAUNDROMAT_LINE_CHANNEL_SECRET.
const EnvPrefix = "LAUNDROMAT"

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Push       PushConfig       `yaml:"push"`
	Line       LineConfig       `yaml:"line"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	History    HistoryConfig    `yaml:"history"`
	Log        LogConfig        `yaml:"log"`
	Machines   []store.Seed     `yaml:"machines"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port                   int     `yaml:"port"`
	RequestIPHeader        string  `yaml:"request_ip_header"`
	RateLimitPerSec        float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst         int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds        int     `yaml:"cache_ttl_seconds"`
	StaticDir              string  `yaml:"static_dir"`
	ShutdownTimeoutSeconds int     `yaml:"shutdown_timeout_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// SchedulerConfig controls the countdown tick loop.
type SchedulerConfig struct {
	TickMillis                 int           `yaml:"tick_millis"`
	Tick                       time.Duration `yaml:"-"`
	AlmostDoneThresholdSeconds int           `yaml:"almost_done_threshold_seconds"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// LineConfig holds the LINE Messaging API credentials. An empty secret
// disables webhook signature checks.
type LineConfig struct {
	ChannelSecret      string `yaml:"channel_secret"`
	ChannelAccessToken string `yaml:"channel_access_token"`
	APIBase            string `yaml:"api_base"`
	ReplyText          string `yaml:"reply_text"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// TelegramConfig enables the Telegram bot when Token is set.
type TelegramConfig struct {
	Token              string `yaml:"token"`
	PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
}

// WebhookConfig posts every notification to URL when it is set.
type WebhookConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// KafkaConfig enables the event stream when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// HistoryConfig controls listing and periodic reporting of the start
// history. Entries are never deleted.
type HistoryConfig struct {
	ListLimit         int    `yaml:"list_limit"`
	ReportWindowHours int    `yaml:"report_window_hours"`
	ReportSchedule    string `yaml:"report_schedule"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	Env    string `yaml:"env"`
}

// Load reads the configuration from the given path, fills in defaults and
// applies LAUNDROMAT_* environment overrides. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("config file %s not found; using defaults", path)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables on top of the file values.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	strs := map[string]*string{
		"server.static_dir":         &cfg.Server.StaticDir,
		"database.driver":           &cfg.Database.Driver,
		"database.dsn":              &cfg.Database.DSN,
		"push.vapid_public_key":     &cfg.Push.PublicKey,
		"push.vapid_private_key":    &cfg.Push.PrivateKey,
		"push.subject":              &cfg.Push.Subject,
		"line.channel_secret":       &cfg.Line.ChannelSecret,
		"line.channel_access_token": &cfg.Line.ChannelAccessToken,
		"line.api_base":             &cfg.Line.APIBase,
		"telegram.token":            &cfg.Telegram.Token,
		"webhook.url":               &cfg.Webhook.URL,
		"kafka.topic":               &cfg.Kafka.Topic,
		"log.level":                 &cfg.Log.Level,
		"log.env":                   &cfg.Log.Env,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	ints := map[string]*int{
		"server.port":                             &cfg.Server.Port,
		"scheduler.tick_millis":                   &cfg.Scheduler.TickMillis,
		"scheduler.almost_done_threshold_seconds": &cfg.Scheduler.AlmostDoneThresholdSeconds,
		"worker_pool.size":                        &cfg.WorkerPool.Size,
		"history.report_window_hours":             &cfg.History.ReportWindowHours,
	}
	for key, dst := range ints {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}

	if v.IsSet("log.pretty") {
		cfg.Log.Pretty = v.GetBool("log.pretty")
	}
	if v.IsSet("kafka.brokers") {
		cfg.Kafka.Brokers = splitList(v.GetString("kafka.brokers"))
	}
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

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3001
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 20
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 1
	}
	if cfg.Server.ShutdownTimeoutSeconds <= 0 {
		cfg.Server.ShutdownTimeoutSeconds = 5
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMemory
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}

	if cfg.Scheduler.TickMillis <= 0 {
		cfg.Scheduler.TickMillis = 1000
	}
	cfg.Scheduler.Tick = time.Duration(cfg.Scheduler.TickMillis) * time.Millisecond
	if cfg.Scheduler.AlmostDoneThresholdSeconds <= 0 {
		cfg.Scheduler.AlmostDoneThresholdSeconds = 60
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Line.APIBase == "" {
		cfg.Line.APIBase = "https://api.line.me"
	}
	if cfg.Line.TimeoutSeconds <= 0 {
		cfg.Line.TimeoutSeconds = 10
	}

	if cfg.Telegram.PollTimeoutSeconds <= 0 {
		cfg.Telegram.PollTimeoutSeconds = 10
	}

	if cfg.Webhook.TimeoutSeconds <= 0 {
		cfg.Webhook.TimeoutSeconds = 10
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "laundromat.machine.events"
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 2")
		cfg.WorkerPool.Size = 2
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.History.ListLimit <= 0 {
		cfg.History.ListLimit = 100
	}
	if cfg.History.ReportWindowHours <= 0 {
		cfg.History.ReportWindowHours = 24
	}
	if cfg.History.ReportSchedule == "" {
		cfg.History.ReportSchedule = "@hourly"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = "dev"
	}

	if len(cfg.Machines) == 0 {
		cfg.Machines = store.DefaultSeeds()
	}
}

// Validate reports configuration errors that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if (c.Push.PublicKey == "") != (c.Push.PrivateKey == "") {
		return fmt.Errorf("push.vapid_public_key and push.vapid_private_key must be set together")
	}
	if _, err := store.ValidateSeeds(c.Machines); err != nil {
		return fmt.Errorf("machines: %w", err)
	}
	return nil
}
