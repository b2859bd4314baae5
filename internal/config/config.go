package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
	"github.com/robfig/cron/v3"

	"github.com/0x0BSoD/turfoo/internal/model"
)

const EnvPrefix = "TURFOO"

var DefaultFiles = []string{"./config.hcl", "./config.local.hcl", "$HOME/.config/turfoo/config.hcl"}

type Config struct {
	ProgramFeedURL string `hcl:"program_feed_url" env:"PROGRAM_FEED_URL" required:"true"`
	NewsFeedURL    string `hcl:"news_feed_url" env:"NEWS_FEED_URL" required:"true"`
	ResultsFeedURL string `hcl:"results_feed_url" env:"RESULTS_FEED_URL" required:"true"`

	HTTPTimeout  time.Duration `hcl:"http_timeout" env:"HTTP_TIMEOUT" default:"30s"`
	HTTPInsecure bool          `hcl:"http_insecure" env:"HTTP_INSECURE"`
	UserAgent    string        `hcl:"user_agent" env:"USER_AGENT" default:"turfoo-ingest/1.0"`

	RedisAddr     string `hcl:"redis_addr" env:"REDIS_ADDR" default:"localhost:6379"`
	RedisUsername string `hcl:"redis_username" env:"REDIS_USERNAME"`
	RedisPassword string `hcl:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `hcl:"redis_db" env:"REDIS_DB" default:"0"`

	S3Endpoint  string `hcl:"s3_endpoint" env:"S3_ENDPOINT"`
	S3AccessKey string `hcl:"s3_access_key" env:"S3_ACCESS_KEY"`
	S3SecretKey string `hcl:"s3_secret_key" env:"S3_SECRET_KEY"`
	S3Bucket    string `hcl:"s3_bucket" env:"S3_BUCKET" default:"turfoo-raw"`
	S3Region    string `hcl:"s3_region" env:"S3_REGION"`

	DatabaseDSN string `hcl:"database_dsn" env:"DATABASE_DSN"`

	TelegramBotToken    string `hcl:"telegram_bot_token" env:"TELEGRAM_BOT_TOKEN"`
	TelegramAdminChatID int64  `hcl:"telegram_admin_chat_id" env:"TELEGRAM_ADMIN_CHAT_ID"`

	Workers           int           `hcl:"workers" env:"WORKERS" default:"4"`
	MaxTasksPerWorker int           `hcl:"max_tasks_per_worker" env:"MAX_TASKS_PER_WORKER" default:"100"`
	QueueSize         int           `hcl:"queue_size" env:"QUEUE_SIZE" default:"64"`
	SoftTimeLimit     time.Duration `hcl:"soft_time_limit" env:"SOFT_TIME_LIMIT" default:"25m"`
	HardTimeLimit     time.Duration `hcl:"hard_time_limit" env:"HARD_TIME_LIMIT" default:"30m"`
	MaxAttempts       int           `hcl:"max_attempts" env:"MAX_ATTEMPTS" default:"3"`
	RetryBackoff      time.Duration `hcl:"retry_backoff" env:"RETRY_BACKOFF" default:"30s"`
	MarkerTTL         time.Duration `hcl:"marker_ttl" env:"MARKER_TTL" default:"5m"`

	ProgramSchedule string `hcl:"program_schedule" env:"PROGRAM_SCHEDULE" default:"@every 1h"`
	NewsSchedule    string `hcl:"news_schedule" env:"NEWS_SCHEDULE" default:"@every 10m"`
	ResultsSchedule string `hcl:"results_schedule" env:"RESULTS_SCHEDULE" default:"@every 15m"`
	ScrapeSchedule  string `hcl:"scrape_schedule" env:"SCRAPE_SCHEDULE"`
	Timezone        string `hcl:"timezone" env:"TIMEZONE" default:"UTC"`

	HealthAddr string `hcl:"health_addr" env:"HEALTH_ADDR" default:":8080"`
	LogLevel   string `hcl:"log_level" env:"LOG_LEVEL" default:"info"`

	endpoints model.Endpoints
}

// Load reads the HCL files (missing ones are skipped) and the TURFOO_*
// environment, then validates the result.
func Load(files ...string) (*Config, error) {
	var cfg Config

	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:          true,
		EnvPrefix:          EnvPrefix,
		AllowUnknownFields: true,
		Files:              files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var (
	cfg     *Config
	loadErr error
	once    sync.Once
)

// Get loads the configuration from the default files once per process.
func Get() (*Config, error) {
	once.Do(func() {
		cfg, loadErr = Load(DefaultFiles...)
		if loadErr != nil {
			slog.Error("failed to load config", "err", loadErr)
		}
	})
	return cfg, loadErr
}

func (c *Config) validate() error {
	endpoints, err := model.NewEndpoints(c.ProgramFeedURL, c.NewsFeedURL, c.ResultsFeedURL)
	if err != nil {
		return fmt.Errorf("invalid feed endpoints: %w", err)
	}
	c.endpoints = endpoints

	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.HardTimeLimit <= 0 {
		errs = append(errs, errors.New("hard_time_limit must be positive"))
	}
	if c.SoftTimeLimit <= 0 || c.SoftTimeLimit >= c.HardTimeLimit {
		errs = append(errs, fmt.Errorf("soft_time_limit %s must be positive and below hard_time_limit %s", c.SoftTimeLimit, c.HardTimeLimit))
	}
	if c.MarkerTTL <= 0 {
		errs = append(errs, errors.New("marker_ttl must be positive"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	errs = append(errs, c.validateSchedules()...)
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// validateSchedules parses every cron spec and checks that a marker left by a
// dead worker expires before the next run of the same task.
func (c *Config) validateSchedules() []error {
	specs := map[string]string{
		"program_schedule": c.ProgramSchedule,
		"news_schedule":    c.NewsSchedule,
		"results_schedule": c.ResultsSchedule,
		"scrape_schedule":  c.ScrapeSchedule,
	}

	var errs []error
	for _, name := range slices.Sorted(maps.Keys(specs)) {
		spec := specs[name]
		if spec == "" {
			continue
		}
		interval, err := shortestInterval(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if c.MarkerTTL > interval {
			errs = append(errs, fmt.Errorf("marker_ttl %s must not exceed the %s interval %s", c.MarkerTTL, name, interval))
		}
	}
	return errs
}

// shortestInterval is the smallest gap between the next few activations.
func shortestInterval(spec string) (time.Duration, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, err
	}

	var (
		shortest time.Duration
		at       = sched.Next(time.Now().UTC())
	)
	for range 48 {
		next := sched.Next(at)
		if gap := next.Sub(at); shortest == 0 || gap < shortest {
			shortest = gap
		}
		at = next
	}
	return shortest, nil
}

func (c *Config) Endpoints() model.Endpoints {
	return c.endpoints
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return level, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Schedules maps fetch feed types to their cron specs.
func (c *Config) Schedules() map[model.FeedType]string {
	return map[model.FeedType]string{
		model.FeedProgram: c.ProgramSchedule,
		model.FeedNews:    c.NewsSchedule,
		model.FeedResults: c.ResultsSchedule,
	}
}

func (c *Config) BlobEnabled() bool {
	return c.S3Endpoint != ""
}
