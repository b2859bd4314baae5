package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/0x0BSoD/turfoo/internal/blob"
	"github.com/0x0BSoD/turfoo/internal/cache"
	"github.com/0x0BSoD/turfoo/internal/config"
	"github.com/0x0BSoD/turfoo/internal/ingest"
	"github.com/0x0BSoD/turfoo/internal/reporter"
	"github.com/0x0BSoD/turfoo/internal/resource"
	"github.com/0x0BSoD/turfoo/internal/scheduler"
	"github.com/0x0BSoD/turfoo/internal/source"
	"github.com/0x0BSoD/turfoo/internal/storage"
)

type blobStore interface {
	resource.Connectable
	resource.HealthCheckable
	ingest.BlobStore
}

type deps struct {
	cfg     *config.Config
	cache   *cache.Redis
	blobs   blobStore
	db      *sqlx.DB
	pool    *scheduler.Pool
	service *ingest.Service
}

func loadConfig(files []string) (*config.Config, error) {
	if len(files) == 0 {
		return config.Get()
	}
	return config.Load(files...)
}

func setupLogging(cfg *config.Config) {
	level, _ := cfg.Level()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// connect wires every resource the ingest tasks need. The caller must call
// close when done, also after an error.
func connect(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{cfg: cfg}

	d.cache = cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := d.cache.Connect(ctx); err != nil {
		return d, err
	}

	if cfg.BlobEnabled() {
		d.blobs = blob.NewS3(blob.S3Config{
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
		})
	} else {
		log.Printf("[WARN] s3_endpoint is not set, raw payloads are kept in memory")
		d.blobs = blob.NewMemory()
	}
	if err := d.blobs.Connect(ctx); err != nil {
		return d, err
	}

	var recorders []scheduler.Recorder

	if cfg.DatabaseDSN != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DatabaseDSN)
		if err != nil {
			return d, &resource.ConnectionError{Resource: "postgres", Addr: "database_dsn", Err: err}
		}
		d.db = db

		runs := storage.NewRunStorage(db)
		if err := runs.Ensure(ctx); err != nil {
			return d, fmt.Errorf("ensure task_runs: %w", err)
		}
		recorders = append(recorders, runs)
	}

	alerts, err := reporter.Connect(cfg.TelegramBotToken, cfg.TelegramAdminChatID)
	if err != nil {
		log.Printf("[WARN] alerts disabled: %v", err)
	}
	if alerts != nil {
		recorders = append(recorders, alerts)
	}

	opts := source.Options{
		Timeout:   cfg.HTTPTimeout,
		Insecure:  cfg.HTTPInsecure,
		UserAgent: cfg.UserAgent,
	}
	d.service = ingest.New(
		source.NewRSSFeed(cfg.Endpoints(), opts),
		source.NewLinkScraper(opts),
		d.cache,
		d.blobs,
		cfg.MarkerTTL,
	)

	d.pool = scheduler.NewPool(scheduler.Config{
		Workers:           cfg.Workers,
		MaxTasksPerWorker: cfg.MaxTasksPerWorker,
		QueueSize:         cfg.QueueSize,
		SoftTimeLimit:     cfg.SoftTimeLimit,
		HardTimeLimit:     cfg.HardTimeLimit,
		Retry: scheduler.RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.RetryBackoff,
			Retryable:   source.Retryable,
		},
	}, recorders...)
	d.service.Register(d.pool)

	return d, nil
}

func (d *deps) health() map[string]resource.HealthCheckable {
	return map[string]resource.HealthCheckable{
		"redis": d.cache,
		"blob":  d.blobs,
	}
}

func (d *deps) close() {
	if d.blobs != nil {
		d.blobs.Disconnect()
	}
	if d.cache != nil {
		d.cache.Disconnect()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			log.Printf("[WARN] failed to close db: %v", err)
		}
	}
}
