package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x0BSoD/turfoo/internal/fetcher"
	"github.com/0x0BSoD/turfoo/internal/ingest"
	"github.com/0x0BSoD/turfoo/internal/resource"
	"github.com/0x0BSoD/turfoo/internal/scheduler"
)

func workerCmd(files *[]string) *cobra.Command {
	var skipKickoff bool

	c := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool, the feed schedules and the health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*files)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx := cmd.Context()

			d, err := connect(ctx, cfg)
			defer d.close()
			if err != nil {
				log.Printf("[ERROR] failed to connect resources: %v", err)
				return err
			}

			sched := scheduler.New(d.pool, cfg.Location())
			for ft, spec := range cfg.Schedules() {
				if err := sched.Every(spec, ingest.FetchTask(ft), nil); err != nil {
					return err
				}
			}
			if err := sched.Every(cfg.ScrapeSchedule, ingest.TaskScrapeResults, nil); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HealthAddr,
				Handler:           healthHandler(d.health()),
				ReadHeaderTimeout: 5 * time.Second,
			}

			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := d.pool.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("[ERROR] failed to run pool: %v", err)
					return
				}
				log.Printf("[INFO] pool stopped")
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("[ERROR] failed to run scheduler: %v", err)
					return
				}
				log.Printf("[INFO] scheduler stopped")
			}()

			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Printf("[ERROR] failed to run http server: %v", err)
					return
				}
				log.Printf("[INFO] http server stopped")
			}()

			if !skipKickoff {
				go fetcher.New(d.pool).Fetch(ctx)
			}

			log.Printf("[INFO] worker started with %d worker(s), tasks: %v", cfg.Workers, d.pool.Tasks())
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("[WARN] failed to shut down http server: %v", err)
			}

			wg.Wait()
			return nil
		},
	}

	c.Flags().BoolVar(&skipKickoff, "no-kickoff", false, "Do not fetch every feed once at startup")
	return c
}

func healthHandler(checkers map[string]resource.HealthCheckable) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := resource.CheckHealth(ctx, checkers)

		w.Header().Set("Content-Type", "application/json")
		if !health.OK {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
	return mux
}
