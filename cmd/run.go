package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x0BSoD/turfoo/internal/scheduler"
)

func runCmd(files *[]string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <task> [key=value...]",
		Short: "Run one task now and print its summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parsePayload(args[1:])
			if err != nil {
				return err
			}

			cfg, err := loadConfig(*files)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			d, err := connect(ctx, cfg)
			defer d.close()
			if err != nil {
				return err
			}

			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				_ = d.pool.Start(ctx)
			}()
			defer func() {
				cancel()
				<-stopped
			}()

			done, err := d.pool.Submit(ctx, args[0], payload)
			if err != nil {
				return err
			}

			var res scheduler.Result
			select {
			case r, ok := <-done:
				if !ok {
					return scheduler.ErrPoolStopped
				}
				res = r
			case <-ctx.Done():
				return ctx.Err()
			}

			return printResult(os.Stdout, res)
		},
	}
}

func parsePayload(args []string) (map[string]string, error) {
	payload := make(map[string]string, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("payload argument %q is not key=value", arg)
		}
		payload[key] = value
	}
	return payload, nil
}

func printResult(w io.Writer, res scheduler.Result) error {
	switch res.State {
	case scheduler.StateSucceeded:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Summary)
	case scheduler.StateSkipped:
		log.Printf("[INFO] %s skipped: %s", res.Task, res.ErrorText())
		return nil
	default:
		return errors.Join(fmt.Errorf("%s %s after %d attempt(s)", res.Task, res.State, res.Attempts), res.Err)
	}
}
