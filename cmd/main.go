// Copyright (c) 2024, 0x0BSoD. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var files []string

	cmd := &cobra.Command{
		Use:          "turfoo",
		Short:        "turfoo racing feed ingest worker",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringSliceVarP(&files, "config", "c", nil, "HCL config file(s); defaults to ./config.hcl, ./config.local.hcl, $HOME/.config/turfoo/config.hcl")
	cmd.AddCommand(workerCmd(&files), runCmd(&files))
	return cmd
}
