// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ballast/services/balance/inbox"
)

func newWatchCmd(a *app) *cobra.Command {
	var backfill bool
	cmd := &cobra.Command{
		Use:   "watch [DIR]",
		Short: "Plan every manifest dropped into a directory",
		Long: `watch plans each .txt manifest written into DIR (or inbox.dir from the
config) and writes the result next to it as <name>.plan.yaml.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.cfg.Inbox.Dir = args[0]
			}
			if cmd.Flags().Changed("backfill") {
				a.cfg.Inbox.Backfill = backfill
			}
			return runWatch(cmd.Context(), a)
		},
	}
	cmd.Flags().BoolVar(&backfill, "backfill", false, "also plan manifests already in the directory")
	return cmd
}

func runWatch(ctx context.Context, a *app) error {
	if a.cfg.Inbox.Dir == "" {
		return errors.New("no inbox directory: pass DIR or set inbox.dir")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := a.logger.Slog()

	be, err := openBackend(a.cfg, logger, nil, planOnly)
	if err != nil {
		return err
	}
	defer be.Close()

	w, err := inbox.New(a.cfg.Inbox.Dir, be.svc, inbox.Options{
		Debounce: a.cfg.Inbox.Debounce,
		Backfill: a.cfg.Inbox.Backfill,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	logger.Info("watching inbox", slog.String("dir", a.cfg.Inbox.Dir))
	return w.Run(ctx)
}
