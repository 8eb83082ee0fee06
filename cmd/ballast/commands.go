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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ballast/cmd/ballast/config"
	"github.com/AleutianAI/ballast/pkg/logging"
)

// app carries what every subcommand needs once the config is loaded.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "ballast",
		Short: "Plan and walk through crane moves that balance a ship",
		Long: `ballast reads a bay manifest, searches for the cheapest sequence of
crane moves that brings the ship within its balance limits, and walks an
operator through the moves while keeping the outbound manifest and the
operator journal up to date.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.load(cmd.Name() == "step")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "",
		"config file (default $BALLAST_CONFIG or ~/.ballast/ballast.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newServeCmd(a),
		newPlanCmd(a),
		newStepCmd(a),
		newWatchCmd(a),
		newVersionCmd(),
	)
	return rootCmd
}

// load reads the config and builds the process logger. Interactive
// commands keep the console free for the terminal UI.
func (a *app) load(interactive bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	levelName := cfg.Logging.Level
	if a.logLevel != "" {
		levelName = a.logLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "ballast",
		JSON:    cfg.Logging.JSON,
		Quiet:   interactive,
	})
	slog.SetDefault(a.logger.Slog())
	return nil
}
