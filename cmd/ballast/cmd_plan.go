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
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ballast/services/balance/inbox"
	"github.com/AleutianAI/ballast/services/balance/manifest"
)

func newPlanCmd(a *app) *cobra.Command {
	var maxExpansions int
	cmd := &cobra.Command{
		Use:   "plan MANIFEST...",
		Short: "Plan one or more manifests and print the plans as YAML",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-expansions") {
				a.cfg.Balance.MaxExpansions = maxExpansions
			}
			return runPlan(cmd.Context(), a, args, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&maxExpansions, "max-expansions", 0, "cap on states expanded per search (0 = unlimited)")
	return cmd
}

// runPlan writes one YAML document per manifest. A manifest that cannot
// be planned gets a document with its error and the command fails after
// the rest are printed.
func runPlan(ctx context.Context, a *app, paths []string, out io.Writer) error {
	be, err := openBackend(a.cfg, a.logger.Slog(), nil, planOnly)
	if err != nil {
		return err
	}
	defer be.Close()

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()

	failed := 0
	for _, path := range paths {
		report := inbox.Report{Manifest: filepath.Base(path), PlannedAt: time.Now().UTC()}

		g, err := manifest.ReadFile(path)
		if err == nil {
			report.Result, err = be.svc.Solve(ctx, g)
		}
		if err != nil {
			report.Error = err.Error()
			failed++
		}
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write plan: %w", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d manifests could not be planned", failed, len(paths))
	}
	return nil
}
