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
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/tui"
)

// ErrNotTerminal is returned when step is run without a terminal.
var ErrNotTerminal = errors.New("step needs an interactive terminal; use `ballast plan` instead")

func newStepCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "step MANIFEST",
		Short: "Walk through a manifest's plan one crane move at a time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
				return ErrNotTerminal
			}
			return runStep(cmd.Context(), a, args[0], yes, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "save the outbound manifest without asking")
	return cmd
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func runStep(ctx context.Context, a *app, path string, yes bool, out io.Writer) error {
	be, err := openBackend(a.cfg, a.logger.Slog(), nil, operatorWindow)
	if err != nil {
		return err
	}
	defer be.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	initial, err := be.svc.Upload(ctx, filepath.Base(path), f)
	f.Close()
	if err != nil {
		return err
	}

	final, err := tea.NewProgram(tui.NewStepper(ctx, be.svc, initial), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("stepper: %w", err)
	}
	model := final.(tui.StepperModel)
	if !model.Finished() {
		view := model.Current()
		fmt.Fprintf(out, "Stopped at step %d of %d. Journal: %s\n", view.CurrentStep+1, view.NumSteps, be.journal.Path())
		return nil
	}
	if initial.NumSteps == 0 {
		fmt.Fprintln(out, "Ship is already balanced.")
		return nil
	}

	save := yes
	if !save {
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Save %s next to %s?", initial.Outbound, filepath.Base(path))).
			Affirmative("Save").
			Negative("Skip").
			Value(&save).
			Run()
		if err != nil {
			return err
		}
	}
	if !save {
		return nil
	}

	dest, err := saveOutbound(be.svc, string(initial.SessionID), filepath.Dir(path))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Outbound manifest written to %s\n", dest)
	return nil
}

// saveOutbound copies a session's outbound manifest into dir under its
// download name.
func saveOutbound(svc *balance.Service, id, dir string) (string, error) {
	src, name, err := svc.Manifest(id)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(dir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}
