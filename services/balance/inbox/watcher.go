// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inbox plans manifests dropped into a directory.
//
// A Watcher listens for new or rewritten .txt manifests, waits for writes
// to settle, plans each one and writes the result next to it as
// "<name>.plan.yaml". Outbound manifests and plan files are ignored, so
// the inbox can share a directory with the balance service's data.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/manifest"
)

// PlanSuffix is appended to a manifest's stem to name its plan report.
const PlanSuffix = ".plan.yaml"

// Solver plans a bay. *balance.Service satisfies it.
type Solver interface {
	Solve(ctx context.Context, g grid.Grid) (*balance.PlanResponse, error)
}

// Report is the YAML document written for each manifest.
type Report struct {
	Manifest  string                `yaml:"manifest"`
	PlannedAt time.Time             `yaml:"planned_at"`
	Error     string                `yaml:"error,omitempty"`
	Result    *balance.PlanResponse `yaml:"result,omitempty"`
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long a manifest must stay quiet before it is planned.
	// Default: 250ms
	Debounce time.Duration

	// Backfill plans manifests already in the directory that have no
	// report yet when the watcher starts.
	Backfill bool

	// OnReport is called after each report is written.
	OnReport func(path string, r Report)

	// Logger receives progress messages. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{Debounce: 250 * time.Millisecond}
}

// Watcher plans manifests as they arrive in a directory.
//
// Thread Safety: Run may be called once. Stop is safe from any goroutine.
type Watcher struct {
	dir     string
	solver  Solver
	opts    Options
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher on dir.
func New(dir string, solver Solver, opts Options) (*Watcher, error) {
	if solver == nil {
		return nil, errors.New("solver is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("inbox directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("inbox %s is not a directory", dir)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultOptions().Debounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		solver:  solver,
		opts:    opts,
		logger:  logger.With("component", "inbox", "dir", dir),
		watcher: fw,
		changes: make(chan string, 256),
		done:    make(chan struct{}),
	}, nil
}

// IsManifest reports whether name is a manifest the inbox should plan.
func IsManifest(name string) bool {
	base := filepath.Base(name)
	if !strings.EqualFold(filepath.Ext(base), ".txt") {
		return false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.Contains(strings.ToUpper(stem), "OUTBOUND") {
		return false
	}
	return !strings.HasPrefix(base, ".")
}

// ReportPath returns where the report for the manifest at path is written.
func ReportPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + PlanSuffix
}

// Run processes events until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Stop()

	if w.opts.Backfill {
		w.backfill(ctx)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.debounceLoop(ctx)
	}()

	w.processEvents(ctx)
	w.Stop()
	wg.Wait()
	return nil
}

// Stop ends Run. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsManifest(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				w.logger.Warn("inbox event buffer full, dropping", slog.String("path", event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", slog.String("error", err.Error()))
		}
	}
}

// debounceLoop batches paths until the inbox has been quiet for the
// debounce window, then plans each distinct path once.
func (w *Watcher) debounceLoop(ctx context.Context) {
	batch := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		paths := make([]string, 0, len(batch))
		for p := range batch {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		clear(batch)
		for _, p := range paths {
			w.process(ctx, p)
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			batch[path] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

func (w *Watcher) backfill(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("backfill failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !IsManifest(e.Name()) {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if _, err := os.Stat(ReportPath(path)); err == nil {
			continue
		}
		w.process(ctx, path)
	}
}

// process plans one manifest and writes its report. Failures are written
// into the report as well.
func (w *Watcher) process(ctx context.Context, path string) {
	report := Report{Manifest: filepath.Base(path), PlannedAt: time.Now().UTC()}

	g, err := manifest.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err == nil {
		report.Result, err = w.solver.Solve(ctx, g)
	}
	if err != nil {
		report.Error = err.Error()
		w.logger.Warn("manifest not planned", slog.String("manifest", report.Manifest), slog.String("error", err.Error()))
	} else {
		w.logger.Info("manifest planned",
			slog.String("manifest", report.Manifest),
			slog.Int("relocations", report.Result.Plan.Relocations()),
			slog.Int("total_cost", report.Result.Plan.TotalCost))
	}

	out := ReportPath(path)
	if err := writeReport(out, report); err != nil {
		w.logger.Error("write plan report", slog.String("path", out), slog.String("error", err.Error()))
		return
	}
	if w.opts.OnReport != nil {
		w.opts.OnReport(out, report)
	}
}

// writeReport writes atomically so readers never see half a report.
func writeReport(path string, r Report) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".plan-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
