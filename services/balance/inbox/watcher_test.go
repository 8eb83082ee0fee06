// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inbox

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/manifest"
	"github.com/AleutianAI/ballast/services/balance/planner"
)

type plannerSolver struct {
	calls atomic.Int32
}

func (s *plannerSolver) Solve(_ context.Context, g grid.Grid) (*balance.PlanResponse, error) {
	s.calls.Add(1)
	result, err := planner.Solve(g, planner.Options{})
	if err != nil {
		return nil, err
	}
	return &balance.PlanResponse{
		Containers:   manifest.CountContainers(&g),
		Balanced:     len(result.Plan.Steps) == 0,
		Plan:         result.Plan,
		Thresholds:   result.Thresholds,
		Stats:        result.Stats,
		InitialScore: result.InitialScore,
		FinalScore:   result.FinalScore,
	}, nil
}

func writeManifest(t *testing.T, path string) {
	t.Helper()
	g := grid.New()
	require.NoError(t, g.Set(grid.Cell{Row: 1, Col: 1}, grid.Content{Label: "Cat", Weight: 100}))
	require.NoError(t, g.Set(grid.Cell{Row: 2, Col: 1}, grid.Content{Label: "Dog", Weight: 100}))
	var buf bytes.Buffer
	require.NoError(t, manifest.Format(&buf, g))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func readReport(t *testing.T, path string) Report {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var r Report
	require.NoError(t, yaml.Unmarshal(data, &r))
	return r
}

func quietOptions() Options {
	opts := DefaultOptions()
	opts.Debounce = 20 * time.Millisecond
	opts.Logger = slog.New(slog.DiscardHandler)
	return opts
}

func TestIsManifest(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ShipCase1.txt", true},
		{"ShipCase1.TXT", true},
		{"dir/ShipCase1.txt", true},
		{"ShipCase1OUTBOUND.txt", false},
		{"ShipCase1OUTBOUND1.txt", false},
		{"ShipCase1.plan.yaml", false},
		{".hidden.txt", false},
		{"notes.md", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsManifest(tt.name))
		})
	}
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, filepath.Join("in", "ShipCase1.plan.yaml"), ReportPath(filepath.Join("in", "ShipCase1.txt")))
}

func TestNew_Validation(t *testing.T) {
	_, err := New(t.TempDir(), nil, quietOptions())
	assert.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "missing"), &plannerSolver{}, quietOptions())
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file, &plannerSolver{}, quietOptions())
	assert.Error(t, err)
}

func TestWatcher_PlansNewManifest(t *testing.T) {
	dir := t.TempDir()
	reports := make(chan string, 4)
	opts := quietOptions()
	opts.OnReport = func(path string, _ Report) { reports <- path }

	solver := &plannerSolver{}
	w, err := New(dir, solver, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := filepath.Join(dir, "ShipCase1.txt")
	writeManifest(t, path)

	select {
	case got := <-reports:
		assert.Equal(t, ReportPath(path), got)
	case <-time.After(5 * time.Second):
		t.Fatal("no report written")
	}

	r := readReport(t, ReportPath(path))
	assert.Equal(t, "ShipCase1.txt", r.Manifest)
	assert.Empty(t, r.Error)
	require.NotNil(t, r.Result)
	assert.Equal(t, 2, r.Result.Containers)
	assert.Equal(t, 7, r.Result.Plan.TotalCost)
	assert.Equal(t, 1, r.Result.Plan.Relocations())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWatcher_BackfillSkipsPlanned(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, filepath.Join(dir, "Fresh.txt"))
	writeManifest(t, filepath.Join(dir, "Done.txt"))
	writeManifest(t, filepath.Join(dir, "DoneOUTBOUND.txt"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Done.plan.yaml"), []byte("manifest: Done.txt\n"), 0o644))

	opts := quietOptions()
	opts.Backfill = true
	solver := &plannerSolver{}
	w, err := New(dir, solver, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	assert.Equal(t, int32(1), solver.calls.Load())
	assert.FileExists(t, filepath.Join(dir, "Fresh.plan.yaml"))
	assert.NoFileExists(t, filepath.Join(dir, "DoneOUTBOUND.plan.yaml"))
}

func TestWatcher_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Broken.txt"), []byte("not a manifest\n"), 0o644))

	opts := quietOptions()
	opts.Backfill = true
	solver := &plannerSolver{}
	w, err := New(dir, solver, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	r := readReport(t, filepath.Join(dir, "Broken.plan.yaml"))
	assert.NotEmpty(t, r.Error)
	assert.Nil(t, r.Result)
	assert.Equal(t, int32(0), solver.calls.Load())
}

type failingSolver struct{}

func (failingSolver) Solve(context.Context, grid.Grid) (*balance.PlanResponse, error) {
	return nil, errors.New("search budget exhausted")
}

func TestWatcher_SolverErrorInReport(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, filepath.Join(dir, "Ship.txt"))

	opts := quietOptions()
	opts.Backfill = true
	w, err := New(dir, failingSolver{}, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	r := readReport(t, filepath.Join(dir, "Ship.plan.yaml"))
	assert.Equal(t, "search budget exhausted", r.Error)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := New(t.TempDir(), &plannerSolver{}, quietOptions())
	require.NoError(t, err)
	w.Stop()
	w.Stop()
	assert.NoError(t, w.Run(context.Background()))
}
