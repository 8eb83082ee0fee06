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
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/ballast/cmd/ballast/config"
	"github.com/AleutianAI/ballast/services/balance"
	"github.com/AleutianAI/ballast/services/balance/archive"
	"github.com/AleutianAI/ballast/services/balance/journal"
	"github.com/AleutianAI/ballast/services/balance/observability"
)

// backendMode says whether a command is an operator window.
type backendMode int

const (
	// planOnly runs without the operator journal. Used by plan and watch,
	// which must never replace the journal of a running window.
	planOnly backendMode = iota

	// operatorWindow opens a fresh journal for the run.
	operatorWindow
)

// backend is an open balance service with the stores behind it.
type backend struct {
	svc     *balance.Service
	journal *journal.Journal
	archive *archive.Store
}

// openBackend opens the plan archive and the service, and the journal when
// mode is operatorWindow. A nil reg leaves the service without metrics.
//
// An archive that cannot be opened (typically because `ballast serve`
// already holds it) is skipped with a warning. Plans are then searched
// every time.
func openBackend(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer, mode backendMode) (*backend, error) {
	rt := &backend{}
	if mode == operatorWindow {
		j, err := journal.Open(cfg.Balance.JournalDir, time.Now)
		if err != nil {
			return nil, err
		}
		rt.journal = j
	}

	opts := []balance.Option{balance.WithLogger(logger)}
	if cfg.Archive.Enabled {
		arcCfg := cfg.ArchiveStoreConfig()
		arcCfg.Logger = logger
		store, err := archive.Open(arcCfg)
		if err != nil {
			logger.Warn("plan archive unavailable, searching without it",
				slog.String("path", arcCfg.Path),
				slog.String("error", err.Error()))
		} else {
			rt.archive = store
			opts = append(opts, balance.WithArchive(store))
		}
	}
	if reg != nil {
		opts = append(opts, balance.WithMetrics(observability.New(reg)))
	}

	svc, err := balance.NewService(cfg.ServiceConfig(), rt.journal, opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.svc = svc
	return rt, nil
}

// Close shuts the service down before the stores it writes to.
func (r *backend) Close() error {
	var errs []error
	if r.svc != nil {
		errs = append(errs, r.svc.Close())
	}
	if r.archive != nil {
		errs = append(errs, r.archive.Close())
	}
	errs = append(errs, r.journal.Close())
	return errors.Join(errs...)
}
