// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package balance serves crane balance plans to port operators.
//
// An operator uploads a bay manifest, the service plans it (consulting the
// plan archive first), and then walks the operator through the plan one
// crane operation at a time. Every upload, solution, relocation, note and
// finished cycle is written to the operator journal, and the outbound
// manifest is rewritten after each relocation so it always matches the bay.
package balance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ballast/pkg/telemetry"
	"github.com/AleutianAI/ballast/pkg/validation"
	"github.com/AleutianAI/ballast/services/balance/archive"
	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/journal"
	"github.com/AleutianAI/ballast/services/balance/manifest"
	"github.com/AleutianAI/ballast/services/balance/observability"
	"github.com/AleutianAI/ballast/services/balance/planner"
)

var tracer = otel.Tracer("ballast/balance")

// ServiceConfig configures the balance service.
type ServiceConfig struct {
	// DataDir holds uploaded manifests and their outbound copies.
	// Default: "data"
	DataDir string

	// MaxExpansions caps the states a single search may expand.
	// Default: 0 (unlimited)
	MaxExpansions int

	// SessionTTL evicts sessions idle for longer than this.
	// Default: 2 hours
	SessionTTL time.Duration

	// SweepInterval is how often Run evicts idle sessions.
	// Default: 5 minutes
	SweepInterval time.Duration

	// MaxUploadBytes rejects larger manifests.
	// Default: 1 MiB
	MaxUploadBytes int64

	// MaxSessions caps live sessions; the longest idle is evicted first.
	// Default: 64
	MaxSessions int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		DataDir:        "data",
		SessionTTL:     2 * time.Hour,
		SweepInterval:  5 * time.Minute,
		MaxUploadBytes: 1 << 20,
		MaxSessions:    64,
	}
}

// Service plans manifests and steps operators through the plans.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	config  ServiceConfig
	journal *journal.Journal
	archive *archive.Store
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.RWMutex
	sessions    map[string]*Session
	subscribers map[string]map[chan StreamEvent]struct{}
	closed      bool
}

// Option customizes a Service.
type Option func(*Service)

// WithArchive caches plans in store.
func WithArchive(store *archive.Store) Option {
	return func(s *Service) { s.archive = store }
}

// WithMetrics records service metrics into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces time.Now for session bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the service and its data directory.
//
// # Inputs
//
//   - config: Service configuration. Zero fields are not defaulted.
//   - jrnl: The operator journal. Nil runs without one: nothing is
//     journaled and Note and JournalPath fail with ErrNoJournal.
//   - opts: Optional archive, metrics, logger and clock.
//
// # Outputs
//
//   - *Service: Ready to serve.
//   - error: Non-nil if the data directory cannot be created.
func NewService(config ServiceConfig, jrnl *journal.Journal, opts ...Option) (*Service, error) {
	if err := os.MkdirAll(config.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", config.DataDir, err)
	}

	s := &Service{
		config:      config,
		journal:     jrnl,
		logger:      slog.Default(),
		now:         time.Now,
		sessions:    make(map[string]*Session),
		subscribers: make(map[string]map[chan StreamEvent]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "balance")
	return s, nil
}

// Plan parses a manifest body and plans it without opening a session.
func (s *Service) Plan(ctx context.Context, text string) (*PlanResponse, error) {
	g, err := manifest.ParseString(text)
	if err != nil {
		return nil, err
	}
	return s.Solve(ctx, g)
}

// Solve plans g, consulting the archive first.
//
// # Description
//
// A layout seen before is answered from the archive without searching.
// Otherwise the planner runs with the configured expansion cap, and a
// successful plan is archived for next time. Archive failures are logged
// and never fail the call.
//
// # Outputs
//
//   - *PlanResponse: The plan and search statistics.
//   - error: planner.ErrMalformedGrid, ErrNoFeasiblePlan, ErrExpansionLimit
//     or the context's error.
func (s *Service) Solve(ctx context.Context, g grid.Grid) (*PlanResponse, error) {
	ctx, span := tracer.Start(ctx, "balance.Solve")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := archive.Digest(&g)
	span.SetAttributes(attribute.String("digest", digest))
	resp := &PlanResponse{
		Digest:     digest,
		Containers: manifest.CountContainers(&g),
	}

	if entry, ok := s.lookup(ctx, digest); ok {
		resp.Cached = true
		resp.Plan = entry.Plan
		resp.Thresholds = entry.Thresholds
		resp.Stats = entry.Stats
		resp.InitialScore = entry.InitialScore
		resp.FinalScore = entry.FinalScore
		resp.Balanced = len(entry.Plan.Steps) == 0
		span.SetAttributes(attribute.Bool("cached", true))
		s.metrics.RecordSearch(observability.OutcomeCached, 0, 0, entry.Plan.TotalCost)
		return resp, nil
	}

	start := time.Now()
	result, err := planner.Solve(g, planner.Options{MaxExpansions: s.config.MaxExpansions})
	elapsed := time.Since(start)

	outcome := searchOutcome(result, err)
	s.metrics.RecordSearch(outcome, result.Stats.Expanded, elapsed.Seconds(), result.Plan.TotalCost)
	span.SetAttributes(
		attribute.String("outcome", string(outcome)),
		attribute.Int("expanded", result.Stats.Expanded),
	)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.WarnContext(ctx, "search failed",
			slog.String("digest", digest),
			slog.String("outcome", string(outcome)),
			slog.Int("expanded", result.Stats.Expanded),
			slog.String("error", err.Error()))
		return nil, err
	}

	resp.Plan = result.Plan
	resp.Thresholds = result.Thresholds
	resp.Stats = result.Stats
	resp.InitialScore = result.InitialScore
	resp.FinalScore = result.FinalScore
	resp.Balanced = len(result.Plan.Steps) == 0
	resp.DurationMs = elapsed.Milliseconds()

	s.logger.InfoContext(ctx, "search finished",
		slog.String("digest", digest),
		slog.Int("relocations", result.Plan.Relocations()),
		slog.Int("total_cost", result.Plan.TotalCost),
		slog.Int("expanded", result.Stats.Expanded),
		slog.Duration("elapsed", elapsed))

	s.remember(ctx, digest, result)
	return resp, nil
}

func searchOutcome(result *planner.Result, err error) observability.Outcome {
	switch {
	case errors.Is(err, planner.ErrMalformedGrid):
		return observability.OutcomeMalformed
	case errors.Is(err, planner.ErrExpansionLimit):
		return observability.OutcomeLimit
	case err != nil:
		return observability.OutcomeInfeasible
	case len(result.Plan.Steps) == 0:
		return observability.OutcomeBalanced
	default:
		return observability.OutcomeSolved
	}
}

func (s *Service) lookup(ctx context.Context, digest string) (archive.Entry, bool) {
	if s.archive == nil {
		return archive.Entry{}, false
	}
	entry, err := s.archive.Get(ctx, digest)
	switch {
	case err == nil:
		s.metrics.RecordArchiveLookup("hit")
		return entry, true
	case errors.Is(err, archive.ErrNotFound):
		s.metrics.RecordArchiveLookup("miss")
	default:
		s.metrics.RecordArchiveLookup("error")
		s.logger.WarnContext(ctx, "archive lookup failed", slog.String("digest", digest), slog.String("error", err.Error()))
	}
	return archive.Entry{}, false
}

func (s *Service) remember(ctx context.Context, digest string, result *planner.Result) {
	if s.archive == nil {
		return
	}
	err := s.archive.Put(ctx, digest, archive.Entry{
		Plan:         result.Plan,
		Thresholds:   result.Thresholds,
		Stats:        result.Stats,
		InitialScore: result.InitialScore,
		FinalScore:   result.FinalScore,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "archive store failed", slog.String("digest", digest), slog.String("error", err.Error()))
	}
}

// Upload saves a manifest, plans it and opens a session for it.
//
// # Description
//
// The filename is sanitized and must end in .txt. The manifest is saved
// under the data directory and copied to a fresh "<name>OUTBOUND.txt",
// which is rewritten after every relocation. The journal records the
// opened manifest and the solution found.
//
// # Outputs
//
//   - *GridResponse: The new session at its first step.
//   - error: ErrEmptyUpload, ErrInvalidFileType, ErrUploadTooLarge, a
//     manifest parse error or a planner error.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*GridResponse, error) {
	ctx, span := tracer.Start(ctx, "balance.Upload", trace.WithAttributes(
		attribute.String("filename", filename),
	))
	defer span.End()

	resp, err := s.upload(ctx, filename, r)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("session_id", string(resp.SessionID)))
	return resp, nil
}

func (s *Service) upload(ctx context.Context, filename string, r io.Reader) (*GridResponse, error) {
	if filename == "" {
		s.metrics.RecordUpload(observability.UploadRejected)
		return nil, ErrEmptyUpload
	}
	name, err := validation.SanitizeManifestName(filename)
	if err != nil {
		s.metrics.RecordUpload(observability.UploadRejected)
		return nil, fmt.Errorf("%w: %w", ErrInvalidFileType, err)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxUploadBytes+1))
	if err != nil {
		s.metrics.RecordUpload(observability.UploadFailed)
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		s.metrics.RecordUpload(observability.UploadRejected)
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrUploadTooLarge, s.config.MaxUploadBytes)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.metrics.RecordUpload(observability.UploadRejected)
		return nil, ErrEmptyUpload
	}

	savedPath := filepath.Join(s.config.DataDir, name)
	if err := os.WriteFile(savedPath, data, 0o644); err != nil {
		s.metrics.RecordUpload(observability.UploadFailed)
		return nil, fmt.Errorf("save manifest: %w", err)
	}

	g, err := manifest.Parse(bytes.NewReader(data))
	if err != nil {
		s.metrics.RecordUpload(observability.UploadRejected)
		return nil, err
	}
	s.journalErr(s.journal.ManifestOpened(name, manifest.CountContainers(&g)))

	plan, err := s.Solve(ctx, g)
	if err != nil {
		s.metrics.RecordUpload(observability.UploadFailed)
		return nil, err
	}
	s.journalErr(s.journal.SolutionFound(len(plan.Plan.Steps), plan.Plan.TotalCost))

	outboundName := OutboundName(name)
	outboundPath, err := writeUnique(s.config.DataDir, outboundName, data)
	if err != nil {
		s.metrics.RecordUpload(observability.UploadFailed)
		return nil, fmt.Errorf("create outbound manifest: %w", err)
	}

	now := s.now()
	sess := newSession(uuid.NewString(), g, plan.Plan, now)
	sess.manifest = name
	sess.outboundName = outboundName
	sess.outboundPath = outboundPath
	sess.cached = plan.Cached

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	s.sessions[sess.id] = sess
	s.metrics.SessionOpened()
	s.evictIfNeeded()
	s.mu.Unlock()

	s.metrics.RecordUpload(observability.UploadAccepted)
	s.logger.Info("session opened",
		slog.String("session_id", sess.id),
		slog.String("manifest", name),
		slog.Int("steps", len(sess.steps)),
		slog.Bool("cached", plan.Cached))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// OutboundName returns the download name of the updated manifest for an
// uploaded one: "ShipCase1.txt" becomes "ShipCase1OUTBOUND.txt".
func OutboundName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + "OUTBOUND.txt"
}

// writeUnique writes data to dir/name, or to dir/<stem>N<ext> for the
// first N that does not exist yet.
func writeUnique(dir, name string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			candidate = stem + strconv.Itoa(n) + ext
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", err
		}
		return path, f.Close()
	}
}

// Current returns the session at its current step.
func (s *Service) Current(id string) (*GridResponse, error) {
	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// Next finishes the current step and returns the session at the next one.
//
// # Description
//
// Leaving a relocation rewrites the outbound manifest and journals the
// move before the live grid changes. A finished session is returned as is.
// Subscribers receive the new state.
func (s *Service) Next(ctx context.Context, id string) (*GridResponse, error) {
	_, span := tracer.Start(ctx, "balance.Next", trace.WithAttributes(
		attribute.String("session_id", id),
	))
	defer span.End()

	sess, err := s.session(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	if step, ok := sess.pending(); ok {
		after := sess.grid
		after.Swap(step.From, step.To)
		if err := manifest.WriteFile(sess.outboundPath, after); err != nil {
			sess.mu.Unlock()
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("rewrite outbound manifest: %w", err)
		}
	}
	finished, advanced := sess.advance(s.now())
	view := sess.view()
	sess.mu.Unlock()

	if !advanced {
		return view, nil
	}
	s.metrics.RecordStep(string(finished.Kind))
	span.SetAttributes(
		attribute.String("step_kind", string(finished.Kind)),
		attribute.Int("current_step", view.CurrentStep),
	)
	if finished.Kind == planner.StepRelocate {
		s.journalErr(s.journal.Moved(finished.From, finished.To))
	}
	if view.AllDone {
		s.logger.Info("session finished", slog.String("session_id", id))
	}

	s.publish(id, StreamEvent{Event: "step", Grid: view})
	return view, nil
}

// Manifest returns the on-disk path and download name of a session's
// outbound manifest, and journals the finished cycle.
func (s *Service) Manifest(id string) (path, name string, err error) {
	sess, err := s.session(id)
	if err != nil {
		return "", "", err
	}
	s.journalErr(s.journal.CycleFinished(sess.outboundName))
	return sess.outboundPath, sess.outboundName, nil
}

// Note writes an operator note to the journal.
func (s *Service) Note(message string) error {
	if strings.TrimSpace(message) == "" {
		return ErrEmptyNote
	}
	if s.journal == nil {
		return ErrNoJournal
	}
	return s.journal.Record(message)
}

// JournalPath returns the on-disk path and download name of the journal,
// after journaling the download itself.
func (s *Service) JournalPath() (path, name string, err error) {
	if s.journal == nil {
		return "", "", ErrNoJournal
	}
	if err := s.journal.Downloaded(); err != nil {
		return "", "", err
	}
	return s.journal.Path(), s.journal.Name(), nil
}

// Delete ends a session. Its outbound manifest stays on disk.
func (s *Service) Delete(id string) error {
	if !strfmt.IsUUID(id) {
		return ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	s.removeLocked(id)
	return nil
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts sessions idle since before now minus the TTL and returns
// how many were evicted.
func (s *Service) Sweep(now time.Time) int {
	if s.config.SessionTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.config.SessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			s.removeLocked(id)
			evicted++
		}
	}
	if evicted > 0 {
		s.logger.Info("evicted idle sessions", slog.Int("count", evicted))
	}
	return evicted
}

// Run sweeps idle sessions every SweepInterval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.config.SweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(s.now())
		}
	}
}

// Close drops every session and ends every stream.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id := range s.sessions {
		s.removeLocked(id)
	}
	return nil
}

// session looks up a live session and marks it as used.
func (s *Service) session(id string) (*Session, error) {
	if !strfmt.IsUUID(id) {
		return nil, ErrInvalidSessionID
	}
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}

	now := s.now()
	if s.config.SessionTTL > 0 && now.Sub(sess.idleSince()) > s.config.SessionTTL {
		s.mu.Lock()
		if _, still := s.sessions[id]; still {
			s.removeLocked(id)
		}
		s.mu.Unlock()
		return nil, ErrSessionExpired
	}
	sess.touch(now)
	return sess, nil
}

// removeLocked drops a session and closes its streams. Caller holds s.mu.
func (s *Service) removeLocked(id string) {
	delete(s.sessions, id)
	s.metrics.SessionClosed()
	for ch := range s.subscribers[id] {
		select {
		case ch <- StreamEvent{Event: "closed"}:
		default:
		}
		close(ch)
	}
	delete(s.subscribers, id)
}

// evictIfNeeded drops the longest idle sessions over capacity. Caller
// holds s.mu.
func (s *Service) evictIfNeeded() {
	for s.config.MaxSessions > 0 && len(s.sessions) > s.config.MaxSessions {
		var oldestID string
		var oldest time.Time
		for id, sess := range s.sessions {
			if idle := sess.idleSince(); oldestID == "" || idle.Before(oldest) {
				oldestID, oldest = id, idle
			}
		}
		s.logger.Info("evicting session over capacity", slog.String("session_id", oldestID))
		s.removeLocked(oldestID)
	}
}

func (s *Service) journalErr(err error) {
	if err != nil {
		s.logger.Error("journal write failed", slog.String("error", err.Error()))
	}
}
