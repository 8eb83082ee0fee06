// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/ballast/services/balance/grid"
	"github.com/AleutianAI/ballast/services/balance/planner"
)

// Sentinel errors for the archive.
var (
	ErrNotFound     = errors.New("plan not archived")
	ErrCorrupted    = errors.New("archived plan corrupted")
	ErrClosed       = errors.New("archive closed")
	ErrPathRequired = errors.New("archive path is required unless in memory")
	ErrEmptyDigest  = errors.New("empty digest")
)

const keyPrefix = "plan:"

var tracer = otel.Tracer("ballast/archive")

// Shared codecs. EncodeAll and DecodeAll are safe for concurrent use.
var (
	entryEncoder *zstd.Encoder
	entryDecoder *zstd.Decoder
)

func init() {
	var err error
	if entryEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(fmt.Sprintf("archive: zstd encoder: %v", err))
	}
	if entryDecoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("archive: zstd decoder: %v", err))
	}
}

// Entry is one archived search outcome.
type Entry struct {
	Plan         planner.Plan
	Thresholds   planner.Thresholds
	Stats        planner.Stats
	InitialScore int
	FinalScore   int
	CreatedAt    time.Time
}

// Digest identifies a bay layout: the hex SHA-256 of its content key.
func Digest(g *grid.Grid) string {
	sum := sha256.Sum256([]byte(g.Key()))
	return hex.EncodeToString(sum[:])
}

// Store is a BadgerDB-backed plan archive. It is safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	closed atomic.Bool

	stopGC context.CancelFunc
	gcDone chan struct{}
}

// Open opens the archive described by cfg and starts value log GC when
// configured for an on-disk store.
func Open(cfg Config) (*Store, error) {
	if err := cfg.validateGC(); err != nil {
		return nil, err
	}
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, ttl: cfg.TTL}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		logger := cfg.Logger
		if logger == nil {
			logger = slog.New(slog.DiscardHandler)
		}
		var ctx context.Context
		ctx, s.stopGC = context.WithCancel(context.Background())
		s.gcDone = make(chan struct{})
		go collectGarbage(ctx, db, cfg.GCInterval, cfg.GCDiscardRatio, logger, s.gcDone)
	}
	return s, nil
}

// OpenInMemory opens a throwaway archive.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Put stores e under digest, replacing any previous entry.
func (s *Store) Put(ctx context.Context, digest string, e Entry) error {
	if err := s.check(ctx, digest); err != nil {
		return err
	}
	_, span := tracer.Start(ctx, "archive.Put", trace.WithAttributes(
		attribute.String("digest", digest),
		attribute.Int("steps", len(e.Plan.Steps)),
	))
	defer span.End()

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	data, err := encodeEntry(e)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(planKey(digest), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("archive put: %w", err)
	}
	return nil
}

// Get returns the entry stored under digest, or ErrNotFound.
func (s *Store) Get(ctx context.Context, digest string) (Entry, error) {
	if err := s.check(ctx, digest); err != nil {
		return Entry{}, err
	}
	_, span := tracer.Start(ctx, "archive.Get", trace.WithAttributes(
		attribute.String("digest", digest),
	))
	defer span.End()

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(planKey(digest))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		span.SetAttributes(attribute.Bool("hit", false))
		return Entry{}, ErrNotFound
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Entry{}, fmt.Errorf("archive get: %w", err)
	}

	e, err := decodeEntry(data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Entry{}, err
	}
	span.SetAttributes(attribute.Bool("hit", true))
	return e, nil
}

// Delete removes the entry stored under digest. Missing entries are not an
// error.
func (s *Store) Delete(ctx context.Context, digest string) error {
	if err := s.check(ctx, digest); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(planKey(digest))
	}); err != nil {
		return fmt.Errorf("archive delete: %w", err)
	}
	return nil
}

// Count returns the number of live entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	prefix := []byte(keyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.stopGC != nil {
		s.stopGC()
		<-s.gcDone
	}
	return s.db.Close()
}

func (s *Store) check(ctx context.Context, digest string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if digest == "" {
		return ErrEmptyDigest
	}
	return ctx.Err()
}

func planKey(digest string) []byte {
	return []byte(keyPrefix + digest)
}

// encodeEntry frames a zstd-compressed gob as [4-byte CRC32][zstd(gob)].
// The checksum covers the compressed bytes.
func encodeEntry(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&e); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	body := entryEncoder.EncodeAll(buf.Bytes(), nil)
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], crc32.ChecksumIEEE(body))
	copy(out[4:], body)
	return out, nil
}

func decodeEntry(data []byte) (Entry, error) {
	if len(data) < 5 {
		return Entry{}, fmt.Errorf("%w: entry too short", ErrCorrupted)
	}
	stored := binary.BigEndian.Uint32(data[:4])
	body := data[4:]
	if computed := crc32.ChecksumIEEE(body); stored != computed {
		return Entry{}, fmt.Errorf("%w: stored=%08x computed=%08x", ErrCorrupted, stored, computed)
	}
	raw, err := entryDecoder.DecodeAll(body, nil)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}

	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrCorrupted, err)
	}
	// gob drops empty slices; plans always carry non-nil ones.
	if e.Plan.Steps == nil {
		e.Plan.Steps = []planner.Step{}
	}
	if e.Plan.RelocationCosts == nil {
		e.Plan.RelocationCosts = []int{}
	}
	return e, nil
}
