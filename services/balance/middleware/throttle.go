// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the balance service.
//
// # Search Throttling
//
// Uploading or planning a manifest runs an A* search, which can take a
// while on a crowded bay. Throttle gives every client a token bucket so a
// single misbehaving client cannot keep the planner busy for everyone.
//
//	Request
//	   │
//	   ▼
//	Throttle.Middleware
//	   │
//	   ├─► key = client IP
//	   │
//	   ├─► limiter.ReserveN(now, 1)
//	   │
//	   └─► 429 + Retry-After, or next handler
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Throttle
// =============================================================================

const (
	// maxClients triggers pruning of idle client buckets.
	maxClients = 1024

	// idleAfter is how long an untouched bucket survives pruning.
	idleAfter = 10 * time.Minute
)

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Throttle rate limits requests per client.
//
// # Thread Safety
//
// Safe for concurrent use.
type Throttle struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewThrottle allows each client perSecond requests on average with bursts
// of up to burst. perSecond <= 0 disables throttling.
func NewThrottle(perSecond float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Enabled reports whether the throttle limits anything.
func (t *Throttle) Enabled() bool {
	return t.limit > 0
}

// Allow takes a token for key. When none is available it returns false and
// how long until one will be.
func (t *Throttle) Allow(key string) (bool, time.Duration) {
	if !t.Enabled() {
		return true, 0
	}
	now := t.now()

	t.mu.Lock()
	b, ok := t.buckets[key]
	if !ok {
		if len(t.buckets) >= maxClients {
			t.pruneLocked(now)
		}
		b = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.seen = now
	t.mu.Unlock()

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (t *Throttle) pruneLocked(now time.Time) {
	for key, b := range t.buckets {
		if now.Sub(b.seen) > idleAfter {
			delete(t.buckets, key)
		}
	}
}

// Middleware rejects throttled requests with 429 Too Many Requests and a
// Retry-After header in whole seconds.
//
// # Examples
//
//	throttle := middleware.NewThrottle(2, 5)
//	balance.RegisterRoutes(v1, handlers, throttle.Middleware())
func (t *Throttle) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, wait := t.Allow(c.ClientIP())
		if ok {
			c.Next()
			return
		}
		if wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "too many searches, retry later",
			"code":  "RATE_LIMITED",
		})
	}
}
