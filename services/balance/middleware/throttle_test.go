// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func fixedThrottle(perSecond float64, burst int) (*Throttle, *time.Time) {
	now := time.Date(2026, time.October, 17, 9, 30, 0, 0, time.UTC)
	t := NewThrottle(perSecond, burst)
	t.now = func() time.Time { return now }
	return t, &now
}

func TestThrottle_Allow(t *testing.T) {
	th, now := fixedThrottle(1, 2)

	ok, _ := th.Allow("a")
	assert.True(t, ok)
	ok, _ = th.Allow("a")
	assert.True(t, ok)

	ok, wait := th.Allow("a")
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = th.Allow("b")
	assert.True(t, ok, "clients have separate buckets")

	*now = now.Add(time.Second)
	ok, _ = th.Allow("a")
	assert.True(t, ok)
}

func TestThrottle_Disabled(t *testing.T) {
	th := NewThrottle(0, 0)
	assert.False(t, th.Enabled())
	for range 100 {
		ok, _ := th.Allow("a")
		require.True(t, ok)
	}
}

func TestThrottle_PrunesIdleClients(t *testing.T) {
	th, now := fixedThrottle(1, 1)
	for i := range maxClients {
		th.Allow(string(rune('A' + i%26)) + time.Duration(i).String())
	}
	require.Len(t, th.buckets, maxClients)

	*now = now.Add(idleAfter + time.Second)
	th.Allow("fresh")
	assert.Len(t, th.buckets, 1)
}

func TestThrottle_Middleware(t *testing.T) {
	th, _ := fixedThrottle(0.5, 1)
	router := gin.New()
	router.POST("/plan", th.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/plan", nil)
		req.RemoteAddr = ip + ":40000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)

	w := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code)
}
