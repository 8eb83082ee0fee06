// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics holds the request instruments recorded by GinMetrics.
//
// Thread Safety: Safe for concurrent use after creation.
type HTTPMetrics struct {
	// RequestsTotal counts requests by method, route and status.
	RequestsTotal metric.Int64Counter

	// RequestDuration records request duration in seconds.
	RequestDuration metric.Float64Histogram

	// ActiveRequests tracks requests in flight.
	ActiveRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics registers the HTTP instruments with meter.
//
// Example:
//
//	m, err := telemetry.NewHTTPMetrics(otel.Meter("ballast.http"))
//	if err != nil {
//	    return fmt.Errorf("create http metrics: %w", err)
//	}
//	router.Use(telemetry.GinMetrics(m))
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	var m HTTPMetrics
	var err error

	m.RequestsTotal, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Total HTTP requests"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}

	m.RequestDuration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	m.ActiveRequests, err = meter.Int64UpDownCounter("http.server.active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, fmt.Errorf("create active requests counter: %w", err)
	}

	return &m, nil
}

// GinMetrics records request count, duration and in-flight requests.
//
// The route label is the matched route pattern, such as
// "/v1/balance/sessions/:id/grid", so session IDs never become label
// values. Unmatched requests are labelled "unmatched".
func GinMetrics(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.ActiveRequests.Add(ctx, 1)
		defer m.ActiveRequests.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", c.Writer.Status()),
		)
		m.RequestsTotal.Add(ctx, 1, attrs)
		m.RequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
