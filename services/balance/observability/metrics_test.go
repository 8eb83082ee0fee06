// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordUpload(UploadAccepted)
	m.RecordSearch(OutcomeSolved, 10, 0.01, 7)
	m.RecordStep("relocate")
	m.RecordArchiveLookup("miss")
	m.SessionOpened()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"ballast_balance_searches_total",
		"ballast_balance_search_expansions",
		"ballast_balance_search_duration_seconds",
		"ballast_balance_plan_cost_minutes",
		"ballast_balance_uploads_total",
		"ballast_balance_steps_total",
		"ballast_balance_archive_lookups_total",
		"ballast_balance_active_sessions",
	}, names)
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

func TestRecordSearch(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordSearch(OutcomeSolved, 12, 0.2, 9)
	m.RecordSearch(OutcomeInfeasible, 400, 1.5, 0)
	m.RecordSearch(OutcomeCached, 0, 0, 9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("solved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("infeasible")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchesTotal.WithLabelValues("cached")))

	// Infeasible searches have no plan, so only one cost is observed.
	assert.Equal(t, 1, testutil.CollectAndCount(m.SearchExpansions))
	expected := `
# HELP ballast_balance_plan_cost_minutes Total crane minutes of successful plans
# TYPE ballast_balance_plan_cost_minutes histogram
ballast_balance_plan_cost_minutes_bucket{le="0"} 0
ballast_balance_plan_cost_minutes_bucket{le="5"} 0
ballast_balance_plan_cost_minutes_bucket{le="10"} 1
ballast_balance_plan_cost_minutes_bucket{le="20"} 1
ballast_balance_plan_cost_minutes_bucket{le="40"} 1
ballast_balance_plan_cost_minutes_bucket{le="80"} 1
ballast_balance_plan_cost_minutes_bucket{le="160"} 1
ballast_balance_plan_cost_minutes_bucket{le="320"} 1
ballast_balance_plan_cost_minutes_bucket{le="+Inf"} 1
ballast_balance_plan_cost_minutes_sum 9
ballast_balance_plan_cost_minutes_count 1
`
	assert.NoError(t, testutil.CollectAndCompare(m.PlanCost, strings.NewReader(expected)))
}

func TestRecordUploadAndSteps(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordUpload(UploadAccepted)
	m.RecordUpload(UploadAccepted)
	m.RecordUpload(UploadRejected)
	m.RecordStep("relocate")
	m.RecordStep("park")
	m.RecordStep("park")
	m.RecordArchiveLookup("hit")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("park")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchiveLookupsTotal.WithLabelValues("hit")))
}

func TestActiveSessions(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveSessions))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSearch(OutcomeSolved, 1, 1, 1)
		m.RecordUpload(UploadFailed)
		m.RecordStep("relocate")
		m.RecordArchiveLookup("error")
		m.SessionOpened()
		m.SessionClosed()
	})
}
