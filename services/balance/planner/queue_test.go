// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ballast/services/balance/grid"
)

// withF returns a fresh state over g carrying the given f.
func withF(g grid.Grid, f int) *State {
	s := newRoot(g)
	s.F = f
	return s
}

func TestOpenSet_PopsByPriorityThenScoreThenInsertion(t *testing.T) {
	a := newRoot(buildGrid(t, placed{1, 1, 5}))
	b := newRoot(buildGrid(t, placed{1, 2, 5}))
	c := newRoot(buildGrid(t, placed{1, 3, 5}))
	a.Score, b.Score, c.Score = 4, 2, 2

	o := &openSet{}
	o.push(a, 3)
	o.push(b, 3)
	o.push(c, 3)
	o.push(a, 1)

	assert.Same(t, a, o.pop())
	assert.Same(t, b, o.pop())
	assert.Same(t, c, o.pop())
	assert.Same(t, a, o.pop())
	assert.Equal(t, 0, o.len())
}

func TestOpenSet_OfferReopensOnlyOnStrictlyLowerF(t *testing.T) {
	root := newRoot(buildGrid(t, placed{1, 1, 9}))
	o := newOpenSet(root)
	g := buildGrid(t, placed{1, 8, 9})

	queued, reopened := o.offer(withF(g, 10))
	assert.True(t, queued, "unseen grid")
	assert.False(t, reopened)

	queued, reopened = o.offer(withF(g, 10))
	assert.False(t, queued, "equal f is dropped")
	assert.False(t, reopened)

	queued, reopened = o.offer(withF(g, 12))
	assert.False(t, queued, "higher f is dropped")
	assert.False(t, reopened)

	queued, reopened = o.offer(withF(g, 7))
	assert.True(t, queued)
	assert.True(t, reopened, "strictly lower f reopens")
	assert.Equal(t, 7, o.best[withF(g, 0).Key()])

	queued, _ = o.offer(withF(root.Grid, 1))
	assert.False(t, queued, "root is held at f 0")
	assert.Equal(t, 3, o.len())
}

func TestSolve_StaleEntriesComeFromReopening(t *testing.T) {
	g := buildGrid(t,
		placed{1, 1, 40}, placed{2, 1, 35},
		placed{1, 3, 12},
		placed{1, 10, 6},
	)

	res, err := Solve(g, Options{})
	require.NoError(t, err)

	s := res.Stats
	assert.LessOrEqual(t, s.Reopened, s.Generated)
	assert.LessOrEqual(t, s.Stale, s.Reopened, "only reopened grids can be popped twice")
}
