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

import "container/heap"

// entry is one frontier slot. The ordering lives here, not on State.
type entry struct {
	state    *State
	priority int
	score    int
	seq      uint64
}

// frontier is a min-heap over (priority, score, seq).
type frontier []*entry

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	if f[i].priority != f[j].priority {
		return f[i].priority < f[j].priority
	}
	if f[i].score != f[j].score {
		return f[i].score < f[j].score
	}
	return f[i].seq < f[j].seq
}

func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }

func (f *frontier) Push(x any) { *f = append(*f, x.(*entry)) }

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*f = old[:n-1]
	return e
}

// openSet wraps the heap with an insertion counter so equal keys pop FIFO,
// and remembers the lowest f each grid was queued at.
type openSet struct {
	heap frontier
	seq  uint64
	best map[string]int
}

// newOpenSet returns a frontier holding only root, at priority 0.
func newOpenSet(root *State) *openSet {
	o := &openSet{best: make(map[string]int)}
	o.best[root.Key()] = 0
	o.push(root, 0)
	return o
}

// offer queues s when its grid has not been queued before, or when s
// reaches it with a strictly lower f. Equal or higher f is dropped.
func (o *openSet) offer(s *State) (queued, reopened bool) {
	key := s.Key()
	known, seen := o.best[key]
	if seen && s.F >= known {
		return false, false
	}
	o.best[key] = s.F
	o.push(s, s.F)
	return true, seen
}

func (o *openSet) push(s *State, priority int) {
	heap.Push(&o.heap, &entry{state: s, priority: priority, score: s.Score, seq: o.seq})
	o.seq++
}

func (o *openSet) pop() *State {
	return heap.Pop(&o.heap).(*entry).state
}

func (o *openSet) len() int {
	return o.heap.Len()
}
