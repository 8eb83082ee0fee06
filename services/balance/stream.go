// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package balance

import (
	"log/slog"
	"sync"
)

// streamBuffer is the number of events a slow subscriber may fall behind
// before events are dropped for it.
const streamBuffer = 8

// Subscribe registers for a session's step events.
//
// The returned channel first receives a "snapshot" event with the current
// state, then a "step" event after every advance, and is closed when the
// session ends. cancel unregisters and is safe to call more than once.
func (s *Service) Subscribe(id string) (events <-chan StreamEvent, cancel func(), err error) {
	view, err := s.Current(id)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan StreamEvent, streamBuffer)
	ch <- StreamEvent{Event: "snapshot", Grid: view}

	s.mu.Lock()
	if _, ok := s.sessions[id]; !ok {
		s.mu.Unlock()
		return nil, nil, ErrSessionNotFound
	}
	if s.subscribers[id] == nil {
		s.subscribers[id] = make(map[chan StreamEvent]struct{})
	}
	s.subscribers[id][ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subscribers[id][ch]; ok {
				delete(s.subscribers[id], ch)
				close(ch)
			}
		})
	}
	return ch, cancel, nil
}

// publish delivers ev to every subscriber of id without blocking.
func (s *Service) publish(id string, ev StreamEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.subscribers[id] {
		select {
		case ch <- ev:
		default:
			s.logger.Debug("dropping stream event for slow subscriber", slog.String("session_id", id))
		}
	}
}
