// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package continuity holds the single per-session record of playback
// position, user intent and the in-flight source switch.
package continuity

import (
	"fmt"
	"sync"
)

// Generation identifies one switch attempt. Generations increase
// monotonically; zero means no switch was ever started.
type Generation uint64

// Token renders a generation for logs.
func (g Generation) Token() string {
	return fmt.Sprintf("sw-%d", g)
}

// Snapshot is a copy of the state for readers.
type Snapshot struct {
	Position         float64    `json:"position"`
	PendingSeek      *float64   `json:"pending_seek,omitempty"`
	UserWantsPlaying bool       `json:"user_wants_playing"`
	ActiveGeneration Generation `json:"active_generation"`
	SwitchInProgress bool       `json:"switch_in_progress"`
}

// State is safe for concurrent use. Mutations that complete a switch take
// the generation they belong to and are ignored when it is no longer active.
type State struct {
	mu               sync.Mutex
	position         float64
	pendingSeek      *float64
	userWantsPlaying bool
	active           Generation
	switching        bool
	superseded       chan struct{}
}

func New() *State {
	return &State{superseded: make(chan struct{})}
}

// BeginSwitch starts a new attempt. The returned channel is closed as soon
// as a later attempt begins.
func (s *State) BeginSwitch() (Generation, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	close(s.superseded)
	s.superseded = make(chan struct{})
	s.active++
	s.switching = true
	return s.active, s.superseded
}

// Current returns the active generation.
func (s *State) Current() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Watch returns the active generation and a channel closed when it is superseded.
func (s *State) Watch() (Generation, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, s.superseded
}

// IsCurrent reports whether g is still the active generation.
func (s *State) IsCurrent(g Generation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return g == s.active
}

// Finalize completes attempt g. resolve receives the pending seek target
// (nil if none) and returns the position the session lands on. The pending
// seek is consumed. It returns the position and the user's play intent, or
// ok=false if g is stale.
func (s *State) Finalize(g Generation, resolve func(pending *float64) float64) (position float64, wantsPlaying bool, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g != s.active || !s.switching {
		return 0, false, false
	}
	var pending *float64
	if s.pendingSeek != nil {
		v := *s.pendingSeek
		pending = &v
	}
	s.position = resolve(pending)
	s.pendingSeek = nil
	s.switching = false
	return s.position, s.userWantsPlaying, true
}

// Fail ends attempt g without touching position. It returns false if g is stale.
func (s *State) Fail(g Generation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g != s.active || !s.switching {
		return false
	}
	s.switching = false
	return true
}

// DeferSeek stores target as the pending seek if a switch is in progress
// and reports whether it did.
func (s *State) DeferSeek(target float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.switching {
		return false
	}
	s.pendingSeek = &target
	return true
}

// SwitchInProgress reports whether an attempt is in flight.
func (s *State) SwitchInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.switching
}

func (s *State) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SetPosition records the last known position. Updates that arrive while a
// switch is in progress are dropped; the switch decides where playback lands.
func (s *State) SetPosition(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.switching {
		return false
	}
	s.position = p
	return true
}

// Reset clears position and pending seek for a new episode.
func (s *State) Reset(position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = position
	s.pendingSeek = nil
}

func (s *State) UserWantsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userWantsPlaying
}

func (s *State) SetUserWantsPlaying(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userWantsPlaying = v
}

// Snapshot copies the state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Position:         s.position,
		UserWantsPlaying: s.userWantsPlaying,
		ActiveGeneration: s.active,
		SwitchInProgress: s.switching,
	}
	if s.pendingSeek != nil {
		v := *s.pendingSeek
		snap.PendingSeek = &v
	}
	return snap
}
