// Copyright (C) MongoDB, Inc. 2014-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package failpoint implements runtime-settable named failpoints for
// testing and operational control. A failpoint is off until enabled; code
// under control asks Enabled at the instrumented site, or blocks in
// PauseWhileSet until the point is cleared.
package failpoint

import (
	"context"
	"strings"
	"sync"
)

// Mode determines when an enabled failpoint fires.
type Mode int

const (
	// ModeOff never fires.
	ModeOff Mode = iota
	// ModeAlwaysOn fires on every entry until disabled.
	ModeAlwaysOn
	// ModeTimes fires on the next n entries, then turns itself off.
	ModeTimes
)

// failPoint is the state of one named point. The changed channel is closed
// and replaced on every state or counter change so waiters can re-check.
type failPoint struct {
	mu        sync.Mutex
	mode      Mode
	remaining int64
	data      string
	entered   int64
	changed   chan struct{}
}

func newFailPoint() *failPoint {
	return &failPoint{changed: make(chan struct{})}
}

func (fp *failPoint) broadcastLocked() {
	close(fp.changed)
	fp.changed = make(chan struct{})
}

func (fp *failPoint) set(mode Mode, times int64, data string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.mode = mode
	fp.remaining = times
	fp.data = data
	fp.broadcastLocked()
}

// enter evaluates the point once, counting the entry when it fires.
func (fp *failPoint) enter() bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	switch fp.mode {
	case ModeAlwaysOn:
	case ModeTimes:
		fp.remaining--
		if fp.remaining <= 0 {
			fp.mode = ModeOff
		}
	default:
		return false
	}

	fp.entered++
	fp.broadcastLocked()
	return true
}

func (fp *failPoint) waitState() (bool, chan struct{}) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.mode != ModeOff, fp.changed
}

// Registry holds a set of independently toggleable failpoints. The zero
// value is not usable; construct with NewRegistry.
type Registry struct {
	mu     sync.Mutex
	points map[string]*failPoint
}

func NewRegistry() *Registry {
	return &Registry{points: make(map[string]*failPoint)}
}

func (r *Registry) point(name string) *failPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	fp, ok := r.points[name]
	if !ok {
		fp = newFailPoint()
		r.points[name] = fp
	}
	return fp
}

// Enable turns the named point on until Disable is called.
func (r *Registry) Enable(name string) {
	r.point(name).set(ModeAlwaysOn, 0, "")
}

// EnableWithData turns the named point on and attaches a data payload,
// retrievable with Get.
func (r *Registry) EnableWithData(name, data string) {
	r.point(name).set(ModeAlwaysOn, 0, data)
}

// EnableTimes arms the named point for the next n entries.
func (r *Registry) EnableTimes(name string, n int64) {
	r.point(name).set(ModeTimes, n, "")
}

// Disable turns the named point off. Blocked PauseWhileSet callers resume.
func (r *Registry) Disable(name string) {
	r.point(name).set(ModeOff, 0, "")
}

// Enabled evaluates the named point, counting an entry when it fires.
func (r *Registry) Enabled(name string) bool {
	return r.point(name).enter()
}

// Get returns the data payload attached to the named point and whether the
// point is currently enabled. Unlike Enabled, it does not count an entry.
func (r *Registry) Get(name string) (string, bool) {
	fp := r.point(name)
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.data, fp.mode != ModeOff
}

// TimesEntered returns how many times the named point has fired.
func (r *Registry) TimesEntered(name string) int64 {
	fp := r.point(name)
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.entered
}

// PauseWhileSet blocks while the named point is enabled. The entry is
// counted once, before blocking, so a controller can await the arrival with
// WaitForTimesEntered before acting. Returns the context error if the wait
// is interrupted.
func (r *Registry) PauseWhileSet(ctx context.Context, name string) error {
	fp := r.point(name)
	fp.enter()
	for {
		active, changed := fp.waitState()
		if !active {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// WaitForTimesEntered blocks until the named point has fired at least n
// times, or the context is done.
func (r *Registry) WaitForTimesEntered(ctx context.Context, name string, n int64) error {
	fp := r.point(name)
	for {
		fp.mu.Lock()
		entered := fp.entered
		changed := fp.changed
		fp.mu.Unlock()
		if entered >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Parse enables failpoints from a comma-separated "name=data" list, as
// given on a command line.
func (r *Registry) Parse(arg string) {
	for _, fp := range strings.Split(arg, ",") {
		if sep := strings.Index(fp, "="); sep != -1 {
			r.EnableWithData(fp[:sep], fp[sep+1:])
		} else {
			r.Enable(fp)
		}
	}
}

//// The process-global registry, used when no registry is injected.

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry configured by ParseFailpoints.
func Default() *Registry {
	return defaultRegistry
}

// ParseFailpoints enables failpoints in the process-wide registry from a
// comma-separated "name=data" list.
func ParseFailpoints(arg string) {
	defaultRegistry.Parse(arg)
}

// Enabled evaluates the named point in the process-wide registry.
func Enabled(name string) bool {
	return defaultRegistry.Enabled(name)
}

// Get returns the data payload of the named point in the process-wide
// registry and whether it is enabled.
func Get(name string) (string, bool) {
	return defaultRegistry.Get(name)
}
