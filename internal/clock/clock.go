// Copyright (C) 2026 Aegis Contributors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package clock provides a monotonic nanosecond clock that can be swapped
// for a fake in tests.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock supplies monotonic time in nanoseconds. Values are only meaningful
// relative to each other within one process lifetime.
type Clock interface {
	NowNanos() uint64
}

// Real reads the system monotonic clock.
type Real struct {
	base time.Time
}

// NewReal creates a Real clock anchored at construction time.
func NewReal() *Real {
	return &Real{base: time.Now()}
}

// NowNanos returns nanoseconds elapsed since the clock was created.
// time.Since uses the monotonic reading, so wall-clock jumps do not
// affect the result.
func (r *Real) NowNanos() uint64 {
	return uint64(time.Since(r.base).Nanoseconds())
}

// Fake is a manually-advanced clock for tests.
type Fake struct {
	now atomic.Uint64
}

// NewFake creates a Fake clock starting at the given nanosecond value.
func NewFake(start uint64) *Fake {
	f := &Fake{}
	f.now.Store(start)
	return f
}

// NowNanos returns the current fake time.
func (f *Fake) NowNanos() uint64 {
	return f.now.Load()
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.now.Add(uint64(d.Nanoseconds()))
}

// Set pins the fake clock to an absolute nanosecond value.
func (f *Fake) Set(ns uint64) {
	f.now.Store(ns)
}
