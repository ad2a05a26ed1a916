// Package ratelimit enforces the per-source fair-use ceilings documented
// by each weather API. One fixed window per source, serialized so that
// concurrent callers cannot overrun a provider's limit.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Policy is the documented request ceiling for one source.
type Policy struct {
	// Requests allowed per Window.
	Requests int
	Window   time.Duration
	// FixedRetryAfter, when set, is reported on every denial (NWS
	// documents a flat "retry after 5s"). Otherwise the retry hint
	// grows exponentially with consecutive denials, capped at MaxBackoff.
	FixedRetryAfter time.Duration
	MaxBackoff      time.Duration
}

// DeniedError is returned by Acquire when the window budget is spent.
type DeniedError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s request budget exhausted, retry after %s", e.Source, e.RetryAfter)
}

// State is the mutable window tracking for one source. Process lifetime,
// mutated only under the source's mutex.
type State struct {
	SourceID     string
	WindowStart  time.Time
	RequestCount int
	Last429At    time.Time
}

type sourceLimiter struct {
	mu      sync.Mutex
	policy  Policy
	state   State
	denials int
}

// Limiter tracks one window per registered source.
type Limiter struct {
	mu      sync.RWMutex
	sources map[string]*sourceLimiter
	now     func() time.Time
}

// New returns an empty limiter. Sources are added with Register at
// startup.
func New() *Limiter {
	return &Limiter{
		sources: make(map[string]*sourceLimiter),
		now:     time.Now,
	}
}

// Register installs the policy for a source. Calling Register twice for
// the same source resets its window.
func (l *Limiter) Register(sourceID string, p Policy) {
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources[sourceID] = &sourceLimiter{policy: p, state: State{SourceID: sourceID}}
}

// Acquire grants one request slot for the source or returns a
// *DeniedError carrying a positive retry hint. Unregistered sources are
// not limited.
func (l *Limiter) Acquire(sourceID string) error {
	l.mu.RLock()
	sl := l.sources[sourceID]
	l.mu.RUnlock()
	if sl == nil {
		return nil
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := l.now()
	if sl.state.WindowStart.IsZero() || now.Sub(sl.state.WindowStart) >= sl.policy.Window {
		sl.state.WindowStart = now
		sl.state.RequestCount = 0
	}

	if sl.state.RequestCount < sl.policy.Requests {
		sl.state.RequestCount++
		sl.denials = 0
		return nil
	}

	retry := sl.policy.FixedRetryAfter
	if retry <= 0 {
		// Exponential: remaining window, doubled per consecutive denial.
		retry = sl.state.WindowStart.Add(sl.policy.Window).Sub(now)
		if retry <= 0 {
			retry = sl.policy.Window
		}
		for i := 0; i < sl.denials; i++ {
			retry *= 2
			if retry >= sl.policy.MaxBackoff {
				retry = sl.policy.MaxBackoff
				break
			}
		}
	}
	sl.denials++
	return &DeniedError{Source: sourceID, RetryAfter: retry}
}

// ReportThrottled records a server-side 429 so the state reflects the
// provider's view of our traffic, not just the local window.
func (l *Limiter) ReportThrottled(sourceID string) {
	l.mu.RLock()
	sl := l.sources[sourceID]
	l.mu.RUnlock()
	if sl == nil {
		return
	}
	sl.mu.Lock()
	sl.state.Last429At = l.now()
	// Spend the rest of the window; the provider already said no.
	sl.state.RequestCount = sl.policy.Requests
	sl.mu.Unlock()
}

// StateOf returns a copy of the tracked state for a source, for
// inspection and tests.
func (l *Limiter) StateOf(sourceID string) (State, bool) {
	l.mu.RLock()
	sl := l.sources[sourceID]
	l.mu.RUnlock()
	if sl == nil {
		return State{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state, true
}

// SetClock overrides the time source, for tests.
func (l *Limiter) SetClock(now func() time.Time) { l.now = now }
