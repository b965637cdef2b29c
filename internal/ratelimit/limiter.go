// Package ratelimit provides rolling-window rate limiting for model requests
// and agent decisions.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/taskpilot/internal/backoff"
)

// Config configures a rolling request/token window.
type Config struct {
	// MaxRequests is the number of requests allowed inside the window.
	MaxRequests int `yaml:"max_requests"`
	// MaxTokens is the cumulative token budget inside the window.
	MaxTokens int `yaml:"max_tokens"`
	// Window is the rolling window size.
	Window time.Duration `yaml:"window"`
	// Enabled controls whether limiting is active.
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the default model-call window configuration.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 60,
		MaxTokens:   100000,
		Window:      time.Minute,
		Enabled:     true,
	}
}

// Status is a point-in-time snapshot of a window.
type Status struct {
	Limited          bool          `json:"limited"`
	RequestsInWindow int           `json:"requests_in_window"`
	MaxRequests      int           `json:"max_requests"`
	ResetIn          time.Duration `json:"reset_in"`
	TokensInWindow   int           `json:"tokens_in_window"`
}

type tokenUse struct {
	at time.Time
	n  int
}

// Window tracks request timestamps and token usage over a rolling interval.
// Acquire blocks until the window has room; RecordUsage feeds the token
// accumulator from completed responses.
type Window struct {
	mu       sync.Mutex
	cfg      Config
	now      func() time.Time
	requests []time.Time
	tokens   []tokenUse
}

// NewWindow creates a rolling window limiter.
func NewWindow(cfg Config) *Window {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultConfig().MaxRequests
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Window{
		cfg: cfg,
		now: time.Now,
	}
}

// Acquire blocks until the window admits one more request, then records it.
// It returns early with the context error when ctx is cancelled. Disabled
// windows admit immediately.
func (w *Window) Acquire(ctx context.Context) error {
	if !w.cfg.Enabled {
		return nil
	}

	for {
		w.mu.Lock()
		now := w.now()
		w.prune(now)

		if len(w.requests) < w.cfg.MaxRequests && w.tokensInWindow() < w.cfg.MaxTokens {
			w.requests = append(w.requests, now)
			w.mu.Unlock()
			return nil
		}

		wait := w.nextExpiry(now)
		w.mu.Unlock()

		if err := backoff.SleepWithContext(ctx, wait); err != nil {
			return err
		}
	}
}

// RecordUsage adds consumed tokens to the rolling accumulator.
func (w *Window) RecordUsage(tokens int) {
	if !w.cfg.Enabled || tokens <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)
	w.tokens = append(w.tokens, tokenUse{at: now, n: tokens})
}

// Status reports current occupancy without blocking.
func (w *Window) Status() Status {
	if !w.cfg.Enabled {
		return Status{MaxRequests: w.cfg.MaxRequests}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.prune(now)

	limited := len(w.requests) >= w.cfg.MaxRequests || w.tokensInWindow() >= w.cfg.MaxTokens
	status := Status{
		Limited:          limited,
		RequestsInWindow: len(w.requests),
		MaxRequests:      w.cfg.MaxRequests,
		TokensInWindow:   w.tokensInWindow(),
	}
	if limited {
		status.ResetIn = w.nextExpiry(now)
	}
	return status
}

// prune drops entries older than the window (must be called with lock held).
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.cfg.Window)

	kept := w.requests[:0]
	for _, ts := range w.requests {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.requests = kept

	keptTokens := w.tokens[:0]
	for _, tu := range w.tokens {
		if tu.at.After(cutoff) {
			keptTokens = append(keptTokens, tu)
		}
	}
	w.tokens = keptTokens
}

// tokensInWindow sums the pruned accumulator (must be called with lock held).
func (w *Window) tokensInWindow() int {
	total := 0
	for _, tu := range w.tokens {
		total += tu.n
	}
	return total
}

// nextExpiry is how long until the oldest entry leaves the window (must be
// called with lock held).
func (w *Window) nextExpiry(now time.Time) time.Duration {
	var oldest time.Time
	if len(w.requests) > 0 {
		oldest = w.requests[0]
	}
	if len(w.tokens) > 0 && (oldest.IsZero() || w.tokens[0].at.Before(oldest)) {
		oldest = w.tokens[0].at
	}
	if oldest.IsZero() {
		return 0
	}
	wait := oldest.Add(w.cfg.Window).Sub(now)
	if wait < 0 {
		return 0
	}
	// Nudge past the boundary so the re-check sees the entry expired.
	return wait + time.Millisecond
}

// MultiWindow tracks decision counts over per-minute and per-hour rolling
// windows. It never blocks: callers check Saturated and drop work when the
// budget is spent. A zero cap disables that window.
type MultiWindow struct {
	mu        sync.Mutex
	now       func() time.Time
	perMinute int
	perHour   int
	minute    []time.Time
	hour      []time.Time
}

// NewMultiWindow creates a dual-window decision counter.
func NewMultiWindow(perMinute, perHour int) *MultiWindow {
	return &MultiWindow{
		now:       time.Now,
		perMinute: perMinute,
		perHour:   perHour,
	}
}

// Saturated reports whether either window is at its cap.
func (m *MultiWindow) Saturated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(m.now())

	if m.perMinute > 0 && len(m.minute) >= m.perMinute {
		return true
	}
	if m.perHour > 0 && len(m.hour) >= m.perHour {
		return true
	}
	return false
}

// Record counts one decision against both windows.
func (m *MultiWindow) Record() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.prune(now)
	m.minute = append(m.minute, now)
	m.hour = append(m.hour, now)
}

// Occupancy returns the current counts in the minute and hour windows.
func (m *MultiWindow) Occupancy() (minute, hour int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(m.now())
	return len(m.minute), len(m.hour)
}

func (m *MultiWindow) prune(now time.Time) {
	minuteCutoff := now.Add(-time.Minute)
	kept := m.minute[:0]
	for _, ts := range m.minute {
		if ts.After(minuteCutoff) {
			kept = append(kept, ts)
		}
	}
	m.minute = kept

	hourCutoff := now.Add(-time.Hour)
	keptHour := m.hour[:0]
	for _, ts := range m.hour {
		if ts.After(hourCutoff) {
			keptHour = append(keptHour, ts)
		}
	}
	m.hour = keptHour
}
