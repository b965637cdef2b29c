package agent

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of one agent's counters. Counters only
// grow; they reset when the process restarts.
type Stats struct {
	Running             bool          `json:"running"`
	TotalDecisions      int64         `json:"total_decisions"`
	SuccessfulDecisions int64         `json:"successful_decisions"`
	FailedDecisions     int64         `json:"failed_decisions"`
	NoOpDecisions       int64         `json:"no_op_decisions"`
	EventsProcessed     int64         `json:"events_processed"`
	EventsSkipped       int64         `json:"events_skipped"`
	EventsDropped       int64         `json:"events_dropped"`
	Errors              int64         `json:"errors"`
	AvgDecisionTime     time.Duration `json:"avg_decision_time"`
	RateLimitMinute     int           `json:"rate_limit_minute"`
	RateLimitHour       int           `json:"rate_limit_hour"`
	Uptime              time.Duration `json:"uptime"`
}

// agentStats holds the live counters. Only the owning agent mutates them.
// Decision time accumulates for successful executions only, so the average
// reflects decisions that ran to completion.
type agentStats struct {
	totalDecisions      atomic.Int64
	successfulDecisions atomic.Int64
	failedDecisions     atomic.Int64
	noOpDecisions       atomic.Int64
	eventsProcessed     atomic.Int64
	eventsSkipped       atomic.Int64
	eventsDropped       atomic.Int64
	errors              atomic.Int64
	decisionTimeNanos   atomic.Int64
}

func (s *agentStats) decisionSucceeded(elapsed time.Duration) {
	s.successfulDecisions.Add(1)
	s.decisionTimeNanos.Add(int64(elapsed))
}

func (s *agentStats) snapshot(running bool, uptime time.Duration, minute, hour int) Stats {
	snap := Stats{
		Running:             running,
		TotalDecisions:      s.totalDecisions.Load(),
		SuccessfulDecisions: s.successfulDecisions.Load(),
		FailedDecisions:     s.failedDecisions.Load(),
		NoOpDecisions:       s.noOpDecisions.Load(),
		EventsProcessed:     s.eventsProcessed.Load(),
		EventsSkipped:       s.eventsSkipped.Load(),
		EventsDropped:       s.eventsDropped.Load(),
		Errors:              s.errors.Load(),
		RateLimitMinute:     minute,
		RateLimitHour:       hour,
		Uptime:              uptime,
	}
	if snap.SuccessfulDecisions > 0 {
		snap.AvgDecisionTime = time.Duration(s.decisionTimeNanos.Load() / snap.SuccessfulDecisions)
	}
	return snap
}
