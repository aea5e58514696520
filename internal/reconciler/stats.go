package reconciler

import (
	"sync"
	"time"
)

// HealStats tracks the heal history for the status endpoint.
type HealStats struct {
	mu sync.RWMutex

	runs          int64
	failures      int64
	vlansAdded    int64
	vlansRemoved  int64
	removalFailed int64

	lastHealAt    time.Time
	lastSuccessAt time.Time
	lastFailureAt time.Time
	lastError     string
	lastReport    *HealReport
}

// NewHealStats creates an empty tracker.
func NewHealStats() *HealStats {
	return &HealStats{}
}

// RecordHeal records the outcome of one heal cycle.
func (s *HealStats) RecordHeal(report HealReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs++
	s.lastHealAt = report.StartedAt
	for _, b := range report.Bridges {
		s.vlansAdded += int64(len(b.Added))
		s.vlansRemoved += int64(len(b.Removed))
		s.removalFailed += int64(len(b.Failed))
	}

	r := report
	s.lastReport = &r

	if err != nil {
		s.failures++
		s.lastFailureAt = report.StartedAt
		s.lastError = err.Error()
		return
	}
	s.lastSuccessAt = report.StartedAt
	s.lastError = ""
}

// HealSummary is a read-only view of HealStats.
type HealSummary struct {
	Runs               int64       `json:"runs"`
	Failures           int64       `json:"failures"`
	VLANsAdded         int64       `json:"vlans_added"`
	VLANsRemoved       int64       `json:"vlans_removed"`
	VLANRemovalsFailed int64       `json:"vlan_removals_failed"`
	LastHealAt         time.Time   `json:"last_heal_at,omitempty"`
	LastSuccessAt      time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt      time.Time   `json:"last_failure_at,omitempty"`
	LastError          string      `json:"last_error,omitempty"`
	LastReport         *HealReport `json:"last_report,omitempty"`
}

// Summary returns a snapshot of the tracked history.
func (s *HealStats) Summary() HealSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := HealSummary{
		Runs:               s.runs,
		Failures:           s.failures,
		VLANsAdded:         s.vlansAdded,
		VLANsRemoved:       s.vlansRemoved,
		VLANRemovalsFailed: s.removalFailed,
		LastHealAt:         s.lastHealAt,
		LastSuccessAt:      s.lastSuccessAt,
		LastFailureAt:      s.lastFailureAt,
		LastError:          s.lastError,
	}
	if s.lastReport != nil {
		r := *s.lastReport
		summary.LastReport = &r
	}
	return summary
}
