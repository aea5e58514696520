package reconciler

import (
	"fmt"
	"strings"
	"time"
)

// BridgeReport lists the VLAN changes made to one bridge during a heal.
type BridgeReport struct {
	BridgeID string `json:"bridge_id"`
	Added    []int  `json:"added,omitempty"`
	Removed  []int  `json:"removed,omitempty"`
	Failed   []int  `json:"failed,omitempty"`

	// Error is set when the bridge could not be reconciled at all.
	Error string `json:"error,omitempty"`
}

// HealReport summarizes one heal and optimize cycle.
type HealReport struct {
	Boot      bool           `json:"boot"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Devices   int            `json:"devices"`
	Bridges   []BridgeReport `json:"bridges"`

	// CleanupSkipped is true when removals were disabled for this cycle.
	CleanupSkipped bool `json:"cleanup_skipped,omitempty"`
}

// Changed reports whether any VLAN was added, removed or failed to be removed.
func (r HealReport) Changed() bool {
	for _, b := range r.Bridges {
		if len(b.Added) > 0 || len(b.Removed) > 0 || len(b.Failed) > 0 || b.Error != "" {
			return true
		}
	}
	return false
}

// counts returns per-bridge added, removed and failed counts for metrics.
func (r HealReport) counts() (added, removed, failed map[string]int) {
	added = make(map[string]int)
	removed = make(map[string]int)
	failed = make(map[string]int)
	for _, b := range r.Bridges {
		if len(b.Added) > 0 {
			added[b.BridgeID] = len(b.Added)
		}
		if len(b.Removed) > 0 {
			removed[b.BridgeID] = len(b.Removed)
		}
		if len(b.Failed) > 0 {
			failed[b.BridgeID] = len(b.Failed)
		}
	}
	return added, removed, failed
}

func (r HealReport) String() string {
	parts := make([]string, 0, len(r.Bridges))
	for _, b := range r.Bridges {
		s := fmt.Sprintf("%s(+%v -%v !%v)", b.BridgeID, b.Added, b.Removed, b.Failed)
		if b.Error != "" {
			s += " error: " + b.Error
		}
		parts = append(parts, s)
	}
	return fmt.Sprintf("boot=%t devices=%d bridges=[%s]", r.Boot, r.Devices, strings.Join(parts, ", "))
}
