// Package bridgelock serializes VLAN mutations per bridge.
//
// Reconciliation and provisioning both add and remove VLANs on the same
// bridges from different goroutines. Every mutation of a bridge happens inside
// Do for that bridge id, so a removal computed from a stale snapshot cannot
// interleave with an addition to the same bridge.
package bridgelock

import (
	"slices"

	"github.com/moby/locker"
)

// Locks hands out one mutex per bridge id.
type Locks struct {
	l *locker.Locker
}

// New creates an empty lock table.
func New() *Locks {
	return &Locks{l: locker.New()}
}

// Do runs fn while holding the lock of bridgeID.
func (b *Locks) Do(bridgeID string, fn func() error) error {
	b.l.Lock(bridgeID)
	defer b.l.Unlock(bridgeID) //nolint:errcheck

	return fn()
}

// DoAll runs fn while holding the locks of every bridge in bridgeIDs. Locks
// are taken in sorted order so concurrent callers cannot deadlock.
func (b *Locks) DoAll(bridgeIDs []string, fn func() error) error {
	ids := slices.Clone(bridgeIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		b.l.Lock(id)
	}
	defer func() {
		for i := len(ids) - 1; i >= 0; i-- {
			b.l.Unlock(ids[i]) //nolint:errcheck
		}
	}()

	return fn()
}
