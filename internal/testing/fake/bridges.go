package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bridgeagent/internal/model"
)

// EnsureCall records one EnsureVLANsOnBridge call.
type EnsureCall struct {
	BridgeID string
	VLANs    []int
}

// RemoveCall records one RemoveVLANFromBridge call.
type RemoveCall struct {
	BridgeID string
	VLAN     int
}

// Bridges is an in-memory api.BridgeAPI.
type Bridges struct {
	mu sync.Mutex

	bridges map[string]*model.BridgeInventory

	ListErr   error
	EnsureErr map[string]error
	// RemoveErr fails removal of specific VLANs, on any bridge.
	RemoveErr map[int]error

	EnsureCalls []EnsureCall
	RemoveCalls []RemoveCall
}

// NewBridges creates an empty bridge backend.
func NewBridges() *Bridges {
	return &Bridges{
		bridges:   make(map[string]*model.BridgeInventory),
		EnsureErr: make(map[string]error),
		RemoveErr: make(map[int]error),
	}
}

// AddBridge registers a bridge whose primary load group has the given PVID
// and tagged VLANs. Live VLANs are the primary VLANs plus extra.
func (b *Bridges) AddBridge(id string, pvid int, tagged []int, extra ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	primary := model.LoadGroup{PVID: pvid, TaggedVLANs: tagged}
	vlans := primary.VLANs()
	vlans.Append(extra...)
	b.bridges[id] = &model.BridgeInventory{
		ID:         id,
		LoadGroups: []model.LoadGroup{primary},
		VLANs:      vlans,
	}
}

func (b *Bridges) ListBridges(_ context.Context) ([]model.BridgeInventory, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ListErr != nil {
		return nil, b.ListErr
	}

	ids := make([]string, 0, len(b.bridges))
	for id := range b.bridges {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.BridgeInventory, 0, len(ids))
	for _, id := range ids {
		br := b.bridges[id]
		out = append(out, model.BridgeInventory{
			ID:         br.ID,
			LoadGroups: append([]model.LoadGroup(nil), br.LoadGroups...),
			VLANs:      br.VLANs.Clone(),
		})
	}
	return out, nil
}

func (b *Bridges) ListVLANs(_ context.Context, bridgeID string) (model.VLANSet, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	br, ok := b.bridges[bridgeID]
	if !ok {
		return nil, fmt.Errorf("bridge %s not found", bridgeID)
	}
	return br.VLANs.Clone(), nil
}

func (b *Bridges) EnsureVLANsOnBridge(_ context.Context, bridgeID string, vlans model.VLANSet) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.EnsureCalls = append(b.EnsureCalls, EnsureCall{BridgeID: bridgeID, VLANs: model.SortedVLANs(vlans)})
	if err := b.EnsureErr[bridgeID]; err != nil {
		return err
	}

	br, ok := b.bridges[bridgeID]
	if !ok {
		return fmt.Errorf("bridge %s not found", bridgeID)
	}
	br.VLANs = br.VLANs.Union(vlans)
	return nil
}

func (b *Bridges) RemoveVLANFromBridge(_ context.Context, bridgeID string, vlan int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.RemoveCalls = append(b.RemoveCalls, RemoveCall{BridgeID: bridgeID, VLAN: vlan})
	if err := b.RemoveErr[vlan]; err != nil {
		return err
	}

	br, ok := b.bridges[bridgeID]
	if !ok {
		return fmt.Errorf("bridge %s not found", bridgeID)
	}
	br.VLANs.Remove(vlan)
	return nil
}

// VLANs returns the live VLANs of a bridge, sorted.
func (b *Bridges) VLANs(bridgeID string) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if br, ok := b.bridges[bridgeID]; ok {
		return model.SortedVLANs(br.VLANs)
	}
	return nil
}

// Ensures returns a copy of the recorded ensure calls.
func (b *Bridges) Ensures() []EnsureCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]EnsureCall(nil), b.EnsureCalls...)
}

// Removes returns a copy of the recorded remove calls.
func (b *Bridges) Removes() []RemoveCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RemoveCall(nil), b.RemoveCalls...)
}

// ResetCalls clears the recorded calls.
func (b *Bridges) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EnsureCalls = nil
	b.RemoveCalls = nil
}
