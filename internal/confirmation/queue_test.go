package confirmation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgeagent/internal/clock"
	"bridgeagent/internal/model"
	"bridgeagent/internal/testing/fake"
)

func request(mac, lpar string, vlan int) model.ProvisionRequest {
	seg := vlan
	return model.NewProvisionRequest(model.DeviceDetail{
		Device:          "port-" + mac,
		MACAddress:      mac,
		SegmentationID:  &seg,
		PhysicalNetwork: "default",
	}, lpar)
}

func TestQueue_AddIgnoresDuplicates(t *testing.T) {
	q := NewQueue(fake.NewDevices(), fake.NewController(), Options{})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Add(request("AA:AA:AA:AA:AA:01", "LPAR1", 200))
	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR2", 100))

	require.Equal(t, 2, q.Len())
	entries := q.Entries()
	assert.Equal(t, 100, entries[0].Request.SegmentationID)
	assert.Equal(t, "LPAR2", entries[1].Request.LparID)
}

func TestQueue_PendingVLANs(t *testing.T) {
	q := NewQueue(fake.NewDevices(), fake.NewController(), Options{})
	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Add(request("aa:aa:aa:aa:aa:02", "LPAR1", 200))
	q.Add(model.NewProvisionRequest(model.DeviceDetail{MACAddress: "aa:aa:aa:aa:aa:03"}, "LPAR1"))

	assert.Equal(t, []int{100, 200}, model.SortedVLANs(q.PendingVLANs()))
}

func TestQueue_ConfirmsAdapter(t *testing.T) {
	devices := fake.NewDevices(model.DeviceInventory{MAC: "AAAAAAAAAA01", PVID: 1, PartitionID: "LPAR1"})
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 3})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())

	assert.Equal(t, []fake.TagUpdate{{MAC: "AAAAAAAAAA01", VLAN: 100}}, devices.TagUpdates())
	assert.Equal(t, []string{"port-aa:aa:aa:aa:aa:01"}, controller.UpReports())
	assert.Empty(t, controller.DownReports())
	assert.Equal(t, 0, q.Len())
}

func TestQueue_SkipsTagUpdateWhenPVIDMatches(t *testing.T) {
	devices := fake.NewDevices(model.DeviceInventory{MAC: "aa:aa:aa:aa:aa:01", PVID: 100, PartitionID: "LPAR1"})
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())

	assert.Empty(t, devices.TagUpdates())
	assert.Len(t, controller.UpReports(), 1)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_OnlyLooksInOwningPartition(t *testing.T) {
	devices := fake.NewDevices(model.DeviceInventory{MAC: "aa:aa:aa:aa:aa:01", PartitionID: "OTHER"})
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 5})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())

	assert.Empty(t, controller.UpReports())
	require.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Entries()[0].Attempts)
}

func TestQueue_TimesOutAfterExactlyTimeoutAttempts(t *testing.T) {
	devices := fake.NewDevices()
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 3})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))

	q.Tick(context.Background())
	q.Tick(context.Background())
	assert.Empty(t, controller.DownReports())
	assert.Equal(t, 2, q.Entries()[0].Attempts)

	q.Tick(context.Background())
	assert.Equal(t, []string{"port-aa:aa:aa:aa:aa:01"}, controller.DownReports())
	assert.Equal(t, 0, q.Len())

	q.Tick(context.Background())
	assert.Len(t, controller.DownReports(), 1)
}

func TestQueue_FailedDownReportStillRemovesEntry(t *testing.T) {
	controller := fake.NewController()
	controller.DownErr = errors.New("controller unavailable")
	q := NewQueue(fake.NewDevices(), controller, Options{Timeout: 1})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())

	assert.Len(t, controller.DownReports(), 1)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_UpdateFailureCountsAsAttempt(t *testing.T) {
	devices := fake.NewDevices(model.DeviceInventory{MAC: "aa:aa:aa:aa:aa:01", PVID: 1, PartitionID: "LPAR1"})
	devices.UpdateErr = errors.New("adapter busy")
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 10})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())

	assert.Empty(t, controller.UpReports())
	require.Equal(t, 1, q.Len())
	assert.Equal(t, 1, q.Entries()[0].Attempts)

	devices.UpdateErr = nil
	q.Tick(context.Background())
	assert.Len(t, controller.UpReports(), 1)
	assert.Equal(t, 0, q.Len())
}

func TestQueue_ListFailureCountsAsAttempt(t *testing.T) {
	devices := fake.NewDevices()
	devices.ListErr = errors.New("inventory unavailable")
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 2})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())
	q.Tick(context.Background())

	assert.Len(t, controller.DownReports(), 1)
	assert.Equal(t, 0, q.Len())
}

// The adapter appears a few ticks after the request was queued.
func TestQueue_AdapterAppearsLater(t *testing.T) {
	devices := fake.NewDevices()
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 300})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	for i := 0; i < 5; i++ {
		q.Tick(context.Background())
	}
	assert.Equal(t, 5, q.Entries()[0].Attempts)

	devices.AddAdapter(model.DeviceInventory{MAC: "aa:aa:aa:aa:aa:01", PVID: 1, PartitionID: "LPAR1"})
	q.Tick(context.Background())

	assert.Equal(t, []fake.TagUpdate{{MAC: "aa:aa:aa:aa:aa:01", VLAN: 100}}, devices.TagUpdates())
	assert.Len(t, controller.UpReports(), 1)
	assert.Empty(t, controller.DownReports())
	assert.Equal(t, 0, q.Len())
}

// addingDevices runs add once, from inside the first adapter listing.
type addingDevices struct {
	*fake.Devices
	once sync.Once
	add  func()
}

func (a *addingDevices) ListAdapters(ctx context.Context, partitionID string) ([]model.DeviceInventory, error) {
	a.once.Do(a.add)
	return a.Devices.ListAdapters(ctx, partitionID)
}

func TestQueue_AddDuringTickWaitsForNextTick(t *testing.T) {
	inner := fake.NewDevices(model.DeviceInventory{MAC: "aa:aa:aa:aa:aa:02", PVID: 1, PartitionID: "LPAR2"})
	devices := &addingDevices{Devices: inner}
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 10})
	devices.add = func() { q.Add(request("aa:aa:aa:aa:aa:02", "LPAR2", 200)) }

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Tick(context.Background())

	assert.Equal(t, 1, inner.ListCalls)
	assert.Empty(t, controller.UpReports())
	require.Equal(t, 2, q.Len())
	entries := q.Entries()
	assert.Equal(t, 1, entries[0].Attempts)
	assert.Equal(t, 0, entries[1].Attempts)

	q.Tick(context.Background())
	assert.Equal(t, []string{"port-aa:aa:aa:aa:aa:02"}, controller.UpReports())
	assert.Equal(t, 1, q.Len())
}

func TestQueue_RecordsLastError(t *testing.T) {
	devices := fake.NewDevices(model.DeviceInventory{MAC: "aa:aa:aa:aa:aa:01", PVID: 1, PartitionID: "LPAR1"})
	devices.UpdateErr = errors.New("adapter busy")
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 10})

	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))
	q.Add(request("aa:aa:aa:aa:aa:09", "LPAR1", 100))
	q.Tick(context.Background())

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.ErrorContains(t, entries[0].LastError, "adapter busy")
	assert.ErrorIs(t, entries[1].LastError, errAdapterNotFound)
}

type panickingDevices struct{ fake.Devices }

func (p *panickingDevices) ListAdapters(context.Context, string) ([]model.DeviceInventory, error) {
	panic("backend exploded")
}

func TestQueue_TickRecoversFromPanic(t *testing.T) {
	q := NewQueue(&panickingDevices{}, fake.NewController(), Options{})
	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))

	assert.NotPanics(t, func() { q.Tick(context.Background()) })
	assert.Equal(t, 1, q.Len())
}

func TestQueue_RunStopsOnCancel(t *testing.T) {
	mc := clock.NewMockClock(time.Time{})
	devices := fake.NewDevices()
	controller := fake.NewController()
	q := NewQueue(devices, controller, Options{Timeout: 2, Tick: time.Second, Clock: mc})
	q.Add(request("aa:aa:aa:aa:aa:01", "LPAR1", 100))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	// First tick runs immediately; advance once for the second.
	require.Eventually(t, func() bool { return mc.Waiters() == 1 }, time.Second, time.Millisecond)
	mc.Advance(time.Second)
	require.Eventually(t, func() bool { return len(controller.DownReports()) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
