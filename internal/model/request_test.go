package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int { return &i }

func TestNewProvisionRequest(t *testing.T) {
	detail := DeviceDetail{
		Device:          "port-1",
		PortID:          "port-1",
		MACAddress:      "FA:16:3E:00:00:01",
		SegmentationID:  intPtr(10),
		PhysicalNetwork: "default",
		DeviceOwner:     "compute:nova",
	}

	req := NewProvisionRequest(detail, "L1")

	assert.Equal(t, 10, req.SegmentationID)
	assert.Equal(t, "default", req.PhysicalNetwork)
	assert.Equal(t, "fa:16:3e:00:00:01", req.MACAddress)
	assert.Equal(t, "compute:nova", req.DeviceOwner)
	assert.Equal(t, "L1", req.LparID)
	assert.True(t, req.HasVLAN())

	// The request keeps its own copy of the segmentation id.
	*detail.SegmentationID = 99
	require.NotNil(t, req.Detail.SegmentationID)
	assert.Equal(t, 10, *req.Detail.SegmentationID)
}

func TestProvisionRequest_NoVLAN(t *testing.T) {
	req := NewProvisionRequest(DeviceDetail{MACAddress: "aa:bb:cc:dd:ee:ff"}, "L1")
	assert.False(t, req.HasVLAN())
	assert.Equal(t, 0, req.SegmentationID)
}

func TestDedup_CollapsesSameKey(t *testing.T) {
	a := NewProvisionRequest(DeviceDetail{MACAddress: "AA:00:00:00:00:01", SegmentationID: intPtr(10), PhysicalNetwork: "default"}, "L1")
	// Same mac and lpar, different everything else.
	b := NewProvisionRequest(DeviceDetail{MACAddress: "aa0000000001", SegmentationID: intPtr(20), PhysicalNetwork: "other"}, "L1")
	c := NewProvisionRequest(DeviceDetail{MACAddress: "aa:00:00:00:00:01"}, "L2")

	merged := Dedup([]ProvisionRequest{a}, []ProvisionRequest{b, c})

	require.Len(t, merged, 2)
	assert.Equal(t, 10, merged[0].SegmentationID, "first occurrence wins")
	assert.Equal(t, "L2", merged[1].LparID)
	assert.Equal(t, a.Key(), b.Key())
}

func TestNormalizeMAC(t *testing.T) {
	tests := map[string]string{
		"1234567890AB":      "12:34:56:78:90:ab",
		"12:34:56:78:90:AB": "12:34:56:78:90:ab",
		"12-34-56-78-90-ab": "12:34:56:78:90:ab",
		"":                  "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeMAC(in), in)
	}
}

func TestPartitionIDFromDeviceID(t *testing.T) {
	// High bit of the first nibble is cleared: 'f' (1111) becomes '7' (0111).
	assert.Equal(t, "7A6B5C4D-1111-2222-3333-444455556666",
		PartitionIDFromDeviceID("fa6b5c4d-1111-2222-3333-444455556666"))
	assert.Equal(t, "1A6B5C4D-1111-2222-3333-444455556666",
		PartitionIDFromDeviceID("1a6b5c4d-1111-2222-3333-444455556666"))
	assert.Equal(t, "VM-01", PartitionIDFromDeviceID("vm-01"))
}

func TestDeviceDetail_VLAN(t *testing.T) {
	_, ok := DeviceDetail{}.VLAN()
	assert.False(t, ok)

	_, ok = DeviceDetail{SegmentationID: intPtr(0)}.VLAN()
	assert.False(t, ok)

	vlan, ok := DeviceDetail{SegmentationID: intPtr(42)}.VLAN()
	assert.True(t, ok)
	assert.Equal(t, 42, vlan)

	assert.False(t, DeviceDetail{Device: "x"}.Known())
	assert.True(t, DeviceDetail{MACAddress: "aa:bb:cc:dd:ee:ff"}.Known())
}
