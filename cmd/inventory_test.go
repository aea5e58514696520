package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"bridgeagent/internal/model"
	"bridgeagent/internal/testing/fake"
)

type fakeInventory struct {
	*fake.Bridges
	*fake.Devices
}

func testInventory() fakeInventory {
	bridges := fake.NewBridges()
	bridges.AddBridge("br0", 1, []int{4094}, 100, 300)

	devices := fake.NewDevices(
		model.DeviceInventory{MAC: "FA:16:3E:00:00:01", PVID: 100, TaggedVLANs: []int{300}, PartitionID: "LPAR1", BridgeID: "br0"},
		model.DeviceInventory{MAC: "fa:16:3e:00:00:02", PVID: 1, PartitionID: "LPAR2", BridgeID: "br0"},
	)
	return fakeInventory{Bridges: bridges, Devices: devices}
}

func TestCollectInventory(t *testing.T) {
	view, err := collectInventory(context.Background(), testInventory(), "")
	require.NoError(t, err)

	require.Len(t, view.Bridges, 1)
	assert.Equal(t, bridgeView{ID: "br0", PrimaryVLANs: []int{1, 4094}, VLANs: []int{1, 100, 300, 4094}}, view.Bridges[0])

	require.Len(t, view.Adapters, 2)
	assert.Equal(t, "fa:16:3e:00:00:01", view.Adapters[0].MAC)
	assert.Equal(t, []int{300}, view.Adapters[0].TaggedVLANs)
	assert.Equal(t, []int{}, view.Adapters[1].TaggedVLANs)
}

func TestCollectInventory_Partition(t *testing.T) {
	view, err := collectInventory(context.Background(), testInventory(), "LPAR2")
	require.NoError(t, err)
	require.Len(t, view.Adapters, 1)
	assert.Equal(t, "LPAR2", view.Adapters[0].PartitionID)
}

func TestCollectInventory_Errors(t *testing.T) {
	inv := testInventory()
	inv.Bridges.ListErr = errors.New("netlink down")
	_, err := collectInventory(context.Background(), inv, "")
	assert.ErrorContains(t, err, "failed to list bridges")

	inv = testInventory()
	inv.Devices.ListErr = errors.New("netlink down")
	_, err = collectInventory(context.Background(), inv, "")
	assert.ErrorContains(t, err, "failed to list adapters")
}

func TestRenderInventory(t *testing.T) {
	view, err := collectInventory(context.Background(), testInventory(), "")
	require.NoError(t, err)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderInventory(&buf, view, "table"))
		out := buf.String()
		assert.Contains(t, out, "Bridges")
		assert.Contains(t, out, "1,100,300,4094")
		assert.Contains(t, out, "fa:16:3e:00:00:02")
		assert.Contains(t, out, "LPAR1")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderInventory(&buf, view, "json"))
		var decoded inventoryView
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, view, decoded)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, renderInventory(&buf, view, "yaml"))
		var decoded inventoryView
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, view, decoded)
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, renderInventory(&bytes.Buffer{}, view, "xml"))
	})
}

func TestJoinVLANs(t *testing.T) {
	assert.Equal(t, "-", joinVLANs(nil))
	assert.Equal(t, "5,10", joinVLANs([]int{5, 10}))
}
