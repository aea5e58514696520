package controller

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgeagent/internal/model"
)

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		URL:          url,
		AgentID:      "agent-1",
		Host:         "compute-01",
		MaxRetries:   retries,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	assert.Error(t, err)
}

func TestClient_GetDevicesDetailsList(t *testing.T) {
	var got detailsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathDeviceDetails, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		seg := 100
		_ = json.NewEncoder(w).Encode(detailsResponse{Devices: []model.DeviceDetail{
			{Device: "port-1", MACAddress: "fa:16:3e:00:00:01", SegmentationID: &seg, PhysicalNetwork: "default"},
			{Device: "fa:16:3e:00:00:02"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/", 0)
	details, err := c.GetDevicesDetailsList(context.Background(), []string{"fa:16:3e:00:00:01", "fa:16:3e:00:00:02"})
	require.NoError(t, err)

	assert.Equal(t, detailsRequest{AgentID: "agent-1", Host: "compute-01", MACs: []string{"fa:16:3e:00:00:01", "fa:16:3e:00:00:02"}}, got)
	require.Len(t, details, 2)
	assert.True(t, details[0].Known())
	vlan, ok := details[0].VLAN()
	assert.True(t, ok)
	assert.Equal(t, 100, vlan)
	assert.False(t, details[1].Known())
}

func TestClient_GetDevicesDetailsList_NoMACs(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	details, err := newTestClient(t, srv.URL, 0).GetDevicesDetailsList(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, details)
	assert.Zero(t, calls.Load())
}

func TestClient_DeviceUpDown(t *testing.T) {
	var paths []string
	var bodies []deviceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body deviceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	require.NoError(t, c.UpdateDeviceUp(context.Background(), "port-1"))
	require.NoError(t, c.UpdateDeviceDown(context.Background(), "port-2"))

	assert.Equal(t, []string{PathDeviceUp, PathDeviceDown}, paths)
	assert.Equal(t, []deviceRequest{
		{AgentID: "agent-1", Host: "compute-01", Device: "port-1"},
		{AgentID: "agent-1", Host: "compute-01", Device: "port-2"},
	}, bodies)
}

func TestClient_ReportState(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathAgentState, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL, 0).ReportState(context.Background(), model.AgentState{
		Binary:         AgentBinary,
		Host:           "compute-01",
		Configurations: map[string]any{"devices": 2},
		StartFlag:      true,
	})
	require.NoError(t, err)

	assert.Equal(t, "agent-1", body["agent_id"])
	state := body["agent_state"].(map[string]any)
	assert.Equal(t, AgentBinary, state["binary"])
	assert.Equal(t, true, state["start_flag"])
	assert.Equal(t, float64(2), state["configurations"].(map[string]any)["devices"])
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, newTestClient(t, srv.URL, 3).UpdateDeviceUp(context.Background(), "port-1"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_StatusErrorAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "controller overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL, 2).UpdateDeviceDown(context.Background(), "port-1")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, PathDeviceDown, statusErr.Path)
	assert.Equal(t, "controller overloaded", statusErr.Body)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTestClient(t, srv.URL, 3).UpdateDeviceUp(context.Background(), "port-1")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, 0).GetDevicesDetailsList(context.Background(), []string{"aa"})
	assert.ErrorContains(t, err, "failed to decode")
}

func TestClient_MutualTLS(t *testing.T) {
	dir := t.TempDir()
	pki := writeTestPKI(t, dir, "agent-a")

	var peerCN string
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TLS.PeerCertificates) > 0 {
			peerCN = r.TLS.PeerCertificates[0].Subject.CommonName
		}
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = &tls.Config{
		Certificates: []tls.Certificate{pki.serverCert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pki.caPool,
	}
	srv.StartTLS()
	defer srv.Close()

	id, err := LoadIdentity(IdentityConfig{Dir: dir})
	require.NoError(t, err)

	c, err := NewClient(ClientConfig{URL: srv.URL, Host: "compute-01", Identity: id})
	require.NoError(t, err)

	require.NoError(t, c.UpdateDeviceUp(context.Background(), "port-1"))
	assert.Equal(t, "agent-a", peerCN)
}

func TestFormatKV(t *testing.T) {
	assert.Equal(t, "retrying request method=POST attempt=2", formatKV("retrying request", []interface{}{"method", "POST", "attempt", 2}))
	assert.Equal(t, "msg", formatKV("msg", []interface{}{"dangling"}))
}
