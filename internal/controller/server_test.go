package controller

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgeagent/internal/metrics"
	"bridgeagent/internal/model"
	"bridgeagent/internal/reconciler"
)

type recordingSink struct {
	ports    []model.Port
	networks []string
}

func (s *recordingSink) PortUpdate(port model.Port)     { s.ports = append(s.ports, port) }
func (s *recordingSink) NetworkDelete(networkID string) { s.networks = append(s.networks, networkID) }

type staticQueue struct {
	n     int
	vlans []int
}

func (q staticQueue) Len() int                    { return q.n }
func (q staticQueue) PendingVLANs() model.VLANSet { return model.NewVLANSet(q.vlans...) }

type staticHeals struct{ summary reconciler.HealSummary }

func (h staticHeals) Summary() reconciler.HealSummary { return h.summary }

func serve(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_PortUpdate(t *testing.T) {
	sink := &recordingSink{}
	s := NewServer(ServerConfig{Sink: sink})

	rec := serve(t, s, http.MethodPost, PathPortUpdate,
		`{"id":"port-1","mac_address":"fa:16:3e:00:00:01","device_id":"vm-1","binding:host_id":"compute-01"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []model.Port{{
		ID:            "port-1",
		MACAddress:    "fa:16:3e:00:00:01",
		DeviceID:      "vm-1",
		BindingHostID: "compute-01",
	}}, sink.ports)
}

func TestServer_PortUpdateRejectsBadInput(t *testing.T) {
	sink := &recordingSink{}
	s := NewServer(ServerConfig{Sink: sink})

	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, PathPortUpdate, `{`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, PathPortUpdate, `{"mac_address":"aa"}`).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, s, http.MethodGet, PathPortUpdate, "").Code)
	assert.Empty(t, sink.ports)
}

func TestServer_NoSink(t *testing.T) {
	s := NewServer(ServerConfig{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodPost, PathPortUpdate, `{"id":"p"}`).Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, s, http.MethodPost, PathNetworkDelete, `{"network_id":"n"}`).Code)
}

func TestServer_NetworkDelete(t *testing.T) {
	sink := &recordingSink{}
	s := NewServer(ServerConfig{Sink: sink})

	assert.Equal(t, http.StatusAccepted, serve(t, s, http.MethodPost, PathNetworkDelete, `{"network_id":"net-1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, PathNetworkDelete, `{}`).Code)
	assert.Equal(t, []string{"net-1"}, sink.networks)
}

func TestServer_Health(t *testing.T) {
	rec := serve(t, NewServer(ServerConfig{}), http.MethodGet, PathHealth, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Status(t *testing.T) {
	s := NewServer(ServerConfig{
		Host:  "compute-01",
		Queue: staticQueue{n: 2, vlans: []int{300, 100}},
		Heals: staticHeals{summary: reconciler.HealSummary{Runs: 4, Failures: 1, VLANsAdded: 3}},
	})

	rec := serve(t, s, http.MethodGet, PathStatus, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "compute-01", st.Host)
	assert.Equal(t, 2, st.PendingConfirmations)
	assert.Equal(t, []int{100, 300}, st.PendingVLANs)
	require.NotNil(t, st.Heal)
	assert.Equal(t, int64(4), st.Heal.Runs)
	assert.Equal(t, int64(1), st.Heal.Failures)
	assert.Nil(t, st.Identity)
}

func TestServer_StatusWithoutCollaborators(t *testing.T) {
	rec := serve(t, NewServer(ServerConfig{Host: "h"}), http.MethodGet, PathStatus, "")
	assert.JSONEq(t, `{"host":"h","pending_confirmations":0,"pending_vlans":[]}`, rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	m := metrics.New()
	m.RecordConfirmed()

	rec := serve(t, NewServer(ServerConfig{Metrics: m.Handler()}), http.MethodGet, PathMetrics, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bridgeagent_confirmation_completed_total")

	assert.Equal(t, http.StatusNotFound, serve(t, NewServer(ServerConfig{}), http.MethodGet, PathMetrics, "").Code)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(ServerConfig{}).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + PathHealth)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
