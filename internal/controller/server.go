package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"bridgeagent/internal/model"
	"bridgeagent/internal/reconciler"
	"bridgeagent/pkg/logging"
)

// Notification and status routes.
const (
	PathPortUpdate    = "/v1/notifications/port-update"
	PathNetworkDelete = "/v1/notifications/network-delete"
	PathHealth        = "/healthz"
	PathStatus        = "/status"
	PathMetrics       = "/metrics"
)

// DefaultShutdownTimeout bounds graceful shutdown of the notification server.
const DefaultShutdownTimeout = 5 * time.Second

const maxNotificationBytes = 1 << 20

// NotificationSink receives controller pushes.
type NotificationSink interface {
	PortUpdate(port model.Port)
	NetworkDelete(networkID string)
}

// QueueStatus reports on the confirmation queue.
type QueueStatus interface {
	Len() int
	PendingVLANs() model.VLANSet
}

// HealSummarizer reports on past reconciliation runs.
type HealSummarizer interface {
	Summary() reconciler.HealSummary
}

// ServerConfig wires the notification server.
type ServerConfig struct {
	Address string
	Host    string

	Sink     NotificationSink
	Queue    QueueStatus
	Heals    HealSummarizer
	Identity *Identity
	Metrics  http.Handler
}

// Status is the body served on /status.
type Status struct {
	Host                 string                  `json:"host"`
	PendingConfirmations int                     `json:"pending_confirmations"`
	PendingVLANs         []int                   `json:"pending_vlans"`
	Heal                 *reconciler.HealSummary `json:"heal,omitempty"`
	Identity             *IdentityStatus         `json:"identity,omitempty"`
}

type networkDeleteRequest struct {
	NetworkID string `json:"network_id"`
}

// Server is the agent's inbound HTTP endpoint.
type Server struct {
	config ServerConfig
	router *mux.Router
}

// NewServer builds the router. Nil collaborators disable their parts of
// /status; a nil Sink rejects notifications.
func NewServer(config ServerConfig) *Server {
	s := &Server{config: config, router: mux.NewRouter()}

	s.router.HandleFunc(PathPortUpdate, s.handlePortUpdate).Methods(http.MethodPost)
	s.router.HandleFunc(PathNetworkDelete, s.handleNetworkDelete).Methods(http.MethodPost)
	s.router.HandleFunc(PathHealth, s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc(PathStatus, s.handleStatus).Methods(http.MethodGet)
	if config.Metrics != nil {
		s.router.Handle(PathMetrics, config.Metrics).Methods(http.MethodGet)
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info(subsystem, "Notification endpoint listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("notification endpoint failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down notification endpoint: %w", err)
	}
	logging.Info(subsystem, "Notification endpoint stopped")
	return nil
}

func (s *Server) handlePortUpdate(w http.ResponseWriter, r *http.Request) {
	if s.config.Sink == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not accepted")
		return
	}
	var port model.Port
	if err := decodeBody(r, &port); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if port.ID == "" {
		writeError(w, http.StatusBadRequest, "port id is required")
		return
	}
	s.config.Sink.PortUpdate(port)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleNetworkDelete(w http.ResponseWriter, r *http.Request) {
	if s.config.Sink == nil {
		writeError(w, http.StatusServiceUnavailable, "notifications are not accepted")
		return
	}
	var body networkDeleteRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.NetworkID == "" {
		writeError(w, http.StatusBadRequest, "network_id is required")
		return
	}
	s.config.Sink.NetworkDelete(body.NetworkID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := Status{Host: s.config.Host, PendingVLANs: []int{}}
	if s.config.Queue != nil {
		st.PendingConfirmations = s.config.Queue.Len()
		st.PendingVLANs = model.SortedVLANs(s.config.Queue.PendingVLANs())
	}
	if s.config.Heals != nil {
		summary := s.config.Heals.Summary()
		st.Heal = &summary
	}
	if s.config.Identity != nil {
		id := s.config.Identity.Status()
		st.Identity = &id
	}
	writeJSON(w, http.StatusOK, st)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxNotificationBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error(subsystem, err, "Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
