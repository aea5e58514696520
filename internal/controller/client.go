package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

const subsystem = "Controller"

// Controller REST paths.
const (
	PathDeviceDetails = "/v1/devices/details"
	PathDeviceUp      = "/v1/devices/up"
	PathDeviceDown    = "/v1/devices/down"
	PathAgentState    = "/v1/agents/state"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
)

// ClientConfig configures a Client.
type ClientConfig struct {
	URL     string
	AgentID string
	Host    string

	Timeout    time.Duration
	MaxRetries int

	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// Identity enables mutual TLS. Nil means plain HTTP(S) without a client
	// certificate.
	Identity *Identity
}

// StatusError is returned when the controller answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks JSON to the controller and implements api.ControllerAPI.
type Client struct {
	baseURL string
	agentID string
	host    string
	http    *retryablehttp.Client
}

// NewClient builds a controller client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("controller URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = leveledLogger{}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Timeout = cfg.Timeout

	if cfg.Identity != nil {
		transport, ok := rc.HTTPClient.Transport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("unexpected transport type %T", rc.HTTPClient.Transport)
		}
		transport.TLSClientConfig = cfg.Identity.TLSConfig()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		agentID: cfg.AgentID,
		host:    cfg.Host,
		http:    rc,
	}, nil
}

type detailsRequest struct {
	AgentID string   `json:"agent_id"`
	Host    string   `json:"host"`
	MACs    []string `json:"macs"`
}

type detailsResponse struct {
	Devices []model.DeviceDetail `json:"devices"`
}

type deviceRequest struct {
	AgentID string `json:"agent_id"`
	Host    string `json:"host"`
	Device  string `json:"device"`
}

type stateRequest struct {
	AgentID string           `json:"agent_id"`
	State   model.AgentState `json:"agent_state"`
}

// GetDevicesDetailsList returns the controller records for the given MACs.
func (c *Client) GetDevicesDetailsList(ctx context.Context, macs []string) ([]model.DeviceDetail, error) {
	if len(macs) == 0 {
		return nil, nil
	}
	var resp detailsResponse
	err := c.post(ctx, PathDeviceDetails, detailsRequest{AgentID: c.agentID, Host: c.host, MACs: macs}, &resp)
	if err != nil {
		return nil, err
	}
	logging.Debug(subsystem, "Controller returned %d device details for %d MACs", len(resp.Devices), len(macs))
	return resp.Devices, nil
}

// UpdateDeviceUp marks the device up on the controller.
func (c *Client) UpdateDeviceUp(ctx context.Context, device string) error {
	return c.post(ctx, PathDeviceUp, deviceRequest{AgentID: c.agentID, Host: c.host, Device: device}, nil)
}

// UpdateDeviceDown marks the device down on the controller.
func (c *Client) UpdateDeviceDown(ctx context.Context, device string) error {
	return c.post(ctx, PathDeviceDown, deviceRequest{AgentID: c.agentID, Host: c.host, Device: device}, nil)
}

// ReportState sends the agent heartbeat.
func (c *Client) ReportState(ctx context.Context, state model.AgentState) error {
	return c.post(ctx, PathAgentState, stateRequest{AgentID: c.agentID, State: state}, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			Method:     http.MethodPost,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// leveledLogger routes retryablehttp's log lines through pkg/logging.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, kv ...interface{}) {
	logging.Warn(subsystem, "%s", formatKV(msg, kv))
}

func (leveledLogger) Warn(msg string, kv ...interface{}) {
	logging.Warn(subsystem, "%s", formatKV(msg, kv))
}

func (leveledLogger) Info(msg string, kv ...interface{}) {
	logging.Debug(subsystem, "%s", formatKV(msg, kv))
}

func (leveledLogger) Debug(msg string, kv ...interface{}) {
	logging.Debug(subsystem, "%s", formatKV(msg, kv))
}

func formatKV(msg string, kv []interface{}) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
