package controller

import (
	"context"
	"maps"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"bridgeagent/internal/clock"
	"bridgeagent/internal/model"
	"bridgeagent/pkg/logging"
)

// Agent identity reported in every heartbeat.
const (
	AgentBinary = "bridgeagent"
	AgentType   = "Linux bridge VLAN agent"
	AgentTopic  = "N/A"
)

// DefaultReportInterval is the heartbeat period.
const DefaultReportInterval = 30 * time.Second

// StateReporter sends agent heartbeats.
type StateReporter interface {
	ReportState(ctx context.Context, state model.AgentState) error
}

// Notifier talks to the service manager.
type Notifier interface {
	Notify(state string) (bool, error)
	// WatchdogInterval returns zero when no watchdog is configured.
	WatchdogInterval() time.Duration
}

// SystemdNotifier notifies systemd through $NOTIFY_SOCKET.
type SystemdNotifier struct{}

func (SystemdNotifier) Notify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

func (SystemdNotifier) WatchdogInterval() time.Duration {
	d, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logging.Warn(subsystem, "Ignoring invalid watchdog settings: %v", err)
		return 0
	}
	return d
}

// HeartbeatMetrics records heartbeat outcomes.
type HeartbeatMetrics interface {
	RecordHeartbeat(err error)
}

// HeartbeatConfig configures a Heartbeat.
type HeartbeatConfig struct {
	Host     string
	Reporter StateReporter

	// Interval between reports. Zero disables reporting; the watchdog is
	// still fed when systemd asks for it.
	Interval time.Duration

	// Configurations is sent with every report. The devices key is
	// overwritten from Devices.
	Configurations map[string]any
	Devices        func() int

	Notifier Notifier
	Clock    clock.Clock
	Metrics  HeartbeatMetrics
}

// Heartbeat reports agent liveness to the controller and systemd.
type Heartbeat struct {
	config     HeartbeatConfig
	started    bool
	lastReport time.Time
}

// NewHeartbeat builds a heartbeat. A nil Notifier means SystemdNotifier.
func NewHeartbeat(config HeartbeatConfig) *Heartbeat {
	if config.Notifier == nil {
		config.Notifier = SystemdNotifier{}
	}
	if config.Clock == nil {
		config.Clock = clock.RealClock{}
	}
	return &Heartbeat{config: config}
}

// Run signals readiness and then beats until ctx is done.
func (h *Heartbeat) Run(ctx context.Context) error {
	if sent, err := h.config.Notifier.Notify(daemon.SdNotifyReady); err != nil {
		logging.Warn(subsystem, "Failed to notify systemd of readiness: %v", err)
	} else if sent {
		logging.Debug(subsystem, "Notified systemd of readiness")
	}

	watchdog := h.config.Notifier.WatchdogInterval()
	period := h.period(watchdog)
	if period <= 0 {
		logging.Info(subsystem, "State reporting disabled")
		<-ctx.Done()
		return nil
	}

	for {
		h.Beat(ctx, watchdog > 0)
		if err := clock.Sleep(ctx, h.config.Clock, period); err != nil {
			return nil
		}
	}
}

// period is the report interval, shortened to half the watchdog timeout
// when systemd needs to hear from us more often.
func (h *Heartbeat) period(watchdog time.Duration) time.Duration {
	period := h.config.Interval
	if watchdog > 0 && (period <= 0 || watchdog/2 < period) {
		period = watchdog / 2
	}
	return period
}

// Beat reports state when a report is due and feeds the watchdog.
func (h *Heartbeat) Beat(ctx context.Context, feedWatchdog bool) {
	if h.reportDue() {
		h.report(ctx)
	}
	if feedWatchdog {
		if _, err := h.config.Notifier.Notify(daemon.SdNotifyWatchdog); err != nil {
			logging.Warn(subsystem, "Failed to feed systemd watchdog: %v", err)
		}
	}
}

func (h *Heartbeat) reportDue() bool {
	if h.config.Interval <= 0 || h.config.Reporter == nil {
		return false
	}
	return h.lastReport.IsZero() || h.config.Clock.Now().Sub(h.lastReport) >= h.config.Interval
}

// State returns the state the next report will send.
func (h *Heartbeat) State() model.AgentState {
	configurations := maps.Clone(h.config.Configurations)
	if configurations == nil {
		configurations = make(map[string]any)
	}
	devices := 0
	if h.config.Devices != nil {
		devices = h.config.Devices()
	}
	configurations["devices"] = devices

	return model.AgentState{
		Binary:         AgentBinary,
		Host:           h.config.Host,
		Topic:          AgentTopic,
		AgentType:      AgentType,
		Configurations: configurations,
		StartFlag:      !h.started,
	}
}

func (h *Heartbeat) report(ctx context.Context) {
	h.lastReport = h.config.Clock.Now()

	err := h.config.Reporter.ReportState(ctx, h.State())
	if h.config.Metrics != nil {
		h.config.Metrics.RecordHeartbeat(err)
	}
	if err != nil {
		logging.Error(subsystem, err, "Failed reporting state")
		return
	}
	if !h.started {
		logging.Info(subsystem, "Reported initial agent state for host %s", h.config.Host)
	}
	h.started = true
}
