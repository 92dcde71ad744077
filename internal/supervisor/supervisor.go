// Package supervisor drives all periodic and reactive work of the node on a
// single cooperative loop: wireless link repair, broker session repair,
// sensor sampling, telemetry publication, and command dispatch. There are no
// locks because there is exactly one thread of control; every collaborator
// has exactly one writer.
package supervisor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nilmgrid/powernode/internal/command"
	"github.com/nilmgrid/powernode/internal/logging"
	"github.com/nilmgrid/powernode/internal/netlink"
	"github.com/nilmgrid/powernode/internal/node"
	"github.com/nilmgrid/powernode/internal/retry"
)

// Sensor is the power sensor read surface. A nil Sensor means the device was
// not detected at boot; the node then runs with zeroed readings for its
// whole lifetime.
type Sensor interface {
	ReadCurrent() (float64, error)
	ReadVoltage() (float64, error)
	ReadPower() (float64, error)
}

// Session is the broker connection. Subscriptions do not survive a
// reconnect; the supervisor resubscribes after every repair.
type Session interface {
	Connect(clientID, username, password string) error
	Connected() bool
	Publish(topic string, payload []byte) error
	Subscribe(topic string) error
	Pump() bool
	Disconnect()
	DisconnectReason() error
}

type Config struct {
	DeviceID string
	Topics   node.Topics

	SSID           string
	Password       string
	ClientIDPrefix string
	Username       string
	BrokerPassword string

	SampleInterval       time.Duration
	PublishInterval      time.Duration
	LinkCheckInterval    time.Duration
	SessionCheckInterval time.Duration
	Yield                time.Duration

	AssocBudget   retry.Budget // association status polls per link repair
	ConnectBudget retry.Budget // broker connect attempts per session repair
}

type Supervisor struct {
	cfg        Config
	link       netlink.Link
	session    Session
	sensor     Sensor
	relays     command.Actuators
	dispatcher *command.Dispatcher

	linkRepair    *linkRepair
	sessionRepair *sessionRepair

	start time.Time
	now   func() time.Time
	sleep func(time.Duration)

	lastLinkCheck    time.Time
	lastSessionCheck time.Time
	lastSample       time.Time
	lastPublish      time.Time

	subscribed bool
	reading    node.Reading
}

func New(cfg Config, link netlink.Link, session Session, sensor Sensor, relays command.Actuators) *Supervisor {
	s := &Supervisor{
		cfg:        cfg,
		link:       link,
		session:    session,
		sensor:     sensor,
		relays:     relays,
		dispatcher: command.NewDispatcher(relays),
		now:        time.Now,
		sleep:      time.Sleep,
	}
	s.linkRepair = &linkRepair{
		link:     link,
		ssid:     cfg.SSID,
		password: cfg.Password,
		budget:   cfg.AssocBudget,
	}
	s.sessionRepair = &sessionRepair{
		session:        session,
		clientIDPrefix: cfg.ClientIDPrefix,
		username:       cfg.Username,
		password:       cfg.BrokerPassword,
		budget:         cfg.ConnectBudget,
	}
	s.start = s.now()
	return s
}

// Run executes the loop until the context is cancelled. In normal operation
// there is no terminal state: link and session failures are retried forever
// at their fixed cadence.
func (s *Supervisor) Run(ctx context.Context) {
	logging.Info("supervisor started",
		"device", s.cfg.DeviceID,
		"sensor", s.sensor != nil,
		"sampleMs", s.cfg.SampleInterval.Milliseconds(),
		"publishMs", s.cfg.PublishInterval.Milliseconds(),
	)
	for {
		select {
		case <-ctx.Done():
			logging.Info("supervisor stopped")
			return
		default:
		}
		s.step(s.now())
		// Short fixed yield so the host never starves.
		s.sleep(s.cfg.Yield)
	}
}

// step runs one loop iteration at the given instant. Concern order is fixed:
// link before session before sample before publish, so a session repaired in
// this iteration still carries a fresh publish. Each concern triggers on
// now-last >= interval and then resets last to now; cycles missed during a
// stall are skipped, never replayed.
func (s *Supervisor) step(now time.Time) {
	if now.Sub(s.lastLinkCheck) >= s.cfg.LinkCheckInterval {
		s.lastLinkCheck = now
		s.checkLink()
	}
	if now.Sub(s.lastSessionCheck) >= s.cfg.SessionCheckInterval {
		s.lastSessionCheck = now
		s.checkSession(now)
	}
	if now.Sub(s.lastSample) >= s.cfg.SampleInterval {
		s.lastSample = now
		s.sample(now)
	}
	if now.Sub(s.lastPublish) >= s.cfg.PublishInterval {
		s.lastPublish = now
		s.publishTelemetry()
		s.publishStatus(now, "")
	}
	if s.session.Connected() {
		s.session.Pump()
	}
}

func (s *Supervisor) checkLink() {
	from, to := s.linkRepair.Tick()
	if from != to {
		logging.Info("link state", "from", from.String(), "to", to.String())
	}
	if to == netlink.Connected {
		logging.Info("link up",
			"ssid", s.link.SSID(),
			"ip", s.link.LocalAddress(),
			"rssi", s.link.SignalStrength(),
		)
	}
}

func (s *Supervisor) checkSession(now time.Time) {
	if s.link.Status() != netlink.Connected {
		// No session without a link.
		if s.session.Connected() {
			s.session.Disconnect()
			s.subscribed = false
			logging.Info("session dropped, link down")
		}
		return
	}
	if s.session.Connected() {
		// A subscribe that failed after the last repair leaves the node
		// deaf while the session itself stays healthy; retry it here.
		if !s.subscribed {
			s.subscribeCommands()
		}
		return
	}
	s.subscribed = false
	if !s.sessionRepair.Tick() {
		logging.Warn("session connect budget exhausted, will retry", "reason", s.session.DisconnectReason())
		return
	}
	s.subscribeCommands()
	// Liveness probe: one telemetry message right away instead of waiting
	// out the publish interval.
	s.publishTelemetry()
}

func (s *Supervisor) subscribeCommands() {
	if err := s.session.Subscribe(s.cfg.Topics.Command); err != nil {
		logging.Error("command subscribe failed", "topic", s.cfg.Topics.Command, "error", err)
		return
	}
	s.subscribed = true
	logging.Info("subscribed", "topic", s.cfg.Topics.Command)
}

func (s *Supervisor) sample(now time.Time) {
	if s.sensor == nil {
		s.reading = node.Reading{}
		return
	}
	r := node.Reading{Timestamp: s.uptimeMillis(now)}
	var err error
	if r.Current, err = s.sensor.ReadCurrent(); err != nil {
		logging.Warn("current read failed", "error", err)
	}
	if r.Voltage, err = s.sensor.ReadVoltage(); err != nil {
		logging.Warn("voltage read failed", "error", err)
	}
	if r.Power, err = s.sensor.ReadPower(); err != nil {
		logging.Warn("power read failed", "error", err)
	}
	s.reading = r
}

func (s *Supervisor) publishTelemetry() {
	if !s.session.Connected() {
		return
	}
	msg := node.Telemetry{
		DeviceID:  s.cfg.DeviceID,
		Timestamp: s.reading.Timestamp,
		Current:   s.reading.Current,
		Voltage:   s.reading.Voltage,
		Power:     s.reading.Power,
		LinkInfo:  s.linkInfo(),
	}
	s.publishJSON(s.cfg.Topics.Sensor, msg)
}

// publishStatus publishes the relay states. A non-empty result marks the
// message as a command acknowledgment.
func (s *Supervisor) publishStatus(now time.Time, result string) {
	if !s.session.Connected() {
		return
	}
	msg := node.Status{
		DeviceID:  s.cfg.DeviceID,
		Timestamp: s.uptimeMillis(now),
		RelayCh1:  s.relays.Get(1),
		RelayCh2:  s.relays.Get(2),
		Result:    result,
		LinkInfo:  s.linkInfo(),
	}
	s.publishJSON(s.cfg.Topics.Status, msg)
}

func (s *Supervisor) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logging.Error("marshal failed", "topic", topic, "error", err)
		return
	}
	if err := s.session.Publish(topic, payload); err != nil {
		logging.Warn("publish failed", "topic", topic, "error", err)
	}
}

// HandleCommand is the inbound message callback the session pump delivers
// into. It runs on the supervisor's thread of control. A malformed payload
// is logged and dropped: no actuator is touched and no acknowledgment is
// published. Otherwise exactly one acknowledgment follows, reflecting the
// state after mutation.
func (s *Supervisor) HandleCommand(topic string, payload []byte) {
	logging.Debug("command received", "topic", topic, "bytes", len(payload))
	_, _, err := s.dispatcher.Dispatch(payload)
	if err != nil {
		logging.Warn("command rejected", "topic", topic, "error", err)
		return
	}
	s.publishStatus(s.now(), "ok")
}

func (s *Supervisor) linkInfo() node.LinkInfo {
	if s.link.Status() != netlink.Connected {
		return node.LinkInfo{}
	}
	return node.LinkInfo{
		WifiConnected: true,
		WifiSSID:      s.link.SSID(),
		WifiRSSI:      s.link.SignalStrength(),
		WifiIP:        s.link.LocalAddress(),
	}
}

func (s *Supervisor) uptimeMillis(now time.Time) int64 {
	return now.Sub(s.start).Milliseconds()
}
