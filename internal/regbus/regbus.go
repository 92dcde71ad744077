package regbus

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/goburrow/modbus"

	"github.com/nilmgrid/powernode/internal/config"
	"github.com/nilmgrid/powernode/internal/logging"
)

// RegisterBus is the 16-bit register window of the sensor bridge.
type RegisterBus interface {
	ReadRegister(addr uint8) (uint16, error)
	WriteRegister(addr uint8, value uint16) error
}

// CoilBank drives the discrete outputs of the relay module.
type CoilBank interface {
	WriteCoil(addr uint16, on bool) error
}

type busHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// IOModule is the node's field-bus endpoint: an I2C bridge exposing the
// power sensor registers as holding registers on one unit id, and a relay
// board exposing its channels as coils on another.
type IOModule struct {
	handler busHandler
	client  modbus.Client
	busType string

	sensorUnit   uint8
	relayUnit    uint8
	registerBase uint16

	// Connection and backoff state
	connOK      bool
	backoff     time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	lastConnErr error
}

// tcpHandlerWithClose wraps the TCP handler; its Close is a safe no-op.
type tcpHandlerWithClose struct {
	*modbus.TCPClientHandler
}

func (h *tcpHandlerWithClose) Close() error { return nil }

func Open(bus *config.BusConfig, sensor config.SensorConfig, relays config.RelayConfig) (*IOModule, error) {
	var handler busHandler
	switch strings.ToLower(bus.Type) {
	case "rtu":
		h := modbus.NewRTUClientHandler(bus.Port)
		h.BaudRate = bus.Baud
		h.DataBits = bus.DataBits
		h.Parity = bus.Parity
		h.StopBits = bus.StopBits
		h.Timeout = bus.Timeout()
		if bus.Debug {
			h.Logger = logging.WrapSlog("bus", bus.Port)
		}
		handler = h
	case "tcp":
		h := modbus.NewTCPClientHandler(bus.TCPAddr)
		h.Timeout = bus.Timeout()
		if bus.Debug {
			h.Logger = logging.WrapSlog("bus", bus.TCPAddr)
		}
		handler = &tcpHandlerWithClose{h}
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", bus.Type)
	}

	m := &IOModule{
		handler:      handler,
		client:       modbus.NewClient(handler),
		busType:      bus.Type,
		sensorUnit:   sensor.UnitID,
		relayUnit:    relays.UnitID,
		registerBase: sensor.RegisterBase,
		connOK:       false,
		backoffMin:   200 * time.Millisecond,
		backoffMax:   5 * time.Second,
	}
	if err := handler.Connect(); err != nil {
		// Non-fatal: the node must come up with the field bus absent.
		m.bumpBackoff(err)
		logging.Warn("field bus connect failed", "type", bus.Type, "error", err)
	} else {
		m.connOK = true
	}
	return m, nil
}

func (m *IOModule) Close() {
	m.handler.Close()
	m.connOK = false
}

func (m *IOModule) ensureConnected() error {
	if m.connOK {
		return nil
	}
	if m.backoff > 0 {
		time.Sleep(m.backoff)
	}
	m.handler.Close() // cleanup any stale
	if err := m.handler.Connect(); err != nil {
		m.bumpBackoff(err)
		return err
	}
	m.client = modbus.NewClient(m.handler)
	m.connOK = true
	m.backoff = 0
	m.lastConnErr = nil
	return nil
}

func (m *IOModule) bumpBackoff(err error) {
	m.connOK = false
	m.lastConnErr = err
	if m.backoff == 0 {
		m.backoff = m.backoffMin
	} else {
		m.backoff *= 2
		if m.backoff > m.backoffMax {
			m.backoff = m.backoffMax
		}
	}
}

func (m *IOModule) setSlave(id byte) {
	switch h := m.handler.(type) {
	case *modbus.RTUClientHandler:
		h.SlaveId = id
	case *tcpHandlerWithClose:
		h.SlaveId = id
	default:
		logging.Error("unknown modbus handler type", "type", fmt.Sprintf("%T", h))
	}
}

func (m *IOModule) withClient(unit uint8, fn func() ([]byte, error)) ([]byte, error) {
	if err := m.ensureConnected(); err != nil {
		return nil, err
	}
	m.setSlave(unit)

	v, err := fn()
	if err == nil {
		return v, nil
	}
	if isTransient(err) {
		m.bumpBackoff(err)
		if err2 := m.ensureConnected(); err2 == nil {
			m.setSlave(unit)
			return fn()
		}
	}
	return nil, err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection") ||
		strings.Contains(s, "broken pipe") ||
		strings.Contains(s, "reset") ||
		strings.Contains(s, "closed") ||
		strings.Contains(s, "i/o") ||
		strings.Contains(s, "timeout")
}

func (m *IOModule) ReadRegister(addr uint8) (uint16, error) {
	data, err := m.withClient(m.sensorUnit, func() ([]byte, error) {
		return m.client.ReadHoldingRegisters(m.registerBase+uint16(addr), 1)
	})
	if err != nil {
		return 0, err
	}
	if len(data) < 2 {
		return 0, fmt.Errorf("short register response (%d bytes)", len(data))
	}
	return binary.BigEndian.Uint16(data), nil
}

func (m *IOModule) WriteRegister(addr uint8, value uint16) error {
	_, err := m.withClient(m.sensorUnit, func() ([]byte, error) {
		return m.client.WriteSingleRegister(m.registerBase+uint16(addr), value)
	})
	return err
}

func (m *IOModule) WriteCoil(addr uint16, on bool) error {
	_, err := m.withClient(m.relayUnit, func() ([]byte, error) {
		val := uint16(0x0000)
		if on {
			val = 0xFF00
		}
		return m.client.WriteSingleCoil(addr, val)
	})
	return err
}
