// Package session wraps the MQTT client. Reconnection is owned by the
// supervisor, not the library: auto-reconnect is off and every Connect is one
// deliberate attempt. Inbound messages queue up and are handed out one per
// Pump call so command dispatch stays on the supervisor's thread of control.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nilmgrid/powernode/internal/logging"
)

type message struct {
	topic   string
	payload []byte
}

type Client struct {
	brokerURL      string
	connectTimeout time.Duration
	publishTimeout time.Duration

	client  mqtt.Client
	inbound chan message
	handler func(topic string, payload []byte)

	// lastErr is also written by paho's connection-lost callback, which
	// runs on a library goroutine.
	errMu   sync.Mutex
	lastErr error
}

func New(brokerURL string, inboundBuffer int, publishTimeout time.Duration) *Client {
	if inboundBuffer <= 0 {
		inboundBuffer = 16
	}
	if publishTimeout <= 0 {
		publishTimeout = 5 * time.Second
	}
	return &Client{
		brokerURL:      brokerURL,
		connectTimeout: 10 * time.Second,
		publishTimeout: publishTimeout,
		inbound:        make(chan message, inboundBuffer),
	}
}

// OnMessage registers the callback Pump delivers into.
func (c *Client) OnMessage(fn func(topic string, payload []byte)) {
	c.handler = fn
}

// Connect makes a single bounded connection attempt. The previous client, if
// any, is discarded: subscriptions do not survive a reconnect and must be
// re-established by the caller.
func (c *Client) Connect(clientID, username, password string) error {
	if c.client != nil && c.client.IsConnected() {
		return nil
	}

	opts := mqtt.NewClientOptions().AddBroker(c.brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(c.connectTimeout)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setLastErr(err)
		logging.Warn("session connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	if !tok.WaitTimeout(c.connectTimeout) {
		err := fmt.Errorf("connect timeout after %v", c.connectTimeout)
		c.setLastErr(err)
		return err
	}
	if err := tok.Error(); err != nil {
		c.setLastErr(err)
		return err
	}
	c.setLastErr(nil)
	return nil
}

func (c *Client) setLastErr(err error) {
	c.errMu.Lock()
	c.lastErr = err
	c.errMu.Unlock()
}

func (c *Client) Connected() bool {
	return c.client != nil && c.client.IsConnected()
}

func (c *Client) Publish(topic string, payload []byte) error {
	if c.client == nil {
		return errors.New("session: not connected")
	}
	tok := c.client.Publish(topic, 0, false, payload)
	if !tok.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("publish timeout after %v", c.publishTimeout)
	}
	return tok.Error()
}

// Subscribe routes matching messages into the inbound queue. When the queue
// is full the oldest pending message is dropped in favor of the new one.
func (c *Client) Subscribe(topic string) error {
	if c.client == nil {
		return errors.New("session: not connected")
	}
	tok := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		c.enqueue(message{topic: msg.Topic(), payload: msg.Payload()})
	})
	if !tok.WaitTimeout(c.publishTimeout) {
		return fmt.Errorf("subscribe timeout for %s", topic)
	}
	return tok.Error()
}

func (c *Client) enqueue(m message) {
	for {
		select {
		case c.inbound <- m:
			return
		default:
			select {
			case old := <-c.inbound:
				logging.Warn("inbound command dropped, queue full", "topic", old.topic)
			default:
			}
		}
	}
}

// Pump delivers at most one queued inbound message to the registered
// callback and reports whether one was delivered.
func (c *Client) Pump() bool {
	select {
	case m := <-c.inbound:
		if c.handler != nil {
			c.handler(m.topic, m.payload)
		}
		return true
	default:
		return false
	}
}

func (c *Client) Disconnect() {
	if c.client != nil {
		c.client.Disconnect(250)
	}
}

// DisconnectReason reports the most recent connect or connection-loss error.
func (c *Client) DisconnectReason() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}
