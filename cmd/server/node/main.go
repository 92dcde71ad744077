package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nilmgrid/powernode/internal/config"
	"github.com/nilmgrid/powernode/internal/ina219"
	"github.com/nilmgrid/powernode/internal/logging"
	"github.com/nilmgrid/powernode/internal/netlink"
	"github.com/nilmgrid/powernode/internal/node"
	"github.com/nilmgrid/powernode/internal/regbus"
	"github.com/nilmgrid/powernode/internal/relay"
	"github.com/nilmgrid/powernode/internal/retry"
	"github.com/nilmgrid/powernode/internal/session"
	"github.com/nilmgrid/powernode/internal/supervisor"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	path := getenv("NODE_CONFIG_PATH", "/etc/powernode/config.json")

	logging.Init()
	cfg, err := config.LoadNodeConfig(path)
	if err != nil {
		logging.Fatal("node config error", "error", err)
	}
	if v := os.Getenv("MQTT_URL"); v != "" {
		cfg.Broker.URL = v
	}
	if v := os.Getenv("DEVICE_ID"); v != "" {
		cfg.DeviceID = v
	}

	logging.Info("loaded config",
		"device", cfg.DeviceID,
		"broker", cfg.Broker.URL,
		"bus", cfg.Bus.Type,
	)

	io, err := regbus.Open(&cfg.Bus, cfg.Sensor, cfg.Relays)
	if err != nil {
		logging.Fatal("field bus error", "error", err)
	}
	defer io.Close()

	// The sensor is probed once. A missing sensor is non-fatal: the node
	// runs with zeroed readings so link and broker paths stay testable.
	profile, err := ina219.ProfileFromString(cfg.Sensor.Calibration)
	if err != nil {
		logging.Fatal("sensor config error", "error", err)
	}
	var sensor supervisor.Sensor
	dev := ina219.New(io, profile)
	switch err := dev.Init(); {
	case err == nil:
		sensor = dev
		logging.Info("power sensor ready", "calibration", cfg.Sensor.Calibration)
	case errors.Is(err, ina219.ErrNotPresent):
		logging.Warn("power sensor not detected, publishing zero readings")
	default:
		logging.Warn("power sensor init failed, publishing zero readings", "error", err)
	}

	relays := relay.NewBank(io, cfg.Relays.Ch1Coil, cfg.Relays.Ch2Coil)
	if err := relays.Init(); err != nil {
		logging.Warn("relay init failed", "error", err)
	}

	link := netlink.NewWireless(cfg.Wireless.Interface, cfg.Wireless.SSID, cfg.Wireless.ReassocCommand)
	sess := session.New(cfg.Broker.URL, cfg.Broker.InboundBuffer, cfg.Broker.PublishTimeout())

	sup := supervisor.New(supervisor.Config{
		DeviceID:             cfg.DeviceID,
		Topics:               node.TopicsFor(cfg.TopicPrefix, cfg.DeviceID),
		SSID:                 cfg.Wireless.SSID,
		Password:             cfg.Wireless.Password,
		ClientIDPrefix:       cfg.Broker.ClientIDPrefix,
		Username:             cfg.Broker.Username,
		BrokerPassword:       cfg.Broker.Password,
		SampleInterval:       cfg.Timing.SampleInterval(),
		PublishInterval:      cfg.Timing.PublishInterval(),
		LinkCheckInterval:    cfg.Timing.LinkCheckInterval(),
		SessionCheckInterval: cfg.Timing.SessionCheckInterval(),
		Yield:                cfg.Timing.Yield(),
		AssocBudget:          retry.Budget{Attempts: cfg.Wireless.AssocPollCount, Pause: cfg.Wireless.AssocPoll()},
		ConnectBudget:        retry.Budget{Attempts: cfg.Broker.ConnectAttempts, Pause: cfg.Broker.ConnectPause()},
	}, link, sess, sensor, relays)
	sess.OnMessage(sup.HandleCommand)

	// Graceful shutdown context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logging.Info("shutting down", "signal", s.String())
		cancel()
	}()

	sup.Run(ctx)
	sess.Disconnect()
	logging.Info("bye")
}
