package main

import (
	"log"
	"os"
	"time"

	"github.com/goburrow/serial"
	"github.com/womat/mbserver"

	"github.com/nilmgrid/powernode/internal/config"
)

// rtu-sim emulates the field I/O module on a serial line, with the sensor
// bridge and the relay board as separate unit ids, matching a real RTU bus.
func main() {
	configPath := os.Getenv("SIM_CONFIG_PATH")
	if configPath == "" {
		log.Fatal("SIM_CONFIG_PATH not set")
	}
	cfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		log.Fatalf("node config error: %v", err)
	}
	if cfg.Bus.Type != "rtu" {
		log.Fatalf("bus type %q is not rtu", cfg.Bus.Type)
	}

	s := mbserver.NewServer()
	for _, id := range []uint8{cfg.Sensor.UnitID, cfg.Relays.UnitID} {
		if id != 1 {
			if err := s.NewDevice(id); err != nil {
				log.Fatalf("NewDevice(%d): %v", id, err)
			}
		}
	}

	// Sensor bridge: INA219 register window seeded so the presence probe
	// succeeds and reads are plausible for the 32V_2A profile.
	base := cfg.Sensor.RegisterBase
	sensor := s.Devices[cfg.Sensor.UnitID]
	sensor.HoldingRegisters[base+0] = 0x399F
	sensor.HoldingRegisters[base+1] = 2500
	sensor.HoldingRegisters[base+2] = 3000 << 3
	sensor.HoldingRegisters[base+3] = 7500
	sensor.HoldingRegisters[base+4] = 12500
	sensor.HoldingRegisters[base+5] = 4096

	relays := s.Devices[cfg.Relays.UnitID]
	relays.Coils[cfg.Relays.Ch1Coil] = 0
	relays.Coils[cfg.Relays.Ch2Coil] = 0

	port, err := serial.Open(&serial.Config{
		Address:  cfg.Bus.Port,
		BaudRate: cfg.Bus.Baud,
		DataBits: cfg.Bus.DataBits,
		StopBits: cfg.Bus.StopBits,
		Parity:   cfg.Bus.Parity,
		Timeout:  2 * time.Second,
	})
	if err != nil {
		log.Fatalf("serial open %s: %v", cfg.Bus.Port, err)
	}
	defer port.Close()

	if err := s.ListenRTU(port); err != nil {
		log.Fatalf("listenRTU: %v", err)
	}
	log.Printf("RTU simulator ready on %s (sensor unit %d, relay unit %d)",
		cfg.Bus.Port, cfg.Sensor.UnitID, cfg.Relays.UnitID)
	for {
		time.Sleep(1 * time.Second)
	}
}
