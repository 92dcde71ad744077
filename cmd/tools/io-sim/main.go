package main

import (
	"log"
	"os"
	"time"

	"github.com/tbrandon/mbserver"
)

// io-sim emulates the node's field I/O module over Modbus TCP: the power
// sensor register window as holding registers and the relay channels as
// coils. Useful for bringing the node daemon up without hardware.
func main() {
	addr := os.Getenv("IO_SIM_LISTEN_ADDR")
	if addr == "" {
		addr = ":1502"
	}

	srv := mbserver.NewServer()

	// Sensor register window at base 0 (config, shunt, bus, power, current,
	// calibration). The config default makes the presence probe succeed;
	// bus/current/power registers read as ~12V, 1.25A, 1.5W under the
	// 32V_2A profile.
	srv.HoldingRegisters[0] = 0x399F
	srv.HoldingRegisters[1] = 2500
	srv.HoldingRegisters[2] = 3000 << 3
	srv.HoldingRegisters[3] = 7500
	srv.HoldingRegisters[4] = 12500
	srv.HoldingRegisters[5] = 4096

	// Relay coils, both off.
	srv.Coils[0] = 0
	srv.Coils[1] = 0

	if err := srv.ListenTCP(addr); err != nil {
		log.Fatalf("ListenTCP: %v", err)
	}
	defer srv.Close()
	log.Printf("I/O module simulator listening on %s", addr)
	// Wait forever
	for {
		time.Sleep(1 * time.Second)
	}
}
