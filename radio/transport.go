// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// SPI is the bus connection the driver issues register reads/writes and
// FIFO bursts over. periph.io/x/conn/v3's spi.Conn satisfies this
// directly.
type SPI interface {
	Tx(w, r []byte) error
}

// GPIO is an interrupt-capable pin, satisfied directly by periph.io's
// gpio.PinIO. The driver never drives these pins; it only arms edge
// detection and waits for it.
type GPIO interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
	Name() string
}

// Pins names the three interrupt lines the FSM depends on. SyncPacket is
// a single dual-purpose line: rising edge signals sync-word detection,
// falling edge signals packet end, matching the chip's PKT_SYNC_RXTX GPIO
// mapping. FIFOThr and CCADone may be nil if the caller never needs
// long-frame streaming or CCA.
type Pins struct {
	SyncPacket GPIO
	FIFOThr    GPIO
	CCADone    GPIO
}
