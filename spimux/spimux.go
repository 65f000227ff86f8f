// Copyright 2017 by Thorsten von Eicken, see LICENSE file

// Package spimux lets two transceivers share a single SPI bus and chip
// select line, the common case when a CC112x and a CC120x (or two of the
// same part on different bands) sit on one Raspberry Pi SPI controller.
package spimux

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Conn represents a connection to a device on an SPI bus with a multiplexed chip select.
//
// The purpose of spimux.Conn is to allow two devices to be connected to SPI buses
// that only have a single chip select line. This is accomplished by placing a demux
// on the CS line such that an extra gpio pin can direct the chip select to either
// of the two devices. The way this functions is that the spimux.Conn Tx function sets
// the demux select for the appropriate device and then performs a std transaction.
//
// A sample circuit is to use an 74LVC1G19 demux with the SPI CS connected to E, the
// gpio select pin connected to A, and the CS inputs of the two devices attached to
// Y0 and Y1 respectively. A pull-down resistor on the A input of the demux is recommended
// to ensure both CS remain inactive when the SPI CS is not driven.
//
// A limitation of the current implementation is that the speed setting and the configuration
// (SPI mode and number of bits) is shared between the two devices, i.e., it is not possible
// to use different settings for the two radios multiplexed onto the bus.
type Conn struct {
	mu     *sync.Mutex // prevent concurrent access to shared SPI bus
	conn   *spi.Conn   // the underlying SPI connection with shared chip select
	port   spi.Port
	selPin gpio.PinIO // pin to select between two devices
	sel    gpio.Level // select value for this device
}

// New returns two connections sharing the given SPI port, the first one
// selecting its device with Low on selPin, the second with High.
func New(port spi.PortCloser, selPin gpio.PinIO) (*Conn, *Conn) {
	mu := sync.Mutex{} // shared mutex
	var conn spi.Conn  // shared spi.Conn, established lazily by the first Connect
	return &Conn{&mu, &conn, port, selPin, gpio.Low}, &Conn{&mu, &conn, port, selPin, gpio.High}
}

// Connect negotiates the bus parameters and returns itself, since a Conn
// is a spi.Conn as well as a spi.Port.
func (c *Conn) Connect(maxHz physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if *c.conn == nil {
		conn, err := c.port.Connect(maxHz, mode, bits)
		if err != nil {
			return nil, err
		}
		*c.conn = conn
	}

	return c, nil
}

// Tx sets the select pin to the correct value and calls the underlying Tx.
func (c *Conn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selPin.Out(c.sel)
	return (*c.conn).Tx(w, r)
}

// String identifies which half of the mux this connection selects.
func (c *Conn) String() string {
	half := "0"
	if c.sel == gpio.High {
		half = "1"
	}
	return c.port.String() + "/mux" + half
}

// Close is a no-op: the two muxed Conns share the underlying port, and
// whichever side the FSM closes first must not take the bus out from
// under the other.
func (c *Conn) Close() error { return nil }

// Duplex implements the spi.Conn interface.
func (c *Conn) Duplex() conn.Duplex { return conn.Full }

// TxPackets is not implemented; the radio FSM only ever issues plain Tx.
func (c *Conn) TxPackets(p []spi.Packet) error { return errors.New("spimux: TxPackets not implemented") }

// LimitSpeed is not implemented; set the speed once via Connect.
func (c *Conn) LimitSpeed(maxHz physic.Frequency) error {
	return errors.New("spimux: LimitSpeed not implemented")
}

var _ spi.Conn = &Conn{}
var _ spi.PortCloser = &Conn{}
