// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package radio drives a CC112x/CC120x-family sub-GHz transceiver through
// an interrupt-driven finite state machine: Init calibrates and parks the
// chip in Sleep, On arms Sniff (receive) mode, Send frames and streams a
// packet out through the 128-byte TX FIFO a chunk at a time, and the
// configured interrupt pins feed sync-detect, FIFO-threshold, packet-end
// and CCA-done events back into a single worker goroutine that owns all
// FSM state.
//
// The driver never parses 802.15.4 frames itself beyond peeking the PHY
// header's length field; encoding and CRC validation is phy802154's job,
// wired in here to learn the PHR size and to check each received frame's
// CRC before it is handed to the sink.
package radio

import (
	"periph.io/x/conn/v3/gpio"

	"github.com/tve/ieee802154/phy802154"
	"github.com/tve/ieee802154/thread"
)

type reqKind uint8

const (
	reqOn reqKind = iota
	reqOff
	reqSend
	reqIoctl
)

type request struct {
	kind  reqKind
	data  []byte
	cmd   IoctlCmd
	arg   any
	reply chan error
}

type isrKind uint8

const (
	isrSyncDetect isrKind = iota
	isrFIFOThreshold
	isrPacketEnd
	isrCCADone
)

type isrEvent struct {
	kind isrKind
}

// Driver owns the transceiver's runtime state: the transport, the
// receive scratch buffer, and the single worker goroutine that advances
// the FSM in response to requests and interrupt events.
type Driver struct {
	spi  SPI
	pins Pins
	regs Registers
	opts RadioOpts
	phy  *phy802154.PHY
	log  LogPrintf

	reqChan   chan request
	isrEvents chan isrEvent

	// state below this point is only ever touched by worker(), so it
	// needs no locking.
	state State

	// RX streaming.
	rxBuf     []byte
	bufIx     int
	bytesLeft int
	totalLen  int
	fixedMode bool

	// TX streaming.
	frame         []byte
	txLastPortion bool
	txReply       chan error

	worEnabled bool // true: On arms duty-cycled WOR; false: continuous RX

	errCount int
}

// New constructs a Driver, resets and calibrates the chip, and parks it
// in Sleep. The returned Driver's worker goroutine is already running;
// call On to start receiving.
func New(spi SPI, pins Pins, regs Registers, opts RadioOpts) (*Driver, error) {
	if opts.CCARetries <= 0 {
		opts.CCARetries = defaultCCARetries
	}
	maxLen := opts.MaxFrameLen
	if maxLen <= 0 {
		maxLen = defaultMaxFrameLen
	}

	d := &Driver{
		spi:        spi,
		pins:       pins,
		regs:       regs,
		opts:       opts,
		phy:        phy802154.New(opts.Legacy),
		rxBuf:      make([]byte, maxLen),
		reqChan:    make(chan request),
		isrEvents:  make(chan isrEvent, 8),
		state:      StateNonInit,
		worEnabled: true,
	}
	if opts.LogPrintf != nil {
		d.log = opts.LogPrintf
	} else {
		d.log = func(string, ...interface{}) {}
	}

	if err := d.init(); err != nil {
		return nil, err
	}

	go d.pollPin(pins.SyncPacket, d.onSyncPacketEdge)
	go d.pollPin(pins.FIFOThr, func(gpio.Level) { d.OnFIFOThreshold() })
	go d.pollPin(pins.CCADone, func(gpio.Level) { d.OnCCADone() })
	go d.worker()

	return d, nil
}

// On arms Sniff (receive) mode, waking the chip from Sleep if needed.
func (d *Driver) On() error {
	return d.do(request{kind: reqOn})
}

// Off idles the chip, flushes both FIFOs, and parks it in Sleep.
func (d *Driver) Off() error {
	return d.do(request{kind: reqOff})
}

// Send frames must already carry their PHY header and CRC trailer (see
// phy802154.Send). Send blocks until the whole frame has been streamed
// out and the chip reports TX done, or until an error aborts the
// transfer; once a transmission has started, the radio is back in Sniff
// mode by the time Send returns, win or lose. A Send issued outside Sniff
// returns ErrBusy and leaves the radio as it was.
func (d *Driver) Send(frame []byte) error {
	return d.do(request{kind: reqSend, data: frame})
}

// Ioctl issues a side-band command: CCA, RX-busy query, or a PHY CRC
// width change. See IoctlCmd for the supported commands.
func (d *Driver) Ioctl(cmd IoctlCmd, arg any) error {
	return d.do(request{kind: reqIoctl, cmd: cmd, arg: arg})
}

func (d *Driver) do(req request) error {
	req.reply = make(chan error, 1)
	d.reqChan <- req
	return <-req.reply
}

// IoctlCmd selects an Ioctl operation.
type IoctlCmd uint8

const (
	IoctlCcaGet IoctlCmd = iota
	IoctlIsRxBusy
	IoctlPhyCrcWidthSet
	IoctlTxPowerSet
	IoctlTxPowerGet
	IoctlChan0Set
	IoctlWorEnable
)

func (d *Driver) worker() {
	if d.opts.Realtime {
		if err := thread.Realtime(); err != nil {
			d.log("radio: could not set realtime scheduling: %v", err)
		}
	}
	for {
		select {
		case ev := <-d.isrEvents:
			d.handleISR(ev)
		case req := <-d.reqChan:
			d.handleRequest(req)
		}
	}
}

func (d *Driver) handleRequest(req request) {
	switch req.kind {
	case reqOn:
		req.reply <- d.doOn()
	case reqOff:
		req.reply <- d.doOff()
	case reqSend:
		d.handleSend(req)
	case reqIoctl:
		req.reply <- d.doIoctl(req.cmd, req.arg)
	}
}

func (d *Driver) handleISR(ev isrEvent) {
	switch ev.kind {
	case isrSyncDetect:
		d.onSyncDetect()
	case isrFIFOThreshold:
		d.onFIFOThreshold()
	case isrPacketEnd:
		d.onPacketEnd()
	case isrCCADone:
		if d.state == StateCcaBusy {
			d.state = StateCcaFini
		}
	}
}

// OnSyncDetect, OnFIFOThreshold, OnPacketEnd and OnCCADone are the four
// ISR vectors the chip's interrupt pins feed. They are exported so a
// caller driving its own GPIO dispatch (or a test) can post events
// directly instead of going through the pin-watcher goroutines New
// starts.
func (d *Driver) OnSyncDetect()    { d.isrEvents <- isrEvent{kind: isrSyncDetect} }
func (d *Driver) OnFIFOThreshold() { d.isrEvents <- isrEvent{kind: isrFIFOThreshold} }
func (d *Driver) OnPacketEnd()     { d.isrEvents <- isrEvent{kind: isrPacketEnd} }
func (d *Driver) OnCCADone()       { d.isrEvents <- isrEvent{kind: isrCCADone} }

func (d *Driver) onSyncPacketEdge(level gpio.Level) {
	if level == gpio.High {
		d.OnSyncDetect()
	} else {
		d.OnPacketEnd()
	}
}

func (d *Driver) pollPin(pin GPIO, fn func(gpio.Level)) {
	if pin == nil {
		return
	}
	for {
		if !pin.WaitForEdge(-1) {
			return
		}
		fn(pin.Read())
	}
}

func (d *Driver) doIoctl(cmd IoctlCmd, arg any) error {
	switch cmd {
	case IoctlCcaGet:
		return d.doCCA()
	case IoctlIsRxBusy:
		switch d.state {
		case StateRxSync, StateRxPortionMiddle, StateRxPortionLast, StateRxFini:
			return ErrBusy
		}
		return nil
	case IoctlPhyCrcWidthSet:
		w, ok := arg.(phy802154.CRCWidth)
		if !ok {
			return ErrInvalidArgument
		}
		if err := d.phy.SetCRCWidth(w); err != nil {
			return ErrInvalidArgument
		}
		return nil
	case IoctlTxPowerSet:
		v, ok := arg.(byte)
		if !ok {
			return ErrInvalidArgument
		}
		if d.regs.TxPower == 0 {
			return ErrCmdUnsupported
		}
		return d.writeReg(d.regs.TxPower, v)
	case IoctlTxPowerGet:
		p, ok := arg.(*byte)
		if !ok {
			return ErrInvalidArgument
		}
		if d.regs.TxPower == 0 {
			return ErrCmdUnsupported
		}
		v, err := d.readReg(d.regs.TxPower)
		if err != nil {
			return err
		}
		*p = v
		return nil
	case IoctlChan0Set:
		v, ok := arg.(byte)
		if !ok {
			return ErrInvalidArgument
		}
		if d.regs.Chan0 == 0 {
			return ErrCmdUnsupported
		}
		return d.writeReg(d.regs.Chan0, v)
	case IoctlWorEnable:
		enable, ok := arg.(bool)
		if !ok {
			return ErrInvalidArgument
		}
		d.worEnabled = enable
		if d.state == StateSniff {
			// Already listening: re-strobe so the new mode takes effect
			// now rather than after the next Off/On cycle.
			return d.gotoSniff()
		}
		return nil
	default:
		return ErrCmdUnsupported
	}
}
