// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

// fakeSPI is a minimal in-memory stand-in for an SPI bus talking to a
// CC112x/CC120x-family chip, enough to drive the FSM through Init, On/Off,
// Send and CCA without real hardware. Message framing follows
// registers.go: a 1-byte write is a bare strobe, anything longer is a
// register or FIFO access distinguished by the header's read/burst bits.
type fakeSPI struct {
	regs map[RegAddr]byte

	txFIFO     []byte
	rxFIFO     []byte
	fifoWrites int // number of TX FIFO burst transactions observed

	// strobeHook, if set, is consulted on every strobe and may mutate
	// fake chip state (e.g. flip ccaClear) before the default status
	// byte is computed.
	strobeHook func(s Strobe)

	ccaClear bool // whether doCCA should see the channel as clear
	ccaArmed bool // set once PktCfg2 is written with ccaModeRSSIBelowThr
	ccaLive  bool // set once STX is strobed while ccaArmed

	pktCfg2Addr RegAddr
	marcStatus0 RegAddr
}

func newFakeSPI() *fakeSPI {
	return &fakeSPI{regs: map[RegAddr]byte{}}
}

func (f *fakeSPI) Tx(w, r []byte) error {
	if len(w) == 1 {
		s := Strobe(w[0])
		if f.strobeHook != nil {
			f.strobeHook(s)
		}
		r[0] = f.handleStrobe(s)
		return nil
	}

	flags := w[0] & 0xC0
	addrByte := w[0] &^ 0xC0
	read := flags&spiReadBit != 0

	if addrByte == fifoAddr {
		if read {
			n := len(w) - 1
			copy(r[1:], f.rxFIFO[:n])
			f.rxFIFO = f.rxFIFO[n:]
		} else {
			f.txFIFO = append(f.txFIFO, w[1:]...)
			f.fifoWrites++
		}
		return nil
	}

	hdrLen := 1
	addr := RegAddr(addrByte)
	if addrByte == extAddrPrefix {
		hdrLen = 2
		addr = 0x100 | RegAddr(w[1])
	}

	if read {
		r[hdrLen] = f.regs[addr]
	} else {
		f.regs[addr] = w[hdrLen]
		if addr == f.pktCfg2Addr {
			f.ccaArmed = w[hdrLen] == ccaModeRSSIBelowThr
		}
	}
	return nil
}

func (f *fakeSPI) handleStrobe(s Strobe) byte {
	switch s {
	case StrobeSTX:
		if f.ccaArmed {
			if f.ccaClear {
				f.regs[f.marcStatus0] = 0
			} else {
				f.regs[f.marcStatus0] = marcStatus0TxOnCCAFailedMask
			}
			f.ccaLive = true
		}
	case StrobeSNOP:
		if f.ccaLive {
			f.ccaLive = false
			return chipStatusStateTX
		}
	}
	return 0 // always ready (RDYn clear), never mid calibration
}

func newTestRegs() Registers {
	return Registers{
		PktCfg0:     RegAddr(0x08),
		PktCfg2:     RegAddr(0x0C),
		PktLen:      RegAddr(0x0D),
		MARCState:   RegAddr(0x10),
		WORCfg0:     RegAddr(0x11),
		MARCStatus0: RegAddr(0x12),
		TxPower:     RegAddr(0x13),
		Chan0:       RegAddr(0x14),
	}
}

// newTestDriver builds a Driver against a fakeSPI with no interrupt pins
// wired (tests drive the FSM through the exported ISR vectors directly)
// and IRQ self-test skipped.
func newTestDriver(opts RadioOpts) (*Driver, *fakeSPI, error) {
	spi := newFakeSPI()
	regs := newTestRegs()
	spi.regs[regs.MARCState] = marcStateIdle
	spi.pktCfg2Addr = regs.PktCfg2
	spi.marcStatus0 = regs.MARCStatus0

	opts.SkipIRQSelfTest = true
	d, err := New(spi, Pins{}, regs, opts)
	return d, spi, err
}
