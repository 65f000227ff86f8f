// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

// RegAddr is a register address on the transceiver's SPI control bus. An
// address above 0xFF is an extended-space register, addressed with the
// 0x2F page-select prefix byte followed by the low byte.
type RegAddr uint16

// Registers names the control-plane register addresses the FSM pokes
// directly while driving the chip. These vary between silicon revisions
// (CC112x vs CC120x, and between part numbers within each family), so
// unlike the command strobes and status-byte bit layout below — which
// are fixed across the whole CC11xx/CC112x/CC120x SPI protocol — the
// caller supplies them, the same way it supplies a RegSetting table for
// bulk RF/analog tuning.
type Registers struct {
	PktCfg0     RegAddr // LENGTH_CONFIG field: fixed vs infinite packet length
	PktCfg2     RegAddr // CCA_MODE field
	PktLen      RegAddr // packet length mod 256
	MARCState   RegAddr // calibration-done indicator
	WORCfg0     RegAddr // RC oscillator calibration bits [2:1]
	MARCStatus0 RegAddr // TX-on-CCA result

	// The following are optional (leave zero if unused by Ioctl): a zero
	// address makes the corresponding Ioctl command return
	// CmdUnsupported instead of touching the chip.
	TxPower RegAddr // PA output-power register, used by IoctlTxPowerSet/Get
	Chan0   RegAddr // 802.15.4g channel-0 base-frequency register, used by IoctlChan0Set

	// PartNumber, when nonzero together with RadioOpts.PartNumber, is read
	// once after reset so Init can refuse to drive the wrong silicon.
	PartNumber RegAddr
}

// Strobe is a single-byte SPI command strobe, fixed across the whole
// CC11xx/CC112x/CC120x family.
type Strobe byte

const (
	StrobeSRES  Strobe = 0x30 // reset
	StrobeSCAL  Strobe = 0x33 // calibrate frequency synthesizer
	StrobeSRX   Strobe = 0x34 // enable RX
	StrobeSTX   Strobe = 0x35 // enable TX / start CCA-gated TX
	StrobeSIDLE Strobe = 0x36 // go to idle
	StrobeSWOR  Strobe = 0x38 // start WOR / sniff
	StrobeSPWD  Strobe = 0x39 // enter power-down / sleep
	StrobeSFRX  Strobe = 0x3A // flush RX FIFO
	StrobeSFTX  Strobe = 0x3B // flush TX FIFO
	StrobeSNOP  Strobe = 0x3D // no-op, returns chip status byte
)

// Chip status byte bit layout, returned by every strobe and register
// access: bit 7 CHIP_RDYn, bits 6:4 STATE, bits 3:0 FIFO bytes available.
const (
	chipStatusRDYn    = 0x80
	chipStatusStateTX = 0x20
)

// Values written to PktCfg0's LENGTH_CONFIG field.
const (
	lengthConfigFixed    = 0x00
	lengthConfigInfinite = 0x02
	lengthConfigMask     = 0x03
)

// CCA_MODE values written to PktCfg2, per the CCA algorithm description:
// RSSI-below-threshold while armed, disabled once the attempt concludes.
const (
	ccaModeRSSIBelowThr = 0x24
	ccaModeNone         = 0x00
)

// marcStateIdle is the MARCSTATE value polled for after strobing SCAL to
// detect that calibration has completed.
const marcStateIdle = 0x41

// marcStatus0TxOnCCAFailedMask is bit 2 (TXONCCA_FAILED) of MARC_STATUS0.
const marcStatus0TxOnCCAFailedMask = 0x04

// SPI header bits for direct register and FIFO burst access.
const (
	spiReadBit    = 0x80
	spiBurstBit   = 0x40
	extAddrPrefix = 0x2F
	fifoAddr      = 0x3F
)

// RegSetting is one (address, value) pair in a bulk register configuration
// table, the kind a caller loads from a TOML file to tune the analog/RF
// front end at Init time.
type RegSetting struct {
	Addr RegAddr
	Data byte
}

// ConfigureRegs writes every entry of table in order, the Go analogue of
// rf_configureRegs(p_regs, len) in cc112x.c/cc120x.c.
func (d *Driver) ConfigureRegs(table []RegSetting) error {
	for _, rs := range table {
		if err := d.writeReg(rs.Addr, rs.Data); err != nil {
			return err
		}
	}
	return nil
}

// regHeader builds the SPI header byte(s) for a register access: a single
// byte for standard-space registers, or the 0x2F extended-space prefix
// followed by the low address byte.
func regHeader(addr RegAddr, read, burst bool) []byte {
	flags := byte(0)
	if read {
		flags |= spiReadBit
	}
	if burst {
		flags |= spiBurstBit
	}
	if addr > 0xFF {
		return []byte{extAddrPrefix | flags, byte(addr)}
	}
	return []byte{byte(addr) | flags}
}

func (d *Driver) writeReg(addr RegAddr, data byte) error {
	hdr := regHeader(addr, false, false)
	w := append(append(make([]byte, 0, len(hdr)+1), hdr...), data)
	r := make([]byte, len(w))
	return d.spi.Tx(w, r)
}

func (d *Driver) readReg(addr RegAddr) (byte, error) {
	hdr := regHeader(addr, true, false)
	w := append(append(make([]byte, 0, len(hdr)+1), hdr...), 0)
	r := make([]byte, len(w))
	if err := d.spi.Tx(w, r); err != nil {
		return 0, err
	}
	return r[len(r)-1], nil
}

// strobe issues a single-byte command strobe and returns the chip status
// byte shifted out in response, per the CC11xx/CC112x/CC120x SPI protocol.
func (d *Driver) strobe(s Strobe) (byte, error) {
	w := []byte{byte(s)}
	r := make([]byte, 1)
	if err := d.spi.Tx(w, r); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (d *Driver) writeFifo(data []byte) error {
	w := append([]byte{fifoAddr | spiBurstBit}, data...)
	r := make([]byte, len(w))
	return d.spi.Tx(w, r)
}

func (d *Driver) readFifo(n int) ([]byte, error) {
	w := make([]byte, n+1)
	w[0] = fifoAddr | spiReadBit | spiBurstBit
	r := make([]byte, n+1)
	if err := d.spi.Tx(w, r); err != nil {
		return nil, err
	}
	return r[1:], nil
}

// setLengthMode rewrites PktCfg0's LENGTH_CONFIG field to mode
// (lengthConfigFixed or lengthConfigInfinite), leaving the rest of the
// register untouched.
func (d *Driver) setLengthMode(mode byte) error {
	v, err := d.readReg(d.regs.PktCfg0)
	if err != nil {
		return err
	}
	v = (v &^ lengthConfigMask) | mode
	return d.writeReg(d.regs.PktCfg0, v)
}
