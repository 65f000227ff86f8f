// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command radiotest exercises the radio/phy802154/mac802154 core against
// real CC112x/CC120x hardware: it brings up one or two transceivers from
// a TOML config file, then either transmits a counted test frame every
// second or logs every frame it receives.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tve/ieee802154/mac802154"
	"github.com/tve/ieee802154/phy802154"
	"github.com/tve/ieee802154/radio"
	"github.com/tve/ieee802154/spimux"
)

func main() {
	configFile := flag.StringP("config", "c", "radiotest.toml", "path to TOML config file")
	mode := flag.StringP("mode", "m", "rx", "rx (listen and log frames) or tx (send a counted frame every second)")
	destLong := flag.String("dest", "00:50:C2:FF:FE:A8:DD:01", "destination long address for tx mode, colon-separated hex")
	panID := flag.Uint16("pan", 0xABCD, "PAN ID for tx mode")
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lvl := log.InfoLevel
	if cfg.Debug {
		lvl = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
		Level:           lvl,
	})

	if _, err := host.Init(); err != nil {
		logger.Fatal("host.Init", "err", err)
	}

	drivers := make([]*radio.Driver, 0, len(cfg.Radio))
	muxed := map[string]*spimux.Conn{}
	for i := range cfg.Radio {
		d, err := bringUp(&cfg.Radio[i], logger, muxed)
		if err != nil {
			logger.Fatal("radio init failed", "radio", i, "err", err)
		}
		drivers = append(drivers, d)
	}

	for _, d := range drivers {
		if err := d.On(); err != nil {
			logger.Fatal("radio.On failed", "err", err)
		}
	}

	switch *mode {
	case "tx":
		runTx(drivers[0], logger, *destLong, *panID)
	default:
		runRx(logger)
		select {} // the Sink callback passed to bringUp does the logging
	}
}

// bringUp opens the SPI bus and GPIO pins named in rc, wires a spimux
// demuxer when cs_mux_pin is set, and constructs a radio.Driver. muxed
// remembers the other half of a shared spimux.Conn pair until the radio
// that owns it comes up.
func bringUp(rc *RadioConfig, logger *log.Logger, muxed map[string]*spimux.Conn) (*radio.Driver, error) {
	port, err := spireg.Open(rc.SpiBus)
	if err != nil {
		return nil, fmt.Errorf("opening spi bus %q: %w", rc.SpiBus, err)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("connecting spi bus %q: %w", rc.SpiBus, err)
	}

	var spiConn radio.SPI = conn
	if rc.CSMuxPin != "" {
		if half, ok := muxed[rc.CSMuxPin]; ok {
			spiConn = half
			delete(muxed, rc.CSMuxPin)
		} else {
			selPin := gpioreg.ByName(rc.CSMuxPin)
			if selPin == nil {
				return nil, fmt.Errorf("cannot open mux select pin %q", rc.CSMuxPin)
			}
			a, b := spimux.New(port, selPin)
			if rc.CSMuxValue != 0 {
				spiConn, muxed[rc.CSMuxPin] = b, a
			} else {
				spiConn, muxed[rc.CSMuxPin] = a, b
			}
		}
	}

	pins, err := openPins(rc)
	if err != nil {
		return nil, err
	}

	crcWidth := phy802154.CRCWidth32
	if rc.CRCWidth == 2 {
		crcWidth = phy802154.CRCWidth16
	}
	opts := radio.RadioOpts{
		Legacy:      rc.Legacy,
		InitRegs:    rc.toRegSettings(),
		CCARetries:  rc.CCARetries,
		Realtime:    rc.Realtime,
		MaxFrameLen: rc.MaxFrameLen,
		PartNumber:  rc.PartNumber,
		Sink:        logSink(logger),
		LogPrintf:   logger.Printf,
	}

	d, err := radio.New(spiConn, pins, rc.toRegisters(), opts)
	if err != nil {
		return nil, err
	}
	if err := d.Ioctl(radio.IoctlPhyCrcWidthSet, crcWidth); err != nil {
		logger.Warn("could not set initial crc width", "err", err)
	}
	return d, nil
}

func openPins(rc *RadioConfig) (radio.Pins, error) {
	sync := gpioreg.ByName(rc.IntrPin)
	if sync == nil {
		return radio.Pins{}, fmt.Errorf("cannot open interrupt pin %q", rc.IntrPin)
	}
	pins := radio.Pins{SyncPacket: sync}
	if rc.FIFOPin != "" {
		if p := gpioreg.ByName(rc.FIFOPin); p != nil {
			pins.FIFOThr = p
		}
	}
	if rc.CCAPin != "" {
		if p := gpioreg.ByName(rc.CCAPin); p != nil {
			pins.CCADone = p
		}
	}
	return pins, nil
}

func logSink(logger *log.Logger) func([]byte) {
	return func(payload []byte) {
		f, ok := mac802154.Parse(payload)
		if !ok {
			logger.Warn("received frame could not be parsed", "len", len(payload))
			return
		}
		logger.Info("frame received",
			"seq", f.Seq,
			"src_pan", fmt.Sprintf("0x%04X", f.SrcPID),
			"broadcast", mac802154.Broadcast(f),
			"payload_len", len(f.Payload))
	}
}

func runRx(logger *log.Logger) {
	logger.Info("listening for frames, press ctrl-c to exit")
}

// runTx sends one 802.15.4 data frame a second until the process is
// killed.
func runTx(d *radio.Driver, logger *log.Logger, destLongHex string, pan uint16) {
	dest, err := parseLongAddr(destLongHex)
	if err != nil {
		logger.Fatal("bad -dest address", "err", err)
	}

	phy := phy802154.New(false)
	for i := 1; ; i++ {
		mac802154.SetDSN(uint8(i))
		frm := &mac802154.Frame{
			FCF: mac802154.FCF{
				FrameType:    mac802154.FrameTypeData,
				AckRequired:  true,
				DestAddrMode: mac802154.AddrModeLong,
				SrcAddrMode:  mac802154.AddrModeLong,
				FrameVersion: 1,
			},
			Seq:      mac802154.DSN(),
			DestPID:  pan,
			SrcPID:   pan,
			DestAddr: dest,
			SrcAddr:  dest,
			Payload:  []byte(fmt.Sprintf("hello %03d", i)),
		}

		hdrLen := mac802154.HdrLen(frm)
		headroom := phy.HeaderLen()
		buf := make([]byte, headroom+hdrLen+len(frm.Payload)+4)
		n := mac802154.Create(frm, buf[headroom:])
		copy(buf[headroom+n:], frm.Payload)
		psduLen := n + len(frm.Payload)

		out, err := phy.Send(buf, psduLen)
		if err != nil {
			logger.Error("phy.Send failed", "err", err)
			continue
		}

		t0 := time.Now()
		if err := d.Send(out); err != nil {
			logger.Error("radio.Send failed", "err", err)
		} else {
			logger.Info("sent frame", "seq", frm.Seq, "dur", time.Since(t0))
		}
		time.Sleep(time.Second)
	}
}

func parseLongAddr(s string) ([8]byte, error) {
	var out [8]byte
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != 8 {
		return out, fmt.Errorf("expected an 8-byte EUI-64 colon-hex address, got %q", s)
	}
	copy(out[:], hw)
	return out, nil
}
