// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

// Command mqttbridge gateways raw 802.15.4 frames between one or more
// CC112x/CC120x transceivers and an MQTT broker. Every CRC-valid frame a
// radio receives is published as JSON on <prefix>/rx; packets published
// to <prefix>/tx are PHY-framed and transmitted.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tve/ieee802154/phy802154"
	"github.com/tve/ieee802154/radio"
	"github.com/tve/ieee802154/spimux"
)

// RawRxPacket is the structure published on <prefix>/rx for every frame a
// radio receives: the PSDU with PHY header and CRC already stripped.
type RawRxPacket struct {
	Packet []byte    `json:"packet"` // MAC header + payload, CRC checked and removed
	At     time.Time `json:"at"`     // time of delivery from the driver
}

// RawTxPacket is the payload expected on <prefix>/tx: the PSDU to send,
// without PHY header or CRC (the bridge adds both). It is a struct so
// more fields can be added without breaking subscribers.
type RawTxPacket struct {
	Packet []byte `json:"packet"`
}

func main() {
	configFile := flag.StringP("config", "c", "mqttbridge.toml", "path to TOML config file")
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
		Level:           lvl,
	})

	mq, err := newMQ(cfg.Mqtt, logger)
	if err != nil {
		logger.Fatal("cannot connect to mqtt broker", "err", err)
	}

	if _, err := host.Init(); err != nil {
		logger.Fatal("host.Init", "err", err)
	}

	muxed := map[string]*spimux.Conn{}
	for i := range cfg.Radio {
		if err := startRadio(&cfg.Radio[i], logger, mq, muxed); err != nil {
			logger.Fatal("radio bring-up failed", "prefix", cfg.Radio[i].Prefix, "err", err)
		}
	}

	logger.Info("bridge is ready")
	select {}
}

// startRadio opens the SPI bus and GPIO pins named in rc, constructs a
// radio.Driver whose sink publishes to <prefix>/rx, turns the radio on,
// and subscribes <prefix>/tx to its transmitter. muxed remembers the
// other half of a shared spimux.Conn pair until the radio that owns it
// comes up.
func startRadio(rc *RadioConfig, logger *log.Logger, mq *mq, muxed map[string]*spimux.Conn) error {
	port, err := spireg.Open(rc.SpiBus)
	if err != nil {
		return fmt.Errorf("opening spi bus %q: %w", rc.SpiBus, err)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("connecting spi bus %q: %w", rc.SpiBus, err)
	}

	var spiConn radio.SPI = conn
	if rc.CSMuxPin != "" {
		if half, ok := muxed[rc.CSMuxPin]; ok {
			spiConn = half
			delete(muxed, rc.CSMuxPin)
		} else {
			selPin := gpioreg.ByName(rc.CSMuxPin)
			if selPin == nil {
				return fmt.Errorf("cannot open mux select pin %q", rc.CSMuxPin)
			}
			a, b := spimux.New(port, selPin)
			if rc.CSMuxValue != 0 {
				spiConn, muxed[rc.CSMuxPin] = b, a
			} else {
				spiConn, muxed[rc.CSMuxPin] = a, b
			}
		}
	}

	sync := gpioreg.ByName(rc.IntrPin)
	if sync == nil {
		return fmt.Errorf("cannot open interrupt pin %q", rc.IntrPin)
	}
	pins := radio.Pins{SyncPacket: sync}
	if rc.FIFOPin != "" {
		pins.FIFOThr = gpioreg.ByName(rc.FIFOPin)
	}
	if rc.CCAPin != "" {
		pins.CCADone = gpioreg.ByName(rc.CCAPin)
	}

	crcWidth := phy802154.CRCWidth32
	if rc.CRCWidth == 2 || rc.Legacy {
		crcWidth = phy802154.CRCWidth16
	}

	rxTopic := rc.Prefix + "/rx"
	opts := radio.RadioOpts{
		Legacy:      rc.Legacy,
		InitRegs:    rc.toRegSettings(),
		CCARetries:  rc.CCARetries,
		Realtime:    rc.Realtime,
		MaxFrameLen: rc.MaxFrameLen,
		PartNumber:  rc.PartNumber,
		Sink: func(payload []byte) {
			mq.Publish(rxTopic, &RawRxPacket{Packet: payload, At: time.Now()})
		},
		LogPrintf: logger.Printf,
	}

	d, err := radio.New(spiConn, pins, rc.toRegisters(), opts)
	if err != nil {
		return err
	}
	if err := d.Ioctl(radio.IoctlPhyCrcWidthSet, crcWidth); err != nil {
		return fmt.Errorf("setting crc width: %w", err)
	}
	if err := d.On(); err != nil {
		return err
	}

	// The driver validates incoming CRCs with its own framer; this one
	// wraps outgoing packets, with the same width.
	phy := phy802154.New(rc.Legacy)
	if err := phy.SetCRCWidth(crcWidth); err != nil {
		return err
	}

	return mq.Subscribe(rc.Prefix+"/tx", func(pkt *RawTxPacket) {
		hdrLen := phy.HeaderLen()
		buf := make([]byte, hdrLen+len(pkt.Packet)+4)
		copy(buf[hdrLen:], pkt.Packet)
		frame, err := phy.Send(buf, len(pkt.Packet))
		if err != nil {
			logger.Error("cannot frame tx packet", "prefix", rc.Prefix, "err", err)
			return
		}
		if err := d.Send(frame); err != nil {
			logger.Error("radio.Send failed", "prefix", rc.Prefix, "err", err)
		}
	})
}
