// Copyright (c) 2016 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tve/ieee802154/radio"
)

// MqttConfig names the broker the bridge publishes to and subscribes on.
type MqttConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	ClientID string `toml:"client_id"`
}

// RegConfig is one (address, value) pair as it appears in the TOML
// register table, the on-disk analogue of radio.RegSetting.
type RegConfig struct {
	Addr uint16 `toml:"addr"`
	Data byte   `toml:"data"`
}

// RadioConfig holds everything needed to bring up one bridged
// transceiver: the MQTT topic prefix it gateways under, the transport pin
// names, the fixed control-register addresses, the bulk tuning table, and
// the FSM options.
type RadioConfig struct {
	Prefix     string `toml:"prefix"`
	SpiBus     string `toml:"spi_bus"`
	IntrPin    string `toml:"intr_pin"`
	FIFOPin    string `toml:"fifo_pin"`
	CCAPin     string `toml:"cca_pin"`
	CSMuxPin   string `toml:"cs_mux_pin"`
	CSMuxValue int    `toml:"cs_mux_value"`

	Legacy      bool `toml:"legacy"`
	CRCWidth    int  `toml:"crc_width"`
	CCARetries  int  `toml:"cca_retries"`
	MaxFrameLen int  `toml:"max_frame_len"`
	Realtime    bool `toml:"realtime"`

	Registers struct {
		PktCfg0     uint16 `toml:"pkt_cfg0"`
		PktCfg2     uint16 `toml:"pkt_cfg2"`
		PktLen      uint16 `toml:"pkt_len"`
		MARCState   uint16 `toml:"marc_state"`
		WORCfg0     uint16 `toml:"wor_cfg0"`
		MARCStatus0 uint16 `toml:"marc_status0"`
		TxPower     uint16 `toml:"tx_power"`
		Chan0       uint16 `toml:"chan0"`
		PartNumber  uint16 `toml:"part_number"`
	} `toml:"registers"`

	PartNumber byte `toml:"part_number"`

	InitRegs []RegConfig `toml:"init_regs"`
}

// Config is the top-level mqttbridge.toml shape: one broker, one or more
// radios each gatewaying under its own topic prefix.
type Config struct {
	Debug bool          `toml:"debug"`
	Mqtt  MqttConfig    `toml:"mqtt"`
	Radio []RadioConfig `toml:"radio"`
}

func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access config file: %w", err)
	}
	cfg := &Config{}
	if err := toml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file: %w", err)
	}
	if len(cfg.Radio) == 0 {
		return nil, fmt.Errorf("at least one [[radio]] section must be specified")
	}
	for i := range cfg.Radio {
		if cfg.Radio[i].Prefix == "" {
			return nil, fmt.Errorf("radio %d: a topic prefix must be specified", i)
		}
	}
	return cfg, nil
}

// toRegisters converts the TOML register addresses into radio.Registers.
func (rc *RadioConfig) toRegisters() radio.Registers {
	r := &rc.Registers
	return radio.Registers{
		PktCfg0:     radio.RegAddr(r.PktCfg0),
		PktCfg2:     radio.RegAddr(r.PktCfg2),
		PktLen:      radio.RegAddr(r.PktLen),
		MARCState:   radio.RegAddr(r.MARCState),
		WORCfg0:     radio.RegAddr(r.WORCfg0),
		MARCStatus0: radio.RegAddr(r.MARCStatus0),
		TxPower:     radio.RegAddr(r.TxPower),
		Chan0:       radio.RegAddr(r.Chan0),
		PartNumber:  radio.RegAddr(r.PartNumber),
	}
}

// toRegSettings converts the TOML bulk tuning table into []radio.RegSetting.
func (rc *RadioConfig) toRegSettings() []radio.RegSetting {
	table := make([]radio.RegSetting, len(rc.InitRegs))
	for i, e := range rc.InitRegs {
		table[i] = radio.RegSetting{Addr: radio.RegAddr(e.Addr), Data: e.Data}
	}
	return table
}
