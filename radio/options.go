// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package radio

import "time"

// LogPrintf is the logging hook signature used throughout this module;
// charmbracelet/log's Logger.Printf can be passed straight through.
type LogPrintf func(format string, v ...interface{})

// RadioOpts configures a Driver at construction time.
type RadioOpts struct {
	Legacy          bool                 // true: legacy 1-byte PHR, CRC-16 only; false: 15.4g 2-byte PHR
	InitRegs        []RegSetting         // bulk RF/analog tuning table applied once at Init
	CCARetries      int                  // TX-on-CCA attempts before giving up; 0 defaults to 4
	SkipIRQSelfTest bool                 // skip the interrupt-pin self test during Init
	Realtime        bool                 // pin the worker goroutine to a realtime OS thread
	MaxFrameLen     int                  // scratch RX buffer size; 0 defaults to 2049 (15.4g max PSDU + PHR)
	Sink            func(payload []byte) // called with each received, CRC-valid payload
	LogPrintf       LogPrintf

	// PartNumber, if nonzero and Registers.PartNumber is set, is the chip
	// identity Init demands after reset; any other value is fatal.
	PartNumber byte
}

const defaultCCARetries = 4
const defaultMaxFrameLen = 2049

const ccaPollInterval = 200 * time.Microsecond
const irqSelfTestTimeout = 50 * time.Millisecond
