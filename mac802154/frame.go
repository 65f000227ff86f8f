// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package mac802154 encodes and parses 802.15.4 / 802.15.4g MAC frames.
//
// It is a pure codec: no I/O, no radio state, nothing beyond a single
// module-scope transmit sequence counter. The wire layout, including the
// little-endian PAN IDs and the byte-reversed addresses, follows IEEE
// 802.15.4-2011 §5.2 and the 802.15.4e-2012 Information Element tables.
package mac802154

import (
	"encoding/binary"
	"sync/atomic"
)

// AddrMode is the two-bit addressing mode carried in the FCF.
type AddrMode uint8

const (
	AddrModeNone  AddrMode = 0b00
	AddrModeShort AddrMode = 0b10
	AddrModeLong  AddrMode = 0b11
)

// FrameType is the three-bit frame type carried in the FCF.
type FrameType uint8

const (
	FrameTypeBeacon FrameType = 0
	FrameTypeData   FrameType = 1
	FrameTypeAck    FrameType = 2
	FrameTypeCmd    FrameType = 3
)

// KeyIDMode selects how the auxiliary security header identifies the key.
// Values follow IEEE 802.15.4-2011 Table 15: 0 is implicit (no key source
// or index on the wire), 1 carries a 1-byte key index only, 2 a 4-byte
// source plus 1-byte index, 3 an 8-byte source plus 1-byte index.
type KeyIDMode uint8

const (
	KeyIDModeImplicit KeyIDMode = 0
	KeyIDMode1Byte    KeyIDMode = 1
	KeyIDMode5Byte    KeyIDMode = 2
	KeyIDMode9Byte    KeyIDMode = 3
)

// MinFrameLen is the smallest buffer Parse will accept: FCF + sequence
// number, no addressing.
const MinFrameLen = 3

// FCF is the Frame Control Field, the first two bytes of every frame.
type FCF struct {
	FrameType        FrameType
	SecurityEnabled  bool
	FramePending     bool
	AckRequired      bool
	PANIDCompression bool
	SeqSuppression   bool // 15.4g only
	IEListPresent    bool // 15.4g only
	DestAddrMode     AddrMode
	FrameVersion     uint8
	SrcAddrMode      AddrMode
}

// AuxHeader is the auxiliary security header. The core only encodes and
// decodes it; no AES-CCM* is implemented here.
type AuxHeader struct {
	SecurityLevel uint8
	KeyIDMode     KeyIDMode
	FrameCounter  uint32
	KeySource     [8]byte
	KeyIndex      uint8
}

// Frame is a decoded 802.15.4 MAC frame. Addresses are held big-endian in
// memory (Addr[0] is the most significant byte) regardless of how they
// travel on the wire.
type Frame struct {
	FCF      FCF
	Seq      uint8
	DestPID  uint16
	SrcPID   uint16
	DestAddr [8]byte
	SrcAddr  [8]byte
	Aux      AuxHeader
	Payload  []byte
}

var dsn atomic.Uint32

// SetDSN sets the module-scope data sequence number, distinct from any
// given frame's Seq field.
func SetDSN(n uint8) { dsn.Store(uint32(n)) }

// DSN returns the module-scope data sequence number.
func DSN() uint8 { return uint8(dsn.Load()) }

func addrLen(mode AddrMode) int {
	switch mode & 3 {
	case AddrModeShort:
		return 2
	case AddrModeLong:
		return 8
	default:
		return 0
	}
}

func keyIDLen(mode KeyIDMode) int {
	switch mode {
	case KeyIDMode1Byte:
		return 1
	case KeyIDMode5Byte:
		return 5
	case KeyIDMode9Byte:
		return 9
	default:
		return 0
	}
}

type fieldLengths struct {
	destPIDLen, destAddrLen, srcPIDLen, srcAddrLen, auxLen int
}

// fieldLen computes the per-field lengths used by both HdrLen and Create.
// As a side effect it normalizes f.FCF.PANIDCompression, matching the
// original framer's behavior of deriving the bit rather than trusting the
// caller to have set it.
func fieldLen(f *Frame) fieldLengths {
	var fl fieldLengths
	if f.FCF.DestAddrMode&3 != 0 {
		fl.destPIDLen = 2
	}
	if f.FCF.SrcAddrMode&3 != 0 {
		fl.srcPIDLen = 2
	}
	if f.FCF.DestAddrMode&3 != 0 && f.FCF.SrcAddrMode&3 != 0 && f.DestPID == f.SrcPID {
		f.FCF.PANIDCompression = true
		fl.srcPIDLen = 0
	} else {
		f.FCF.PANIDCompression = false
	}
	fl.destAddrLen = addrLen(f.FCF.DestAddrMode)
	fl.srcAddrLen = addrLen(f.FCF.SrcAddrMode)
	if f.FCF.SecurityEnabled {
		fl.auxLen = 5 + keyIDLen(f.Aux.KeyIDMode)
	}
	return fl
}

// HdrLen returns the number of header bytes Create would write for f. It
// normalizes f.FCF.PANIDCompression as a side effect, same as Create.
func HdrLen(f *Frame) int {
	fl := fieldLen(f)
	return 3 + fl.destPIDLen + fl.destAddrLen + fl.srcPIDLen + fl.srcAddrLen + fl.auxLen
}

func bit(b bool, shift uint) byte {
	if b {
		return 1 << shift
	}
	return 0
}

// Create writes f's header into buf (which must be at least HdrLen(f)
// bytes long) and returns the number of bytes written. Payload is not
// touched; the caller appends it after the returned offset.
func Create(f *Frame, buf []byte) int {
	fl := fieldLen(f)

	buf[0] = byte(f.FCF.FrameType&7) |
		bit(f.FCF.SecurityEnabled, 3) |
		bit(f.FCF.FramePending, 4) |
		bit(f.FCF.AckRequired, 5) |
		bit(f.FCF.PANIDCompression, 6)

	buf[1] = byte(f.FCF.DestAddrMode&3)<<2 |
		(f.FCF.FrameVersion&3)<<4 |
		byte(f.FCF.SrcAddrMode&3)<<6

	buf[2] = f.Seq
	pos := 3

	if fl.destPIDLen == 2 {
		binary.LittleEndian.PutUint16(buf[pos:], f.DestPID)
		pos += 2
	}
	for c := fl.destAddrLen; c > 0; c-- {
		buf[pos] = f.DestAddr[c-1]
		pos++
	}

	if fl.srcPIDLen == 2 {
		binary.LittleEndian.PutUint16(buf[pos:], f.SrcPID)
		pos += 2
	}
	for c := fl.srcAddrLen; c > 0; c-- {
		buf[pos] = f.SrcAddr[c-1]
		pos++
	}

	if fl.auxLen > 0 {
		buf[pos] = f.Aux.SecurityLevel&7 | byte(f.Aux.KeyIDMode&3)<<3
		pos++
		binary.LittleEndian.PutUint32(buf[pos:], f.Aux.FrameCounter)
		pos += 4
		srcLen := keyIDLen(f.Aux.KeyIDMode) - 1 // minus the trailing key-index byte
		if f.Aux.KeyIDMode == KeyIDModeImplicit {
			srcLen = 0
		}
		if srcLen > 0 {
			copy(buf[pos:pos+srcLen], f.Aux.KeySource[:srcLen])
			pos += srcLen
		}
		if f.Aux.KeyIDMode != KeyIDModeImplicit {
			buf[pos] = f.Aux.KeyIndex
			pos++
		}
	}

	return pos
}

// Parse decodes data into a Frame, returning (nil, false) if data is too
// short or malformed (including a badly formed Information Element list).
// Payload aliases the tail of data.
func Parse(data []byte) (*Frame, bool) {
	if len(data) < MinFrameLen {
		return nil, false
	}

	f := &Frame{}
	f.FCF.FrameType = FrameType(data[0] & 7)
	f.FCF.SecurityEnabled = data[0]&(1<<3) != 0
	f.FCF.FramePending = data[0]&(1<<4) != 0
	f.FCF.AckRequired = data[0]&(1<<5) != 0
	f.FCF.PANIDCompression = data[0]&(1<<6) != 0
	f.FCF.SeqSuppression = data[1]&0x01 != 0
	f.FCF.IEListPresent = data[1]&0x02 != 0
	f.FCF.DestAddrMode = AddrMode((data[1] >> 2) & 3)
	f.FCF.FrameVersion = (data[1] >> 4) & 3
	f.FCF.SrcAddrMode = AddrMode((data[1] >> 6) & 3)
	f.Seq = data[2]

	p := 3

	if f.FCF.DestAddrMode != AddrModeNone {
		if p+2 > len(data) {
			return nil, false
		}
		f.DestPID = binary.LittleEndian.Uint16(data[p:])
		p += 2
		switch f.FCF.DestAddrMode {
		case AddrModeShort:
			if p+2 > len(data) {
				return nil, false
			}
			f.DestAddr[0] = data[p+1]
			f.DestAddr[1] = data[p]
			p += 2
		case AddrModeLong:
			if p+8 > len(data) {
				return nil, false
			}
			for c := 0; c < 8; c++ {
				f.DestAddr[c] = data[p+7-c]
			}
			p += 8
		}
	}

	if f.FCF.SrcAddrMode != AddrModeNone {
		if f.FCF.PANIDCompression {
			f.SrcPID = f.DestPID
		} else {
			if p+2 > len(data) {
				return nil, false
			}
			f.SrcPID = binary.LittleEndian.Uint16(data[p:])
			p += 2
		}
		switch f.FCF.SrcAddrMode {
		case AddrModeShort:
			if p+2 > len(data) {
				return nil, false
			}
			f.SrcAddr[0] = data[p+1]
			f.SrcAddr[1] = data[p]
			p += 2
		case AddrModeLong:
			if p+8 > len(data) {
				return nil, false
			}
			for c := 0; c < 8; c++ {
				f.SrcAddr[c] = data[p+7-c]
			}
			p += 8
		}
	}

	if f.FCF.SecurityEnabled {
		if p+5 > len(data) {
			return nil, false
		}
		f.Aux.SecurityLevel = data[p] & 7
		f.Aux.KeyIDMode = KeyIDMode((data[p] >> 3) & 3)
		p++
		f.Aux.FrameCounter = binary.LittleEndian.Uint32(data[p:])
		p += 4
		if f.Aux.KeyIDMode != KeyIDModeImplicit {
			srcLen := keyIDLen(f.Aux.KeyIDMode) - 1
			if p+srcLen+1 > len(data) {
				return nil, false
			}
			copy(f.Aux.KeySource[:srcLen], data[p:p+srcLen])
			p += srcLen
			f.Aux.KeyIndex = data[p]
			p++
		}
	}

	if f.FCF.IEListPresent {
		n, ok := ieTotalLen(data[p:])
		if !ok {
			return nil, false
		}
		p += n
	}

	if p > len(data) {
		return nil, false
	}
	f.Payload = data[p:]
	return f, true
}

// Broadcast reports whether f's destination address is the all-ones
// broadcast address. Mirrors the original framer: the byte count checked
// is 2 for short-mode destinations and 8 otherwise (including None mode,
// where the bytes are always zero and the check simply reports false).
func Broadcast(f *Frame) bool {
	n := 8
	if f.FCF.DestAddrMode == AddrModeShort {
		n = 2
	}
	for i := 0; i < n; i++ {
		if f.DestAddr[i] != 0xFF {
			return false
		}
	}
	return true
}
