// Copyright 2016 by Thorsten von Eicken, see LICENSE file

// Package phy802154 wraps an outbound MAC frame with a PHY header and
// trailing CRC, and validates the same on reception. It holds a single
// piece of state: the CRC width, symmetric between Send and Recv.
package phy802154

import (
	"encoding/binary"
	"errors"
)

// CRCWidth selects the PHY trailer width in bytes.
type CRCWidth uint8

const (
	CRCWidth16 CRCWidth = 2
	CRCWidth32 CRCWidth = 4
)

var (
	ErrBadFormat       = errors.New("phy802154: bad format")
	ErrBadCRC          = errors.New("phy802154: bad crc")
	ErrInvalidArgument = errors.New("phy802154: invalid argument")
)

const (
	// HeaderLenLegacy is the 1-byte PHR used by legacy (pre-g) 802.15.4.
	HeaderLenLegacy = 1
	// HeaderLen154G is the 2-byte PHR used by 802.15.4g MR-FSK.
	HeaderLen154G = 2

	maxPSDULenLegacy = 0x7F
	maxPSDULen154G   = 0x07FF
)

// PHY frames and parses 802.15.4 / 802.15.4g PHY packets. Legacy mode
// uses the 1-byte PHR and a fixed CRC-16; 15.4g mode uses the 2-byte PHR
// and carries its own CRC-mode bit, so CRCWidth there also controls what
// gets written into the header on Send.
type PHY struct {
	crcWidth CRCWidth
	legacy   bool
}

// New returns a PHY. legacy selects the 1-byte-PHR, CRC-16-only mode;
// otherwise the 2-byte 15.4g PHR is used with CRCWidth32 as the default.
func New(legacy bool) *PHY {
	w := CRCWidth32
	if legacy {
		w = CRCWidth16
	}
	return &PHY{crcWidth: w, legacy: legacy}
}

// CRCWidth returns the currently configured CRC width.
func (p *PHY) CRCWidth() CRCWidth { return p.crcWidth }

// SetCRCWidth changes the CRC width used by Send/Recv. Legacy mode only
// accepts CRCWidth16.
func (p *PHY) SetCRCWidth(w CRCWidth) error {
	if w != CRCWidth16 && w != CRCWidth32 {
		return ErrInvalidArgument
	}
	if p.legacy && w != CRCWidth16 {
		return ErrInvalidArgument
	}
	p.crcWidth = w
	return nil
}

// HeaderLen returns the number of PHR bytes this PHY writes and expects.
func (p *PHY) HeaderLen() int {
	if p.legacy {
		return HeaderLenLegacy
	}
	return HeaderLen154G
}

// Send inserts the PHY header into buf[:HeaderLen()] and a CRC trailer
// right after the payload, returning the framed slice ready for the
// radio. The caller must leave HeaderLen() bytes of headroom before the
// payload at buf[HeaderLen():HeaderLen()+payloadLen], and room for
// CRCWidth() trailing bytes.
func (p *PHY) Send(buf []byte, payloadLen int) ([]byte, error) {
	hdrLen := p.HeaderLen()
	if payloadLen < 0 || len(buf) < hdrLen+payloadLen+int(p.crcWidth) {
		return nil, ErrInvalidArgument
	}

	psdu := buf[hdrLen : hdrLen+payloadLen]
	crcField := buf[hdrLen+payloadLen : hdrLen+payloadLen+int(p.crcWidth)]

	var psduLen int
	if p.crcWidth == CRCWidth16 {
		binary.BigEndian.PutUint16(crcField, CRC16(psdu))
		psduLen = payloadLen + 2
	} else {
		crc := CRC32(psdu)
		crcField[0] = byte(crc >> 24)
		crcField[1] = byte(crc >> 16)
		crcField[2] = byte(crc >> 8)
		crcField[3] = byte(crc)
		psduLen = payloadLen + 4
	}

	if p.legacy {
		if psduLen > maxPSDULenLegacy {
			return nil, ErrInvalidArgument
		}
		buf[0] = byte(psduLen) & 0x7F
	} else {
		if psduLen > maxPSDULen154G {
			return nil, ErrInvalidArgument
		}
		phr := uint16(psduLen) & 0x07FF
		if p.crcWidth == CRCWidth16 {
			phr |= 0x1000
		}
		binary.BigEndian.PutUint16(buf[0:2], phr)
	}

	return buf[:hdrLen+psduLen], nil
}

// Recv validates frame's PHR length and CRC and returns the payload
// (PSDU minus CRC trailer). For 15.4g frames the CRC width is read from
// the PHR's CRC-mode bit rather than p.CRCWidth, matching the wire
// format; legacy frames always use CRC-16.
func (p *PHY) Recv(frame []byte) ([]byte, error) {
	hdrLen := p.HeaderLen()
	if len(frame) < hdrLen {
		return nil, ErrBadFormat
	}

	var psduLen int
	crcWidth := p.crcWidth
	if p.legacy {
		psduLen = int(frame[0] & 0x7F)
	} else {
		phr := binary.BigEndian.Uint16(frame[0:2])
		psduLen = int(phr & 0x07FF)
		if phr&0x1000 != 0 {
			crcWidth = CRCWidth16
		} else {
			crcWidth = CRCWidth32
		}
	}

	if len(frame) != hdrLen+psduLen || psduLen < int(crcWidth) {
		return nil, ErrBadFormat
	}

	psdu := frame[hdrLen : hdrLen+psduLen]
	payloadLen := psduLen - int(crcWidth)
	payload := psdu[:payloadLen]
	wireCRC := psdu[payloadLen:]

	if crcWidth == CRCWidth16 {
		if CRC16(payload) != binary.BigEndian.Uint16(wireCRC) {
			return nil, ErrBadCRC
		}
	} else {
		if CRC32(payload) != binary.BigEndian.Uint32(wireCRC) {
			return nil, ErrBadCRC
		}
	}

	return payload, nil
}
