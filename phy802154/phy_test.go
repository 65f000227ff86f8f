// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package phy802154

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrame(t *testing.T, p *PHY, payload []byte) []byte {
	t.Helper()
	hdrLen := p.HeaderLen()
	buf := make([]byte, hdrLen+len(payload)+4)
	copy(buf[hdrLen:], payload)
	frame, err := p.Send(buf, len(payload))
	require.NoError(t, err)
	return frame
}

func TestSendRecvRoundTrip154G(t *testing.T) {
	payloads := map[string][]byte{
		"empty":  {},
		"short":  {0x01, 0x02},
		"exact4": {0x01, 0x02, 0x03, 0x04},
		"long":   []byte("a somewhat longer payload to exercise crc32 over real data"),
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			p := New(false)
			frame := buildFrame(t, p, payload)

			got, err := p.Recv(frame)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestSendRecvRoundTripLegacy(t *testing.T) {
	p := New(true)
	payload := []byte("legacy payload")
	frame := buildFrame(t, p, payload)

	got, err := p.Recv(frame)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCRC16SetsCRCModeBit(t *testing.T) {
	p := New(false)
	require.NoError(t, p.SetCRCWidth(CRCWidth16))
	payload := []byte("hi")
	frame := buildFrame(t, p, payload)

	assert.NotZero(t, frame[0]&0x10, "crc-mode bit must be set for 16-bit crc")

	got, err := p.Recv(frame)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestPHRLengthAndCRCModeBits(t *testing.T) {
	// 71 bytes of PSDU payload (a 21-byte MAC header plus 50 data bytes)
	// with CRC-16 yields psdu_len 73 = 0x049 and the CRC-mode bit set:
	// PHR on the wire is 0x10 0x49.
	p := New(false)
	require.NoError(t, p.SetCRCWidth(CRCWidth16))
	frame := buildFrame(t, p, make([]byte, 71))

	assert.Equal(t, byte(0x10), frame[0])
	assert.Equal(t, byte(0x49), frame[1])
}

func TestRecvBitFlipInPayloadYieldsBadCRC(t *testing.T) {
	p := New(false)
	frame := buildFrame(t, p, []byte("clear channel assessment"))
	frame[p.HeaderLen()] ^= 0x01

	_, err := p.Recv(frame)
	assert.ErrorIs(t, err, ErrBadCRC)
}

func TestRecvBitFlipInCRCYieldsBadCRC(t *testing.T) {
	p := New(false)
	frame := buildFrame(t, p, []byte("clear channel assessment"))
	frame[len(frame)-1] ^= 0x01

	_, err := p.Recv(frame)
	assert.ErrorIs(t, err, ErrBadCRC)
}

func TestRecvBadLengthFieldYieldsBadFormat(t *testing.T) {
	p := New(false)
	frame := buildFrame(t, p, []byte("clear channel assessment"))
	frame[1] ^= 0xFF // corrupt the low byte of the length field

	_, err := p.Recv(frame)
	assert.ErrorIs(t, err, ErrBadFormat)
}

func TestLegacyRejectsCRC32(t *testing.T) {
	p := New(true)
	err := p.SetCRCWidth(CRCWidth32)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCRC32KnownVector(t *testing.T) {
	// "123456789" is the standard CRC check string; IEEE 802.3 CRC-32
	// (reflected, init/final-xor 0xFFFFFFFF) of it is the well known
	// 0xCBF43926.
	assert.Equal(t, uint32(0xCBF43926), CRC32([]byte("123456789")))
}

func TestCRC16KnownVector(t *testing.T) {
	// CRC-16/CCITT-FALSE of "123456789" (poly 0x1021, init 0xFFFF) is
	// 0x29B1; with init 0x0000 the same input yields 0x31C3 (the XModem
	// variant's well-known check value).
	assert.Equal(t, uint16(0x31C3), CRC16([]byte("123456789")))
}
