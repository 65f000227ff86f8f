// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package mac802154

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerIE(length int, id uint8) []byte {
	hdr := uint16(length&0x7F) | uint16(id)<<7
	return []byte{byte(hdr >> 8), byte(hdr)}
}

func payloadIE(length int, groupID uint8) []byte {
	hdr := uint16(length&0x7FF) | uint16(groupID)<<11 | 1<<15
	return []byte{byte(hdr >> 8), byte(hdr)}
}

func TestIEWalkMinimalTerminatorsOnly(t *testing.T) {
	var data []byte
	data = append(data, headerIE(0, 0x7E)...)
	data = append(data, payloadIE(0, 0x0F)...)
	data = append(data, []byte("payload")...)

	n, ok := ieTotalLen(data)
	require.True(t, ok)
	assert.Equal(t, 4, n)
}

func TestIEWalkWithContent(t *testing.T) {
	var data []byte
	data = append(data, headerIE(3, 0x1A)...)
	data = append(data, []byte{1, 2, 3}...)
	data = append(data, headerIE(0, 0x7F)...)
	data = append(data, payloadIE(2, 0x00)...)
	data = append(data, []byte{9, 9}...)
	data = append(data, payloadIE(0, 0x0F)...)
	data = append(data, []byte("rest")...)

	n, ok := ieTotalLen(data)
	require.True(t, ok)
	assert.Equal(t, len(data)-len("rest"), n)
}

func TestIEWalkInvalidHeaderID(t *testing.T) {
	var data []byte
	data = append(data, headerIE(0, 0x00)...) // 0x00 < 0x1A is invalid
	data = append(data, payloadIE(0, 0x0F)...)

	_, ok := ieTotalLen(data)
	assert.False(t, ok)
}

func TestIEWalkInvalidPayloadGroup(t *testing.T) {
	var data []byte
	data = append(data, headerIE(0, 0x7E)...)
	data = append(data, payloadIE(0, 0x02)...) // group 0x02 is invalid

	_, ok := ieTotalLen(data)
	assert.False(t, ok)
}

func TestParseWithIEList(t *testing.T) {
	f := &Frame{
		FCF: FCF{
			FrameType:     FrameTypeData,
			IEListPresent: true,
		},
		Seq: 1,
	}
	buf := make([]byte, HdrLen(f))
	n := Create(f, buf)
	buf[1] |= 0x02 // set ie_list_present bit that Create doesn't encode itself

	var full []byte
	full = append(full, buf[:n]...)
	full = append(full, headerIE(0, 0x7E)...)
	full = append(full, payloadIE(0, 0x0F)...)
	full = append(full, []byte("body")...)

	got, ok := Parse(full)
	require.True(t, ok)
	assert.Equal(t, []byte("body"), got.Payload)
}
