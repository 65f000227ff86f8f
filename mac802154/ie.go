// Copyright 2016 by Thorsten von Eicken, see LICENSE file

package mac802154

// ieTotalLen walks the Header IE list followed by the Payload IE list at
// the front of data and returns the total number of bytes they occupy.
// Both lists are always walked to their terminator when IEListPresent is
// set, per IEEE-802.15.4e-2012 §5.2.4.22 (header IEs) and §5.2.4.3
// (payload IEs); a malformed entry in either list fails the whole parse.
func ieTotalLen(data []byte) (int, bool) {
	p := 0

	// Header IE list: [length:7 | element_id:8 | type:1], terminated by
	// length 0 with element ID 0x7E or 0x7F. Table 4b valid IDs are
	// 0x1A..0x21 and 0x7E..0x7F.
	for {
		if p+2 > len(data) {
			return 0, false
		}
		hdr := uint16(data[p])<<8 | uint16(data[p+1])
		ieLen := int(hdr & 0x007F)
		ieID := uint8((hdr >> 7) & 0xFF)
		ieType := (hdr >> 15) & 1

		if ieID < 0x1A || (ieID > 0x21 && ieID < 0x7E) || ieID > 0x7F || ieType != 0 {
			return 0, false
		}

		terminator := ieLen == 0 && (ieID == 0x7E || ieID == 0x7F)
		p += 2 + ieLen
		if p > len(data) {
			return 0, false
		}
		if terminator {
			break
		}
	}

	// Payload IE list: [length:11 | group_id:4 | type:1], terminated by
	// length 0 with group ID 0x0F. Table 4c valid group IDs are
	// {0x00, 0x01, 0x0F}.
	for {
		if p+2 > len(data) {
			return 0, false
		}
		hdr := uint16(data[p])<<8 | uint16(data[p+1])
		ieLen := int(hdr & 0x07FF)
		ieID := uint8((hdr >> 11) & 0x0F)
		ieType := (hdr >> 15) & 1

		if ieType != 1 || (ieID != 0x00 && ieID != 0x01 && ieID != 0x0F) {
			return 0, false
		}

		terminator := ieLen == 0 && ieID == 0x0F
		p += 2 + ieLen
		if p > len(data) {
			return 0, false
		}
		if terminator {
			break
		}
	}

	return p, true
}
