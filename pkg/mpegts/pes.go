package mpegts

const (
	streamIDVideo = 0xE0
	streamIDAudio = 0xC0
)

// buildPES wraps one access unit's bytes in a PES packet carrying a
// PTS-only 5-byte timestamp (spec.md §4.6): no DTS, since this muxer
// never reorders presentation order relative to decode order.
func buildPES(streamID byte, pts90k uint64, payload []byte, boundedLength bool) []byte {
	headerDataLength := 5 // PTS only

	pes := make([]byte, 0, 9+headerDataLength+len(payload))
	pes = append(pes, 0x00, 0x00, 0x01, streamID)

	packetLen := 0
	if boundedLength {
		packetLen = 3 + headerDataLength + len(payload) // flags1+flags2+header_data_length byte + PTS + payload
	}
	pes = appendUint16(pes, uint16(packetLen))

	pes = append(pes, 0x80) // '10' marker bits, no scrambling/priority/alignment/copyright/original
	pes = append(pes, 0x80) // PTS_DTS_flags=10 (PTS only), no ESCR/ES_rate/trick/copy/CRC/extension
	pes = append(pes, byte(headerDataLength))

	pes = appendPTS(pes, pts90k)
	pes = append(pes, payload...)
	return pes
}

// appendPTS encodes a 33-bit 90 kHz presentation timestamp into the
// standard 5-byte '0010' PTS-only form.
func appendPTS(pes []byte, pts90k uint64) []byte {
	pts := pts90k & 0x1FFFFFFFF

	b0 := byte(0x21) | byte((pts>>29)&0x0E)
	b1 := byte(pts >> 22)
	b2 := byte((pts>>14)&0xFE) | 0x01
	b3 := byte(pts >> 7)
	b4 := byte((pts<<1)&0xFE) | 0x01

	return append(pes, b0, b1, b2, b3, b4)
}
