package mpegts

import "encoding/binary"

// PID plan (spec.md §4.6).
const (
	PIDPat   = 0x0000
	PIDPmt   = 0x1000
	PIDVideo = 0x0100
	PIDAudio = 0x0101
)

// Stream types carried in the PMT (ISO/IEC 13818-1 Table 2-34 plus the
// ITU-T H.265 registration).
const (
	StreamTypeH264 = 0x1B
	StreamTypeH265 = 0x24
	StreamTypeAAC  = 0x0F // ADTS-framed AAC
)

const (
	tableIDPat = 0x00
	tableIDPmt = 0x02
)

// buildPAT returns the PSI section bytes (table_id through CRC_32,
// inclusive) for a single-program PAT mapping program 1 to PIDPmt.
func buildPAT() []byte {
	sectionData := make([]byte, 0, 13)
	// program_number=1, reserved=111, program_map_PID
	sectionData = appendUint16(sectionData, 1)
	sectionData = appendUint16(sectionData, 0xE000|PIDPmt)

	return buildSection(tableIDPat, 1, sectionData)
}

// buildPMT returns the PSI section bytes for program 1: PCR on
// PIDVideo, one video ES and one audio ES, no descriptors.
func buildPMT(videoStreamType byte) []byte {
	sectionData := make([]byte, 0, 16)
	sectionData = appendUint16(sectionData, 0xE000|PIDVideo) // PCR_PID
	sectionData = appendUint16(sectionData, 0xF000)          // reserved | program_info_length=0

	sectionData = append(sectionData, videoStreamType)
	sectionData = appendUint16(sectionData, 0xE000|PIDVideo)
	sectionData = appendUint16(sectionData, 0xF000) // ES_info_length=0

	sectionData = append(sectionData, StreamTypeAAC)
	sectionData = appendUint16(sectionData, 0xE000|PIDAudio)
	sectionData = appendUint16(sectionData, 0xF000)

	return buildSection(tableIDPmt, 1, sectionData)
}

// buildSection assembles a complete PSI section: table_id,
// section_syntax_indicator=1, section_length, table_id_extension
// (program number for PAT/PMT), version/current_next fields fixed at
// version 0 current, section_number/last_section_number=0, the
// caller's payload, and a trailing CRC-32/MPEG-2 over everything from
// table_id through the byte before the CRC.
func buildSection(tableID byte, tableIDExtension uint16, payload []byte) []byte {
	// Bytes after section_length: table_id_extension(2) + reserved/version/current_next(1)
	// + section_number(1) + last_section_number(1) + payload + CRC(4).
	remaining := 2 + 1 + 1 + 1 + len(payload) + 4

	buf := make([]byte, 0, 3+remaining)
	buf = append(buf, tableID)
	buf = appendUint16(buf, 0xB000|uint16(remaining)) // section_syntax_indicator=1, reserved=11, section_length
	buf = appendUint16(buf, tableIDExtension)
	buf = append(buf, 0xC1) // reserved=11, version_number=00000, current_next_indicator=1
	buf = append(buf, 0x00) // section_number
	buf = append(buf, 0x00) // last_section_number
	buf = append(buf, payload...)

	crc := crc32MPEG2(buf)
	buf = appendUint32(buf, crc)
	return buf
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
