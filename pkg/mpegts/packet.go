package mpegts

const (
	packetLength = 188
	syncByte     = 0x47
)

// continuityCounters tracks the 4-bit continuity_counter per PID,
// wrapping mod 16 (spec.md §4.6 data model invariant).
type continuityCounters struct {
	counts map[uint16]byte
}

func newContinuityCounters() *continuityCounters {
	return &continuityCounters{counts: make(map[uint16]byte)}
}

func (c *continuityCounters) next(pid uint16) byte {
	v := c.counts[pid]
	c.counts[pid] = (v + 1) & 0x0F
	return v
}

// packetizeSection wraps one PSI section (PAT or PMT) into one or more
// 188-byte TS packets, using the pointer_field convention (a single
// leading 0x00 since the section always starts a fresh packet here).
func packetizeSection(pid uint16, section []byte, cc *continuityCounters) [][]byte {
	payload := append([]byte{0x00}, section...) // pointer_field = 0
	return packetizePayload(pid, payload, true, cc, false, 0)
}

// packetizePES wraps a PES packet's bytes into TS packets. The first
// packet carries PUSI=1; when withPCR is true the first packet also
// carries a PCR-bearing adaptation field built from pcr90k (converted
// to the 27 MHz PCR base+extension pair internally).
func packetizePES(pid uint16, pes []byte, cc *continuityCounters, withPCR bool, pcr90k uint64) [][]byte {
	return packetizePayload(pid, pes, true, cc, withPCR, pcr90k)
}

func packetizePayload(pid uint16, payload []byte, pusi bool, cc *continuityCounters, withPCR bool, pcr90k uint64) [][]byte {
	var packets [][]byte
	first := true

	for len(payload) > 0 || first {
		pkt := make([]byte, 0, packetLength)
		pkt = append(pkt, syncByte)

		pusiBit := byte(0)
		if pusi && first {
			pusiBit = 0x40
		}
		pkt = append(pkt, pusiBit|byte(pid>>8)&0x1F)
		pkt = append(pkt, byte(pid))

		counter := cc.next(pid)
		const headerLen = 4

		wantPCR := first && withPCR
		// Tentative payload budget assuming a PCR adaptation field (8
		// bytes: length + flags + 6-byte PCR) only when requested; plain
		// stuffing (no PCR) is sized afterward against the actual
		// leftover once we know how much of payload fits.
		pcrOverhead := 0
		if wantPCR {
			pcrOverhead = 8
		}
		budget := packetLength - headerLen - pcrOverhead

		var chunk []byte
		if len(payload) >= budget {
			chunk = payload[:budget]
		} else {
			chunk = payload
		}
		leftover := budget - len(chunk)

		afc := byte(0x01)
		needsAdaptation := wantPCR || leftover > 0
		if needsAdaptation {
			afc = 0x03
		}
		pkt = append(pkt, (0x00<<6)|(afc<<4)|counter)

		if needsAdaptation {
			totalConsumption := leftover
			if wantPCR {
				totalConsumption += pcrOverhead
			}
			pkt = appendAdaptationField(pkt, wantPCR, pcr90k, totalConsumption)
		}

		pkt = append(pkt, chunk...)
		payload = payload[len(chunk):]

		packets = append(packets, pkt)
		first = false
	}

	return packets
}

// appendAdaptationField writes one adaptation field that consumes
// exactly totalConsumption bytes of the packet, including its own
// length byte. With totalConsumption==1 and no PCR this is the special
// one-byte form (adaptation_field_length=0, no flags byte at all);
// otherwise it is length byte + flags byte + optional 6-byte PCR +
// 0xFF stuffing padding out the remainder.
func appendAdaptationField(pkt []byte, withPCR bool, pcr90k uint64, totalConsumption int) []byte {
	if !withPCR && totalConsumption == 1 {
		return append(pkt, 0x00)
	}

	length := totalConsumption - 1
	pkt = append(pkt, byte(length))

	flags := byte(0x00)
	if withPCR {
		flags |= 0x10
	}
	pkt = append(pkt, flags)

	pcrBytes := 0
	if withPCR {
		pkt = appendPCR(pkt, pcr90k)
		pcrBytes = 6
	}

	stuffBytes := length - 1 - pcrBytes
	for i := 0; i < stuffBytes; i++ {
		pkt = append(pkt, 0xFF)
	}
	return pkt
}

// appendPCR encodes program_clock_reference_base (33 bits, at 90 kHz)
// and program_clock_reference_extension (9 bits, always 0 here since
// this muxer has no sub-90kHz clock source) into 6 bytes.
func appendPCR(pkt []byte, pcr90k uint64) []byte {
	base := pcr90k & 0x1FFFFFFFF // 33 bits
	ext := uint16(0)

	var tmp [6]byte
	tmp[0] = byte(base >> 25)
	tmp[1] = byte(base >> 17)
	tmp[2] = byte(base >> 9)
	tmp[3] = byte(base >> 1)
	tmp[4] = byte(base<<7) | 0x7E | byte(ext>>8)
	tmp[5] = byte(ext)
	return append(pkt, tmp[:]...)
}
