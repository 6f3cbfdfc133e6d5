package rtp

import (
	"encoding/binary"

	"github.com/pion/rtp"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

const (
	defaultSizeLength        = 13
	defaultIndexLength       = 3
	defaultIndexDeltaLength  = 3
	defaultChannels          = 2
	adtsHeaderLength         = 7
	aacObjectTypeLC          = 2 // Low Complexity
)

// aacSampleRateTable maps ADTS sampling_frequency_index to its rate in
// Hz (ISO/IEC 13818-7 Table 35).
var aacSampleRateTable = []int{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

func aacSampleRateIndex(rate int) byte {
	for i, r := range aacSampleRateTable {
		if r == rate {
			return byte(i)
		}
	}
	return 4 // 44100, a reasonable fallback if negotiation produced an odd rate
}

// AACDepacketizer reassembles RFC 3640 MPEG4-GENERIC (AAC-hbr) RTP
// payloads into ADTS-framed access units. A single RTP packet may carry
// more than one AU; Parse returns the first and queues the rest for
// Drain.
type AACDepacketizer struct {
	clockRate                               int
	channels                                int
	sizeLength, indexLength, indexDeltaLen int

	pending []*AccessUnit
}

// NewAACDepacketizer builds a depacketizer for a track whose SDP fmtp
// line set sizeLength/indexLength/indexDeltaLength (spec.md defaults
// 13/3/3 apply if the caller passes zero) and channel count (default 2
// if zero).
func NewAACDepacketizer(clockRate, channels, sizeLength, indexLength, indexDeltaLength int) *AACDepacketizer {
	if sizeLength == 0 {
		sizeLength = defaultSizeLength
	}
	if indexLength == 0 {
		indexLength = defaultIndexLength
	}
	if indexDeltaLength == 0 {
		indexDeltaLength = defaultIndexDeltaLength
	}
	if channels == 0 {
		channels = defaultChannels
	}
	return &AACDepacketizer{
		clockRate:    clockRate,
		channels:     channels,
		sizeLength:   sizeLength,
		indexLength:  indexLength,
		indexDeltaLen: indexDeltaLength,
	}
}

func (d *AACDepacketizer) Reset() {
	d.pending = nil
}

// Drain returns and clears any access units queued by the most recent
// Parse call beyond the one it returned directly.
func (d *AACDepacketizer) Drain() []*AccessUnit {
	pending := d.pending
	d.pending = nil
	return pending
}

// Parse implements Depacketizer. Payload layout (RFC 3640 §3.2.1):
// AU-headers-length (u16 BE, in bits) ∥ AU-headers ∥ AU data. The first
// AU header is size(sizeLength) ∥ index(indexLength); subsequent headers
// in the same packet are size(sizeLength) ∥ index-delta(indexDeltaLength).
// The index values are skipped, since AUs are simply concatenated
// byte-aligned in arrival order.
func (d *AACDepacketizer) Parse(pkt *rtp.Packet) (*AccessUnit, error) {
	payload := pkt.Payload
	if len(payload) < 2 {
		return nil, errs.MediaParse("aac", "payload too short for AU-headers-length")
	}

	headerBits := binary.BigEndian.Uint16(payload[:2])
	headerBytes := int((headerBits + 7) / 8)
	if len(payload) < 2+headerBytes {
		return nil, errs.MediaParse("aac", "AU-headers-length exceeds payload")
	}

	headerBitLen := d.sizeLength + d.indexLength
	if headerBitLen <= 0 || headerBitLen > 32 {
		return nil, errs.MediaParse("aac", "invalid AU header bit length")
	}

	headers := payload[2 : 2+headerBytes]
	data := payload[2+headerBytes:]

	sizes, err := d.readAUSizes(headers, int(headerBits))
	if err != nil {
		return nil, err
	}
	if len(sizes) == 0 {
		return nil, errs.MediaParse("aac", "no AU headers present")
	}

	pts := d.rebaseTimestamp(pkt.Timestamp)

	var units []*AccessUnit
	offset := 0
	for _, size := range sizes {
		if offset+size > len(data) {
			return nil, errs.MediaParse("aac", "AU size exceeds remaining payload")
		}
		raw := data[offset : offset+size]
		offset += size
		units = append(units, &AccessUnit{
			Kind:     KindAudio,
			Codec:    "aac",
			PTS90k:   pts,
			Keyframe: true, // every AAC AU is independently decodable
			Data:     d.wrapADTS(raw),
		})
	}

	if len(units) > 1 {
		d.pending = append(d.pending, units[1:]...)
	}
	return units[0], nil
}

// readAUSizes walks the AU-header block, reading one size field per
// header. With the AAC-hbr defaults (13-bit size, 3-bit index) this is a
// single u16 header per AU; with non-default lengths the same bit-level
// walk applies, bits packed MSB-first across the header block.
func (d *AACDepacketizer) readAUSizes(headers []byte, totalBits int) ([]int, error) {
	var sizes []int
	bitPos := 0
	indexLen := d.indexLength
	for bitPos+d.sizeLength+indexLen <= totalBits {
		size, err := readBits(headers, bitPos, d.sizeLength)
		if err != nil {
			return nil, errs.MediaParse("aac", "AU header read out of range")
		}
		sizes = append(sizes, size)
		bitPos += d.sizeLength + indexLen
		// Every header after the first carries an index delta of
		// indexDeltaLen bits instead of a full index; the index values
		// themselves are skipped.
		indexLen = d.indexDeltaLen
	}
	return sizes, nil
}

// readBits extracts an unsigned integer of width bits starting at bit
// offset start, MSB-first, from a big-endian packed byte slice.
func readBits(b []byte, start, width int) (int, error) {
	val := 0
	for i := 0; i < width; i++ {
		bitIndex := start + i
		byteIndex := bitIndex / 8
		if byteIndex >= len(b) {
			return 0, errs.MediaParse("aac", "bit read past end of header block")
		}
		bit := (b[byteIndex] >> (7 - uint(bitIndex%8))) & 1
		val = (val << 1) | int(bit)
	}
	return val, nil
}

// rebaseTimestamp remaps the RTP timestamp (at the track's negotiated
// clock rate) to 90 kHz. The conversion is done as a single wide
// multiply-then-divide rather than incremental per-sample scaling, so
// no rounding error accumulates across a long-running session.
func (d *AACDepacketizer) rebaseTimestamp(ts uint32) uint64 {
	if d.clockRate == 90000 || d.clockRate == 0 {
		return uint64(ts)
	}
	return uint64(ts) * 90000 / uint64(d.clockRate)
}

// wrapADTS prepends a 7-byte ADTS header (no CRC) to a raw AAC access
// unit, per spec.md §4.5.
func (d *AACDepacketizer) wrapADTS(raw []byte) []byte {
	frameLen := adtsHeaderLength + len(raw)
	out := make([]byte, 0, frameLen)

	sampleRateIdx := aacSampleRateIndex(d.clockRate)
	channelCfg := byte(d.channels)

	var hdr [adtsHeaderLength]byte
	hdr[0] = 0xFF
	hdr[1] = 0xF1 // syncword cont. | MPEG-4 | Layer 00 | no CRC
	hdr[2] = (byte(aacObjectTypeLC-1) << 6) | (sampleRateIdx << 2) | ((channelCfg >> 2) & 0x01)
	hdr[3] = (channelCfg&0x03)<<6 | byte((frameLen>>11)&0x03)
	hdr[4] = byte((frameLen >> 3) & 0xFF)
	hdr[5] = byte((frameLen&0x07)<<5) | 0x1F
	hdr[6] = 0xFC

	out = append(out, hdr[:]...)
	out = append(out, raw...)
	return out
}
