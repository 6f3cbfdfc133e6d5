package rtp

import (
	"encoding/binary"

	"github.com/pion/rtp"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// H.264 NAL unit types (RFC 6184 §5.3).
const (
	h264NaluIFrame = 5
	h264NaluSEI    = 6
	h264NaluSPS    = 7
	h264NaluPPS    = 8
	h264NaluAUD    = 9
	h264NaluSTAPA  = 24
	h264NaluSTAPB  = 25
	h264NaluMTAP16 = 26
	h264NaluMTAP24 = 27
	h264NaluFUA    = 28
	h264NaluFUB    = 29
)

type fragState int

const (
	fragIdle fragState = iota
	fragReassembling
)

// H264Depacketizer reassembles RFC 6184 RTP payloads into Annex-B
// access units, caching SPS/PPS and prepending them before every IDR so
// a segment cut at that AU is self-contained (spec.md §4.3, §9).
type H264Depacketizer struct {
	state  fragState
	buffer []byte

	sps []byte
	pps []byte
}

// NewH264Depacketizer creates a depacketizer with no primed parameter
// sets. Call PrimeParameterSets with SDP sprop-parameter-sets, if any,
// before the first packet arrives.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{buffer: make([]byte, 0, 4096)}
}

// PrimeParameterSets seeds SPS/PPS from SDP fmtp sprop-parameter-sets,
// so mid-GOP joiners still get a decodable first segment even before
// an in-stream SPS/PPS pair arrives.
func (d *H264Depacketizer) PrimeParameterSets(sets [][]byte) {
	for _, nalu := range sets {
		if len(nalu) == 0 {
			continue
		}
		switch nalu[0] & 0x1F {
		case h264NaluSPS:
			d.sps = append([]byte(nil), nalu...)
		case h264NaluPPS:
			d.pps = append([]byte(nil), nalu...)
		}
	}
}

func (d *H264Depacketizer) Reset() {
	d.state = fragIdle
	d.buffer = d.buffer[:0]
}

// Parse implements Depacketizer.
func (d *H264Depacketizer) Parse(pkt *rtp.Packet) (*AccessUnit, error) {
	if len(pkt.Payload) == 0 {
		return nil, errs.MediaParse("h264", "empty payload")
	}

	forbiddenZeroBit := pkt.Payload[0] & 0x80
	if forbiddenZeroBit != 0 {
		return nil, errs.MediaParse("h264", "forbidden_zero_bit set")
	}

	naluType := pkt.Payload[0] & 0x1F

	switch {
	case naluType >= 1 && naluType <= 23:
		return d.single(pkt.Payload, uint64(pkt.Timestamp))

	case naluType == h264NaluSTAPA:
		return d.stapA(pkt.Payload, uint64(pkt.Timestamp))

	case naluType == h264NaluSTAPB || naluType == h264NaluMTAP16 || naluType == h264NaluMTAP24:
		return nil, errs.MediaParse("h264", "unsupported aggregation type")

	case naluType == h264NaluFUA:
		return d.fuA(pkt.Payload, uint64(pkt.Timestamp))

	case naluType == h264NaluFUB:
		return nil, errs.MediaParse("h264", "unsupported FU-B")

	default:
		return nil, errs.MediaParse("h264", "unsupported NAL unit type")
	}
}

func (d *H264Depacketizer) single(nalu []byte, pts uint64) (*AccessUnit, error) {
	d.cacheParameterSet(nalu)
	return d.emit([][]byte{nalu}, nalu[0]&0x1F == h264NaluIFrame, pts), nil
}

func (d *H264Depacketizer) stapA(payload []byte, pts uint64) (*AccessUnit, error) {
	rest := payload[1:]
	var nalus [][]byte
	keyframe := false

	for len(rest) > 2 {
		size := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		if int(size) > len(rest) {
			return nil, errs.MediaParse("h264", "STAP-A size exceeds payload")
		}
		nalu := rest[:size]
		rest = rest[size:]

		d.cacheParameterSet(nalu)
		if nalu[0]&0x1F == h264NaluIFrame {
			keyframe = true
		}
		nalus = append(nalus, nalu)
	}

	if len(nalus) == 0 {
		return nil, errs.MediaParse("h264", "empty STAP-A")
	}
	return d.emit(nalus, keyframe, pts), nil
}

func (d *H264Depacketizer) fuA(payload []byte, pts uint64) (*AccessUnit, error) {
	if len(payload) < 2 {
		return nil, errs.MediaParse("h264", "FU-A too short")
	}
	fuIndicator := payload[0]
	fuHeader := payload[1]
	data := payload[2:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1F

	switch {
	case start && d.state == fragReassembling:
		// A new start while a fragment is open: reset and begin fresh
		// per spec.md §4.3 ("hard error that resets state").
		d.Reset()
		fallthrough
	case start:
		d.state = fragReassembling
		d.buffer = d.buffer[:0]
		d.buffer = append(d.buffer, (fuIndicator&0xE0)|naluType)
		d.buffer = append(d.buffer, data...)
		if end {
			return d.finishFragment(pts)
		}
		return nil, nil

	case d.state != fragReassembling:
		return nil, errs.MediaParse("h264", "FU-A continuation without start")

	default:
		d.buffer = append(d.buffer, data...)
		if end {
			return d.finishFragment(pts)
		}
		return nil, nil
	}
}

func (d *H264Depacketizer) finishFragment(pts uint64) (*AccessUnit, error) {
	nalu := append([]byte(nil), d.buffer...)
	d.Reset()
	d.cacheParameterSet(nalu)
	keyframe := nalu[0]&0x1F == h264NaluIFrame
	return d.emit([][]byte{nalu}, keyframe, pts), nil
}

func (d *H264Depacketizer) cacheParameterSet(nalu []byte) {
	switch nalu[0] & 0x1F {
	case h264NaluSPS:
		d.sps = append([]byte(nil), nalu...)
	case h264NaluPPS:
		d.pps = append([]byte(nil), nalu...)
	}
}

// emit builds the AU payload. A lone NAL unit (the common case) is
// handed through byte-for-byte, matching spec.md §8's RTP round-trip
// and FU-A completeness properties exactly. Only when the AU aggregates
// more than one NAL unit — SPS/PPS prepended ahead of an IDR, or a
// multi-NALU STAP-A — does it become an Annex-B start-code-delimited
// NAL-aggregate, per the data model's "a complete NAL unit or
// NAL-aggregate" wording.
func (d *H264Depacketizer) emit(nalus [][]byte, keyframe bool, pts uint64) *AccessUnit {
	var parts [][]byte
	if keyframe && len(d.sps) > 0 && len(d.pps) > 0 {
		parts = append(parts, d.sps, d.pps)
	}
	parts = append(parts, nalus...)

	var data []byte
	if len(parts) == 1 {
		data = append([]byte(nil), parts[0]...)
	} else {
		for _, n := range parts {
			data = appendAnnexB(data, n)
		}
	}
	return &AccessUnit{Kind: KindVideo, Codec: "h264", PTS90k: pts, Keyframe: keyframe, Data: data}
}
