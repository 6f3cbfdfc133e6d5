package rtp

import (
	"encoding/binary"

	"github.com/pion/rtp"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// H.265 NAL unit types (RFC 7798 §4.4.2) relevant to this depacketizer.
const (
	h265NaluAP          = 48
	h265NaluFU          = 49
	h265NaluPACI        = 50
	h265NaluVPS         = 32
	h265NaluSPS         = 33
	h265NaluPPS         = 34
	h265NaluBlaWLP      = 16
	h265NaluBlaWRADL    = 17
	h265NaluBlaNLP      = 18
	h265NaluIdrWRADL    = 19
	h265NaluIdrNLP      = 20
	h265NaluCraNUT      = 21
)

// H265Depacketizer reassembles RFC 7798 RTP payloads into access units
// using the same explicit fragmentation state machine as the H.264
// depacketizer, mirrored for the 2-byte H.265 NAL header.
type H265Depacketizer struct {
	state  fragState
	buffer []byte

	vps, sps, pps []byte
}

func NewH265Depacketizer() *H265Depacketizer {
	return &H265Depacketizer{buffer: make([]byte, 0, 4096)}
}

// PrimeParameterSets seeds VPS/SPS/PPS from SDP sprop-parameter-sets.
func (d *H265Depacketizer) PrimeParameterSets(sets [][]byte) {
	for _, nalu := range sets {
		if len(nalu) < 2 {
			continue
		}
		d.cacheParameterSet(nalu)
	}
}

func (d *H265Depacketizer) Reset() {
	d.state = fragIdle
	d.buffer = d.buffer[:0]
}

func h265Type(b0 byte) byte {
	return (b0 >> 1) & 0x3F
}

func h265IsKeyframe(naluType byte) bool {
	switch naluType {
	case h265NaluBlaWLP, h265NaluBlaWRADL, h265NaluBlaNLP,
		h265NaluIdrWRADL, h265NaluIdrNLP, h265NaluCraNUT,
		h265NaluVPS, h265NaluSPS, h265NaluPPS:
		return true
	default:
		return false
	}
}

func (d *H265Depacketizer) Parse(pkt *rtp.Packet) (*AccessUnit, error) {
	if len(pkt.Payload) < 2 {
		return nil, errs.MediaParse("h265", "payload too short for NAL header")
	}

	forbiddenZeroBit := pkt.Payload[0] & 0x80
	if forbiddenZeroBit != 0 {
		return nil, errs.MediaParse("h265", "forbidden_zero_bit set")
	}

	naluType := h265Type(pkt.Payload[0])

	switch {
	case naluType <= 40:
		return d.single(pkt.Payload, uint64(pkt.Timestamp))

	case naluType == h265NaluAP:
		return d.aggregation(pkt.Payload, uint64(pkt.Timestamp))

	case naluType == h265NaluFU:
		return d.fu(pkt.Payload, uint64(pkt.Timestamp))

	default:
		return nil, errs.MediaParse("h265", "unsupported NAL unit type (PACI or reserved)")
	}
}

func (d *H265Depacketizer) single(nalu []byte, pts uint64) (*AccessUnit, error) {
	d.cacheParameterSet(nalu)
	naluType := h265Type(nalu[0])
	return d.emit([][]byte{nalu}, h265IsKeyframe(naluType), pts), nil
}

func (d *H265Depacketizer) aggregation(payload []byte, pts uint64) (*AccessUnit, error) {
	rest := payload[2:] // skip 2-byte AP NAL header
	var nalus [][]byte
	keyframe := false

	for len(rest) > 2 {
		size := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		if int(size) > len(rest) {
			return nil, errs.MediaParse("h265", "AP size exceeds payload")
		}
		nalu := rest[:size]
		rest = rest[size:]

		d.cacheParameterSet(nalu)
		if h265IsKeyframe(h265Type(nalu[0])) {
			keyframe = true
		}
		nalus = append(nalus, nalu)
	}

	if len(nalus) == 0 {
		return nil, errs.MediaParse("h265", "empty AP")
	}
	return d.emit(nalus, keyframe, pts), nil
}

// fu reassembles a Fragmentation Unit. Layout after the 2-byte outer NAL
// header: FU header byte = S(1)|E(1)|Type(6); the reconstructed 2-byte
// NAL header reuses the outer LayerId/TID (RFC 7798 §4.4.3).
func (d *H265Depacketizer) fu(payload []byte, pts uint64) (*AccessUnit, error) {
	if len(payload) < 3 {
		return nil, errs.MediaParse("h265", "FU too short")
	}

	layerIDHigh := payload[0] & 0x01
	layerIDLow := (payload[1] >> 5) & 0x07
	tid := payload[1] & 0x1F

	fuHeader := payload[2]
	data := payload[3:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x3F

	// Reconstruct the 2-byte header: F(1)=0 | Type(6) | LayerId(6) | TID(3).
	header0 := (naluType << 1) | layerIDHigh
	header1 := (layerIDLow << 5) | tid
	reconstructedHeader := []byte{header0, header1}

	switch {
	case start && d.state == fragReassembling:
		d.Reset()
		fallthrough
	case start:
		d.state = fragReassembling
		d.buffer = d.buffer[:0]
		d.buffer = append(d.buffer, reconstructedHeader...)
		d.buffer = append(d.buffer, data...)
		if end {
			return d.finishFragment(pts)
		}
		return nil, nil

	case d.state != fragReassembling:
		return nil, errs.MediaParse("h265", "FU continuation without start")

	default:
		d.buffer = append(d.buffer, data...)
		if end {
			return d.finishFragment(pts)
		}
		return nil, nil
	}
}

func (d *H265Depacketizer) finishFragment(pts uint64) (*AccessUnit, error) {
	nalu := append([]byte(nil), d.buffer...)
	d.Reset()
	d.cacheParameterSet(nalu)
	keyframe := h265IsKeyframe(h265Type(nalu[0]))
	return d.emit([][]byte{nalu}, keyframe, pts), nil
}

func (d *H265Depacketizer) cacheParameterSet(nalu []byte) {
	switch h265Type(nalu[0]) {
	case h265NaluVPS:
		d.vps = append([]byte(nil), nalu...)
	case h265NaluSPS:
		d.sps = append([]byte(nil), nalu...)
	case h265NaluPPS:
		d.pps = append([]byte(nil), nalu...)
	}
}

// emit mirrors H264Depacketizer.emit: a lone NAL unit passes through
// byte-for-byte; an aggregate (VPS/SPS/PPS prepended ahead of an IDR,
// or a multi-NALU AP) is joined with Annex-B start codes.
func (d *H265Depacketizer) emit(nalus [][]byte, keyframe bool, pts uint64) *AccessUnit {
	var parts [][]byte
	isIDR := false
	for _, n := range nalus {
		t := h265Type(n[0])
		if t == h265NaluIdrWRADL || t == h265NaluIdrNLP || t == h265NaluCraNUT ||
			t == h265NaluBlaWLP || t == h265NaluBlaWRADL || t == h265NaluBlaNLP {
			isIDR = true
		}
	}
	if isIDR && len(d.vps) > 0 && len(d.sps) > 0 && len(d.pps) > 0 {
		parts = append(parts, d.vps, d.sps, d.pps)
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
	return &AccessUnit{Kind: KindVideo, Codec: "h265", PTS90k: pts, Keyframe: keyframe, Data: data}
}
