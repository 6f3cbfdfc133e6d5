// Package mpegts packetizes access units into an MPEG-2 Transport
// Stream: PAT/PMT PSI tables, PES framing with PTS, and 188-byte TS
// packets carrying continuity counters and PCR.
package mpegts

import (
	"bytes"

	"github.com/ethan/rtsp-hls-bridge/pkg/rtp"
)

// Muxer accumulates TS packets for one segment. Callers create one per
// segment (spec.md §4.6: PAT+PMT are regenerated at the start of every
// segment) and call WriteAccessUnit per frame, then Bytes to retrieve
// the finished buffer.
type Muxer struct {
	cc              *continuityCounters
	videoStreamType byte
	buf             []byte
	wrotePAT        bool
}

// NewMuxer builds a muxer for one segment. videoCodec is "h264" or
// "h265" and selects the PMT's video stream_type.
func NewMuxer(videoCodec string) *Muxer {
	st := byte(StreamTypeH264)
	if videoCodec == "h265" {
		st = StreamTypeH265
	}
	return &Muxer{cc: newContinuityCounters(), videoStreamType: st}
}

// WriteHeader emits PAT and PMT, required once at the start of every
// segment so a player joining mid-stream can always decode it.
func (m *Muxer) WriteHeader() {
	for _, pkt := range packetizeSection(PIDPat, buildPAT(), m.cc) {
		m.buf = append(m.buf, pkt...)
	}
	for _, pkt := range packetizeSection(PIDPmt, buildPMT(m.videoStreamType), m.cc) {
		m.buf = append(m.buf, pkt...)
	}
	m.wrotePAT = true
}

// WriteAccessUnit packetizes one access unit into a PES packet and its
// carrying TS packets, appending them to the muxer's buffer. The video
// PID also carries PCR (PCR_PID = video PID per spec.md's PID plan):
// the first TS packet of every video access unit, including the
// keyframe that opens the segment, stamps PCR from that unit's PTS.
// A video unit that does not already begin with an Annex-B start code
// (a lone NAL unit from the depacketizer) gets one prepended.
func (m *Muxer) WriteAccessUnit(au *rtp.AccessUnit) {
	if !m.wrotePAT {
		m.WriteHeader()
	}

	var pid uint16
	var streamID byte
	bounded := false
	data := au.Data

	switch au.Kind {
	case rtp.KindVideo:
		pid = PIDVideo
		streamID = streamIDVideo
		startCode := []byte{0x00, 0x00, 0x00, 0x01}
		if !bytes.HasPrefix(data, startCode) {
			data = append(startCode, data...)
		}
	case rtp.KindAudio:
		pid = PIDAudio
		streamID = streamIDAudio
		bounded = true
	}

	pes := buildPES(streamID, au.PTS90k, data, bounded)

	withPCR := au.Kind == rtp.KindVideo
	for _, pkt := range packetizePES(pid, pes, m.cc, withPCR, au.PTS90k) {
		m.buf = append(m.buf, pkt...)
	}
}

// Bytes returns the accumulated TS packet stream for this segment.
func (m *Muxer) Bytes() []byte {
	return m.buf
}

// Reset clears the buffer and continuity counters for reuse across
// segments within the same stream. Continuity counters are per-PID and
// conventionally continue across segment boundaries rather than
// resetting, so only the output buffer and PAT/PMT flag reset here.
func (m *Muxer) Reset() {
	m.buf = m.buf[:0]
	m.wrotePAT = false
}
