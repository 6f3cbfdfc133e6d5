// Package rtp receives RTP packets over UDP, reorders them into a
// strictly sequential per-track stream, and depacketizes that stream
// into elementary access units per codec (H.264/RFC 6184, H.265/RFC
// 7798, AAC/RFC 3640).
package rtp

import "github.com/pion/rtp"

// AccessUnitKind distinguishes video from audio access units.
type AccessUnitKind int

const (
	KindVideo AccessUnitKind = iota
	KindAudio
)

// AccessUnit is one independently-consumable media unit: for video, a
// complete NAL unit (bare, no start code) or a NAL-aggregate (Annex-B,
// start-code delimited); for audio, one ADTS-wrapped AAC raw data block.
type AccessUnit struct {
	Kind      AccessUnitKind
	Codec     string // "h264", "h265", "aac"
	PTS90k    uint64
	Keyframe  bool
	Data      []byte
}

// Depacketizer turns a sequential stream of RTP packets for one track
// into AccessUnits. It is a closed sum of three variants (H264, H265,
// AAC) behind one interface, per spec.md §9 — no open extension point
// is needed at runtime.
type Depacketizer interface {
	// Parse consumes one RTP packet. It returns a non-nil AccessUnit
	// when the packet completed one (single NAL, aggregate, or the
	// final fragment of a fragmented unit); otherwise it returns
	// (nil, nil). A malformed packet returns a non-nil error; the
	// caller is expected to count it and continue (spec.md §7) after
	// calling Reset.
	Parse(pkt *rtp.Packet) (*AccessUnit, error)

	// Reset clears any in-progress fragmentation state, returning the
	// depacketizer to Idle.
	Reset()
}

// startCode is the Annex-B NAL unit delimiter.
var startCode = []byte{0x00, 0x00, 0x00, 0x01}

func appendAnnexB(dst, nalu []byte) []byte {
	dst = append(dst, startCode...)
	return append(dst, nalu...)
}
