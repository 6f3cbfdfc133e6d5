package mpegts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethan/rtsp-hls-bridge/pkg/rtp"
)

func TestMuxerEveryPacketIs188BytesAndSynced(t *testing.T) {
	m := NewMuxer("h264")
	m.WriteAccessUnit(&rtp.AccessUnit{Kind: rtp.KindVideo, PTS90k: 9000, Keyframe: true, Data: make([]byte, 500)})
	m.WriteAccessUnit(&rtp.AccessUnit{Kind: rtp.KindAudio, PTS90k: 9000, Data: make([]byte, 100)})

	out := m.Bytes()
	require.NotZero(t, len(out))
	require.Zero(t, len(out)%packetLength)

	for i := 0; i < len(out); i += packetLength {
		assert.Equal(t, byte(0x47), out[i], "packet %d missing sync byte", i/packetLength)
	}
}

func TestMuxerStartsWithPATThenPMT(t *testing.T) {
	m := NewMuxer("h264")
	m.WriteAccessUnit(&rtp.AccessUnit{Kind: rtp.KindVideo, PTS90k: 0, Data: []byte{0x01}})

	out := m.Bytes()
	require.GreaterOrEqual(t, len(out), packetLength*2)

	patPID := (uint16(out[1]&0x1F) << 8) | uint16(out[2])
	assert.Equal(t, uint16(PIDPat), patPID)

	pmtPID := (uint16(out[packetLength+1]&0x1F) << 8) | uint16(out[packetLength+2])
	assert.Equal(t, uint16(PIDPmt), pmtPID)
}

func TestMuxerContinuityCounterIncrementsPerPID(t *testing.T) {
	m := NewMuxer("h264")
	// Large enough video AU to span two TS packets on the video PID.
	m.WriteAccessUnit(&rtp.AccessUnit{Kind: rtp.KindVideo, PTS90k: 0, Data: make([]byte, 400)})

	out := m.Bytes()
	var videoCCs []byte
	for i := 0; i < len(out); i += packetLength {
		pid := (uint16(out[i+1]&0x1F) << 8) | uint16(out[i+2])
		if pid == PIDVideo {
			videoCCs = append(videoCCs, out[i+3]&0x0F)
		}
	}
	require.GreaterOrEqual(t, len(videoCCs), 2)
	for i := 1; i < len(videoCCs); i++ {
		assert.Equal(t, (videoCCs[i-1]+1)&0x0F, videoCCs[i])
	}
}

func TestMuxerResetClearsBufferButKeepsContinuity(t *testing.T) {
	m := NewMuxer("h264")
	m.WriteAccessUnit(&rtp.AccessUnit{Kind: rtp.KindVideo, PTS90k: 0, Data: []byte{0x01}})
	require.NotZero(t, len(m.Bytes()))

	m.Reset()
	assert.Zero(t, len(m.Bytes()))

	m.WriteAccessUnit(&rtp.AccessUnit{Kind: rtp.KindVideo, PTS90k: 0, Data: []byte{0x02}})
	assert.NotZero(t, len(m.Bytes()))
	// PAT, PMT, then the video packet: its counter continues from the
	// pre-Reset value 0 instead of restarting.
	assert.Equal(t, byte(1), m.Bytes()[2*packetLength+3]&0x0F)
}
