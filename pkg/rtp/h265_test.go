package rtp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestH265FUThreeFragments covers scenario S3 from spec.md §8: FU
// fragments 62 01 94 88 84 / 62 01 14 00 01 / 62 01 54 02 03 reassemble
// into a reconstructed 2-byte header 28 01 followed by 88 84 00 01 02 03.
func TestH265FUThreeFragments(t *testing.T) {
	d := NewH265Depacketizer()

	fragments := [][]byte{
		{0x62, 0x01, 0x94, 0x88, 0x84},
		{0x62, 0x01, 0x14, 0x00, 0x01},
		{0x62, 0x01, 0x54, 0x02, 0x03},
	}

	var last *AccessUnit
	for i, frag := range fragments {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Timestamp: 9000, Marker: i == len(fragments)-1},
			Payload: frag,
		}
		au, err := d.Parse(pkt)
		require.NoError(t, err)
		if i < len(fragments)-1 {
			assert.Nil(t, au)
		} else {
			last = au
		}
	}

	require.NotNil(t, last)
	assert.Equal(t, []byte{0x28, 0x01, 0x88, 0x84, 0x00, 0x01, 0x02, 0x03}, last.Data)
	assert.Equal(t, uint64(9000), last.PTS90k)
}

func TestH265FUContinuationWithoutStartIsError(t *testing.T) {
	d := NewH265Depacketizer()
	pkt := &rtp.Packet{Payload: []byte{0x62, 0x01, 0x14, 0x00, 0x01}}
	_, err := d.Parse(pkt)
	require.Error(t, err)
}

func TestH265ForbiddenZeroBit(t *testing.T) {
	d := NewH265Depacketizer()
	pkt := &rtp.Packet{Payload: []byte{0x80, 0x01, 0x00}}
	_, err := d.Parse(pkt)
	require.Error(t, err)
}

func TestH265SingleNALKeyframe(t *testing.T) {
	d := NewH265Depacketizer()
	// Type 19 = IDR_W_RADL: (19<<1)=38=0x26, byte0 = 0x26, layer/tid in byte1.
	pkt := &rtp.Packet{
		Header:  rtp.Header{Timestamp: 500},
		Payload: []byte{0x26, 0x01, 0xAA, 0xBB},
	}
	au, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, au)
	assert.True(t, au.Keyframe)
	assert.Equal(t, []byte{0x26, 0x01, 0xAA, 0xBB}, au.Data)
}

func TestH265AggregationPacket(t *testing.T) {
	d := NewH265Depacketizer()
	vps := []byte{0x40, 0x01, 0x0C}
	sps := []byte{0x42, 0x01, 0x01}

	payload := []byte{0x60, 0x01} // AP header, type 48
	payload = append(payload, 0x00, byte(len(vps)))
	payload = append(payload, vps...)
	payload = append(payload, 0x00, byte(len(sps)))
	payload = append(payload, sps...)

	pkt := &rtp.Packet{Header: rtp.Header{Timestamp: 1000}, Payload: payload}
	au, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, au)
	assert.Equal(t, vps, d.vps)
	assert.Equal(t, sps, d.sps)
}
