package rtp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestH264SingleNAL covers scenario S1 from spec.md §8.
func TestH264SingleNAL(t *testing.T) {
	d := NewH264Depacketizer()
	pkt := &rtp.Packet{
		Header:  rtp.Header{Timestamp: 12345, Marker: true},
		Payload: []byte{0x65, 0x88, 0x84, 0x00},
	}

	au, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, au)
	assert.Equal(t, uint64(12345), au.PTS90k)
	assert.Equal(t, []byte{0x65, 0x88, 0x84, 0x00}, au.Data)
	assert.True(t, au.Keyframe)
}

// TestH264FUAThreeFragments covers scenario S2 from spec.md §8.
func TestH264FUAThreeFragments(t *testing.T) {
	d := NewH264Depacketizer()

	fragments := [][]byte{
		{0x7C, 0x85, 0x88, 0x84},
		{0x7C, 0x05, 0x00, 0x01},
		{0x7C, 0x45, 0x02, 0x03},
	}

	var last *AccessUnit
	for i, frag := range fragments {
		pkt := &rtp.Packet{
			Header:  rtp.Header{Timestamp: 12345, Marker: i == len(fragments)-1},
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
	assert.Equal(t, []byte{0x65, 0x88, 0x84, 0x00, 0x01, 0x02, 0x03}, last.Data)
	assert.Equal(t, uint64(12345), last.PTS90k)
	assert.True(t, last.Keyframe)
}

func TestH264FUAMidFragmentWithoutStartIsError(t *testing.T) {
	d := NewH264Depacketizer()
	pkt := &rtp.Packet{Payload: []byte{0x7C, 0x05, 0x00, 0x01}}
	_, err := d.Parse(pkt)
	require.Error(t, err)
}

func TestH264ForbiddenZeroBit(t *testing.T) {
	d := NewH264Depacketizer()
	pkt := &rtp.Packet{Payload: []byte{0x85, 0x00}}
	_, err := d.Parse(pkt)
	require.Error(t, err)
}

func TestH264STAPA(t *testing.T) {
	d := NewH264Depacketizer()
	sps := []byte{0x67, 0x42, 0x00}
	pps := []byte{0x68, 0xCE}

	payload := []byte{24} // STAP-A header
	payload = append(payload, 0x00, byte(len(sps)))
	payload = append(payload, sps...)
	payload = append(payload, 0x00, byte(len(pps)))
	payload = append(payload, pps...)

	pkt := &rtp.Packet{Header: rtp.Header{Timestamp: 1000}, Payload: payload}
	au, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, au)
	assert.Contains(t, string(au.Data), string(sps))
	assert.Equal(t, sps, d.sps)
	assert.Equal(t, pps, d.pps)
}

func TestH264PrimeParameterSetsThenIDR(t *testing.T) {
	d := NewH264Depacketizer()
	sps := []byte{0x67, 0x42, 0x00}
	pps := []byte{0x68, 0xCE}
	d.PrimeParameterSets([][]byte{sps, pps})

	pkt := &rtp.Packet{Header: rtp.Header{Timestamp: 1000, Marker: true}, Payload: []byte{0x65, 0x01, 0x02}}
	au, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, au)
	assert.True(t, au.Keyframe)
	// primed SPS/PPS plus IDR should all be present, start-code delimited
	assert.Greater(t, len(au.Data), len(sps)+len(pps)+3)
}
