package rtp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAACSingleAU covers scenario S4 from spec.md §8.
func TestAACSingleAU(t *testing.T) {
	d := NewAACDepacketizer(48000, 2, 0, 0, 0)

	pkt := &rtp.Packet{
		Header:  rtp.Header{Timestamp: 48000},
		Payload: []byte{0x00, 0x10, 0x00, 0x20, 0x21, 0x12, 0x23, 0x34},
	}

	au, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, au)
	require.Len(t, au.Data, adtsHeaderLength+4)
	assert.Equal(t, []byte{0x21, 0x12, 0x23, 0x34}, au.Data[adtsHeaderLength:])
	assert.Equal(t, uint64(48000)*90000/48000, au.PTS90k)
	assert.Empty(t, d.Drain())
}

func TestAACTimestampRebase(t *testing.T) {
	d := NewAACDepacketizer(44100, 2, 0, 0, 0)
	pts := d.rebaseTimestamp(44100)
	assert.Equal(t, uint64(90000), pts)
}

func TestAACMultipleAUsQueueOnDrain(t *testing.T) {
	d := NewAACDepacketizer(48000, 2, 0, 0, 0)

	// Two AU headers (size=2 each, index/delta=0), two 2-byte AUs.
	payload := []byte{0x00, 0x20} // AU-headers-length = 32 bits = 4 bytes
	payload = append(payload, 0x00, 0x10, 0x00, 0x10)
	payload = append(payload, 0xAA, 0xBB, 0xCC, 0xDD)

	pkt := &rtp.Packet{Header: rtp.Header{Timestamp: 0}, Payload: payload}
	first, err := d.Parse(pkt)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, []byte{0xAA, 0xBB}, first.Data[adtsHeaderLength:])

	rest := d.Drain()
	require.Len(t, rest, 1)
	assert.Equal(t, []byte{0xCC, 0xDD}, rest[0].Data[adtsHeaderLength:])
}

func TestAACPayloadTooShortIsError(t *testing.T) {
	d := NewAACDepacketizer(48000, 2, 0, 0, 0)
	_, err := d.Parse(&rtp.Packet{Payload: []byte{0x00}})
	require.Error(t, err)
}
