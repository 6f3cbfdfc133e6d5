package rtp

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pktSeq(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{Version: 2, SequenceNumber: seq}}
}

func TestReordererInOrder(t *testing.T) {
	r := NewReorderer(nil)
	out := r.Push(pktSeq(100))
	require.Len(t, out, 1)
	assert.Equal(t, uint16(100), out[0].SequenceNumber)

	out = r.Push(pktSeq(101))
	require.Len(t, out, 1)
	assert.Equal(t, uint16(101), out[0].SequenceNumber)
}

func TestReordererHoldsAndReleasesOutOfOrder(t *testing.T) {
	r := NewReorderer(nil)
	require.Len(t, r.Push(pktSeq(100)), 1)

	out := r.Push(pktSeq(102))
	assert.Empty(t, out)

	out = r.Push(pktSeq(101))
	require.Len(t, out, 2)
	assert.Equal(t, uint16(101), out[0].SequenceNumber)
	assert.Equal(t, uint16(102), out[1].SequenceNumber)
}

func TestReordererDropsDuplicateAndLate(t *testing.T) {
	r := NewReorderer(nil)
	require.Len(t, r.Push(pktSeq(100)), 1)
	require.Len(t, r.Push(pktSeq(101)), 1)

	out := r.Push(pktSeq(101))
	assert.Empty(t, out)
	_, dropped, _ := r.Stats()
	assert.Equal(t, int64(1), dropped)

	out = r.Push(pktSeq(50))
	assert.Empty(t, out)
}

func TestReordererWrapsModularly(t *testing.T) {
	r := NewReorderer(nil)
	require.Len(t, r.Push(pktSeq(65534)), 1)
	require.Len(t, r.Push(pktSeq(65535)), 1)
	out := r.Push(pktSeq(0))
	require.Len(t, out, 1)
	assert.Equal(t, uint16(0), out[0].SequenceNumber)
}

func TestReordererForceDeliversStaleHole(t *testing.T) {
	r := NewReorderer(nil)
	require.Len(t, r.Push(pktSeq(0)), 1)

	for i := uint16(2); i <= reorderWindow+2; i++ {
		r.Push(pktSeq(i))
	}

	_, _, forced := r.Stats()
	assert.Greater(t, forced, int64(0))
}
