package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWritePlaylistMatchesScenario covers scenario S5 from spec.md §8.
func TestWritePlaylistMatchesScenario(t *testing.T) {
	dir := t.TempDir()
	w := NewWindow(dir, 10)

	require.NoError(t, w.Append(&Segment{Index: 0, DurationMs: 1000, Filename: "segment_0.ts", Data: []byte{0x47}}))
	require.NoError(t, w.Append(&Segment{Index: 1, DurationMs: 1000, Filename: "segment_1.ts", Data: []byte{0x47}}))

	require.NoError(t, WritePlaylist(dir, w, 10000))

	data, err := os.ReadFile(filepath.Join(dir, "index.m3u8"))
	require.NoError(t, err)

	expected := "#EXTM3U\n" +
		"#EXT-X-VERSION:3\n" +
		"#EXT-X-TARGETDURATION:10\n" +
		"#EXT-X-MEDIA-SEQUENCE:0\n" +
		"#EXTINF:1.0,\n" +
		"segment_0.ts\n" +
		"#EXTINF:1.0,\n" +
		"segment_1.ts\n"

	assert.Equal(t, expected, string(data))
}

func TestWritePlaylistMediaSequenceTracksOldestIndex(t *testing.T) {
	dir := t.TempDir()
	w := NewWindow(dir, 1)

	require.NoError(t, w.Append(&Segment{Index: 0, DurationMs: 1000, Filename: "segment_0.ts", Data: []byte{0x47}}))
	require.NoError(t, w.Append(&Segment{Index: 1, DurationMs: 1000, Filename: "segment_1.ts", Data: []byte{0x47}}))

	require.NoError(t, WritePlaylist(dir, w, 1000))

	data, err := os.ReadFile(filepath.Join(dir, "index.m3u8"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "#EXT-X-MEDIA-SEQUENCE:1\n")

	_, err = os.Stat(filepath.Join(dir, "segment_0.ts"))
	assert.True(t, os.IsNotExist(err), "evicted segment file should be unlinked")
}
