package sdp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTwoTracks covers scenario S6 from spec.md §8.
func TestParseTwoTracks(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=stream\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"a=control:track1\r\n" +
		"m=audio 0 RTP/AVP 97\r\n" +
		"a=rtpmap:97 AAC/48000\r\n" +
		"a=control:track2\r\n"

	tracks, err := Parse(body, "rtsp://example.com/stream/")
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	assert.Equal(t, KindVideo, tracks[0].Kind)
	assert.Equal(t, "h264", tracks[0].Codec)
	assert.Equal(t, 90000, tracks[0].ClockRate)
	assert.Equal(t, uint8(96), tracks[0].PayloadType)
	assert.Equal(t, "rtsp://example.com/stream/track1", tracks[0].Control)

	assert.Equal(t, KindAudio, tracks[1].Kind)
	assert.Equal(t, "aac", tracks[1].Codec)
	assert.Equal(t, 48000, tracks[1].ClockRate)
	assert.Equal(t, uint8(97), tracks[1].PayloadType)
	assert.Equal(t, "rtsp://example.com/stream/track2", tracks[1].Control)
}

func TestParseAacFmtpDefaults(t *testing.T) {
	body := "v=0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"m=audio 0 RTP/AVP 97\r\n" +
		"a=rtpmap:97 MPEG4-GENERIC/44100/2\r\n" +
		"a=fmtp:97 streamtype=5; profile-level-id=1; mode=AAC-hbr; config=1210; SBR-enabled=0\r\n"

	tracks, err := Parse(body, "rtsp://example.com/stream/")
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	tr := tracks[1]
	assert.Equal(t, 13, tr.SizeLength)
	assert.Equal(t, 3, tr.IndexLength)
	assert.Equal(t, 3, tr.IndexDeltaLength)
	assert.Equal(t, "1210", tr.Config)
	assert.Equal(t, 2, tr.Channels)
}

func TestParseSpropParameterSets(t *testing.T) {
	body := "v=0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		// base64("\x67\x42") = "Z0I=", base64("\x68\xce") = "aM4="
		"a=fmtp:96 packetization-mode=1;sprop-parameter-sets=Z0I=,aM4=\r\n"

	tracks, err := Parse(body, "rtsp://example.com/stream/")
	require.NoError(t, err)
	require.Len(t, tracks[0].SpropParameterSets, 2)
	assert.Equal(t, []byte{0x67, 0x42}, tracks[0].SpropParameterSets[0])
	assert.Equal(t, []byte{0x68, 0xce}, tracks[0].SpropParameterSets[1])
}

func TestParseMissingMediaIsError(t *testing.T) {
	_, err := Parse("v=0\r\ns=no media\r\n", "rtsp://example.com/")
	require.Error(t, err)
}

func TestParseTwoVideoTracksIsError(t *testing.T) {
	body := "v=0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"m=video 0 RTP/AVP 98\r\n" +
		"a=rtpmap:98 H265/90000\r\n"

	_, err := Parse(body, "rtsp://example.com/stream/")
	require.Error(t, err)
}

func TestParseTwoAudioTracksIsError(t *testing.T) {
	body := "v=0\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"m=audio 0 RTP/AVP 97\r\n" +
		"a=rtpmap:97 AAC/48000\r\n" +
		"m=audio 0 RTP/AVP 99\r\n" +
		"a=rtpmap:99 AAC/48000\r\n"

	_, err := Parse(body, "rtsp://example.com/stream/")
	require.Error(t, err)
}
