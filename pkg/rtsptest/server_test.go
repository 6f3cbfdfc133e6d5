package rtsptest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethan/rtsp-hls-bridge/pkg/config"
	"github.com/ethan/rtsp-hls-bridge/pkg/rtsp"
)

const sampleSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=stream\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=control:trackID=0\r\n"

func TestServerDrivesSessionThroughDescribe(t *testing.T) {
	srv, err := New(sampleSDP)
	require.NoError(t, err)
	defer srv.Close()

	cfg := config.Defaults()
	cfg.ControlURL = "rtsp://" + srv.Addr() + "/stream"
	cfg.ConnectTimeout = 2 * time.Second

	s := rtsp.NewSession(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Describe(ctx))

	require.Len(t, s.Tracks(), 1)
	assert.Equal(t, "h264", s.Tracks()[0].Codec)
	assert.Equal(t, []string{"OPTIONS", "DESCRIBE"}, srv.MethodsSeen())
}
