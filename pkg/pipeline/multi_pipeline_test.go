package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethan/rtsp-hls-bridge/pkg/config"
)

func TestMultiPipelineStartsEachSourceIntoItsOwnSubdir(t *testing.T) {
	srvA := startMockRTSPServer(t)
	defer srvA.close()
	srvB := startMockRTSPServer(t)
	defer srvB.close()

	root := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mp := NewMulti(logger)

	cfgA := config.Defaults()
	cfgA.ControlURL = "rtsp://" + srvA.addr + "/stream"
	cfgA.ConnectTimeout = 2 * time.Second
	cfgA.KeepaliveInterval = time.Hour
	cfgA.RTPBasePort = freeUDPPortPair(t)
	require.NoError(t, mp.Add("cam-a", cfgA, root))

	cfgB := config.Defaults()
	cfgB.ControlURL = "rtsp://" + srvB.addr + "/stream"
	cfgB.ConnectTimeout = 2 * time.Second
	cfgB.KeepaliveInterval = time.Hour
	cfgB.RTPBasePort = freeUDPPortPair(t)
	require.NoError(t, mp.Add("cam-b", cfgB, root))

	require.ElementsMatch(t, []string{"cam-a", "cam-b"}, mp.Sources())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, mp.Start(ctx))
	defer func() { require.NoError(t, mp.Stop(context.Background())) }()

	_, errA := os.Stat(filepath.Join(root, "cam-a"))
	require.NoError(t, errA)
	_, errB := os.Stat(filepath.Join(root, "cam-b"))
	require.NoError(t, errB)
}
