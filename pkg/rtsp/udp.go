package rtsp

import (
	"fmt"
	"net"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// bindTrackSockets opens the RTP/RTCP UDP socket pair for one track at
// client_port=port-port+1 (spec.md §4.1's P = base_port + 2*i scheme),
// binding on all interfaces since the server chooses which address to
// send to based on the SETUP response's source.
func bindTrackSockets(port int) (rtpConn, rtcpConn *net.UDPConn, err error) {
	rtpConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, nil, errs.Io(fmt.Sprintf("bind RTP port %d", port), err)
	}
	rtcpConn, err = net.ListenUDP("udp", &net.UDPAddr{Port: port + 1})
	if err != nil {
		rtpConn.Close()
		return nil, nil, errs.Io(fmt.Sprintf("bind RTCP port %d", port+1), err)
	}
	return rtpConn, rtcpConn, nil
}
