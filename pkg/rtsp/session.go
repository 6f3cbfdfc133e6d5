// Package rtsp implements the RTSP/1.0 session finite state machine
// (spec.md §4.1): CONNECT/DESCRIBE/SETUP/PLAY/PAUSE/TEARDOWN over a TCP
// control connection, with SDP-driven per-track UDP transport, so
// packets can arrive out of order and must be reordered and
// depacketized independently per track.
package rtsp

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ethan/rtsp-hls-bridge/pkg/config"
	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
	"github.com/ethan/rtsp-hls-bridge/pkg/rtp"
	"github.com/ethan/rtsp-hls-bridge/pkg/sdp"
)

// State is one node of the session FSM (spec.md §4.1).
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateDescribed
	StateSetup
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateDescribed:
		return "described"
	case StateSetup:
		return "setup"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Track is one SDP media section bound to a local UDP socket pair and
// an appropriately-primed depacketizer.
type Track struct {
	*sdp.Track
	Depacketizer rtp.Depacketizer

	LocalRTPPort int
	RTPConn      *net.UDPConn
	RTCPConn     *net.UDPConn
}

// Session drives one RTSP URL through the FSM. It owns the TCP control
// connection and, once Setup has run, every track's UDP sockets.
type Session struct {
	cfg    *config.SessionConfig
	logger *slog.Logger
	id     uuid.UUID

	wire  *wire
	state State

	url     string
	baseURL string
	tracks  []*Track

	keepaliveCancel context.CancelFunc
}

// NewSession builds a Session for cfg.ControlURL. It does not connect.
func NewSession(cfg *config.SessionConfig, logger *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		cfg:    cfg,
		logger: logger.With("run_id", id.String()),
		id:     id,
		url:    cfg.ControlURL,
		state:  StateDisconnected,
	}
}

// ID returns the run-correlation id attached to every log line this
// session emits.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the session's current FSM state.
func (s *Session) State() State { return s.state }

func (s *Session) transition(to State, legal ...State) error {
	for _, from := range legal {
		if s.state == from {
			s.state = to
			return nil
		}
	}
	return errs.ProtocolState(s.state.String(), to.String())
}

// Connect opens the TCP control connection and sends an initial
// OPTIONS to confirm the server is reachable (spec.md §4.1 connect()).
func (s *Session) Connect(ctx context.Context) error {
	if s.state != StateDisconnected {
		return errs.ProtocolState(s.state.String(), StateConnected.String())
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return errs.InvalidArgument(fmt.Sprintf("parse control URL: %v", err))
	}
	port := u.Port()
	if port == "" {
		port = "554"
	}
	addr := net.JoinHostPort(u.Hostname(), port)

	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return errs.RtspConnect(fmt.Sprintf("dial %s", addr), err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	s.wire = &wire{conn: conn, reader: bufio.NewReaderSize(conn, 65536), requestTimeout: s.cfg.ConnectTimeout}
	if u.User != nil {
		s.wire.username = u.User.Username()
		s.wire.password, _ = u.User.Password()
	}

	if err := s.transition(StateConnected, StateDisconnected); err != nil {
		return err
	}

	if err := s.options(); err != nil {
		return err
	}

	s.logger.Info("rtsp connected", "addr", addr)
	return nil
}

func (s *Session) options() error {
	req := s.wire.newRequest("OPTIONS", s.url)
	_, err := s.wire.do(req)
	return err
}

// Describe sends DESCRIBE, captures Content-Base, and parses the SDP
// body into the session's track list via pkg/sdp.
func (s *Session) Describe(ctx context.Context) error {
	if err := s.transition(StateDescribed, StateConnected); err != nil {
		return err
	}

	req := s.wire.newRequest("DESCRIBE", s.url)
	req.Header["Accept"] = "application/sdp"
	if s.wire.username != "" {
		req.Header["Authorization"] = basicAuth(s.wire.username, s.wire.password)
	}

	resp, err := s.wire.do(req)
	if err != nil {
		s.state = StateConnected
		return err
	}

	s.baseURL = resp.Header["Content-Base"]
	if s.baseURL == "" {
		s.baseURL = s.url
	}

	tracks, err := sdp.Parse(string(resp.Body), s.baseURL)
	if err != nil {
		s.state = StateConnected
		return err
	}

	for _, t := range tracks {
		s.tracks = append(s.tracks, &Track{Track: t, Depacketizer: newDepacketizer(t)})
	}

	s.logger.Info("rtsp described", "tracks", len(s.tracks), "base_url", s.baseURL)
	return nil
}

func newDepacketizer(t *sdp.Track) rtp.Depacketizer {
	var dep rtp.Depacketizer
	switch t.Codec {
	case "h264":
		d := rtp.NewH264Depacketizer()
		d.PrimeParameterSets(t.SpropParameterSets)
		dep = d
	case "h265":
		d := rtp.NewH265Depacketizer()
		d.PrimeParameterSets(t.SpropParameterSets)
		dep = d
	case "aac":
		dep = rtp.NewAACDepacketizer(t.ClockRate, t.Channels, t.SizeLength, t.IndexLength, t.IndexDeltaLength)
	}
	return dep
}

// Setup issues one SETUP per track, binding UDP sockets at
// client_port=P-P+1 with P = base_port + 2*i, and captures the first
// response's Session header as the session id (spec.md §4.1).
func (s *Session) Setup(ctx context.Context) error {
	if err := s.transition(StateSetup, StateDescribed); err != nil {
		return err
	}

	for i, t := range s.tracks {
		port := s.cfg.RTPBasePort + 2*i
		rtpConn, rtcpConn, err := bindTrackSockets(port)
		if err != nil {
			s.state = StateDescribed
			return err
		}
		t.RTPConn = rtpConn
		t.RTCPConn = rtcpConn
		t.LocalRTPPort = port

		req := s.wire.newRequest("SETUP", t.Control)
		req.Header["Transport"] = fmt.Sprintf("RTP/AVP;unicast;client_port=%d-%d", port, port+1)

		resp, err := s.wire.do(req)
		if err != nil {
			s.state = StateDescribed
			return err
		}

		if s.wire.session == "" {
			if session := resp.Header["Session"]; session != "" {
				if idx := strings.IndexByte(session, ';'); idx > 0 {
					s.wire.session = session[:idx]
				} else {
					s.wire.session = session
				}
			}
		}

		s.logger.Info("rtsp track setup", "kind", t.Kind, "codec", t.Codec, "client_port", port)
	}

	return nil
}

// Play sends PLAY with Range: npt=0.000- from Setup, or resumes from
// Paused, and starts the keepalive goroutine.
func (s *Session) Play(ctx context.Context) error {
	if s.state != StateSetup && s.state != StatePaused {
		return errs.ProtocolState(s.state.String(), StatePlaying.String())
	}
	fromPaused := s.state == StatePaused

	req := s.wire.newRequest("PLAY", s.baseURL)
	if !fromPaused {
		req.Header["Range"] = "npt=0.000-"
	}
	if _, err := s.wire.do(req); err != nil {
		return err
	}
	s.state = StatePlaying

	s.startKeepalive(ctx)
	s.logger.Info("rtsp playing")
	return nil
}

// Pause sends PAUSE, stopping the keepalive goroutine; Play can resume
// the same session afterward.
func (s *Session) Pause(ctx context.Context) error {
	if err := s.transition(StatePaused, StatePlaying); err != nil {
		return err
	}
	if s.keepaliveCancel != nil {
		s.keepaliveCancel()
		s.keepaliveCancel = nil
	}

	req := s.wire.newRequest("PAUSE", s.baseURL)
	_, err := s.wire.do(req)
	return err
}

// Teardown is idempotent: calling it from Disconnected, or calling it
// twice, is a no-op (spec.md §4.1 testable property 9).
func (s *Session) Teardown(ctx context.Context) error {
	if s.state == StateDisconnected {
		return nil
	}
	if s.keepaliveCancel != nil {
		s.keepaliveCancel()
		s.keepaliveCancel = nil
	}

	if s.wire != nil {
		req := s.wire.newRequest("TEARDOWN", s.baseURL)
		_, _ = s.wire.do(req)
		_ = s.wire.conn.Close()
	}

	for _, t := range s.tracks {
		if t.RTPConn != nil {
			_ = t.RTPConn.Close()
		}
		if t.RTCPConn != nil {
			_ = t.RTCPConn.Close()
		}
	}

	s.state = StateDisconnected
	s.logger.Info("rtsp torn down")
	return nil
}

// Tracks returns the session's parsed, depacketizer-bound tracks. The
// list is filled by Describe; each track's sockets and LocalRTPPort are
// only set once Setup has succeeded.
func (s *Session) Tracks() []*Track { return s.tracks }

func (s *Session) startKeepalive(ctx context.Context) {
	keepaliveCtx, cancel := context.WithCancel(ctx)
	s.keepaliveCancel = cancel

	go func() {
		ticker := time.NewTicker(s.cfg.KeepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-keepaliveCtx.Done():
				return
			case <-ticker.C:
				req := s.wire.newRequest("OPTIONS", s.url)
				if _, err := s.wire.do(req); err != nil {
					s.logger.Warn("keepalive failed", "error", err)
					return
				}
			}
		}
	}()
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
