// Package pipeline wires one RTSP session into one HLS output directory:
// a control worker driving the RTSP FSM, one UDP receiver and one
// depacketizer worker per track, and a single muxer/segmenter worker
// that drains every track's access units onto disk (spec.md §5's
// five-worker concurrency model), all under one context.CancelFunc and
// sync.WaitGroup.
package pipeline

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	pionrtp "github.com/pion/rtp"
	"golang.org/x/time/rate"

	"github.com/ethan/rtsp-hls-bridge/pkg/config"
	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
	"github.com/ethan/rtsp-hls-bridge/pkg/rtp"
	"github.com/ethan/rtsp-hls-bridge/pkg/rtsp"
	"github.com/ethan/rtsp-hls-bridge/pkg/segment"
)

// rawQueueDepth is the per-track SPSC queue capacity between the UDP
// receiver worker and the depacketizer worker (spec.md §5 "suggested
// 256").
const rawQueueDepth = 256

// auQueueDepth is the single MPSC queue capacity every depacketizer
// worker feeds and the muxer/segmenter worker drains.
const auQueueDepth = 256

// Pipeline runs exactly one RTSP-to-HLS relay: one control connection,
// its tracks, and one output directory.
type Pipeline struct {
	cfg    *config.SessionConfig
	logger *slog.Logger

	session *rtsp.Session
	seg     *segment.Segmenter

	auCh chan *rtp.AccessUnit

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	errLimiter *rate.Limiter
}

// New builds a Pipeline from cfg. It does not connect until Start is
// called.
func New(cfg *config.SessionConfig, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		auCh:       make(chan *rtp.AccessUnit, auQueueDepth),
		errLimiter: rate.NewLimiter(rate.Limit(100), 100),
	}
}

// Start connects the RTSP session, sets up and plays every track, and
// launches the receiver, depacketizer, and muxer/segmenter workers.
// It returns once PLAY has been acknowledged; streaming continues in
// background goroutines until Stop is called or a worker hits an
// unrecoverable I/O error.
func (p *Pipeline) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running.Store(true)

	p.session = rtsp.NewSession(p.cfg, p.logger)
	if err := p.session.Connect(runCtx); err != nil {
		return err
	}
	if err := p.session.Describe(runCtx); err != nil {
		return err
	}
	if err := p.session.Setup(runCtx); err != nil {
		return err
	}

	videoCodec := "h264"
	for _, t := range p.session.Tracks() {
		if t.Kind == "video" {
			videoCodec = t.Codec
		}
	}
	p.seg = segment.NewSegmenter(p.cfg.OutputDir, p.cfg.MaxSegments, p.cfg.SegmentDuration.Milliseconds(), videoCodec, p.logger)
	p.seg.OnCut = func(seg *segment.Segment, windowDepth int) {
		SegmentsWritten.Inc()
		SegmentBytes.Add(float64(len(seg.Data)))
		WindowDepth.Set(float64(windowDepth))
	}

	if err := p.session.Play(runCtx); err != nil {
		return err
	}

	for _, t := range p.session.Tracks() {
		rawCh := make(chan *pionrtp.Packet, rawQueueDepth)

		p.wg.Add(1)
		go p.receiveLoop(runCtx, t, rawCh)

		p.wg.Add(1)
		go p.depacketizeLoop(runCtx, t, rawCh)
	}

	p.wg.Add(1)
	go p.muxLoop(runCtx)

	return nil
}

// receiveLoop is worker type 2 (spec.md §5): blocking recvfrom on one
// track's UDP socket, pushed onto a bounded per-track queue. A packet
// that cannot be unmarshalled, or a queue that is momentarily full, is
// dropped and counted rather than blocking the socket read.
func (p *Pipeline) receiveLoop(ctx context.Context, t *rtsp.Track, rawCh chan<- *pionrtp.Packet) {
	defer p.wg.Done()
	defer close(rawCh)

	buf := make([]byte, 65536)
	for p.running.Load() {
		_ = t.RTPConn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := t.RTPConn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if p.running.Load() {
				p.logThrottled("udp read error", "track", t.Kind, "error", err)
			}
			return
		}

		pkt := &pionrtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			rtpDropped(string(t.Kind))
			p.logThrottled("malformed rtp packet", "track", t.Kind, "error", err)
			continue
		}

		select {
		case rawCh <- pkt:
		case <-ctx.Done():
			return
		default:
			rtpDropped(string(t.Kind))
			p.logThrottled("raw queue full, dropping packet", "track", t.Kind)
		}
	}
}

// depacketizeLoop is worker type 3: drains one track's raw RTP queue
// through reordering and depacketization, emitting AccessUnits onto
// the shared queue the muxer drains.
func (p *Pipeline) depacketizeLoop(ctx context.Context, t *rtsp.Track, rawCh <-chan *pionrtp.Packet) {
	defer p.wg.Done()

	recv := rtp.NewReceiver(t.Depacketizer, p.auCh, p.logger)
	recv.OnError = func(err error) {
		DepacketizerErrors.WithLabelValues(t.Codec).Inc()
	}
	for pkt := range rawCh {
		select {
		case <-ctx.Done():
			return
		default:
		}
		recv.HandlePacket(ctx, pkt)
	}
}

// muxLoop is worker type 4: the single thread that owns the in-progress
// segment buffer and the live window.
func (p *Pipeline) muxLoop(ctx context.Context) {
	defer p.wg.Done()

	var lastPTS uint64
	for {
		select {
		case <-ctx.Done():
			p.flush(lastPTS)
			return
		case au, ok := <-p.auCh:
			if !ok {
				p.flush(lastPTS)
				return
			}
			lastPTS = au.PTS90k
			p.writeAU(au)
		}
	}
}

func (p *Pipeline) writeAU(au *rtp.AccessUnit) {
	var err error
	if au.Kind == rtp.KindVideo {
		err = p.seg.WriteVideo(au)
	} else {
		p.seg.WriteAudio(au)
	}
	if err != nil {
		if errs.KindOf(err) == errs.KindPlaylistUpdate {
			PlaylistErrors.Inc()
		} else {
			MuxErrors.Inc()
		}
		p.logger.Error("mux/segment error", "error", err, "kind", errs.KindOf(err))
	}
}

func (p *Pipeline) flush(lastPTS uint64) {
	if err := p.seg.Flush(lastPTS); err != nil {
		p.logger.Warn("flush on shutdown failed", "error", err)
	}
}

// Stop signals every worker to exit, tears down the RTSP session, and
// waits for all goroutines to finish.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.running.Store(false)
	if p.cancel != nil {
		p.cancel()
	}

	var teardownErr error
	if p.session != nil {
		teardownErr = p.session.Teardown(ctx)
	}

	p.wg.Wait()
	return teardownErr
}

func (p *Pipeline) logThrottled(msg string, args ...any) {
	if p.errLimiter.Allow() {
		p.logger.Warn(msg, args...)
	}
}

func rtpDropped(kind string) {
	RTPPacketsDropped.WithLabelValues(kind).Inc()
}
