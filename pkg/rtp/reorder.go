package rtp

import (
	"context"
	"log/slog"

	"github.com/pion/rtp"
)

const reorderWindow = 64

// Reorderer holds up to reorderWindow out-of-order RTP packets for one
// track and releases them to a consumer strictly in sequence-number
// order (spec.md §4.2). Sequence comparison uses RFC 1982 modular
// arithmetic so 16-bit wraparound never looks like a jump backwards.
type Reorderer struct {
	logger *slog.Logger

	haveFirst     bool
	lastDelivered uint16
	buffer        map[uint16]*rtp.Packet

	delivered int64
	dropped   int64
	forced    int64
}

func NewReorderer(logger *slog.Logger) *Reorderer {
	return &Reorderer{
		logger: logger,
		buffer: make(map[uint16]*rtp.Packet, reorderWindow),
	}
}

// seqGreater reports whether a is later than b in RFC 1982 serial order.
func seqGreater(a, b uint16) bool {
	return int16(a-b) > 0
}

// seqDiff returns the forward modular distance from b to a.
func seqDiff(a, b uint16) uint16 {
	return a - b
}

// Push admits one packet into the window and returns the packets that
// become ready for delivery, in order. Duplicates and any packet at or
// before lastDelivered (including late arrivals for a gap that was
// already force-delivered past) are dropped and counted.
func (r *Reorderer) Push(pkt *rtp.Packet) []*rtp.Packet {
	seq := pkt.SequenceNumber

	if !r.haveFirst {
		r.haveFirst = true
		r.lastDelivered = seq - 1
	}

	if !seqGreater(seq, r.lastDelivered) {
		// seq <= lastDelivered: either a duplicate or arriving too late.
		r.dropped++
		if r.logger != nil {
			r.logger.Debug("rtp packet dropped as duplicate/late", "seq", seq, "last_delivered", r.lastDelivered)
		}
		return nil
	}

	if seqDiff(seq, r.lastDelivered) > reorderWindow*4 {
		// Implausibly far ahead: treat as a stream reset rather than
		// stalling the whole window waiting to "catch up".
		r.lastDelivered = seq - 1
		r.buffer = make(map[uint16]*rtp.Packet, reorderWindow)
	}

	if _, dup := r.buffer[seq]; dup {
		r.dropped++
		return nil
	}
	r.buffer[seq] = pkt

	var out []*rtp.Packet
	for {
		next := r.lastDelivered + 1
		p, ok := r.buffer[next]
		if !ok {
			break
		}
		delete(r.buffer, next)
		out = append(out, p)
		r.lastDelivered = next
		r.delivered++
	}

	if len(r.buffer) > reorderWindow {
		out = append(out, r.forceDeliverOldest()...)
	}

	return out
}

// forceDeliverOldest is called when a persistent hole has grown the
// buffer past its window: the oldest held packet is handed to the
// consumer out of strict sequence, and lastDelivered jumps past the
// gap so the window can keep sliding forward.
func (r *Reorderer) forceDeliverOldest() []*rtp.Packet {
	var oldestSeq uint16
	var oldest *rtp.Packet
	bestDist := uint16(0)
	for seq, pkt := range r.buffer {
		dist := seqDiff(seq, r.lastDelivered)
		if oldest == nil || dist < bestDist {
			oldestSeq, oldest, bestDist = seq, pkt, dist
		}
	}
	if oldest == nil {
		return nil
	}

	delete(r.buffer, oldestSeq)
	r.forced++
	r.lastDelivered = oldestSeq
	if r.logger != nil {
		r.logger.Warn("rtp reorder gap force-delivered", "seq", oldestSeq)
	}

	var out []*rtp.Packet
	out = append(out, oldest)
	for {
		next := r.lastDelivered + 1
		p, ok := r.buffer[next]
		if !ok {
			break
		}
		delete(r.buffer, next)
		out = append(out, p)
		r.lastDelivered = next
		r.delivered++
	}
	return out
}

// Stats returns running counters for observability.
func (r *Reorderer) Stats() (delivered, dropped, forced int64) {
	return r.delivered, r.dropped, r.forced
}

// Receiver feeds every RTP packet handed to HandlePacket for one track
// through a Reorderer and forwards in-order packets to a Depacketizer,
// emitting AccessUnits on out. It owns no socket; the caller reads and
// unmarshals the datagrams.
type Receiver struct {
	dep       Depacketizer
	reorderer *Reorderer
	logger    *slog.Logger
	out       chan<- *AccessUnit

	// OnError, if set, is called for every depacketizer error (after
	// Reset has already been invoked), letting callers like
	// pkg/pipeline drive an error-rate metric without this package
	// depending on Prometheus.
	OnError func(err error)
}

func NewReceiver(dep Depacketizer, out chan<- *AccessUnit, logger *slog.Logger) *Receiver {
	return &Receiver{
		dep:       dep,
		reorderer: NewReorderer(logger),
		logger:    logger,
		out:       out,
	}
}

// HandlePacket feeds one parsed RTP packet through reordering and
// depacketization, emitting zero or more AccessUnits to out. It never
// blocks forever: a full out channel drops the unit (spec.md §5
// producer-side backpressure policy) rather than stalling the receiver.
func (recv *Receiver) HandlePacket(ctx context.Context, pkt *rtp.Packet) {
	if pkt.Version != 2 {
		return
	}
	for _, ready := range recv.reorderer.Push(pkt) {
		au, err := recv.dep.Parse(ready)
		if err != nil {
			if recv.logger != nil {
				recv.logger.Warn("depacketizer error, resetting", "error", err)
			}
			recv.dep.Reset()
			if recv.OnError != nil {
				recv.OnError(err)
			}
			continue
		}
		if au == nil {
			continue
		}
		recv.emit(ctx, au)

		if drainer, ok := recv.dep.(interface{ Drain() []*AccessUnit }); ok {
			for _, extra := range drainer.Drain() {
				recv.emit(ctx, extra)
			}
		}
	}
}

func (recv *Receiver) emit(ctx context.Context, au *AccessUnit) {
	select {
	case recv.out <- au:
	case <-ctx.Done():
	default:
		if recv.logger != nil {
			recv.logger.Warn("access unit dropped, consumer channel full")
		}
	}
}
