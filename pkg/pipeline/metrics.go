package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors the HTTP file server exposes at
// /metrics (spec.md's ambient observability add-on, grounded on
// snapetech-plexTuner wiring client_golang into its media/IPTV HTTP
// surface the same way). One instance is shared by every Pipeline in a
// MultiPipeline; registering the same collector twice would panic, so
// these live at package scope behind sync.Once-free MustRegister calls
// guarded by an init().
var (
	SegmentsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsrelay_segments_written_total",
		Help: "HLS segments written to the live window.",
	})
	SegmentBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsrelay_segment_bytes_total",
		Help: "Total bytes written across all segments.",
	})
	DepacketizerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_depacketizer_errors_total",
		Help: "Depacketizer parse errors, by codec.",
	}, []string{"codec"})
	MuxErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsrelay_mux_errors_total",
		Help: "MPEG-TS muxing/segmentation errors.",
	})
	PlaylistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hlsrelay_playlist_errors_total",
		Help: "Playlist publish errors.",
	})
	WindowDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hlsrelay_window_depth",
		Help: "Segments currently held in the live window.",
	})
	RTPPacketsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsrelay_rtp_packets_dropped_total",
		Help: "RTP packets dropped before reordering (malformed or receive queue full), by track kind.",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(
		SegmentsWritten,
		SegmentBytes,
		DepacketizerErrors,
		MuxErrors,
		PlaylistErrors,
		WindowDepth,
		RTPPacketsDropped,
	)
}
