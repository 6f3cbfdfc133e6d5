package segment

import (
	"fmt"
	"log/slog"

	"github.com/ethan/rtsp-hls-bridge/pkg/mpegts"
	"github.com/ethan/rtsp-hls-bridge/pkg/rtp"
)

// Segmenter applies the keyframe-gated cut policy (spec.md §4.7) over
// a stream of access units from one video and (optionally) one audio
// track, writing finished segments into a sliding Window and refreshing
// the playlist after every window mutation.
type Segmenter struct {
	window            *Window
	dir               string
	segmentDurationMs int64
	videoCodec        string
	logger            *slog.Logger

	mux          *mpegts.Muxer
	nextIndex    uint32
	segmentStart uint64 // PTS90k of the first AU in the open segment
	haveSegment  bool

	// OnCut, if set, is called synchronously after each segment is
	// appended to the window and the playlist republished. Used by
	// pkg/pipeline to drive its segment/byte/window-depth metrics
	// without this package needing to know about Prometheus.
	OnCut func(seg *Segment, windowDepth int)
}

func NewSegmenter(dir string, maxSegments int, segmentDurationMs int64, videoCodec string, logger *slog.Logger) *Segmenter {
	return &Segmenter{
		window:            NewWindow(dir, maxSegments),
		dir:               dir,
		segmentDurationMs: segmentDurationMs,
		videoCodec:        videoCodec,
		logger:            logger,
		mux:               mpegts.NewMuxer(videoCodec),
	}
}

// WriteVideo feeds one video access unit through the cut policy: a new
// segment opens on the first keyframe once the open segment has run at
// least segmentDurationMs (measured via PTS delta, 90 kHz -> ms is
// delta/90).
func (s *Segmenter) WriteVideo(au *rtp.AccessUnit) error {
	if s.haveSegment && au.Keyframe {
		elapsedMs := int64(au.PTS90k-s.segmentStart) / 90
		if elapsedMs >= s.segmentDurationMs {
			if err := s.cut(elapsedMs); err != nil {
				return err
			}
		}
	}

	if !s.haveSegment {
		if !au.Keyframe {
			// Cannot start a segment except on a keyframe; drop until one arrives.
			if s.logger != nil {
				s.logger.Debug("dropping video AU before first keyframe")
			}
			return nil
		}
		s.haveSegment = true
		s.segmentStart = au.PTS90k
	}

	s.mux.WriteAccessUnit(au)
	return nil
}

// WriteAudio buffers an audio access unit into the currently open
// segment. Audio arriving before any segment has opened is discarded,
// since a segment must begin with video to be playable.
func (s *Segmenter) WriteAudio(au *rtp.AccessUnit) {
	if !s.haveSegment {
		if s.logger != nil {
			s.logger.Debug("dropping audio AU before first video keyframe")
		}
		return
	}
	s.mux.WriteAccessUnit(au)
}

// cut finalizes the in-progress muxer buffer as a segment, appends it
// to the window, writes the file, and republishes the playlist.
func (s *Segmenter) cut(durationMs int64) error {
	seg := &Segment{
		Index:      s.nextIndex,
		DurationMs: durationMs,
		Filename:   segmentFilename(s.nextIndex),
		Data:       s.mux.Bytes(),
	}
	s.nextIndex++
	s.mux.Reset()
	s.haveSegment = false

	if err := s.window.Append(seg); err != nil {
		return err
	}
	if err := WritePlaylist(s.dir, s.window, s.segmentDurationMs); err != nil {
		return err
	}
	if s.OnCut != nil {
		s.OnCut(seg, len(s.window.Segments()))
	}
	return nil
}

// Flush force-closes whatever segment is currently open (e.g. on
// shutdown), using its elapsed duration so far rather than waiting for
// the next keyframe.
func (s *Segmenter) Flush(lastPTS90k uint64) error {
	if !s.haveSegment {
		return nil
	}
	elapsedMs := int64(lastPTS90k-s.segmentStart) / 90
	return s.cut(elapsedMs)
}

func segmentFilename(index uint32) string {
	return fmt.Sprintf("segment_%d.ts", index)
}
