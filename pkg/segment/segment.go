// Package segment cuts a stream of muxed TS bytes into keyframe-aligned
// files and maintains a sliding-window HLS playlist over them.
package segment

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// Segment is one finalized TS file in the live window (spec.md §3).
type Segment struct {
	Index      uint32
	DurationMs int64
	Filename   string
	Data       []byte
}

// Window holds the live segments (oldest-first) and evicts down to
// maxSegments, unlinking the evicted file and never reusing its index.
type Window struct {
	dir         string
	maxSegments int
	segments    []*Segment
}

func NewWindow(dir string, maxSegments int) *Window {
	return &Window{dir: dir, maxSegments: maxSegments}
}

// Segments returns the current live window, oldest first.
func (w *Window) Segments() []*Segment {
	return w.segments
}

// Append writes seg's data to disk, adds it to the window, and evicts
// the oldest entry (unlinking its file) if the window has grown past
// maxSegments.
func (w *Window) Append(seg *Segment) error {
	path := filepath.Join(w.dir, seg.Filename)
	if err := os.WriteFile(path, seg.Data, 0o644); err != nil {
		return errs.Io(fmt.Sprintf("write segment %s", seg.Filename), err)
	}

	w.segments = append(w.segments, seg)

	for len(w.segments) > w.maxSegments {
		oldest := w.segments[0]
		w.segments = w.segments[1:]
		oldPath := filepath.Join(w.dir, oldest.Filename)
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return errs.Io(fmt.Sprintf("evict segment %s", oldest.Filename), err)
		}
	}

	return nil
}

// MaxDurationMs returns the longest duration currently held in the
// window, or 0 if the window is empty.
func (w *Window) MaxDurationMs() int64 {
	var max int64
	for _, s := range w.segments {
		if s.DurationMs > max {
			max = s.DurationMs
		}
	}
	return max
}
