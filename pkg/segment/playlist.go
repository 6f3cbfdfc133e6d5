package segment

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// WritePlaylist renders the live window as an HLS media playlist and
// publishes it to <dir>/index.m3u8 via write-temp-then-rename, so a
// concurrent reader never observes a partially written file. A failed
// publish is retried once before the error is returned.
//
// target_duration is the greater of the configured segment duration and
// the longest segment actually produced (HLS requires EXT-X-TARGETDURATION
// to upper-bound every EXTINF entry).
func WritePlaylist(dir string, w *Window, configuredTargetMs int64) error {
	segs := w.Segments()

	targetMs := configuredTargetMs
	if max := w.MaxDurationMs(); max > targetMs {
		targetMs = max
	}
	targetSeconds := int(math.Ceil(float64(targetMs) / 1000))

	mediaSequence := uint32(0)
	if len(segs) > 0 {
		mediaSequence = segs[0].Index
	}

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetSeconds)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", mediaSequence)

	for _, s := range segs {
		fmt.Fprintf(&b, "#EXTINF:%.1f,\n", float64(s.DurationMs)/1000)
		b.WriteString(s.Filename)
		b.WriteString("\n")
	}

	path := filepath.Join(dir, "index.m3u8")
	data := []byte(b.String())
	if err := writeAtomic(path, data); err != nil {
		return writeAtomic(path, data)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errs.PlaylistUpdate(fmt.Sprintf("write temp playlist %s", tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errs.PlaylistUpdate(fmt.Sprintf("rename playlist into place %s", path), err)
	}
	return nil
}
