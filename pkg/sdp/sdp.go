// Package sdp parses the Session Description Protocol body returned by an
// RTSP DESCRIBE response into the track table the rest of the pipeline
// consumes. It implements exactly the line grammar spec.md §4.1 names —
// m=, a=rtpmap:, a=control:, a=fmtp: — and ignores everything else.
package sdp

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// MediaKind is the media type of an m= line.
type MediaKind string

const (
	KindVideo MediaKind = "video"
	KindAudio MediaKind = "audio"
)

// Track describes one media section of an SDP body.
type Track struct {
	Kind        MediaKind
	PayloadType uint8
	Codec       string // "h264", "h265", "aac", or the raw rtpmap token
	ClockRate   int
	Channels    int    // AAC channel count, default 2
	Control     string // resolved absolute control URL

	// AAC fmtp (RFC 3640), defaults 13/3/3 per spec.md §4.1
	SizeLength       int
	IndexLength      int
	IndexDeltaLength int
	Config           string // fmtp config= hex string, carries audio object type

	// H.264/H.265 fmtp sprop-parameter-sets, decoded into raw NAL units
	// (no start code, no length prefix) in the order they appeared.
	SpropParameterSets [][]byte
}

// Parse parses an SDP body and returns one Track per m= line, in order.
// control URLs are resolved relative to base (the Content-Base from the
// DESCRIBE response, or the request URL if none was sent).
func Parse(body string, base string) ([]*Track, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errs.SdpParse("invalid base URL", err)
	}

	var tracks []*Track
	var current *Track

	for _, raw := range strings.Split(body, "\n") {
		line := strings.TrimRight(raw, "\r")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "m="):
			t, err := parseMediaLine(line)
			if err != nil {
				return nil, err
			}
			tracks = append(tracks, t)
			current = t

		case strings.HasPrefix(line, "a=rtpmap:"):
			if current == nil {
				continue
			}
			applyRtpmap(current, strings.TrimPrefix(line, "a=rtpmap:"))

		case strings.HasPrefix(line, "a=control:"):
			if current == nil {
				continue
			}
			current.Control = resolveControl(baseURL, strings.TrimPrefix(line, "a=control:"))

		case strings.HasPrefix(line, "a=fmtp:"):
			if current == nil {
				continue
			}
			if err := applyFmtp(current, strings.TrimPrefix(line, "a=fmtp:")); err != nil {
				return nil, err
			}
		}
	}

	if len(tracks) == 0 {
		return nil, errs.SdpParse("no media sections found", nil)
	}

	for _, t := range tracks {
		if t.Control == "" {
			t.Control = baseURL.String()
		}
		if t.Kind == KindAudio {
			if t.SizeLength == 0 {
				t.SizeLength = 13
			}
			if t.IndexLength == 0 {
				t.IndexLength = 3
			}
			if t.IndexDeltaLength == 0 {
				t.IndexDeltaLength = 3
			}
			if t.Channels == 0 {
				t.Channels = 2
				// AudioSpecificConfig: 5-bit object type, 4-bit
				// frequency index, then 4-bit channel configuration.
				if cfg, err := hex.DecodeString(t.Config); err == nil && len(cfg) >= 2 {
					if ch := int(cfg[1]>>3) & 0x0F; ch > 0 {
						t.Channels = ch
					}
				}
			}
		}
	}

	if err := checkTrackCounts(tracks); err != nil {
		return nil, err
	}

	return tracks, nil
}

// checkTrackCounts enforces the data model's per-session invariant
// (spec.md §3): exactly one video track and at most one audio track.
func checkTrackCounts(tracks []*Track) error {
	video := 0
	audio := 0
	for _, t := range tracks {
		switch t.Kind {
		case KindVideo:
			video++
		case KindAudio:
			audio++
		}
	}
	if video != 1 {
		return errs.SdpParse("session must have exactly one video track, found "+strconv.Itoa(video), nil)
	}
	if audio > 1 {
		return errs.SdpParse("session must have at most one audio track, found "+strconv.Itoa(audio), nil)
	}
	return nil
}

func parseMediaLine(line string) (*Track, error) {
	// m=<kind> <port> RTP/AVP <pt>
	fields := strings.Fields(line[2:])
	if len(fields) < 4 {
		return nil, errs.SdpParse("malformed m= line: "+line, nil)
	}

	var kind MediaKind
	switch fields[0] {
	case "video":
		kind = KindVideo
	case "audio":
		kind = KindAudio
	default:
		return nil, errs.SdpParse("unsupported media kind: "+fields[0], nil)
	}

	ptVal, err := strconv.Atoi(fields[3])
	if err != nil {
		return nil, errs.SdpParse("malformed payload type in m= line", err)
	}

	return &Track{Kind: kind, PayloadType: uint8(ptVal)}, nil
}

func applyRtpmap(t *Track, rest string) {
	// <pt> <codec>/<rate>[/<channels>]
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return
	}
	parts := strings.Split(fields[1], "/")
	t.Codec = normalizeCodec(parts[0])
	if len(parts) >= 2 {
		if rate, err := strconv.Atoi(parts[1]); err == nil {
			t.ClockRate = rate
		}
	}
	if len(parts) >= 3 {
		if ch, err := strconv.Atoi(parts[2]); err == nil {
			t.Channels = ch
		}
	}
}

func normalizeCodec(name string) string {
	switch strings.ToUpper(name) {
	case "H264":
		return "h264"
	case "H265":
		return "h265"
	case "MPEG4-GENERIC", "AAC":
		return "aac"
	default:
		return strings.ToLower(name)
	}
}

func resolveControl(base *url.URL, token string) string {
	if strings.HasPrefix(token, "rtsp://") || strings.HasPrefix(token, "rtsps://") {
		return token
	}
	if token == "*" {
		return base.String()
	}
	u := *base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(token, "/")
	return u.String()
}

// applyFmtp parses "key=value;key=value" parameters for a=fmtp: lines.
// fmtp lines are "<pt> key=value;key=value;...".
func applyFmtp(t *Track, rest string) error {
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) < 2 {
		return nil
	}
	params := fields[1]

	for _, kv := range strings.Split(params, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(kv[:idx])
		value := strings.TrimSpace(kv[idx+1:])

		switch strings.ToLower(key) {
		case "sizelength":
			t.SizeLength, _ = strconv.Atoi(value)
		case "indexlength":
			t.IndexLength, _ = strconv.Atoi(value)
		case "indexdeltalength":
			t.IndexDeltaLength, _ = strconv.Atoi(value)
		case "config":
			t.Config = value
		case "sprop-parameter-sets":
			sets, err := decodeSpropParameterSets(value)
			if err != nil {
				return errs.SdpParse("invalid sprop-parameter-sets", err)
			}
			t.SpropParameterSets = sets
		}
	}
	return nil
}

func decodeSpropParameterSets(value string) ([][]byte, error) {
	var sets [][]byte
	for _, encoded := range strings.Split(value, ",") {
		if encoded == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		sets = append(sets, decoded)
	}
	return sets, nil
}
