// Package errs defines the error taxonomy shared by every stage of the
// RTSP-to-HLS pipeline, so callers can dispatch on Kind() instead of
// matching error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the abstract category of a pipeline error.
type Kind int

const (
	KindUnknown Kind = iota
	KindRtspConnect
	KindRtspTimeout
	KindRtspStatus
	KindProtocolState
	KindSdpParse
	KindRtpPacket
	KindMediaParse
	KindTsEncoding
	KindSegmentation
	KindPlaylistUpdate
	KindIo
	KindInvalidArgument
	KindOutOfMemory
)

func (k Kind) String() string {
	switch k {
	case KindRtspConnect:
		return "RtspConnect"
	case KindRtspTimeout:
		return "RtspTimeout"
	case KindRtspStatus:
		return "RtspStatus"
	case KindProtocolState:
		return "ProtocolState"
	case KindSdpParse:
		return "SdpParseError"
	case KindRtpPacket:
		return "RtpPacketError"
	case KindMediaParse:
		return "MediaParseError"
	case KindTsEncoding:
		return "TsEncodingError"
	case KindSegmentation:
		return "SegmentationError"
	case KindPlaylistUpdate:
		return "PlaylistUpdateError"
	case KindIo:
		return "IoError"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindOutOfMemory:
		return "OutOfMemory"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried through the pipeline. It wraps
// an underlying cause (if any), the same way a fmt.Errorf("%w") chain
// does, while still exposing a stable Kind for dispatch.
type Error struct {
	kind    Kind
	msg     string
	cause   error
	Code    int    // RtspStatus: status code
	Phrase  string // RtspStatus: reason phrase
	Codec   string // MediaParseError: which depacketizer
	From    string // ProtocolState: originating state
	To      string // ProtocolState: attempted state
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// Kind returns the abstract error category.
func (e *Error) Kind() Kind { return e.kind }

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

func RtspConnect(msg string, cause error) error { return newErr(KindRtspConnect, msg, cause) }
func RtspTimeout(msg string, cause error) error { return newErr(KindRtspTimeout, msg, cause) }

func RtspStatus(code int, phrase string) error {
	e := newErr(KindRtspStatus, fmt.Sprintf("%d %s", code, phrase), nil)
	e.Code = code
	e.Phrase = phrase
	return e
}

func ProtocolState(from, to string) error {
	e := newErr(KindProtocolState, fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	e.From = from
	e.To = to
	return e
}

func SdpParse(msg string, cause error) error { return newErr(KindSdpParse, msg, cause) }
func RtpPacket(msg string, cause error) error { return newErr(KindRtpPacket, msg, cause) }

func MediaParse(codec, msg string) error {
	e := newErr(KindMediaParse, msg, nil)
	e.Codec = codec
	return e
}

func TsEncoding(msg string, cause error) error     { return newErr(KindTsEncoding, msg, cause) }
func Segmentation(msg string, cause error) error   { return newErr(KindSegmentation, msg, cause) }
func PlaylistUpdate(msg string, cause error) error { return newErr(KindPlaylistUpdate, msg, cause) }
func Io(msg string, cause error) error             { return newErr(KindIo, msg, cause) }
func InvalidArgument(msg string) error             { return newErr(KindInvalidArgument, msg, nil) }
func OutOfMemory(msg string) error                 { return newErr(KindOutOfMemory, msg, nil) }

// KindOf extracts the Kind from err, or KindUnknown if err is not one of
// ours (or is nil).
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}
