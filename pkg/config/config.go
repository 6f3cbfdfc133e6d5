// Package config loads the SessionConfig a pipeline run needs: the
// RTSP control URL, connection and keepalive timing, the local RTP
// port base, and the HLS segmenting window. Values come from CLI
// flags with an optional YAML overlay; flags win over YAML, YAML wins
// over built-in defaults.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
)

// SessionConfig is the whole-process configuration for one RTSP-to-HLS
// pipeline run (spec.md §3).
type SessionConfig struct {
	ControlURL        string        `yaml:"control_url"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	RTPBasePort       int           `yaml:"rtp_base_port"`
	SegmentDuration   time.Duration `yaml:"segment_duration"`
	MaxSegments       int           `yaml:"max_segments"`
	OutputDir         string        `yaml:"output_dir"`
	HTTPAddr          string        `yaml:"http_addr"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
}

const (
	DefaultConnectTimeout    = 5 * time.Second
	DefaultKeepaliveInterval = 30 * time.Second
	DefaultRTPBasePort       = 6970
	DefaultSegmentDuration   = 6 * time.Second
	DefaultMaxSegments       = 6
	DefaultOutputDir         = "./segments"
	DefaultHTTPAddr          = ":8080"
)

// Defaults returns a SessionConfig populated with the built-in
// defaults, before any YAML overlay or flag parsing is applied.
func Defaults() SessionConfig {
	return SessionConfig{
		ConnectTimeout:    DefaultConnectTimeout,
		KeepaliveInterval: DefaultKeepaliveInterval,
		RTPBasePort:       DefaultRTPBasePort,
		SegmentDuration:   DefaultSegmentDuration,
		MaxSegments:       DefaultMaxSegments,
		OutputDir:         DefaultOutputDir,
		HTTPAddr:          DefaultHTTPAddr,
	}
}

// Flags binds a SessionConfig's fields to a flag.FlagSet. The FlagSet
// is handed back to the caller for parsing so it composes with callers
// that add their own flags too.
type Flags struct {
	cfg        *SessionConfig
	configPath *string
}

// RegisterFlags registers one flag per SessionConfig field on fs,
// seeded with cfg's current values as defaults, plus a -config flag
// naming an optional YAML overlay file. It returns a Flags handle;
// call Resolve after fs.Parse to apply the overlay and finish
// populating cfg.
func RegisterFlags(fs *flag.FlagSet, cfg *SessionConfig) *Flags {
	fs.StringVar(&cfg.ControlURL, "url", cfg.ControlURL, "RTSP control URL, e.g. rtsp://host:554/stream")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "RTSP connect timeout")
	fs.DurationVar(&cfg.KeepaliveInterval, "keepalive-interval", cfg.KeepaliveInterval, "RTSP keepalive (OPTIONS) interval")
	fs.IntVar(&cfg.RTPBasePort, "rtp-base-port", cfg.RTPBasePort, "local UDP port base for RTP/RTCP sockets")
	fs.DurationVar(&cfg.SegmentDuration, "segment-duration", cfg.SegmentDuration, "target HLS segment duration")
	fs.IntVar(&cfg.MaxSegments, "max-segments", cfg.MaxSegments, "segments kept in the live window")
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "directory segments and the playlist are written to")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "address the segment/playlist HTTP server listens on")
	fs.StringVar(&cfg.Username, "username", cfg.Username, "RTSP Basic auth username, if required")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "RTSP Basic auth password, if required")

	configPath := fs.String("config", "", "optional YAML file overlaying these flags' defaults")

	return &Flags{cfg: cfg, configPath: configPath}
}

// Resolve applies the YAML overlay named by -config (if any) to the
// fields the caller did not set explicitly on the command line, then
// validates the result. Call this after fs.Parse.
func (f *Flags) Resolve(fs *flag.FlagSet) (*SessionConfig, error) {
	if *f.configPath != "" {
		overlay, err := loadYAML(*f.configPath)
		if err != nil {
			return nil, err
		}
		applyOverlay(f.cfg, overlay, fs)
	}

	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}
	return f.cfg, nil
}

func loadYAML(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Io(fmt.Sprintf("read config file %q", path), err)
	}
	var overlay SessionConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, errs.InvalidArgument(fmt.Sprintf("parse config file %q: %v", path, err))
	}
	return &overlay, nil
}

// applyOverlay copies each non-zero overlay field onto cfg, but only
// for flags the caller left at their default (flags explicitly set on
// the command line always win over the YAML overlay).
func applyOverlay(cfg *SessionConfig, overlay *SessionConfig, fs *flag.FlagSet) {
	set := map[string]bool{}
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if overlay.ControlURL != "" && !set["url"] {
		cfg.ControlURL = overlay.ControlURL
	}
	if overlay.ConnectTimeout != 0 && !set["connect-timeout"] {
		cfg.ConnectTimeout = overlay.ConnectTimeout
	}
	if overlay.KeepaliveInterval != 0 && !set["keepalive-interval"] {
		cfg.KeepaliveInterval = overlay.KeepaliveInterval
	}
	if overlay.RTPBasePort != 0 && !set["rtp-base-port"] {
		cfg.RTPBasePort = overlay.RTPBasePort
	}
	if overlay.SegmentDuration != 0 && !set["segment-duration"] {
		cfg.SegmentDuration = overlay.SegmentDuration
	}
	if overlay.MaxSegments != 0 && !set["max-segments"] {
		cfg.MaxSegments = overlay.MaxSegments
	}
	if overlay.OutputDir != "" && !set["output-dir"] {
		cfg.OutputDir = overlay.OutputDir
	}
	if overlay.HTTPAddr != "" && !set["http-addr"] {
		cfg.HTTPAddr = overlay.HTTPAddr
	}
	if overlay.Username != "" && !set["username"] {
		cfg.Username = overlay.Username
	}
	if overlay.Password != "" && !set["password"] {
		cfg.Password = overlay.Password
	}
}

// Validate enforces the data-model invariants from spec.md §3:
// segment_duration >= 1000ms and max_segments >= 1, plus the baseline
// sanity checks needed before a pipeline can start.
func (c *SessionConfig) Validate() error {
	if c.ControlURL == "" {
		return errs.InvalidArgument("control URL is required")
	}
	if c.SegmentDuration < time.Second {
		return errs.InvalidArgument("segment duration must be at least 1000ms")
	}
	if c.MaxSegments < 1 {
		return errs.InvalidArgument("max segments must be at least 1")
	}
	if c.RTPBasePort <= 0 || c.RTPBasePort > 65535-8 {
		return errs.InvalidArgument("rtp base port must leave room for track socket pairs")
	}
	if c.ConnectTimeout <= 0 {
		return errs.InvalidArgument("connect timeout must be positive")
	}
	return nil
}
