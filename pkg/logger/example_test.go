package logger_test

import (
	"os"

	"github.com/ethan/rtsp-hls-bridge/pkg/logger"
)

// Example showing basic logger usage
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("pipeline started", "control_url", "rtsp://cam.local/stream")
	log.Warn("keepalive response slow", "elapsed_ms", 1800)
	log.Error("rtsp connect failed", "error", "connection timeout")
}

// Example showing command-line flags integration
func ExampleFlags() {
	// In main.go:
	// fs := flag.NewFlagSet("hlsrelay", flag.ExitOnError)
	// logFlags := logger.RegisterFlags(fs)
	// fs.Parse(os.Args[1:])
	//
	// logConfig, _ := logFlags.ToConfig()
	// log, _ := logger.New(logConfig)
	// defer log.Close()

	println("See cmd/hlsrelay/main.go for the complete example")
}

// Example showing JSON format output
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "app.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("app.json")

	log.Info("segment written",
		"filename", "segment_12.ts",
		"duration_ms", 6000,
		"bytes", 188000)
}
