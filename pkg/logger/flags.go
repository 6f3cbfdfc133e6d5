package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel  string
	LogFormat string
	LogFile   string
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./hlsrelay -url rtsp://cam.local/stream

  Enable DEBUG level:
    ./hlsrelay --log-level debug
    ./hlsrelay -l debug

  Log to file:
    ./hlsrelay --log-file relay.log
    ./hlsrelay -o relay.log

  JSON format for structured logging:
    ./hlsrelay --log-format json -o relay.json

  Production logging (WARN level, JSON to file):
    ./hlsrelay -l warn --log-format json -o production.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	return strings.Join(parts, " ")
}
