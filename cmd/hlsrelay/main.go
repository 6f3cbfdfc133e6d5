// Command hlsrelay bridges one RTSP camera source into a sliding HLS
// window served over plain HTTP. It is the thin external-interfaces
// layer spec.md §6 calls out as "deliberately out of scope" for the
// core: flag parsing, signal handling, directory creation, and exit
// code mapping.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethan/rtsp-hls-bridge/pkg/config"
	"github.com/ethan/rtsp-hls-bridge/pkg/errs"
	"github.com/ethan/rtsp-hls-bridge/pkg/httpserver"
	"github.com/ethan/rtsp-hls-bridge/pkg/logger"
	"github.com/ethan/rtsp-hls-bridge/pkg/pipeline"
)

// Exit codes per spec.md §6.
const (
	exitOK          = 0
	exitOther       = 1
	exitBadArgs     = 2
	exitRTSPFailure = 3
	exitIOFailure   = 4
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("hlsrelay", flag.ContinueOnError)
	cfg := config.Defaults()
	cfgFlags := config.RegisterFlags(fs, &cfg)
	logFlags := logger.RegisterFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s <rtsp_url> [output_dir=./segments] [port=8080]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "RTSP camera -> HLS bridge\n\nOptions:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		return exitBadArgs
	}

	// spec.md §6's positional surface (program <url> [dir] [port]) is
	// layered under the flags: a flag wins if both are given, matching
	// applyOverlay's "explicit beats implicit" precedence in pkg/config.
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	applyPositional(fs.Args(), &cfg, explicit)

	sessionCfg, err := cfgFlags.Resolve(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error resolving configuration: %v\n", err)
		return exitBadArgs
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		return exitBadArgs
	}
	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		return exitOther
	}
	defer log.Close()
	logger.SetDefault(log)

	log.Info("starting rtsp-hls-bridge", "log_config", logFlags.String())

	if err := os.MkdirAll(sessionCfg.OutputDir, 0o755); err != nil {
		log.Error("failed to create output directory", "dir", sessionCfg.OutputDir, "error", err)
		return exitIOFailure
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	pl := pipeline.New(sessionCfg, log.Logger)
	if err := pl.Start(ctx); err != nil {
		log.Error("failed to start pipeline", "error", err, "kind", errs.KindOf(err))
		return exitCodeFor(err)
	}

	httpSrv := httpserver.New(sessionCfg.OutputDir, log.Logger)
	if err := httpSrv.Start(ctx, sessionCfg.HTTPAddr); err != nil {
		log.Error("failed to start http server", "error", err)
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		pl.Stop(stopCtx)
		stopCancel()
		return exitIOFailure
	}

	<-ctx.Done()

	log.Info("shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	httpErr := httpSrv.Stop(stopCtx)
	pipelineErr := pl.Stop(stopCtx)

	if httpErr != nil {
		log.Error("http server shutdown error", "error", httpErr)
		return exitIOFailure
	}
	if pipelineErr != nil {
		log.Error("pipeline shutdown error", "error", pipelineErr, "kind", errs.KindOf(pipelineErr))
		return exitCodeFor(pipelineErr)
	}

	log.Info("clean shutdown")
	return exitOK
}

// applyPositional maps spec.md §6's plain positional surface onto cfg,
// for callers that never touch a flag. explicit holds the flag names
// the caller actually set on the command line; a positional value never
// overrides one of those.
func applyPositional(positional []string, cfg *config.SessionConfig, explicit map[string]bool) {
	if len(positional) > 0 && !explicit["url"] {
		cfg.ControlURL = positional[0]
	}
	if len(positional) > 1 && !explicit["output-dir"] {
		cfg.OutputDir = positional[1]
	}
	if len(positional) > 2 && !explicit["http-addr"] {
		cfg.HTTPAddr = ":" + positional[2]
	}
}

// exitCodeFor maps a pipeline failure's error kind onto spec.md §6's
// exit code set: 3 for anything that happened establishing the RTSP
// session, 4 for filesystem/segmentation failures, 2 for an invalid
// argument, 1 otherwise.
func exitCodeFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindRtspConnect, errs.KindRtspTimeout, errs.KindRtspStatus, errs.KindProtocolState, errs.KindSdpParse:
		return exitRTSPFailure
	case errs.KindIo, errs.KindSegmentation, errs.KindPlaylistUpdate, errs.KindTsEncoding:
		return exitIOFailure
	case errs.KindInvalidArgument:
		return exitBadArgs
	default:
		return exitOther
	}
}
