package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethan/rtsp-hls-bridge/pkg/config"
)

// MultiPipeline runs one Pipeline per configured RTSP source
// concurrently, each writing into its own subdirectory of a shared
// output root: a name-keyed map of children guarded by a mutex,
// Start/Stop fanning out across all of them and waiting for every one.
// The source set is static for the run's lifetime (spec.md's sources
// are a fixed set of control URLs known at startup), so there is no
// reconciliation loop discovering or retiring sources at runtime.
type MultiPipeline struct {
	logger *slog.Logger

	mu        sync.RWMutex
	pipelines map[string]*Pipeline
}

// NewMulti builds an empty MultiPipeline. Use Add before Start.
func NewMulti(logger *slog.Logger) *MultiPipeline {
	return &MultiPipeline{
		logger:    logger,
		pipelines: make(map[string]*Pipeline),
	}
}

// Add registers one named source, rooting its segments under
// outputRoot/name, creating that subdirectory if needed. It must be
// called before Start.
func (m *MultiPipeline) Add(name string, cfg config.SessionConfig, outputRoot string) error {
	cfg.OutputDir = filepath.Join(outputRoot, name)
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir for source %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.pipelines[name] = New(&cfg, m.logger.With("source", name))
	return nil
}

// Start connects and plays every registered source concurrently. A
// failure on one source does not prevent the others from starting;
// all per-source errors are joined into the returned error.
func (m *MultiPipeline) Start(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make(chan error, len(m.pipelines))

	for name, p := range m.pipelines {
		wg.Add(1)
		go func(name string, p *Pipeline) {
			defer wg.Done()
			if err := p.Start(ctx); err != nil {
				errs <- fmt.Errorf("source %s: %w", name, err)
				return
			}
			m.logger.Info("source started", "source", name)
		}(name, p)
	}
	wg.Wait()
	close(errs)

	var joined []error
	for err := range errs {
		joined = append(joined, err)
	}
	return errors.Join(joined...)
}

// Stop tears down every source concurrently and waits for all of
// them, joining any shutdown errors.
func (m *MultiPipeline) Stop(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make(chan error, len(m.pipelines))

	for name, p := range m.pipelines {
		wg.Add(1)
		go func(name string, p *Pipeline) {
			defer wg.Done()
			if err := p.Stop(ctx); err != nil {
				errs <- fmt.Errorf("source %s: %w", name, err)
			}
		}(name, p)
	}
	wg.Wait()
	close(errs)

	var joined []error
	for err := range errs {
		joined = append(joined, err)
	}
	return errors.Join(joined...)
}

// Sources returns the registered source names.
func (m *MultiPipeline) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.pipelines))
	for name := range m.pipelines {
		names = append(names, name)
	}
	return names
}
