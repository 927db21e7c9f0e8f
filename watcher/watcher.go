// Package watcher imports audio files dropped into an inbox directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosley/minutes/audio"
	"github.com/bosley/minutes/pipeline"
	"github.com/fsnotify/fsnotify"
)

// Importer schedules processing of an existing file.
type Importer interface {
	Import(ctx context.Context, path string, duration time.Duration) (*pipeline.Run, error)
}

type Config struct {
	// Dir is the inbox directory to watch.
	Dir string

	// Settle is how long a new file must stop growing before it is
	// imported. Defaults to 2s.
	Settle time.Duration
}

// Watcher hands new WAV files in the inbox to the pipeline.
type Watcher struct {
	config   Config
	importer Importer
	watcher  *fsnotify.Watcher
	probe    func(path string) (audio.Info, error)
}

func New(cfg Config, importer Importer) (*Watcher, error) {
	if cfg.Settle <= 0 {
		cfg.Settle = 2 * time.Second
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create inbox directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		config:   cfg,
		importer: importer,
		watcher:  watcher,
		probe:    audio.Probe,
	}, nil
}

// Run watches the inbox until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.config.Dir, err)
	}

	slog.Info("Started watching inbox", "path", w.config.Dir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if err := w.handleFSEvent(ctx, event); err != nil {
				slog.Error("Failed to handle file system event",
					"error", err,
					"event", event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("File watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFSEvent(ctx context.Context, event fsnotify.Event) error {
	// Skip temporary files and non-create events
	if strings.HasSuffix(event.Name, ".tmp") || !event.Has(fsnotify.Create) {
		return nil
	}
	if !strings.EqualFold(filepath.Ext(event.Name), ".wav") {
		slog.Debug("Ignoring non-WAV file", "file", event.Name)
		return nil
	}

	if err := w.waitForSettle(ctx, event.Name); err != nil {
		return err
	}
	return w.importFile(ctx, event.Name)
}

// waitForSettle returns once the file size is unchanged for one settle period.
func (w *Watcher) waitForSettle(ctx context.Context, path string) error {
	var last int64 = -1
	for {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat new file: %w", err)
		}
		if info.Size() == last {
			return nil
		}
		last = info.Size()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.config.Settle):
		}
	}
}

func (w *Watcher) importFile(ctx context.Context, path string) error {
	info, err := w.probe(path)
	if err != nil {
		return err
	}

	run, err := w.importer.Import(ctx, path, info.Duration)
	if err != nil {
		return fmt.Errorf("failed to import %s: %w", filepath.Base(path), err)
	}

	slog.Info("Queued inbox file for processing",
		"file", filepath.Base(path),
		"duration", info.Duration,
		"run", run.ID)
	return nil
}
