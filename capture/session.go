// Package capture records one meeting at a time from two concurrently
// running sources: a system-audio tap and a microphone tap.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// State of a Session.
type State int

const (
	Idle State = iota
	Starting
	Active
	Stopping
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config for a Session.
type Config struct {
	// Dir receives one artifact per recording.
	Dir string

	// System builds the system-audio tap for a recording.
	System func() Tap

	// Microphone builds the microphone tap writing to path.
	Microphone func(path string) FileTap

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Tick is how often the advisory elapsed time is refreshed. Defaults to 1s.
	Tick time.Duration

	// OnTick, when set, receives every refreshed elapsed time.
	OnTick func(time.Duration)
}

// Recording is the finished artifact of one capture cycle.
type Recording struct {
	Path      string
	StartedAt time.Time
	// Duration in whole seconds, measured at stop time.
	Duration int
}

// Session owns both taps for the length of a recording. A Session that
// reaches Failed cannot be reused.
type Session struct {
	cfg Config

	mu         sync.Mutex
	state      State
	system     Tap
	mic        FileTap
	startedAt  time.Time
	elapsed    time.Duration
	stopTicker context.CancelFunc
	tickerDone chan struct{}
}

// NewSession returns an Idle session.
func NewSession(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Session{cfg: cfg}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed is display-only; Stop computes the stored duration itself.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Start brings up both taps in parallel. ctx bounds the start only, not the
// recording. Start on an Active session does nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Active:
		s.mu.Unlock()
		return nil
	case Starting, Stopping:
		s.mu.Unlock()
		return ErrBusy
	case Failed:
		s.mu.Unlock()
		return ErrFailed
	}
	s.state = Starting
	s.mu.Unlock()

	startedAt := s.cfg.Clock()

	path, err := artifactPath(s.cfg.Dir, startedAt)
	if err != nil {
		s.fail()
		return &CaptureError{Tap: "microphone", Op: "start", Err: err}
	}

	system := s.cfg.System()
	mic := s.cfg.Microphone(path)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := system.Start(gctx); err != nil {
			return &CaptureError{Tap: system.Name(), Op: "start", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := mic.Start(gctx); err != nil {
			return &CaptureError{Tap: mic.Name(), Op: "start", Err: err}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		stopQuietly(system)
		stopQuietly(mic)
		if p := mic.Path(); p != "" {
			os.Remove(p)
		}
		s.fail()
		slog.Error("Failed to start capture", "error", err)
		return err
	}

	tickCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.system = system
	s.mic = mic
	s.startedAt = startedAt
	s.elapsed = 0
	s.stopTicker = cancel
	s.tickerDone = done
	s.state = Active
	s.mu.Unlock()

	go s.tick(tickCtx, done)

	slog.Info("Capture started", "file", path, "system", system.Name(), "microphone", mic.Name())
	return nil
}

// Stop ends the recording and returns the artifact. Outside Active it fails
// with ErrNotRecording and changes nothing.
func (s *Session) Stop() (Recording, error) {
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return Recording{}, ErrNotRecording
	}
	s.state = Stopping
	system, mic := s.system, s.mic
	startedAt := s.startedAt
	cancel, done := s.stopTicker, s.tickerDone
	s.mu.Unlock()

	cancel()
	<-done

	stoppedAt := s.cfg.Clock()

	var g errgroup.Group
	g.Go(func() error {
		if err := system.Stop(); err != nil {
			return &CaptureError{Tap: system.Name(), Op: "stop", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := mic.Stop(); err != nil {
			return &CaptureError{Tap: mic.Name(), Op: "stop", Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.fail()
		slog.Error("Failed to stop capture", "error", err)
		return Recording{}, err
	}

	path := mic.Path()
	if path == "" {
		s.fail()
		return Recording{}, ErrNoFile
	}

	duration := int(stoppedAt.Sub(startedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	s.mu.Lock()
	s.system = nil
	s.mic = nil
	s.elapsed = 0
	s.state = Idle
	s.mu.Unlock()

	slog.Info("Capture stopped", "file", path, "duration", duration)
	return Recording{Path: path, StartedAt: startedAt, Duration: duration}, nil
}

func (s *Session) tick(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.elapsed = s.cfg.Clock().Sub(s.startedAt)
			elapsed := s.elapsed
			s.mu.Unlock()

			if s.cfg.OnTick != nil {
				s.cfg.OnTick(elapsed)
			}
		}
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	s.state = Failed
	s.system = nil
	s.mic = nil
	s.mu.Unlock()
}

func stopQuietly(t Tap) {
	if err := t.Stop(); err != nil {
		slog.Warn("Failed to tear down tap", "tap", t.Name(), "error", err)
	}
}

// artifactPath names the file after the start instant, adding a numeric
// suffix if that name is taken.
func artifactPath(dir string, startedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}

	base := fmt.Sprintf("meeting_%d", startedAt.Unix())
	for i := 0; i < 1000; i++ {
		name := base + ".wav"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.wav", base, i)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free file name for %s", base)
}
