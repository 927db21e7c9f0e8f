// Package pipeline drives a meeting from recording through transcription
// and summarization into the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/minutes/capture"
	"github.com/bosley/minutes/inference"
	"github.com/bosley/minutes/store"
)

var (
	// ErrPermissionDenied is returned when microphone or system audio
	// access is missing.
	ErrPermissionDenied = errors.New("microphone and system audio access are both required")

	// ErrBusy is returned when the overlap policy refuses new work.
	ErrBusy = errors.New("a meeting is still being processed")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("orchestrator is closed")
)

const (
	notificationTitle  = "Meeting Processed"
	defaultRecentLimit = 5
	queueSize          = 32
)

// Permissions reports whether capture is allowed.
type Permissions interface {
	HasMicrophoneAccess(ctx context.Context) bool
	HasCaptureAccess(ctx context.Context) bool
}

// Notifier delivers a best-effort user notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Recorder is the capture side the orchestrator drives. *capture.Session
// implements it.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (capture.Recording, error)
	State() capture.State
}

// Store is the subset of *store.Store the pipeline writes through.
type Store interface {
	CommitMeeting(ctx context.Context, m *store.Meeting, t *store.Transcript, s *store.Summary) error
	FetchRecentMeetings(ctx context.Context, limit int) ([]store.Meeting, error)
}

type Config struct {
	// NewRecorder builds a recorder. It is called again after a recorder
	// fails. onTick receives the elapsed recording time.
	NewRecorder func(onTick func(time.Duration)) Recorder

	Transcriber inference.Transcriber
	Summarizer  inference.Summarizer
	Store       Store
	Permissions Permissions
	Notifier    Notifier

	Policy      OverlapPolicy
	RecentLimit int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator coordinates capture and the background pipeline runs.
type Orchestrator struct {
	cfg   Config
	state *stateLoop

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	recorder Recorder
	inFlight int
	runs     map[*Run]struct{}
	started  bool
	closed   bool

	queue   chan *Run
	runsWG  sync.WaitGroup
	workers sync.WaitGroup
}

// New builds an orchestrator and starts its state loop.
func New(cfg Config) *Orchestrator {
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = defaultRecentLimit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:    cfg,
		state:  newStateLoop(),
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[*Run]struct{}),
		queue:  make(chan *Run, queueSize),
	}
	go o.state.run(ctx)
	return o
}

// Start launches the queue worker and loads the recent meetings.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if !o.started {
		o.started = true
		o.workers.Add(1)
		go o.worker()
	}
	o.mu.Unlock()

	if err := o.Refresh(ctx); err != nil {
		return fmt.Errorf("failed to load recent meetings: %w", err)
	}
	slog.Info("Pipeline started", "policy", o.cfg.Policy, "recentLimit", o.cfg.RecentLimit)
	return nil
}

// Close stops an active recording without processing it, cancels every
// run and waits for them to finish.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	rec := o.recorder
	for run := range o.runs {
		run.Cancel()
	}
	close(o.queue)
	started := o.started
	o.mu.Unlock()

	if !started {
		for run := range o.queue {
			o.execute(run)
		}
	}

	if rec != nil && rec.State() == capture.Active {
		if recording, err := rec.Stop(); err != nil {
			slog.Error("Failed to stop recording on shutdown", "error", err)
		} else {
			slog.Warn("Recording stopped on shutdown and left unprocessed", "file", recording.Path)
		}
	}

	done := make(chan struct{})
	go func() {
		o.runsWG.Wait()
		o.workers.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("shutdown timed out")
	}

	o.cancel()
	<-o.state.done
	return err
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot(ctx context.Context) State {
	return o.state.snapshot(ctx)
}

// Subscribe streams state snapshots, starting with the current one. The
// returned func ends the subscription.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	return o.state.subscribe()
}

// StartRecording begins a capture if permissions and the overlap policy
// allow it.
func (o *Orchestrator) StartRecording(ctx context.Context) error {
	mic := o.cfg.Permissions.HasMicrophoneAccess(ctx)
	system := o.cfg.Permissions.HasCaptureAccess(ctx)
	if !mic || !system {
		slog.Warn("Recording refused", "microphone", mic, "systemAudio", system)
		return ErrPermissionDenied
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if _, err := o.admit(requestNew); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.recorder == nil || o.recorder.State() == capture.Failed {
		o.recorder = o.cfg.NewRecorder(o.onTick)
	}
	rec := o.recorder
	o.mu.Unlock()

	if err := rec.Start(ctx); err != nil {
		return err
	}

	o.state.update(func(s *State) {
		s.Recording = true
		s.Elapsed = 0
	})
	return nil
}

// StopRecording ends the capture and hands the file to a background run.
// It returns without waiting for transcription or summarization.
func (o *Orchestrator) StopRecording(ctx context.Context) (*Run, error) {
	o.mu.Lock()
	rec := o.recorder
	o.mu.Unlock()

	if rec == nil {
		return nil, capture.ErrNotRecording
	}

	recording, err := rec.Stop()
	if err != nil {
		if !errors.Is(err, capture.ErrNotRecording) {
			o.state.update(func(s *State) {
				s.Recording = false
				s.Elapsed = 0
			})
		}
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	stopped := func(s *State) {
		s.Recording = false
		s.Elapsed = 0
	}
	if o.closed {
		o.state.update(stopped)
		return nil, ErrClosed
	}
	how, err := o.admit(requestHandoff)
	if err != nil {
		o.state.update(stopped)
		return nil, err
	}
	return o.schedule(recording, how, stopped)
}

// Import processes an existing audio file as if it had just been recorded.
func (o *Orchestrator) Import(ctx context.Context, path string, duration time.Duration) (*Run, error) {
	recording := capture.Recording{
		Path:      path,
		StartedAt: o.cfg.Clock().Add(-duration),
		Duration:  int(duration / time.Second),
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	how, err := o.admit(requestNew)
	if err != nil {
		return nil, err
	}
	return o.schedule(recording, how, nil)
}

// Refresh reloads the recent meetings shown to observers.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	recent, err := o.cfg.Store.FetchRecentMeetings(ctx, o.cfg.RecentLimit)
	if err != nil {
		return err
	}
	o.state.update(func(s *State) {
		s.Recent = recent
	})
	return nil
}

func (o *Orchestrator) onTick(elapsed time.Duration) {
	o.state.update(func(s *State) {
		if s.Recording {
			s.Elapsed = elapsed
		}
	})
}

// schedule registers a run and dispatches it. also is applied in the same
// state update that marks the run in flight. Callers hold o.mu.
func (o *Orchestrator) schedule(recording capture.Recording, how dispatch, also func(*State)) (*Run, error) {
	run := newRun(o.ctx, recording)

	switch how {
	case dispatchQueued:
		select {
		case o.queue <- run:
		default:
			run.Cancel()
			if also != nil {
				o.state.update(also)
			}
			return nil, fmt.Errorf("job queue is full")
		}
	default:
		o.runsWG.Add(1)
		go func() {
			defer o.runsWG.Done()
			o.execute(run)
		}()
	}

	o.runs[run] = struct{}{}
	o.inFlight++
	inFlight := o.inFlight
	o.state.update(func(s *State) {
		if also != nil {
			also(s)
		}
		s.InFlight = inFlight
		s.Processing = true
	})

	slog.Info("Scheduled meeting processing",
		"run", run.ID,
		"file", recording.Path,
		"duration", recording.Duration,
		"queued", how == dispatchQueued)
	return run, nil
}

// worker drains queued runs one at a time.
func (o *Orchestrator) worker() {
	slog.Debug("Worker starting")
	defer func() {
		slog.Debug("Worker shutting down")
		o.workers.Done()
	}()

	for run := range o.queue {
		o.execute(run)
	}
}

func (o *Orchestrator) execute(run *Run) {
	meetingID, err := o.process(run)
	if err != nil {
		slog.Error("Failed to process meeting",
			"error", err,
			"run", run.ID,
			"file", run.Recording.Path)
	}

	o.mu.Lock()
	delete(o.runs, run)
	o.inFlight--
	inFlight := o.inFlight
	o.mu.Unlock()

	o.state.update(func(s *State) {
		s.InFlight = inFlight
		s.Processing = inFlight > 0
	})

	run.finish(meetingID, err)
}
