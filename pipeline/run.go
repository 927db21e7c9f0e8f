package pipeline

import (
	"context"
	"sync"

	"github.com/bosley/minutes/capture"
	"github.com/google/uuid"
)

// Run is one background pass from a recorded file to stored records.
type Run struct {
	ID        uuid.UUID
	Recording capture.Recording

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	err       error
	meetingID int64
}

func newRun(parent context.Context, rec capture.Recording) *Run {
	ctx, cancel := context.WithCancel(parent)
	return &Run{
		ID:        uuid.New(),
		Recording: rec,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Cancel aborts the run. Nothing is stored for a cancelled run.
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err is the run's failure, if any. Only meaningful after Done.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// MeetingID is the stored meeting's ID, or zero if the run did not succeed.
func (r *Run) MeetingID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meetingID
}

// Wait blocks until the run finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Run) finish(meetingID int64, err error) {
	r.mu.Lock()
	r.meetingID = meetingID
	r.err = err
	r.mu.Unlock()
	r.cancel()
	close(r.done)
}
