package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRecording is returned by Stop when the session is not Active.
	ErrNotRecording = errors.New("not currently recording")

	// ErrNoFile is returned by Stop when the microphone tap never produced a file.
	ErrNoFile = errors.New("no audio file produced")

	// ErrBusy is returned when a start or stop is already in progress.
	ErrBusy = errors.New("capture session is busy")

	// ErrFailed is returned when a Failed session is used again.
	ErrFailed = errors.New("capture session has failed")
)

// CaptureError reports a tap that could not start or stop.
type CaptureError struct {
	Tap string
	Op  string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s failed to %s: %v", e.Tap, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
