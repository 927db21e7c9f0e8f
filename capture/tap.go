package capture

import "context"

// Tap is one capture source owned by a Session.
type Tap interface {
	Name() string
	Start(ctx context.Context) error
	// Stop must be safe to call on a tap that never started.
	Stop() error
}

// FileTap is a tap that records into a file.
type FileTap interface {
	Tap
	// Path is empty until the output file exists.
	Path() string
}
