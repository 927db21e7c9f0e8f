// Package notify delivers user notifications.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/gen2brain/beeep"
)

// Notifier is anything that can show a notification.
type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Desktop shows notifications through the OS notification service.
type Desktop struct {
	// Icon is an optional path to an icon image.
	Icon string
}

func (d Desktop) Notify(ctx context.Context, title, body string) error {
	if err := beeep.Notify(title, body, d.Icon); err != nil {
		return fmt.Errorf("failed to show desktop notification: %w", err)
	}
	return nil
}

// Multi sends every notification to all of its notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
