// Package notifier defines the notification port used for build events
// and human-approval prompts.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier has no transport
// configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // "info", "success", "warning", "error"
	Source  string `json:"source"` // e.g. "pipeline.built", "gate.ask"
}

// Notifier delivers notifications to a human-visible channel.
type Notifier interface {
	// Name identifies the transport (e.g. "discord").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
