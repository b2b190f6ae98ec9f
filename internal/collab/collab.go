// Package collab defines narrow ports the core depends on but never
// implements concretely: capture, chat, and outbound-event collaborators.
// The core dispatches through these interfaces so it never imports a
// concrete chat/capture/webhook package.
package collab

import "context"

// CaptureSource produces the input URL the fan-out coordinator feeds into
// each encoder supervisor. The core treats it as opaque.
type CaptureSource interface {
	ProduceInputURL(ctx context.Context) (string, error)
}

// EventObserver receives named, arbitrarily-shaped events — typically
// lifecycle notifications the core doesn't otherwise care who reads.
type EventObserver interface {
	SendEvent(ctx context.Context, name string, payload any) error
}

// ChatConnector manages the lifecycle of an external chat connection. The
// core never interprets chat content; it only needs to know a connector is
// alive.
type ChatConnector interface {
	Connect(ctx context.Context) error
	Close() error
}
