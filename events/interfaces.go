package events

import (
	"context"
)

// EventI is a listener for one named in-process event.
type EventI interface {
	// Name is the event this listener handles.
	Name() string

	// Validate rejects payloads the listener cannot handle before Execute runs.
	Validate(ctx context.Context, payload any) error

	// Execute reacts to the event.
	Execute(ctx context.Context, payload any) error
}

// Manager delivers events to the listeners registered for their name.
type Manager interface {
	// Add registers evt and returns a function that removes it again.
	Add(evt EventI) (remove func())
	// Listeners reports how many listeners are registered for name.
	Listeners(name string) int
	// Emit runs every listener for name synchronously, in registration order.
	Emit(ctx context.Context, name string, payload any) error
}
