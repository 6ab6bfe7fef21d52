// Package ingest feeds bot events from external transports onto the
// event bus.
package ingest

import (
	"context"

	"github.com/sureshkrishnan-v/botreport/internal/event"
)

// Source defines the interface for event ingest backends.
// Each source decodes events from its transport and publishes them
// onto the bus.
type Source interface {
	// Name returns a unique identifier for this source.
	Name() string

	// Start connects and begins consuming. It returns once consumption
	// is running; delivery continues in the background.
	Start(ctx context.Context) error

	// Stop drains and disconnects.
	Stop(ctx context.Context) error
}

// Publisher receives decoded events. *event.Bus implements it.
type Publisher interface {
	Publish(e *event.Event)
}
