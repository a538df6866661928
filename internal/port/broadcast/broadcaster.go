// Package broadcast defines the port for announcing accepted renders to live-update listeners.
package broadcast

import (
	"context"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
)

// Broadcaster delivers an UpdateEvent to every currently connected listener.
// Implementations must not block on listener progress.
type Broadcaster interface {
	Publish(ctx context.Context, ev render.UpdateEvent)
}

// Multi fans one Publish out to several broadcasters, in order.
type Multi []Broadcaster

// Publish implements Broadcaster.
func (m Multi) Publish(ctx context.Context, ev render.UpdateEvent) {
	for _, b := range m {
		if b != nil {
			b.Publish(ctx, ev)
		}
	}
}

// Nop discards events.
type Nop struct{}

// Publish implements Broadcaster.
func (Nop) Publish(context.Context, render.UpdateEvent) {}
