// Package renderer defines the port for turning circuit markup into an image.
package renderer

import (
	"context"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
)

// Renderer runs the external document toolchain for one piece of markup.
//
// A rejected input yields an error wrapping domain.ErrCompileFailed; any other
// error is an infrastructure failure. Implementations must be safe for
// concurrent use and must not share intermediate state between calls.
type Renderer interface {
	Render(ctx context.Context, code string) (*render.Result, error)
}
