package broadcast_test

import (
	"context"
	"testing"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/port/broadcast"
)

type recorder struct {
	got []render.UpdateEvent
}

func (r *recorder) Publish(_ context.Context, ev render.UpdateEvent) {
	r.got = append(r.got, ev)
}

func TestMultiPublishesToAll(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := broadcast.Multi{a, nil, b, broadcast.Nop{}}

	m.Publish(context.Background(), render.UpdateEvent{Code: "x"})

	if len(a.got) != 1 || len(b.got) != 1 {
		t.Fatalf("expected one event each, got %d and %d", len(a.got), len(b.got))
	}
	if a.got[0].Code != "x" {
		t.Errorf("expected code x, got %q", a.got[0].Code)
	}
}
