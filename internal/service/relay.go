package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/logger"
	"github.com/Strob0t/CircuitForge/internal/port/broadcast"
	"github.com/Strob0t/CircuitForge/internal/port/messagequeue"
)

// UpdateRelay fans successful-render events out to other replicas through a
// message queue and feeds their events into the local broadcaster.
//
// As a Broadcaster it only publishes to the queue; wire it next to the local
// hub with broadcast.Multi. Events carrying this relay's own origin are
// dropped on receipt, so nothing is delivered locally twice.
type UpdateRelay struct {
	queue   messagequeue.Queue
	subject string
	origin  string
	local   broadcast.Broadcaster
}

// NewUpdateRelay creates a relay. local receives events from other replicas.
func NewUpdateRelay(q messagequeue.Queue, subject string, local broadcast.Broadcaster) *UpdateRelay {
	if subject == "" {
		subject = messagequeue.DefaultUpdatesSubject
	}
	return &UpdateRelay{
		queue:   q,
		subject: subject,
		origin:  uuid.NewString(),
		local:   local,
	}
}

// Origin returns the id stamped on every outgoing message.
func (r *UpdateRelay) Origin() string { return r.origin }

// Publish implements broadcast.Broadcaster. Queue failures are logged; the
// local delivery path is unaffected.
func (r *UpdateRelay) Publish(ctx context.Context, ev render.UpdateEvent) {
	data, err := json.Marshal(messagequeue.UpdatePayload{Origin: r.origin, Code: ev.Code})
	if err != nil {
		slog.Error("relay encode failed", append(logger.Attrs(ctx), "error", err)...)
		return
	}
	if err := r.queue.Publish(ctx, r.subject, data); err != nil {
		slog.Warn("relay publish failed", append(logger.Attrs(ctx), "subject", r.subject, "error", err)...)
	}
}

// Start subscribes to the updates subject. The returned function stops it.
func (r *UpdateRelay) Start(ctx context.Context) (func(), error) {
	stop, err := r.queue.Subscribe(ctx, r.subject, r.handle)
	if err != nil {
		return nil, fmt.Errorf("relay subscribe: %w", err)
	}
	slog.Info("update relay started", "subject", r.subject, "origin", r.origin)
	return stop, nil
}

func (r *UpdateRelay) handle(ctx context.Context, _ string, data []byte) error {
	p, err := messagequeue.DecodeUpdate(data)
	if err != nil {
		return err
	}
	if p.Origin == r.origin {
		return nil
	}
	r.local.Publish(ctx, render.UpdateEvent{Code: p.Code})
	return nil
}
