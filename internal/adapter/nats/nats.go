// Package nats implements the message queue port using core NATS.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Strob0t/CircuitForge/internal/logger"
	"github.com/Strob0t/CircuitForge/internal/port/messagequeue"
)

const headerRequestID = "X-Request-ID"

// Queue implements messagequeue.Queue using plain NATS publish/subscribe.
// Messages are not persisted; late subscribers see nothing from the past.
type Queue struct {
	nc *nats.Conn
}

// Connect establishes a connection to NATS that reconnects indefinitely.
func Connect(_ context.Context, url, name string) (*Queue, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	slog.Info("nats connected", "url", url)
	return &Queue{nc: nc}, nil
}

// Publish sends a message to the given subject, carrying the request ID
// from ctx as a header.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if id := logger.RequestID(ctx); id != "" {
		msg.Header.Set(headerRequestID, id)
	}
	if err := q.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	sub, err := q.nc.Subscribe(subject, func(msg *nats.Msg) {
		hctx := context.WithoutCancel(ctx)
		if id := msg.Header.Get(headerRequestID); id != "" {
			hctx = logger.WithRequestID(hctx, id)
		}
		if err := handler(hctx, msg.Subject, msg.Data); err != nil {
			slog.Error("message handler failed", append(logger.Attrs(hctx), "subject", msg.Subject, "error", err)...)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug("nats unsubscribe", "subject", subject, "error", err)
		}
	}, nil
}

// Drain gracefully drains subscriptions and closes the connection.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
