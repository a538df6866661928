// Package service holds the application services that sit between the HTTP
// surface and the adapters.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/CircuitForge/internal/adapter/otel"
	"github.com/Strob0t/CircuitForge/internal/domain"
	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/logger"
	"github.com/Strob0t/CircuitForge/internal/pool"
	"github.com/Strob0t/CircuitForge/internal/port/broadcast"
	"github.com/Strob0t/CircuitForge/internal/port/renderer"
)

// RenderService admits render requests into the bounded pool, runs the
// toolchain and announces successful renders to live-update subscribers.
type RenderService struct {
	renderer     renderer.Renderer
	pool         *pool.Pool
	hub          broadcast.Broadcaster
	queueTimeout time.Duration
	metrics      *otel.Metrics
}

// NewRenderService creates a RenderService. queueTimeout bounds how long a
// request waits for a free slot; zero waits indefinitely.
func NewRenderService(r renderer.Renderer, p *pool.Pool, hub broadcast.Broadcaster, queueTimeout time.Duration) *RenderService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &RenderService{renderer: r, pool: p, hub: hub, queueTimeout: queueTimeout}
}

// SetMetrics attaches render metrics.
func (s *RenderService) SetMetrics(m *otel.Metrics) {
	s.metrics = m
}

// Submit renders code and, on success only, publishes an update carrying
// the same code. Once admitted, a render runs to completion even if the
// caller goes away. No retries.
//
// Errors: domain.ErrCompileFailed for rejected markup, domain.ErrCapacity
// when no slot frees up within the queue timeout, anything else is internal.
func (s *RenderService) Submit(ctx context.Context, code string) (*render.Result, error) {
	ctx = context.WithoutCancel(ctx)

	id := uuid.NewString()
	ctx = logger.WithRenderID(ctx, id)
	ctx, span := otel.StartRenderSpan(ctx, id)

	start := time.Now()
	res, err := s.run(ctx, code, start)
	elapsed := time.Since(start)
	otel.EndSpan(span, err)

	attrs := append(logger.Attrs(ctx), "duration", elapsed, "code_len", len(code))
	switch {
	case err == nil:
		s.metrics.RecordOutcome(ctx, otel.OutcomeSuccess, elapsed.Seconds())
		slog.Info("render succeeded", append(attrs, "image_bytes", len(res.Image))...)
	case errors.Is(err, domain.ErrCompileFailed):
		s.metrics.RecordOutcome(ctx, otel.OutcomeCompile, elapsed.Seconds())
		slog.Info("render rejected", append(attrs, "error", err)...)
		return nil, err
	case errors.Is(err, domain.ErrCapacity):
		s.metrics.RecordOutcome(ctx, otel.OutcomeCapacity, elapsed.Seconds())
		slog.Warn("render capacity exhausted", append(attrs, "pool_size", s.pool.Size(), "waiting", s.pool.Waiting())...)
		return nil, err
	default:
		s.metrics.RecordOutcome(ctx, otel.OutcomeInternal, elapsed.Seconds())
		slog.Error("render failed", append(attrs, "error", err)...)
		return nil, err
	}

	s.hub.Publish(ctx, render.UpdateEvent{Code: code})
	if s.metrics != nil {
		s.metrics.Broadcasts.Add(ctx, 1)
	}
	return res, nil
}

func (s *RenderService) run(ctx context.Context, code string, queued time.Time) (*render.Result, error) {
	waitCtx := ctx
	if s.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.queueTimeout)
		defer cancel()
	}

	var (
		res      *render.Result
		admitted bool
	)
	err := s.pool.Run(waitCtx, func() error {
		admitted = true
		if s.metrics != nil {
			s.metrics.QueueWait.Record(ctx, time.Since(queued).Seconds())
			s.metrics.RendersStarted.Add(ctx, 1)
		}
		var err error
		res, err = s.renderer.Render(ctx, code)
		return err
	})
	if err != nil && !admitted {
		return nil, fmt.Errorf("wait for render slot: %w: %w", domain.ErrCapacity, err)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("renderer returned no result")
	}
	return res, nil
}
