package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/logger"
)

// Updates handles GET /updates as a Server-Sent Events stream. Every render
// that succeeds after the client connected is sent as one data event. The
// subscription is released when the client disconnects, a write fails, or
// the hub shuts down.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive any server-wide write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	sub := h.Hub.Register()
	defer h.Hub.Unregister(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.Error("sse flush unsupported", append(logger.Attrs(r.Context()), "error", err)...)
		return
	}

	keepalive := h.Keepalive
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	attrs := append(logger.Attrs(r.Context()), "subscriber_id", sub.ID())
	slog.Debug("sse stream opened", attrs...)

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("sse client disconnected", attrs...)
			return
		case ev, ok := <-sub.Events():
			if !ok {
				slog.Debug("sse stream ended", append(attrs, "reason", sub.Err())...)
				return
			}
			if err := writeSSE(w, rc, ev); err != nil {
				slog.Debug("sse write failed", append(attrs, "error", err)...)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, ev render.UpdateEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
