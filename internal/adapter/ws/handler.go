// Package ws streams live-update events to browsers over WebSocket.
package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Strob0t/CircuitForge/internal/hub"
	"github.com/Strob0t/CircuitForge/internal/logger"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultPingInterval = 30 * time.Second
)

// Handler upgrades requests to WebSocket and writes every hub event as a
// JSON text message. Client messages are read and discarded.
type Handler struct {
	hub            *hub.Hub
	originPatterns []string
	anyOrigin      bool
	writeTimeout   time.Duration
	pingInterval   time.Duration
}

// NewHandler creates a Handler. allowedOrigins uses the same form as the
// CORS configuration (full origins such as "http://localhost:5173", or "*").
func NewHandler(h *hub.Hub, allowedOrigins []string, pingInterval time.Duration) *Handler {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	return &Handler{
		hub:            h,
		originPatterns: originHosts(allowedOrigins),
		anyOrigin:      slices.Contains(allowedOrigins, "*"),
		writeTimeout:   defaultWriteTimeout,
		pingInterval:   pingInterval,
	}
}

// originHosts converts origins to the host patterns the websocket library matches.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.originPatterns,
		InsecureSkipVerify: h.anyOrigin,
	})
	if err != nil {
		slog.Warn("websocket accept failed", append(logger.Attrs(r.Context()), "error", err)...)
		return
	}
	defer c.CloseNow() //nolint:errcheck // best effort after a graceful close

	sub := h.hub.Register()
	defer h.hub.Unregister(sub)

	attrs := append(logger.Attrs(r.Context()), "subscriber_id", sub.ID(), "remote", r.RemoteAddr)
	slog.Info("websocket connected", attrs...)

	// CloseRead consumes (and discards) client frames so pings and close
	// frames are handled; ctx ends when the peer goes away.
	ctx := c.CloseRead(r.Context())

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("websocket disconnected", attrs...)
			return

		case ev, ok := <-sub.Events():
			if !ok {
				status, reason := closeReason(sub.Err())
				_ = c.Close(status, reason)
				slog.Info("websocket closed by server", append(attrs, "reason", reason)...)
				return
			}
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := wsjson.Write(wctx, c, ev)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", append(attrs, "error", err)...)
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := c.Ping(pctx)
			cancel()
			if err != nil {
				slog.Debug("websocket ping failed", append(attrs, "error", err)...)
				return
			}
		}
	}
}

func closeReason(err error) (websocket.StatusCode, string) {
	switch {
	case errors.Is(err, hub.ErrSlowSubscriber):
		return websocket.StatusPolicyViolation, "subscriber too slow"
	case errors.Is(err, hub.ErrClosed):
		return websocket.StatusGoingAway, "server shutting down"
	}
	return websocket.StatusNormalClosure, ""
}
