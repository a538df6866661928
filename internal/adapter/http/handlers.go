package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/CircuitForge/internal/domain"
	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/hub"
	"github.com/Strob0t/CircuitForge/internal/port/partsearch"
)

const (
	defaultBodyLimit = 1 << 20 // 1 MB
	defaultKeepalive = 30 * time.Second
	maxQueryLength   = 256
)

// Submitter runs a render request to completion.
type Submitter interface {
	Submit(ctx context.Context, code string) (*render.Result, error)
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Renders   Submitter
	Hub       *hub.Hub
	Parts     partsearch.Searcher // nil disables /parts/search
	Stream    http.Handler        // WebSocket updates; nil disables /updates/ws
	BodyLimit int64               // Max request body in bytes
	Keepalive time.Duration       // SSE comment interval
}

// Compile handles POST /compile.
func (h *Handlers) Compile(w http.ResponseWriter, r *http.Request) {
	limit := h.BodyLimit
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	req, ok := readJSON[render.CompileRequest](w, r, limit)
	if !ok {
		return
	}

	res, err := h.Renders.Submit(r.Context(), req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, domain.ErrCompileFailed):
		writeError(w, http.StatusBadRequest, "Compilation failed")
	case errors.Is(err, domain.ErrCapacity):
		writeError(w, http.StatusInternalServerError, domain.ErrCapacity.Error())
	default:
		writeInternalError(w, r, err)
	}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SearchParts handles GET /parts/search?q=.
func (h *Handlers) SearchParts(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	if len(q) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "q is too long")
		return
	}

	info, err := h.Parts.Search(r.Context(), q)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, info)
	case errors.Is(err, partsearch.ErrNotFound):
		writeError(w, http.StatusNotFound, "no matching part")
	case errors.Is(err, partsearch.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "part search temporarily unavailable")
	case errors.Is(err, context.Canceled):
		// client went away
	default:
		writeInternalErrorStatus(w, r, http.StatusBadGateway, "part search failed", err)
	}
}

func writeInternalErrorStatus(w http.ResponseWriter, r *http.Request, status int, msg string, err error) {
	logRequestError(r, err)
	writeError(w, status, msg)
}
