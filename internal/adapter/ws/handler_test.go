package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/Strob0t/CircuitForge/internal/domain/render"
	"github.com/Strob0t/CircuitForge/internal/hub"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	opts := &websocket.DialOptions{}
	if origin != "" {
		opts.HTTPHeader = http.Header{"Origin": {origin}}
	}
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), opts)
	return c, err
}

func TestHandlerStreamsEvents(t *testing.T) {
	h := hub.New(8)
	srv := httptest.NewServer(NewHandler(h, []string{"http://localhost:5173"}, time.Minute))
	defer srv.Close()

	c, err := dial(t, srv, "http://localhost:5173")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow() //nolint:errcheck

	waitFor(t, func() bool { return h.Len() == 1 })
	h.Publish(context.Background(), render.UpdateEvent{Code: "R1"})
	h.Publish(context.Background(), render.UpdateEvent{Code: "R2"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, want := range []string{"R1", "R2"} {
		var ev render.UpdateEvent
		if err := wsjson.Read(ctx, c, &ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Code != want {
			t.Errorf("code = %q, want %q", ev.Code, want)
		}
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return h.Len() == 0 })
}

func TestHandlerClosesOnHubShutdown(t *testing.T) {
	h := hub.New(8)
	srv := httptest.NewServer(NewHandler(h, []string{"*"}, time.Minute))
	defer srv.Close()

	c, err := dial(t, srv, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.CloseNow() //nolint:errcheck
	waitFor(t, func() bool { return h.Len() == 1 })

	h.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusGoingAway {
		t.Errorf("close status = %v, want GoingAway (err %v)", got, err)
	}
}

func TestHandlerRejectsForeignOrigin(t *testing.T) {
	h := hub.New(8)
	srv := httptest.NewServer(NewHandler(h, []string{"http://localhost:5173"}, time.Minute))
	defer srv.Close()

	if c, err := dial(t, srv, "http://evil.example"); err == nil {
		_ = c.CloseNow()
		t.Fatal("expected foreign origin to be rejected")
	}
	if h.Len() != 0 {
		t.Errorf("rejected connection registered a subscription")
	}
}

func TestOriginHosts(t *testing.T) {
	got := originHosts([]string{"http://localhost:5173", "https://app.example.com", "*", "::bad"})
	want := []string{"localhost:5173", "app.example.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("originHosts = %v, want %v", got, want)
	}
}
