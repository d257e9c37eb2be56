package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newEchoServer(t *testing.T, closeAfter int) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for n := 0; closeAfter <= 0 || n < closeAfter; n++ {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, msg); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebsocketEcho(t *testing.T) {
	url := newEchoServer(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocketDialer(Options{UserAgent: "cryptonorm-test"}).Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := conn.Send(ctx, []byte(`{"op":"ping"}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(frame) != `{"op":"ping"}` {
		t.Fatalf("unexpected frame %s", frame)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := conn.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
	if err := conn.Send(ctx, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on Send after Close, got %v", err)
	}
}

func TestWebsocketPeerClose(t *testing.T) {
	url := newEchoServer(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := NewWebsocketDialer(Options{}).Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	if err := conn.Send(ctx, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := conn.Receive(ctx); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, err := conn.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on peer close, got %v", err)
	}
}

func TestWebsocketReceiveHonoursContext(t *testing.T) {
	url := newEchoServer(t, 0)
	conn, err := NewWebsocketDialer(Options{}).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewWebsocketDialer(Options{}).Dial(ctx, "ws://127.0.0.1:1/ws"); err == nil {
		t.Fatalf("expected dial error")
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{PingInterval: 40 * time.Second, ReadTimeout: 10 * time.Second}.withDefaults()
	if o.ReadTimeout != 80*time.Second {
		t.Fatalf("read timeout should cover two pings, got %s", o.ReadTimeout)
	}
	if o.HandshakeTimeout != defaultHandshakeTimeout || o.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("defaults not applied: %+v", o)
	}
}
