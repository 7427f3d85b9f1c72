// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================
// Loopback Tests
// ============================================================

func TestLoopback_Echo(t *testing.T) {
	l := NewLoopback(time.Millisecond)
	defer l.Close()

	if _, err := l.Write([]byte("hello")); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	buf := make([]byte, 3)
	n, err := l.Read(buf)
	if err != nil || string(buf[:n]) != "hel" {
		t.Fatalf("first read = %q, %v", buf[:n], err)
	}
	n, err = l.Read(buf)
	if err != nil || string(buf[:n]) != "lo" {
		t.Fatalf("second read = %q, %v", buf[:n], err)
	}
}

func TestLoopback_IdleReadReturnsZero(t *testing.T) {
	l := NewLoopback(5 * time.Millisecond)
	defer l.Close()

	start := time.Now()
	n, err := l.Read(make([]byte, 8))
	if n != 0 || err != nil {
		t.Fatalf("idle read = %d, %v", n, err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("idle read returned before the wait elapsed")
	}
}

func TestLoopback_ReadWakesOnWrite(t *testing.T) {
	l := NewLoopback(time.Second)
	defer l.Close()

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.Write([]byte{0x42})
	}()

	start := time.Now()
	buf := make([]byte, 1)
	n, err := l.Read(buf)
	if err != nil || n != 1 || buf[0] != 0x42 {
		t.Fatalf("read = %x, %v", buf[:n], err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("read did not wake on write")
	}
}

func TestPipe_Crossed(t *testing.T) {
	a, b := Pipe(time.Millisecond)
	defer a.Close()
	defer b.Close()

	a.Write([]byte("ping"))
	b.Write([]byte("pong"))

	buf := make([]byte, 8)
	if n, _ := b.Read(buf); string(buf[:n]) != "ping" {
		t.Errorf("b read %q, want ping", buf[:n])
	}
	if n, _ := a.Read(buf); string(buf[:n]) != "pong" {
		t.Errorf("a read %q, want pong", buf[:n])
	}
}

func TestLoopback_Close(t *testing.T) {
	l := NewLoopback(time.Second)

	done := make(chan error, 1)
	go func() {
		_, err := l.Read(make([]byte, 1))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	l.Close()
	l.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("expected ErrConnectionClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Read")
	}

	if _, err := l.Write([]byte{1}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed on write, got %v", err)
	}
}

// ============================================================
// Open Tests
// ============================================================

func TestOpen_NoTransport(t *testing.T) {
	if _, _, err := Open(Config{}); !errors.Is(err, ErrNoLink) {
		t.Errorf("expected ErrNoLink, got %v", err)
	}
}

func TestOpen_Loopback(t *testing.T) {
	l, info, err := Open(Config{Loopback: true, Port: "/dev/ignored"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer l.Close()
	if info != "Loopback" {
		t.Errorf("info = %q", info)
	}
}

func TestOpen_BadScheme(t *testing.T) {
	_, _, err := Open(Config{URL: "http://example.com/serial"})
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Errorf("expected scheme error, got %v", err)
	}
}

// ============================================================
// WebSocket Tests
// ============================================================

// newBridge starts a test server that records the auth header, sends a text
// message followed by a binary one, then echoes binary messages.
func newBridge(t *testing.T, auth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("banner"))
		conn.WriteMessage(websocket.BinaryMessage, []byte{0xF7, 0x01, 0x02})

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				conn.WriteMessage(websocket.BinaryMessage, data)
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocket_ReadWrite(t *testing.T) {
	auth := make(chan string, 1)
	srv := newBridge(t, auth)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ws, err := OpenWebSocket(WebSocketConfig{URL: wsURL, Username: "user", Password: "secret"})
	if err != nil {
		t.Fatalf("OpenWebSocket error: %v", err)
	}
	defer ws.Close()

	if got := <-auth; got != "Basic dXNlcjpzZWNyZXQ=" {
		t.Errorf("Authorization = %q", got)
	}

	// Text banner is skipped; the binary message is split across reads
	buf := make([]byte, 2)
	n, err := ws.Read(buf)
	if err != nil || !bytes.Equal(buf[:n], []byte{0xF7, 0x01}) {
		t.Fatalf("first read = %x, %v", buf[:n], err)
	}
	n, err = ws.Read(buf)
	if err != nil || !bytes.Equal(buf[:n], []byte{0x02}) {
		t.Fatalf("second read = %x, %v", buf[:n], err)
	}

	if _, err := ws.Write([]byte{0x7F}); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	n, err = ws.Read(buf)
	if err != nil || !bytes.Equal(buf[:n], []byte{0x7F}) {
		t.Fatalf("echo read = %x, %v", buf[:n], err)
	}
}

func TestWebSocket_NoAuthWithoutPassword(t *testing.T) {
	auth := make(chan string, 1)
	srv := newBridge(t, auth)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	ws, err := OpenWebSocket(WebSocketConfig{URL: wsURL, Username: "user"})
	if err != nil {
		t.Fatalf("OpenWebSocket error: %v", err)
	}
	defer ws.Close()

	if got := <-auth; got != "" {
		t.Errorf("expected no Authorization header, got %q", got)
	}
}

func TestWebSocket_ReadAfterServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	ws, err := OpenWebSocket(WebSocketConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	if err != nil {
		t.Fatalf("OpenWebSocket error: %v", err)
	}
	defer ws.Close()

	buf := make([]byte, 4)
	if _, err := ws.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
	if _, err := ws.Read(buf); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed on repeat read, got %v", err)
	}
}
