package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// pushServer is a websocket test backend that feeds frames to every
// accepted connection.
type pushServer struct {
	*httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
	count int
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	ps := &pushServer{}
	upgrader := websocket.Upgrader{}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ps.mu.Lock()
		ps.conns = append(ps.conns, conn)
		ps.count++
		ps.mu.Unlock()
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pushServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ps.URL, "http")
}

func (ps *pushServer) send(t *testing.T, frame string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ps.mu.Lock()
		n := len(ps.conns)
		var conn *websocket.Conn
		if n > 0 {
			conn = ps.conns[n-1]
		}
		ps.mu.Unlock()
		if conn != nil {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err == nil {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no connection to send on")
}

func (ps *pushServer) dropAll() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, conn := range ps.conns {
		_ = conn.Close()
	}
	ps.conns = nil
}

func (ps *pushServer) connections() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.count
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event within two seconds")
		return Event{}
	}
}

func TestChannelDeliversEvents(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(ps.wsURL(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)
	defer ch.Close()

	ps.send(t, `{"event_type":"call_start","call_id":"c1","data":{"caller_number":"79991234567","direction":"incoming"}}`)

	ev := waitEvent(t, ch.Events())
	if ev.Type != EventCallStart || ev.CallID != "c1" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestChannelDropsMalformedFrames(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(ps.wsURL(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)
	defer ch.Close()

	ps.send(t, `not json at all`)
	ps.send(t, `{"event_type":"call_end"}`)
	ps.send(t, `{"event_type":"call_end","call_id":"c9","data":{}}`)

	ev := waitEvent(t, ch.Events())
	if ev.Type != EventCallEnd || ev.CallID != "c9" {
		t.Errorf("malformed frames not skipped, got %+v", ev)
	}
}

func TestChannelReconnects(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(ps.wsURL(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)
	defer ch.Close()

	ps.send(t, `{"event_type":"call_end","call_id":"a","data":{}}`)
	waitEvent(t, ch.Events())

	ps.dropAll()

	// The redial lands on a fresh server connection.
	ps.send(t, `{"event_type":"call_end","call_id":"b","data":{}}`)
	ev := waitEvent(t, ch.Events())
	if ev.CallID != "b" {
		t.Errorf("event after reconnect = %+v", ev)
	}
	if ps.connections() < 2 {
		t.Errorf("connections = %d, want at least 2", ps.connections())
	}
}

func TestChannelCloseStopsRedial(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(ps.wsURL(), 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		ch.Run(ctx)
		close(done)
	}()

	ps.send(t, `{"event_type":"call_end","call_id":"a","data":{}}`)
	waitEvent(t, ch.Events())

	ch.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if ch.State() != ChannelDisconnected {
		t.Errorf("state = %v, want disconnected", ch.State())
	}
}

func TestChannelStateTransitions(t *testing.T) {
	ps := newPushServer(t)
	ch := NewChannel(ps.wsURL(), 10*time.Millisecond)
	if ch.State() != ChannelDisconnected {
		t.Errorf("initial state = %v, want disconnected", ch.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)
	defer ch.Close()

	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != ChannelConnected {
		if time.Now().After(deadline) {
			t.Fatalf("never connected, state = %v", ch.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
