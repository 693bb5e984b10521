package main

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ChannelState is the observable connection state of the push channel.
type ChannelState int

const (
	ChannelDisconnected ChannelState = iota
	ChannelConnecting
	ChannelConnected
)

func (s ChannelState) String() string {
	switch s {
	case ChannelConnecting:
		return "connecting"
	case ChannelConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const handshakeTimeout = 10 * time.Second

// Channel is the reconnecting push-event connection to the backend. Decoded
// events are delivered in receipt order to exactly one reader (the console
// loop). After an abnormal close it redials after a fixed delay, forever;
// events missed while disconnected are simply not observed.
type Channel struct {
	url    string
	delay  time.Duration
	events chan Event

	mu     sync.Mutex
	state  ChannelState
	conn   *websocket.Conn
	closed bool
}

// NewChannel creates a channel for url redialing after delay.
func NewChannel(url string, delay time.Duration) *Channel {
	return &Channel{
		url:    url,
		delay:  delay,
		events: make(chan Event, 64),
	}
}

// Events returns the decoded event stream.
func (c *Channel) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Channel) State() ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run dials and reads until ctx is canceled or Close is called. Every
// abnormal close schedules a redial after the fixed delay; there is no
// backoff and no retry cap, an operator session is expected to outlive any
// backend restart.
func (c *Channel) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || c.isClosed() {
			c.setState(ChannelDisconnected)
			return
		}

		c.setState(ChannelConnecting)
		dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, c.url, nil)
		if err != nil {
			wsLog.Warnf("dial %s: %v", c.url, err)
			c.setState(ChannelDisconnected)
			if !c.waitRetry(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			c.setState(ChannelDisconnected)
			return
		}
		c.conn = conn
		c.state = ChannelConnected
		c.mu.Unlock()
		wsLog.Infof("connected to %s", c.url)

		c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.state = ChannelDisconnected
		c.mu.Unlock()

		if ctx.Err() != nil || c.isClosed() {
			return
		}
		wsLog.Infof("connection lost, retrying in %s", c.delay)
		if !c.waitRetry(ctx) {
			return
		}
	}
}

// Close tears the connection down and stops the redial loop. Events already
// decoded stay readable from Events.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// readLoop reads frames until the connection fails. Malformed frames are
// dropped with a diagnostic; they never stop the loop and never reach the
// registry.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !c.isClosed() {
				wsLog.Warnf("read: %v", err)
			}
			_ = conn.Close()
			return
		}
		ev, err := DecodeEvent(raw)
		if err != nil {
			wsLog.Warnf("dropping malformed frame: %v", err)
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

func (c *Channel) waitRetry(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.delay):
		return !c.isClosed()
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Channel) setState(s ChannelState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
