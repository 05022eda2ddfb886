// Package transport owns the single live WebSocket connection to the chat
// backend. Nothing else in the client opens, closes or writes the socket;
// the connector is constructed once per session and handed around by
// reference.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"dormchat/internal/bus"
	"dormchat/internal/status"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

// FrameHandler receives every raw inbound frame. Handlers must not block;
// they run on the read loop goroutine.
type FrameHandler func(raw []byte)

// Connector maintains at most one active connection per user session,
// reconnecting with exponential backoff after abnormal closures.
type Connector struct {
	url     string
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	backoff Backoff

	mu       sync.Mutex
	handler  FrameHandler
	conn     *websocket.Conn
	dialing  chan struct{}
	retry    *time.Timer
	attempt  int
	detached bool // set by Disconnect; suppresses reconnection
}

// New creates a connector for the per-user endpoint ws(s)://host/api/ws/{userID}.
func New(wsBaseURL string, userID int64, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Connector {
	return &Connector{
		url:     fmt.Sprintf("%s/api/ws/%d", strings.TrimRight(wsBaseURL, "/"), userID),
		machine: machine,
		bus:     b,
		logger:  logger,
		backoff: DefaultBackoff(),
	}
}

// SetBackoff overrides the reconnect policy. Call before EnsureConnected.
func (c *Connector) SetBackoff(b Backoff) {
	c.backoff = b
}

// SetHandler registers the inbound frame handler.
func (c *Connector) SetHandler(h FrameHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Attempt returns the current reconnect attempt counter. It resets to zero
// on every successful open.
func (c *Connector) Attempt() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt
}

// State returns the current connection state.
func (c *Connector) State() status.State {
	return c.machine.Current()
}

// EnsureConnected opens the connection if needed and returns once it is up.
// It is idempotent: an open connection returns immediately, and concurrent
// callers share a single dial.
func (c *Connector) EnsureConnected(ctx context.Context) error {
	for {
		c.mu.Lock()
		if c.conn != nil {
			c.mu.Unlock()
			return nil
		}
		if c.dialing != nil {
			done := c.dialing
			c.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		done := make(chan struct{})
		c.dialing = done
		c.detached = false
		c.mu.Unlock()

		err := c.dial(ctx)

		c.mu.Lock()
		c.dialing = nil
		c.mu.Unlock()
		close(done)
		return err
	}
}

func (c *Connector) dial(ctx context.Context) error {
	_ = c.machine.Transition(status.Connecting)
	c.logger.Info("connecting", zap.String("url", c.url))

	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		_ = c.machine.Transition(status.Disconnected)
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	if c.detached {
		// Disconnect raced the dial; drop the fresh connection.
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
		return errors.New("connector closed during dial")
	}
	c.conn = conn
	c.attempt = 0
	c.mu.Unlock()

	_ = c.machine.Transition(status.Connected)
	c.bus.Publish(bus.Event{Kind: bus.KindConnected, Timestamp: time.Now()})
	c.logger.Info("connected")

	go c.readLoop(conn)
	return nil
}

// readLoop hands every inbound frame to the handler until the connection
// drops. Handler failures are the handler's problem; the loop never dies on
// frame content.
func (c *Connector) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(data)
		}
	}
}

func (c *Connector) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a replaced connection.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	detached := c.detached
	c.mu.Unlock()

	code := websocket.CloseStatus(err)
	_ = c.machine.Transition(status.Disconnected)
	c.bus.Publish(bus.Event{Kind: bus.KindDisconnected, Timestamp: time.Now(), Payload: int(code)})

	if detached || code == websocket.StatusNormalClosure {
		c.logger.Info("disconnected", zap.Int("code", int(code)))
		return
	}

	c.logger.Warn("connection lost", zap.Int("code", int(code)), zap.Error(err))
	c.scheduleReconnect()
}

func (c *Connector) scheduleReconnect() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	delay := c.backoff.Delay(c.attempt)
	c.attempt++
	attempt := c.attempt
	c.retry = time.AfterFunc(delay, func() { c.reconnect(attempt) })
	c.mu.Unlock()

	c.logger.Info("reconnect scheduled",
		zap.Duration("delay", delay),
		zap.Int("attempt", attempt))
}

// reconnect is the retry-timer path into dial. Unlike EnsureConnected it
// never clears the detached flag, so a Disconnect that lands after the timer
// has already fired still wins.
func (c *Connector) reconnect(attempt int) {
	c.mu.Lock()
	if c.detached || c.conn != nil || c.dialing != nil {
		c.mu.Unlock()
		return
	}
	done := make(chan struct{})
	c.dialing = done
	c.mu.Unlock()

	err := c.dial(context.Background())

	c.mu.Lock()
	c.dialing = nil
	c.mu.Unlock()
	close(done)

	if err != nil {
		c.logger.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
		c.scheduleReconnect()
	}
}

// Send writes one text frame. It never panics and never blocks past ctx;
// with no open connection it fails fast with ErrNotConnected — callers
// decide whether to EnsureConnected first.
func (c *Connector) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Disconnect cancels any pending reconnect and closes the connection with a
// normal closure code. The close that follows does not trigger reconnection.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	c.detached = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}
