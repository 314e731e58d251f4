package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prudhvinik1/boardsync/internal/protocol"
)

var ErrOffline = errors.New("client offline")

const (
	defaultBaseDelay    = time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultReadTimeout  = 75 * time.Second

	// A connection must stay up this long before the backoff starts over.
	defaultStableAfter = 10 * time.Second
)

type Option func(*Client)

// WithToken sends the token as a Bearer header on every dial.
func WithToken(token string) Option {
	return func(c *Client) {
		c.header.Set("Authorization", "Bearer "+token)
	}
}

// WithBoard sets the board joined on every connect.
func WithBoard(boardID string) Option {
	return func(c *Client) { c.board = boardID }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = dialer }
}

// WithState makes the client keep s in sync with local emits and remote
// events.
func WithState(s *State) Option {
	return func(c *Client) { c.state = s }
}

// WithBackoff overrides the reconnect delays.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = maxDelay
	}
}

// OnEvent is called for each remote mutation after it has been applied to the
// state, on the goroutine running Run.
func OnEvent(fn func(protocol.MutationEvent)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// OnStatus is called whenever the connection goes online or offline.
func OnStatus(fn func(online bool)) Option {
	return func(c *Client) { c.onStatus = fn }
}

// OnError is called for error frames the server sends back, such as a
// rejected join.
func OnError(fn func(protocol.ErrorPayload)) Option {
	return func(c *Client) { c.onError = fn }
}

// Client keeps one websocket open to the sync server, joins the current board
// on every connect and reconnects with exponential backoff. Events missed
// while offline are not recovered.
type Client struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	clock     clockwork.Clock
	state     *State
	baseDelay time.Duration
	maxDelay  time.Duration

	onEvent  func(protocol.MutationEvent)
	onStatus func(bool)
	onError  func(protocol.ErrorPayload)

	online atomic.Bool
	done   chan struct{}
	once   sync.Once

	// mu guards conn and board and serializes writes.
	mu    sync.Mutex
	conn  *websocket.Conn
	board string
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:       url,
		header:    make(http.Header),
		dialer:    websocket.DefaultDialer,
		clock:     clockwork.NewRealClock(),
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Online() bool {
	return c.online.Load()
}

// Board returns the board currently joined or to be joined on connect.
func (c *Client) Board() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.board
}

// Run connects and keeps reconnecting until ctx is cancelled or Close is
// called.
func (c *Client) Run(ctx context.Context) error {
	attempt := 0
	for {
		up, err := c.connectAndServe(ctx)
		if c.stopped(ctx) {
			return nil
		}
		if up >= defaultStableAfter {
			attempt = 0
		}

		delay := backoffDelay(c.baseDelay, c.maxDelay, attempt)
		attempt++
		slog.Debug("Reconnecting", "url", c.url, "delay", delay, "error", err)

		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		}
	}
}

// Close disconnects and stops Run. It is safe to call more than once.
func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func (c *Client) stopped(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	default:
		return ctx.Err() != nil
	}
}

// connectAndServe dials once and reads until the connection drops. up is how
// long the connection lasted, zero when the dial failed.
func (c *Client) connectAndServe(ctx context.Context) (up time.Duration, err error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return 0, fmt.Errorf("failed to dial: %w", err)
	}
	connectedAt := c.clock.Now()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		case <-stop:
			return
		}
		conn.Close()
	}()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		c.setOnline(false)
		up = c.clock.Since(connectedAt)
	}()

	conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(defaultWriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// The conn is published and the join sent under one lock, so a concurrent
	// JoinBoard either runs before (and its board is joined here) or after.
	c.mu.Lock()
	c.conn = conn
	board := c.board
	if board != "" {
		err = c.writeControlLocked(protocol.EventJoinBoard, board)
	}
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}

	c.setOnline(true)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		conn.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		c.handleFrame(message)
	}
}

func (c *Client) handleFrame(message []byte) {
	env, err := protocol.ParseFrame(message)
	if err != nil {
		slog.Warn("Invalid frame from server", "error", err)
		return
	}

	if env.Event == protocol.EventError {
		var payload protocol.ErrorPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		slog.Warn("Server rejected request", "message", payload.Message, "board_id", payload.BoardID)
		if c.onError != nil {
			c.onError(payload)
		}
		return
	}

	if !protocol.IsServerEvent(env.Event) {
		return
	}

	ev, err := protocol.DecodeServerEvent(env.Event, env.Data)
	if err != nil {
		slog.Warn("Invalid event from server", "event", env.Event, "error", err)
		return
	}

	if c.state != nil {
		c.state.Apply(ev)
	}
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Client) setOnline(online bool) {
	if c.online.Swap(online) == online {
		return
	}
	if c.onStatus != nil {
		c.onStatus(online)
	}
}

// JoinBoard switches the current board. When connected, the previous board is
// left and the new one joined immediately; otherwise the join happens on the
// next connect.
func (c *Client) JoinBoard(boardID string) error {
	c.mu.Lock()
	prev := c.board
	c.board = boardID
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected || prev == boardID {
		return nil
	}
	if prev != "" {
		if err := c.sendControl(protocol.EventLeaveBoard, prev); err != nil {
			return err
		}
	}
	return c.sendControl(protocol.EventJoinBoard, boardID)
}

// LeaveBoard leaves the current board and forgets it.
func (c *Client) LeaveBoard() error {
	c.mu.Lock()
	prev := c.board
	c.board = ""
	connected := c.conn != nil
	c.mu.Unlock()

	if !connected || prev == "" {
		return nil
	}
	return c.sendControl(protocol.EventLeaveBoard, prev)
}

// Emit applies ev to the local state and sends it to the other members of the
// board. While offline the local change stands and ErrOffline is returned.
func (c *Client) Emit(ev protocol.MutationEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	frame, err := protocol.EncodeClientFrame(ev)
	if err != nil {
		return err
	}

	if c.state != nil {
		c.state.Apply(ev)
	}
	return c.write(frame)
}

func (c *Client) sendControl(name, boardID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeControlLocked(name, boardID)
}

func (c *Client) writeControlLocked(name, boardID string) error {
	frame, err := protocol.EncodeFrame(name, boardID)
	if err != nil {
		return err
	}
	return c.writeLocked(frame)
}

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(frame)
}

// writeLocked must be called with c.mu held.
func (c *Client) writeLocked(frame []byte) error {
	if c.conn == nil {
		return ErrOffline
	}
	c.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("%w: %v", ErrOffline, err)
	}
	return nil
}

// backoffDelay doubles base per attempt up to maxDelay.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	delay := base
	for n := 0; n < attempt; n++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}
