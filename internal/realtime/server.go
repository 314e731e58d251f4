package realtime

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prudhvinik1/boardsync/internal/logging"
	"github.com/prudhvinik1/boardsync/internal/metrics"
	"github.com/prudhvinik1/boardsync/internal/protocol"
	"golang.org/x/time/rate"
)

const maxFrameSize = 64 << 10

type Options struct {
	AllowedOrigins []string
	MaxConnections int
	EventRate      float64
	EventBurst     int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	// HookTimeout bounds each Observer call.
	HookTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConnections: 10000,
		EventRate:      50,
		EventBurst:     100,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		HookTimeout:    3 * time.Second,
	}
}

// Peer identifies a connection to observers.
type Peer interface {
	ID() string
	UserID() string
}

// Authenticator resolves the user behind an upgrade request.
type Authenticator interface {
	Authenticate(r *http.Request) (userID string, err error)
}

// Observer is told about membership and mutations after the fact. Calls are
// made inline on the connection's read goroutine and must not block for long.
type Observer interface {
	Joined(ctx context.Context, p Peer, boardID string)
	Left(ctx context.Context, p Peer, boardID string)
	Published(ctx context.Context, p Peer, ev protocol.MutationEvent)
	Heartbeat(ctx context.Context, p Peer, boardIDs []string)
}

// Server upgrades HTTP requests to websockets and drives the join/leave and
// mutation protocol for each connection.
type Server struct {
	registry       *Registry
	broadcaster    *Broadcaster
	observer       Observer
	auth           Authenticator
	opts           Options
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	active atomic.Int64
	mu     sync.Mutex
	conns  map[string]*Conn
	wg     sync.WaitGroup
}

func NewServer(registry *Registry, broadcaster *Broadcaster, opts Options) *Server {
	s := &Server{
		registry:       registry,
		broadcaster:    broadcaster,
		opts:           opts,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		conns:          make(map[string]*Conn),
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetObserver must be called before serving.
func (s *Server) SetObserver(o Observer) {
	s.observer = o
}

// SetAuthenticator must be called before serving. Without one, connections are anonymous.
func (s *Server) SetAuthenticator(a Authenticator) {
	s.auth = a
}

// ConnectionCount returns the number of open connections on this node.
func (s *Server) ConnectionCount() int {
	return int(s.active.Load())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if s.auth != nil {
		id, err := s.auth.Authenticate(r)
		if err != nil {
			metrics.ConnectionsRejected.WithLabelValues("auth").Inc()
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		userID = id
	}

	if !s.acquire() {
		metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		slog.Warn("Rejecting websocket connection: at capacity", "max", s.opts.MaxConnections, "remote_addr", r.RemoteAddr)
		http.Error(w, "server at capacity", http.StatusServiceUnavailable)
		return
	}
	defer s.active.Add(-1)

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("upgrade").Inc()
		slog.Debug("Websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := newConn(ws, userID, rate.NewLimiter(rate.Limit(s.opts.EventRate), s.opts.EventBurst))
	if !s.track(c) {
		ws.Close()
		return
	}
	defer s.untrack(c)

	metrics.ConnectionsActive.Inc()
	defer metrics.ConnectionsActive.Dec()

	logger := logging.WithConn(c.ID(), userID)
	logger.Info("Websocket client connected", "remote_addr", r.RemoteAddr)

	go c.writePump(s.opts.PingInterval, s.opts.WriteTimeout)
	s.readPump(c, logger)
	s.disconnect(c)

	logger.Info("Websocket client disconnected")
}

func (s *Server) acquire() bool {
	if s.opts.MaxConnections <= 0 {
		s.active.Add(1)
		return true
	}
	for {
		current := s.active.Load()
		if current >= int64(s.opts.MaxConnections) {
			return false
		}
		if s.active.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (s *Server) track(c *Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[c.ID()] = c
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	if s.conns != nil {
		delete(s.conns, c.ID())
	}
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) readPump(c *Conn, logger *slog.Logger) {
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		s.heartbeat(c)
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Websocket read error", "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			metrics.EventsRateLimited.Inc()
			logger.Warn("Dropping event: rate limit exceeded")
			continue
		}

		s.handleFrame(c, data, logger)
	}
}

func (s *Server) handleFrame(c *Conn, data []byte, logger *slog.Logger) {
	env, err := protocol.ParseFrame(data)
	if err != nil {
		logger.Warn("Skipping malformed frame", "error", err)
		return
	}

	switch env.Event {
	case protocol.EventJoinBoard:
		metrics.EventsReceived.WithLabelValues(env.Event).Inc()
		s.join(c, env, logger)
	case protocol.EventLeaveBoard:
		metrics.EventsReceived.WithLabelValues(env.Event).Inc()
		s.leave(c, env, logger)
	default:
		s.publish(c, env, logger)
	}
}

func (s *Server) join(c *Conn, env protocol.Envelope, logger *slog.Logger) {
	boardID, err := protocol.ParseBoardRef(env.Data)
	if err != nil {
		logger.Warn("Ignoring join-board", "error", err)
		return
	}

	joined, err := s.registry.Join(c, boardID)
	if errors.Is(err, ErrRoomFull) {
		logger.Warn("Join rejected: room is full", "board_id", boardID)
		s.sendError(c, "room is full", boardID)
		return
	}
	if !joined {
		return
	}

	logger.Debug("Joined board", "board_id", boardID, "members", s.registry.MemberCount(boardID))
	s.observe(func(ctx context.Context) { s.observer.Joined(ctx, c, boardID) })
}

func (s *Server) leave(c *Conn, env protocol.Envelope, logger *slog.Logger) {
	boardID, err := protocol.ParseBoardRef(env.Data)
	if err != nil {
		logger.Warn("Ignoring leave-board", "error", err)
		return
	}

	if !s.registry.Leave(c, boardID) {
		return
	}

	logger.Debug("Left board", "board_id", boardID)
	s.observe(func(ctx context.Context) { s.observer.Left(ctx, c, boardID) })
}

// publish does not check that the sender joined the board; authorization
// happens before a client emits.
func (s *Server) publish(c *Conn, env protocol.Envelope, logger *slog.Logger) {
	ev, err := protocol.DecodeClientEvent(env.Event, env.Data)
	if errors.Is(err, protocol.ErrUnknownEvent) {
		metrics.EventsReceived.WithLabelValues("unknown").Inc()
		logger.Debug("Ignoring unknown event", "event", env.Event)
		return
	}
	metrics.EventsReceived.WithLabelValues(env.Event).Inc()
	if err != nil {
		logger.Warn("Ignoring invalid event", "event", env.Event, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HookTimeout)
	defer cancel()

	delivered, err := s.broadcaster.Publish(ctx, ev.BoardID, ev, c.ID())
	if err != nil {
		logger.Warn("Failed to publish event", "event", env.Event, "error", err)
		return
	}

	logger.Debug("Published event", "event", ev.ServerName(), "board_id", ev.BoardID, "delivered", delivered)
	s.observe(func(ctx context.Context) { s.observer.Published(ctx, c, ev) })
}

func (s *Server) heartbeat(c *Conn) {
	boards := s.registry.Rooms(c)
	if len(boards) == 0 {
		return
	}
	s.observe(func(ctx context.Context) { s.observer.Heartbeat(ctx, c, boards) })
}

func (s *Server) disconnect(c *Conn) {
	c.Close()
	for _, boardID := range s.registry.LeaveAll(c) {
		s.observe(func(ctx context.Context) { s.observer.Left(ctx, c, boardID) })
	}
}

func (s *Server) observe(fn func(ctx context.Context)) {
	if s.observer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.HookTimeout)
	defer cancel()
	fn(ctx)
}

func (s *Server) sendError(c *Conn, message, boardID string) {
	frame, err := protocol.EncodeFrame(protocol.EventError, protocol.ErrorPayload{Message: message, BoardID: boardID})
	if err != nil {
		return
	}
	c.Send(frame)
}

// Shutdown closes every open connection and waits for their handlers to
// finish cleaning up, or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}
