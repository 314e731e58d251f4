package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const sendBufferSize = 64

// Conn is one client's live websocket. One goroutine reads (the HTTP handler)
// and one writes (writePump); everything else talks to it through Send.
type Conn struct {
	id      string
	userID  string
	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
}

func newConn(ws *websocket.Conn, userID string, limiter *rate.Limiter) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		userID:  userID,
		ws:      ws,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		limiter: limiter,
	}
}

func (c *Conn) ID() string { return c.id }

// UserID is the authenticated subject, or "" for anonymous connections.
func (c *Conn) UserID() string { return c.userID }

// Send queues a frame. It never blocks: a full buffer or closed connection
// drops the frame and returns false.
func (c *Conn) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket and unblocks the reader.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
