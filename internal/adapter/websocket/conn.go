// Package websocket connects browser clients to the room registry over gorilla/websocket.
package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 64
	maxFrameSize      = 4096
)

// Conn is one websocket client. It implements rooms.Subscriber: Send only queues,
// and a single writer goroutine owns all writes to the socket.
type Conn struct {
	id          string
	userID      string
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newConn(connection *websocket.Conn, userID string, clock clockwork.Clock) *Conn {
	c := &Conn{
		id:          uuid.NewString(),
		userID:      userID,
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	connection.SetReadLimit(maxFrameSize)
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Conn) ID() string { return c.id }

// Send queues payload without blocking. It returns false when the client's buffer is
// full or the connection is closed.
func (c *Conn) Send(payload []byte) bool {
	select {
	case <-c.doneChannel:
		return false
	default:
	}

	select {
	case c.sendChannel <- payload:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the socket. It is safe to call more than once and
// from any goroutine; it does not wait for the writer to exit.
func (c *Conn) Close() {
	c.stopOnce.Do(func() {
		close(c.doneChannel)
		_ = c.connection.Close()
	})
}

func (c *Conn) wait() {
	c.wg.Wait()
}

func (c *Conn) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

func (c *Conn) configurePongHandler() {
	c.updateReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Conn) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Conn) updateReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}
