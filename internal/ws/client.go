package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Envelope is the wire frame in both directions. Client requests carry an
// event name, an optional payload and, when the client wants an
// acknowledgement, a non-zero ackId echoed back in the reply.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	AckID int64           `json:"ackId,omitempty"`
}

// outbound is a queued server-to-client frame.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	AckID int64  `json:"ackId,omitempty"`
}

// ack is the reply payload for requests carrying an ackId.
type ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

var errSendBufferFull = errors.New("send buffer full")

const sendBufferSize = 64

// client wraps one websocket connection. All writes go through the queue
// and a single writer goroutine, per gorilla's one-writer rule; Send never
// blocks a broadcast on a slow consumer.
type client struct {
	id   string
	log  *slog.Logger
	conn *websocket.Conn

	queue chan outbound
	once  sync.Once
	done  chan struct{}
}

func newClient(log *slog.Logger, conn *websocket.Conn) *client {
	return &client{
		id:    uuid.NewString(),
		log:   log,
		conn:  conn,
		queue: make(chan outbound, sendBufferSize),
		done:  make(chan struct{}),
	}
}

func (c *client) ID() string { return c.id }

// Send queues a push event. A full queue means the reader on the other
// end is gone or stuck; the connection gets torn down rather than letting
// the backlog grow.
func (c *client) Send(event string, payload any) error {
	return c.enqueue(outbound{Event: event, Data: payload})
}

func (c *client) sendAck(ackID int64, a ack) {
	if err := c.enqueue(outbound{Event: "ack", AckID: ackID, Data: a}); err != nil {
		c.log.Warn("ack dropped", "client", c.id, "error", err)
	}
}

func (c *client) enqueue(msg outbound) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		c.close()
		return errSendBufferFull
	}
}

// writePump drains the queue onto the socket until the client closes.
func (c *client) writePump() {
	for {
		select {
		case msg := <-c.queue:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
