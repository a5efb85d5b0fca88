package broadcaster

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lyzr/flowengine/internal/eventbus"
	"github.com/lyzr/flowengine/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 512
)

// Client is one connected WebSocket subscriber to a single workflow's
// events, grounded on the teacher's cmd/fanout/client.go read/write
// pump pair. The broadcaster is single-threaded per connection: only
// writePump touches the socket for writes.
type Client struct {
	conn *websocket.Conn
	sub  eventbus.Subscription
	send chan []byte
	log  *logger.Logger
}

func newClient(conn *websocket.Conn, sub eventbus.Subscription, log *logger.Logger) *Client {
	return &Client{conn: conn, sub: sub, send: make(chan []byte, 64), log: log}
}

// readPump discards inbound frames (server-push only) and exists
// solely to detect client disconnects and service ping/pong.
func (c *Client) readPump(onClose func()) {
	defer onClose()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", "error", err)
			}
			return
		}
	}
}

// writePump serializes every write to the socket: forwarded events,
// periodic pings, and the close handshake.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// forward relays events from the EventBus subscription onto c.send
// until the subscription closes.
func (c *Client) forward() {
	for event := range c.sub.Events() {
		payload, err := json.Marshal(event)
		if err != nil {
			c.log.Error("marshal event for client", "error", err)
			continue
		}
		select {
		case c.send <- payload:
		default:
			c.log.Warn("dropping event for slow websocket client", "workflow_id", event.WorkflowID)
		}
	}
	close(c.send)
}
