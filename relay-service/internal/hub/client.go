package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
)

var ErrClientClosed = errors.New("client connection closed")

// Client is a websocket-backed Handle. Writes are synchronous so a nil
// error from Send means the frame reached the socket.
type Client struct {
	id       string
	username string
	conn     *websocket.Conn
	config   config.WebSocketConfig

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(username string, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	return &Client{
		id:       uuid.New().String(),
		username: username,
		conn:     conn,
		config:   cfg,
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Username() string { return c.username }

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Send(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	c.conn.SetWriteDeadline(c.writeDeadline())
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			c.writeDeadline(),
		)
		err = c.conn.Close()
	})
	return err
}

// ReadPump reads frames until the connection fails or is closed, passing
// each one to handler.
func (c *Client) ReadPump(handler func([]byte)) {
	if c.config.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.config.MaxMessageSize)
	}
	c.extendReadDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).
					Str(log.FieldUsername, c.username).
					Str(log.FieldConnID, c.id).
					Msg("websocket read error")
			}
			return
		}
		// Any frame proves the peer is alive.
		c.extendReadDeadline()

		handler(message)
	}
}

// PingLoop keeps the pong deadline fed until the client is closed.
func (c *Client) PingLoop() {
	if c.config.PingInterval <= 0 {
		<-c.done
		return
	}

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, c.writeDeadline()); err != nil {
				return
			}
		}
	}
}

// writeDeadline returns the zero time, meaning no deadline, when WriteWait
// is unset.
func (c *Client) writeDeadline() time.Time {
	if c.config.WriteWait <= 0 {
		return time.Time{}
	}
	return time.Now().Add(c.config.WriteWait)
}

func (c *Client) extendReadDeadline() {
	if c.config.PongWait <= 0 {
		return
	}
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
}
