package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatrelay/pkg/interfaces"
)

// Defaults used when Options leave a field zero
const (
	DefaultBufferSize   = 100
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second
	DefaultReadTimeout  = 60 * time.Second
)

// Options tune one connection
type Options struct {
	BufferSize   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	return o
}

var _ interfaces.Connection = (*Connection)(nil)

// Connection wraps a gorilla connection with a single writer goroutine
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; the writer
// owns data frames and pings, so nothing else ever writes to conn
type Connection struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	opts      Options
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewConnection starts the writer for conn
func NewConnection(conn *websocket.Conn, opts Options, logger *slog.Logger) *Connection {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, opts.BufferSize),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}
	c.logger = logger.With(slog.String("conn_id", c.id))

	go c.writeLoop()
	return c
}

func (c *Connection) ID() string {
	return c.id
}

// Done is closed once the connection is closed
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// WriteJSON encodes v and queues it without blocking
// FUNCTIONAL DISCOVERY: A slow client must never stall a broadcast, so a
// full queue drops the frame for this connection only
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the writer and closes the socket; repeated calls are no-ops
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = c.conn.Close()
		}
	})
	return err
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.fail(err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Connection) fail(err error) {
	c.logger.Debug("websocket write failed", slog.Any("error", err))
	_ = c.Close()
}
