// network/connection.go
package network

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

const writeWait = 10 * time.Second

// Connection is one client transport. Send never blocks: it queues the line or fails.
type Connection interface {
	Send(text string) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadMessage() (string, error)
}

type WSConnection struct {
	conn      *websocket.Conn
	send      chan string
	heartbeat chan time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

// NewWSConnection wraps conn and starts its writer; queueSize bounds pending outbound lines.
func NewWSConnection(conn *websocket.Conn, queueSize int) *WSConnection {
	c := &WSConnection{
		conn:      conn,
		send:      make(chan string, queueSize),
		heartbeat: make(chan time.Duration, 1),
		done:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *WSConnection) Send(text string) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- text:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *WSConnection) ReadMessage() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetHeartbeat pings the peer every interval and drops it after two silent intervals.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	if interval <= 0 {
		return
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})

	select {
	case c.heartbeat <- interval:
	default:
	}
}

func (c *WSConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// writeLoop is the only goroutine that writes data frames.
func (c *WSConnection) writeLoop() {
	ping := time.NewTicker(time.Hour)
	ping.Stop()
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return

		case interval := <-c.heartbeat:
			ping.Reset(interval)

		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.Close()
				return
			}

		case text := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}
