package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/FlorentLefevre-lab/dating-app-sub001/internal/event"

	"github.com/gorilla/websocket"
)

var errConnClosed = errors.New("ws: connection closed")

// wsConn — одно live-соединение. Исходящий путь — ограниченная очередь:
// отправка никогда не блокирует broadcaster; переполнение очереди
// роняет соединение (клиент переподключится и дочитает через sync).
type wsConn struct {
	conn   *websocket.Conn
	userID int64

	out       chan event.Event
	closed    chan struct{}
	closeOnce sync.Once
}

func newWsConn(c *websocket.Conn, userID int64, queueSize int) *wsConn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &wsConn{
		conn:   c,
		userID: userID,
		out:    make(chan event.Event, queueSize),
		closed: make(chan struct{}),
	}
}

// Send ставит событие в очередь записи. Полная очередь означает
// зависшего клиента: соединение закрывается, не задерживая остальных.
func (c *wsConn) Send(ev event.Event) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}

	select {
	case c.out <- ev:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		_ = c.Close()
		return errors.New("ws: outbound queue overflow")
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

func (c *wsConn) UserID() int64 { return c.userID }

// writeLoop — единственный писатель в сокет: очередь + ping.
func (c *wsConn) writeLoop(pingEvery time.Duration, onPing func()) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev := <-c.out:
			c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(ev); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			if onPing != nil {
				onPing()
			}
		case <-c.closed:
			return
		}
	}
}
