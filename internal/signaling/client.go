package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/camlink/internal/util"
)

// Sentinel errors mapping the failure classes the session controller reacts
// to. All are fatal to the current attempt.
var (
	ErrConnect        = errors.New("signaling connect failed")
	ErrSend           = errors.New("signaling send failed")
	ErrConnectionLost = errors.New("signaling connection lost")
)

// Client owns one WebSocket connection to the relay for the duration of one
// attempt. Writes are serialized by a mutex; reads happen on the single
// Listen goroutine.
type Client struct {
	conn *websocket.Conn

	mu        sync.Mutex // guards writes and the closed flag
	closed    bool
	listening bool
}

// Dial connects to the relay, failing if timeout elapses, and announces the
// sender role before returning. The role message must be the first thing the
// relay sees on this connection.
func Dial(ctx context.Context, url string, timeout time.Duration) (*Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, url, err)
	}

	c := &Client{conn: conn}
	if err := c.Send(Message{Type: MsgTypeRole, Role: RoleSender}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: role announcement: %v", ErrConnect, err)
	}

	util.LogInfo("connected to signaling relay: %s", url)
	return c, nil
}

// Send serializes msg to JSON and writes it, guarded by a mutex.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connection closed", ErrSend)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrSend, err)
	}
	return nil
}

// Listen starts the receive loop and returns its channels. Messages arrive
// on the first channel strictly in wire order; exactly one error is
// delivered on the second when the loop terminates (peer close, transport
// error, or ctx cancellation via Close). Listen may be called once.
func (c *Client) Listen(ctx context.Context) (<-chan Message, <-chan error) {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		panic("signaling: Listen called twice")
	}
	c.listening = true
	c.mu.Unlock()

	msgCh := make(chan Message)
	errCh := make(chan error, 1)

	go func() {
		defer close(msgCh)
		for {
			var msg Message
			if err := c.conn.ReadJSON(&msg); err != nil {
				errCh <- fmt.Errorf("%w: %v", ErrConnectionLost, err)
				return
			}
			select {
			case msgCh <- msg:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return msgCh, errCh
}

// Close shuts the connection down. Safe to call more than once; the Listen
// loop observes the close as a read error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
