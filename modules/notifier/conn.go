package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/petwalk/petwalk"
	"github.com/petwalk/petwalk/internal/socketio"
)

// EventFunc receives each server event with its first argument.
type EventFunc func(name string, payload json.RawMessage)

// Conn is one established notifier connection.
type Conn struct {
	ws     *websocket.Conn
	logger petwalk.Logger
	hs     socketio.Handshake

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
	done    chan struct{}
	err     error
}

// SocketURL builds the WebSocket endpoint for a notifier base URL.
func SocketURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + socketio.Path
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial connects, completes the Engine.IO handshake and the namespace
// connect, then starts reading. The whole establishment is bounded by
// timeout.
func Dial(ctx context.Context, dialer *websocket.Dialer, endpoint string, timeout time.Duration, onEvent EventFunc, logger petwalk.Logger) (*Conn, error) {
	if logger == nil {
		logger = petwalk.NopLogger{}
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(dialCtx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	deadline, _ := dialCtx.Deadline()
	_ = ws.SetReadDeadline(deadline)

	c := &Conn{ws: ws, logger: logger, closed: make(chan struct{}), done: make(chan struct{})}
	if err := c.handshake(); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop(onEvent)
	return c, nil
}

func (c *Conn) handshake() error {
	p, err := c.read()
	if err != nil {
		return err
	}
	if p.Engine != socketio.EngineOpen {
		return fmt.Errorf("%w: expected open packet, got %q", ErrProtocol, p.Engine)
	}
	if err := json.Unmarshal(p.Data, &c.hs); err != nil {
		return fmt.Errorf("%w: handshake: %w", ErrProtocol, err)
	}

	if err := c.write(socketio.Connect()); err != nil {
		return err
	}
	for {
		p, err := c.read()
		if err != nil {
			return err
		}
		switch {
		case p.Engine == socketio.EnginePing:
			if err := c.write(socketio.Pong()); err != nil {
				return err
			}
		case p.Engine == socketio.EngineMessage && p.Socket == socketio.SocketConnect:
			return nil
		case p.Engine == socketio.EngineMessage && p.Socket == socketio.SocketConnectError:
			return fmt.Errorf("%w: %s", ErrConnectRefused, p.ConnectError())
		default:
			return fmt.Errorf("%w: unexpected packet %q during connect", ErrProtocol, p.Engine)
		}
	}
}

func (c *Conn) read() (socketio.Packet, error) {
	_, frame, err := c.ws.ReadMessage()
	if err != nil {
		return socketio.Packet{}, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return socketio.Decode(frame)
}

func (c *Conn) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("notifier write failed: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(onEvent EventFunc) {
	defer close(c.done)
	for {
		if d := c.hs.Deadline(); d > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(d))
		} else {
			_ = c.ws.SetReadDeadline(time.Time{})
		}

		p, err := c.read()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.err = err
			}
			return
		}

		switch p.Engine {
		case socketio.EnginePing:
			if err := c.write(socketio.Pong()); err != nil {
				c.err = err
				return
			}
		case socketio.EngineClose:
			c.err = ErrServerClosed
			return
		case socketio.EngineMessage:
			switch p.Socket {
			case socketio.SocketDisconnect:
				c.err = ErrServerClosed
				return
			case socketio.SocketEvent:
				name, args, err := p.Event()
				if err != nil {
					c.logger.Warn("Dropping malformed notification", "error", err)
					continue
				}
				var payload json.RawMessage
				if len(args) > 0 {
					payload = args[0]
				}
				onEvent(name, payload)
			}
		}
	}
}

// Done is closed when the read loop exits.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended; nil after Close.
func (c *Conn) Err() error {
	<-c.done
	return c.err
}

// Close sends a disconnect and closes the socket. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		_ = c.write(socketio.Disconnect())
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
		<-c.done
	})
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
