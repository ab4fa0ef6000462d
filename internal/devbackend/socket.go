package devbackend

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/petwalk/petwalk/internal/socketio"
)

const connectWait = 5 * time.Second

// socket is one connected notifier client.
type socket struct {
	ws     *websocket.Conn
	userID string

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (c *socket) write(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(connectWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *socket) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// handleSocket serves the notifier endpoint. The access token travels in
// the token query parameter and is checked at namespace connect.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
		writeMessage(w, http.StatusBadRequest, "only EIO=4 over websocket is supported")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("Socket upgrade failed", "error", err)
		return
	}
	c := &socket{ws: ws, done: make(chan struct{})}
	defer c.close()

	interval := int(s.opts.PingInterval / time.Millisecond)
	open, err := socketio.Open(socketio.Handshake{
		SID:          uuid.NewString(),
		Upgrades:     []string{},
		PingInterval: interval,
		PingTimeout:  interval,
	})
	if err != nil || c.write(open) != nil {
		return
	}

	_ = ws.SetReadDeadline(time.Now().Add(connectWait))
	_, frame, err := ws.ReadMessage()
	if err != nil {
		return
	}
	p, err := socketio.Decode(frame)
	if err != nil || p.Engine != socketio.EngineMessage || p.Socket != socketio.SocketConnect {
		_ = c.write(socketio.ConnectRefused("expected namespace connect"))
		return
	}

	userID, err := s.verify(q.Get("token"))
	if err == nil {
		if _, ok := s.userByID(userID); !ok {
			err = ErrMissingSubject
		}
	}
	if err != nil {
		s.opts.Logger.Debug("Refused socket connect", "error", err)
		_ = c.write(socketio.ConnectRefused("invalid token"))
		return
	}
	c.userID = userID
	if c.write(socketio.ConnectAck(uuid.NewString())) != nil {
		return
	}

	s.addSocket(c)
	defer s.removeSocket(c)
	s.opts.Logger.Debug("Socket connected", "user", userID)

	go s.heartbeat(c)
	s.readSocket(c)
}

func (s *Server) heartbeat(c *socket) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if c.write(socketio.Ping()) != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) readSocket(c *socket) {
	for {
		_ = c.ws.SetReadDeadline(time.Now().Add(2 * s.opts.PingInterval))
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		p, err := socketio.Decode(frame)
		if err != nil {
			continue
		}
		switch {
		case p.Engine == socketio.EngineClose:
			return
		case p.Engine == socketio.EngineMessage && p.Socket == socketio.SocketDisconnect:
			return
		}
	}
}

func (s *Server) addSocket(c *socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sockets[c.userID]
	if !ok {
		set = make(map[*socket]struct{})
		s.sockets[c.userID] = set
	}
	set[c] = struct{}{}
}

func (s *Server) removeSocket(c *socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sockets[c.userID], c)
	if len(s.sockets[c.userID]) == 0 {
		delete(s.sockets, c.userID)
	}
}

// Notify sends an event to every socket of userID and reports how many
// received it.
func (s *Server) Notify(userID, event string, payload any) int {
	frame, err := socketio.Event(event, payload)
	if err != nil {
		s.opts.Logger.Error("Failed to encode notification", "event", event, "error", err)
		return 0
	}

	s.mu.Lock()
	targets := make([]*socket, 0, len(s.sockets[userID]))
	for c := range s.sockets[userID] {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if c.write(frame) == nil {
			sent++
		}
	}
	return sent
}

// Connections reports how many sockets userID has open.
func (s *Server) Connections(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sockets[userID])
}

// DisconnectAll drops every socket with a server-side disconnect.
func (s *Server) DisconnectAll() {
	s.mu.Lock()
	var all []*socket
	for _, set := range s.sockets {
		for c := range set {
			all = append(all, c)
		}
	}
	s.mu.Unlock()

	for _, c := range all {
		_ = c.write(socketio.Disconnect())
		c.close()
	}
}
