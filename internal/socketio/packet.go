// Package socketio implements the small subset of Engine.IO v4 and
// Socket.IO v5 framing spoken by the notifier: handshake, namespace
// connect, heartbeat and events on the default namespace, over a plain
// WebSocket transport.
package socketio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.IO packet types.
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
)

// Socket.IO packet types, carried inside an Engine.IO message.
const (
	SocketConnect      byte = '0'
	SocketDisconnect   byte = '1'
	SocketEvent        byte = '2'
	SocketConnectError byte = '4'
)

// Path is the default Socket.IO endpoint.
const Path = "/socket.io/"

var (
	ErrEmptyPacket    = errors.New("socketio: empty packet")
	ErrMalformedEvent = errors.New("socketio: malformed event")
)

// Handshake is the payload of the Engine.IO open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

// Deadline is how long a client may wait for the next server ping.
func (h Handshake) Deadline() time.Duration {
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

// Packet is one decoded frame.
type Packet struct {
	Engine byte
	// Socket is set for Engine.IO message packets.
	Socket byte
	Data   []byte
}

// Decode splits a WebSocket text frame into its packet types and data.
func Decode(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	p := Packet{Engine: frame[0], Data: frame[1:]}
	if p.Engine != EngineMessage {
		return p, nil
	}
	if len(p.Data) == 0 {
		return Packet{}, fmt.Errorf("%w: message without socket type", ErrEmptyPacket)
	}
	p.Socket = p.Data[0]
	p.Data = p.Data[1:]
	// default namespace only; strip an explicit "/," prefix
	if bytes.HasPrefix(p.Data, []byte("/,")) {
		p.Data = p.Data[2:]
	}
	return p, nil
}

// Event decodes a Socket.IO EVENT payload, ["name", arg...].
func (p Packet) Event() (string, []json.RawMessage, error) {
	if p.Engine != EngineMessage || p.Socket != SocketEvent {
		return "", nil, fmt.Errorf("%w: not an event packet", ErrMalformedEvent)
	}
	// an ack id may precede the array
	data := bytes.TrimLeft(p.Data, "0123456789")
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil || len(parts) == 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrMalformedEvent, p.Data)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %w", ErrMalformedEvent, err)
	}
	return name, parts[1:], nil
}

// ConnectError returns the message of a CONNECT_ERROR packet.
func (p Packet) ConnectError() string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Data, &body); err != nil {
		return string(p.Data)
	}
	return body.Message
}

// Encoders for the frames both sides send.

func Open(h Handshake) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append([]byte{EngineOpen}, data...), nil
}

func Ping() []byte { return []byte{EnginePing} }

func Pong() []byte { return []byte{EnginePong} }

// Connect is the client's namespace connect request.
func Connect() []byte { return []byte{EngineMessage, SocketConnect} }

// ConnectAck is the server's answer to Connect.
func ConnectAck(sid string) []byte {
	data, _ := json.Marshal(map[string]string{"sid": sid})
	return append([]byte{EngineMessage, SocketConnect}, data...)
}

func ConnectRefused(message string) []byte {
	data, _ := json.Marshal(map[string]string{"message": message})
	return append([]byte{EngineMessage, SocketConnectError}, data...)
}

func Disconnect() []byte { return []byte{EngineMessage, SocketDisconnect} }

// Event encodes ["name", payload].
func Event(name string, payload any) ([]byte, error) {
	data, err := json.Marshal([]any{name, payload})
	if err != nil {
		return nil, err
	}
	return append([]byte{EngineMessage, SocketEvent}, data...), nil
}
