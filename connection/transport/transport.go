/*
The transport package defines the contract every layer of the transport
stack satisfies, whether it's the raw tcp stream, the tls wrapper, or
the websocket protocol handler on top.

Layers of the connection architecture:
1. Stream layer (tcp)
2. Secure layer (tls, only for wss targets)
3. Protocol layer (websocket framing)

Each layer is constructed with the callbacks it reports through, started
without blocking, and stopped exactly once, never from the layer's own
worker goroutine.
*/
package transport

import (
	"net"

	"github.com/getlayered/layerconn/connection/message"
)

// State is a layer's own connection state, independent of the state of
// the Connection that owns it.
type State int

const (
	Connecting State = iota + 1
	Connected
	Failed
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Failed:
		return "Failed"
	case Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// StateHandler is invoked on the layer's own worker goroutine, never on
// the caller's.
type StateHandler func(state State)

// DataHandler delivers a received message on the layer's worker
// goroutine. A nil message is the sentinel for remote closure.
type DataHandler func(m *message.Message)

type Layer interface {
	// Start begins the layer's async connect/handshake and returns
	// without blocking on it.
	Start() error

	// Stop tears the layer down and blocks until its worker goroutine
	// has exited. Must not be called from that worker.
	Stop()
}

// StreamLayer is a layer that exposes its underlying byte stream so the
// next layer can be constructed on top of it.
type StreamLayer interface {
	Layer
	Conn() net.Conn
}

// ProtocolLayer is the topmost, message-framing layer.
type ProtocolLayer interface {
	Layer

	// Send reports whether the message was handed to the wire.
	Send(m message.Message) bool

	// Close requests a graceful protocol-level shutdown; the resulting
	// Disconnected state arrives asynchronously.
	Close()
}
