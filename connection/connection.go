/*
The connection package is the client-side connection engine: it owns the
lifecycle state machine, lazily chains the transport layers (tcp, tls
for secure targets, websocket framing on top), buffers inbound messages,
and tears the chain down without ever stopping a layer from that layer's
own goroutine.

Layers of the connection architecture:
1. Stream layer (transport/tcp)
2. Secure layer (transport/tls)
3. Protocol layer (transport/ws)
4. Connection manager <- this is us
*/
package connection

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/getlayered/layerconn/connection/message"
	"github.com/getlayered/layerconn/connection/queue"
	"github.com/getlayered/layerconn/connection/stopper"
	"github.com/getlayered/layerconn/connection/target"
	"github.com/getlayered/layerconn/connection/transport"
	"github.com/getlayered/layerconn/logger"
	"github.com/google/uuid"
)

const (
	// DefaultMaxMessageSize bounds a single outbound payload
	DefaultMaxMessageSize = 256 * 1024

	// DefaultQueueLimit bounds the inbound queue's backpressure amount
	DefaultQueueLimit = 1024 * 1024
)

type Config struct {
	// Subprotocols offered during the protocol handshake
	Protocols []string

	// Disables certificate verification on the secure layer
	DisableTLSVerification bool

	// Maximum outbound payload size; DefaultMaxMessageSize when zero
	MaxMessageSize int

	// Inbound queue amount limit; DefaultQueueLimit when zero
	QueueLimit int

	// When set, the inbound queue drops its oldest messages instead of
	// growing past the limit. Off by default: the limit is backpressure
	// accounting, not a drop policy.
	DropWhenFull bool

	// How a message's amount is computed; payload byte length when nil
	SizeFunc message.SizeFunc
}

type Client struct {
	logger *logger.Logger
	config Config

	state    atomicState
	resolved *target.Resolved

	// Flipped by the first accepted Open; a client is single-use and a
	// fresh one must be built to connect again
	used atomic.Bool

	// Serializes layer construction; the only lock in the package
	initLock sync.Mutex
	factory  layerFactory

	// At most one live instance of each layer; empty or
	// constructed-and-started, nothing in between
	streamLayer   atomic.Pointer[transport.StreamLayer]
	secureLayer   atomic.Pointer[transport.StreamLayer]
	protocolLayer atomic.Pointer[transport.ProtocolLayer]

	recvQueue *queue.Queue
	events    eventHandlers

	done     chan struct{}
	closeErr atomic.Pointer[error]
}

func New(logger *logger.Logger, config Config) *Client {
	if config.MaxMessageSize == 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}
	if config.QueueLimit == 0 {
		config.QueueLimit = DefaultQueueLimit
	}

	logger.AddField("connectionId", uuid.New().String())

	recvQueue := queue.New(config.QueueLimit, config.SizeFunc)
	recvQueue.DropWhenFull(config.DropWhenFull)

	return &Client{
		logger:    logger,
		config:    config,
		factory:   defaultLayerFactory{},
		recvQueue: recvQueue,
		done:      make(chan struct{}),
	}
}

// Open parses the target and begins asynchronous establishment. It only
// blocks while the stream layer is constructed; the connection is Open
// once the protocol layer reports Connected, observable via OnOpen.
// A client is single-use: once it has gone through a lifecycle it stays
// Closed and Open fails with ErrInvalidState.
func (c *Client) Open(rawTarget string) error {
	if c.state.Load() != Closed {
		return ErrInvalidState
	}

	resolved, err := target.Parse(rawTarget)
	if err != nil {
		return &InvalidTargetError{Target: rawTarget, Err: err}
	}

	if !c.used.CompareAndSwap(false, true) {
		return ErrInvalidState
	}
	if !c.state.CompareAndSwap(Closed, Connecting) {
		return ErrInvalidState
	}

	// Only the goroutine that won the swap gets here, so the field is
	// written exactly once per client
	c.resolved = resolved

	c.logger.Infof("Opening connection to %s%s", resolved.Host, resolved.Path)

	if _, err := c.ensureStreamLayer(); err != nil {
		c.shutdown(err)
		return fmt.Errorf("stream layer initialization failed: %w", err)
	}
	return nil
}

// Close requests a graceful shutdown and returns without waiting for
// teardown to finish. Idempotent, safe to call from any goroutine.
func (c *Client) Close() {
	for {
		state := c.state.Load()
		if state != Connecting && state != Open {
			return
		}
		// CAS so we can't resurrect a connection that a concurrent
		// failure already forced to Closed
		if c.state.CompareAndSwap(state, Closing) {
			break
		}
	}

	c.logger.Info("Closing connection")

	if layer := c.protocolLayer.Load(); layer != nil {
		// Ask the protocol layer to close cleanly; the resulting
		// Disconnected event finishes the job
		(*layer).Close()
	} else {
		// Nothing is established yet, finalize immediately
		c.shutdown(nil)
	}
}

// Send hands a binary payload to the protocol layer and reports whether
// it was written to the wire.
func (c *Client) Send(payload []byte) (bool, error) {
	return c.outgoing(message.Message{Type: message.Binary, Payload: payload})
}

// SendText is Send for text-framed payloads.
func (c *Client) SendText(payload string) (bool, error) {
	return c.outgoing(message.Message{Type: message.Text, Payload: []byte(payload)})
}

func (c *Client) outgoing(m message.Message) (bool, error) {
	layer := c.protocolLayer.Load()
	if c.state.Load() != Open || layer == nil {
		return false, ErrNotOpen
	}

	if len(m.Payload) > c.config.MaxMessageSize {
		return false, ErrMessageTooLarge
	}

	return (*layer).Send(m), nil
}

// Receive returns the next buffered data message, or nil when there is
// none. Leading control messages are drained and discarded.
func (c *Client) Receive() *message.Message {
	for {
		m, ok := c.recvQueue.TryPop()
		if !ok {
			return nil
		}
		if m.IsData() {
			return &m
		}
	}
}

// Peek returns the next buffered data message without removing it, or
// nil when there is none. Leading control messages are discarded.
func (c *Client) Peek() *message.Message {
	for {
		m, ok := c.recvQueue.Peek()
		if !ok {
			return nil
		}
		if m.IsData() {
			return &m
		}
		c.recvQueue.TryPop()
	}
}

// AvailableAmount returns the inbound queue's accumulated size.
func (c *Client) AvailableAmount() int {
	return c.recvQueue.Amount()
}

func (c *Client) ReadyState() State {
	return c.state.Load()
}

func (c *Client) IsOpen() bool {
	return c.state.Load() == Open
}

func (c *Client) IsClosed() bool {
	return c.state.Load() == Closed
}

// Done is closed once the connection has fully transitioned to Closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure that closed the connection, nil for a clean
// or caller-requested closure.
func (c *Client) Err() error {
	if err := c.closeErr.Load(); err != nil {
		return *err
	}
	return nil
}

func (c *Client) OnOpen(handler func()) {
	c.events.onOpen.Store(&handler)
}

func (c *Client) OnClosed(handler func()) {
	c.events.onClosed.Store(&handler)
}

func (c *Client) OnError(handler func(reason string)) {
	c.events.onError.Store(&handler)
}

// OnMessage registers a handler that consumes data messages directly,
// bypassing the inbound queue. Control messages are never delivered.
func (c *Client) OnMessage(handler func(m message.Message)) {
	c.events.onMessage.Store(&handler)
}

// incoming is the protocol layer's data callback, invoked on that
// layer's goroutine. A nil message means the remote ended the stream.
func (c *Client) incoming(m *message.Message) {
	if m == nil {
		c.shutdown(nil)
		return
	}

	if m.IsData() && c.events.fireMessage(*m) {
		return
	}

	c.recvQueue.Push(*m)
}

// shutdown coordinates teardown: flip to Closed, fire the
// closed event exactly once, clear the handlers, detach the layers and
// ship them to the stopper pool. Everything up to the pool handoff is
// safe from any goroutine, including a layer's own callback goroutine.
func (c *Client) shutdown(reason error) {
	if c.state.Exchange(Closed) {
		if reason != nil {
			c.closeErr.Store(&reason)
			c.logger.Infof("Connection closed because: %s", reason)
		} else {
			c.logger.Info("Connection closed")
		}

		c.events.fireClosed()
		close(c.done)
	}

	// No callback still in flight past this point can reach a handler
	c.events.clear()

	// Detach so no other code path can observe or reuse the handles
	protocol := c.protocolLayer.Swap(nil)
	secure := c.secureLayer.Swap(nil)
	stream := c.streamLayer.Swap(nil)

	if protocol == nil && secure == nil && stream == nil {
		return
	}

	// Stopping blocks until each layer's worker exits, so it runs on the
	// shared pool: a layer may be the very goroutine that brought us here
	stopper.Default().Enqueue(func() {
		if protocol != nil {
			(*protocol).Stop()
		}
		if secure != nil {
			(*secure).Stop()
		}
		if stream != nil {
			(*stream).Stop()
		}
	})
}
