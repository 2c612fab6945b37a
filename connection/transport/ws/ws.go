/*
The ws package is the protocol layer at the top of the transport stack.
It runs the websocket upgrade handshake over whichever stream is below
it (tcp, or tls for secure targets) and frames application messages from
then on. The handshake and framing are gorilla's; this layer's job is
feeding gorilla the already-connected lower socket and translating its
read loop into the transport contract's data and state callbacks.
*/
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getlayered/layerconn/connection/message"
	"github.com/getlayered/layerconn/connection/transport"
	"github.com/getlayered/layerconn/logger"
	gorilla "github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"
)

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
)

type Config struct {
	// Composite host for the handshake request, hostname:service unless
	// the default service is implied
	Host string

	// Request path including any query
	Path string

	// Offered subprotocols
	Protocols []string
}

type Transport struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	lower  transport.StreamLayer
	config Config

	started atomic.Bool
	client  atomic.Pointer[gorilla.Conn]

	// gorilla allows at most one concurrent writer
	writeLock sync.Mutex

	onData  transport.DataHandler
	onState transport.StateHandler
}

func New(logger *logger.Logger, lower transport.StreamLayer, config Config, onData transport.DataHandler, onState transport.StateHandler) *Transport {
	return &Transport{
		logger:  logger,
		lower:   lower,
		config:  config,
		onData:  onData,
		onState: onState,
	}
}

func (t *Transport) Start() error {
	t.started.Store(true)
	t.tmb.Go(t.run)
	return nil
}

func (t *Transport) run() error {
	t.onState(transport.Connecting)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-ctx.Done():
		case <-t.tmb.Dying():
			cancel()
		}
	}()

	// The lower layer already carries tls when the target is secure, so
	// the upgrade url is always plain ws; gorilla never re-dials because
	// we hand it the existing socket
	dialer := gorilla.Dialer{
		NetDialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if conn := t.lower.Conn(); conn != nil {
				return conn, nil
			}
			return nil, fmt.Errorf("no underlying stream to upgrade")
		},
		Subprotocols:     t.config.Protocols,
		HandshakeTimeout: handshakeTimeout,
	}

	upgradeUrl := "ws://" + t.config.Host + t.config.Path

	client, _, err := dialer.DialContext(ctx, upgradeUrl, nil)
	if err != nil {
		if t.tmb.Alive() {
			t.logger.Errorf("websocket handshake failed: %s", err)
			t.onState(transport.Failed)
		}
		return fmt.Errorf("websocket handshake failed: %w", err)
	}

	t.client.Store(client)

	if !t.tmb.Alive() {
		client.Close()
		return nil
	}

	// Surface pings as control messages; the pong reply is ours to send
	// since we replace gorilla's default handler
	client.SetPingHandler(func(appData string) error {
		t.onData(&message.Message{Type: message.Control, Payload: []byte(appData)})
		return client.WriteControl(gorilla.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	t.logger.Infof("Websocket open on %s%s", t.config.Host, t.config.Path)
	t.onState(transport.Connected)

	return t.receive(client)
}

func (t *Transport) receive(client *gorilla.Conn) error {
	for {
		messageType, payload, err := client.ReadMessage()
		if !t.tmb.Alive() {
			return nil
		}

		if err != nil {
			if gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) || errors.Is(err, io.EOF) {
				t.logger.Info("Websocket closed by remote")
				t.onData(nil)
				t.onState(transport.Disconnected)
				return nil
			}

			t.logger.Errorf("websocket read failed: %s", err)
			t.onState(transport.Failed)
			return err
		}

		switch messageType {
		case gorilla.TextMessage:
			t.onData(&message.Message{Type: message.Text, Payload: payload})
		case gorilla.BinaryMessage:
			t.onData(&message.Message{Type: message.Binary, Payload: payload})
		}
	}
}

// Send reports whether the message was handed to the wire.
func (t *Transport) Send(m message.Message) bool {
	client := t.client.Load()
	if client == nil {
		return false
	}

	frameType := gorilla.BinaryMessage
	if m.Type == message.Text {
		frameType = gorilla.TextMessage
	}

	t.writeLock.Lock()
	defer t.writeLock.Unlock()

	client.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := client.WriteMessage(frameType, m.Payload); err != nil {
		t.logger.Errorf("failed to write websocket message: %s", err)
		return false
	}
	return true
}

// Close requests a graceful shutdown by sending a close frame; the
// remote's echo surfaces as a Disconnected state on the read loop.
func (t *Transport) Close() {
	client := t.client.Load()
	if client == nil {
		return
	}

	t.logger.Info("Sending websocket close frame")
	closeFrame := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
	if err := client.WriteControl(gorilla.CloseMessage, closeFrame, time.Now().Add(writeTimeout)); err != nil {
		t.logger.Errorf("failed to send close frame: %s", err)
	}
}

func (t *Transport) Stop() {
	if !t.started.Load() {
		return
	}

	if !t.tmb.Alive() {
		return
	}

	t.tmb.Kill(nil)
	if client := t.client.Load(); client != nil {
		client.Close()
	}
	t.tmb.Wait()
	t.logger.Info("Websocket transport stopped")
}
