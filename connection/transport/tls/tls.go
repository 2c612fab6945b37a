/*
The tls package is the secure layer: it wraps the stream layer's socket
in a client-side tls session. Certificate verification is on by default
and can be disabled for targets with self-signed certificates.
*/
package tls

import (
	stdtls "crypto/tls"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/getlayered/layerconn/connection/transport"
	"github.com/getlayered/layerconn/logger"
	"gopkg.in/tomb.v2"
)

const handshakeTimeout = 15 * time.Second

type Transport struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	lower      transport.StreamLayer
	serverName string
	skipVerify bool

	started atomic.Bool
	conn    atomic.Pointer[stdtls.Conn]
	onState transport.StateHandler
}

func New(logger *logger.Logger, lower transport.StreamLayer, serverName string, skipVerify bool, onState transport.StateHandler) *Transport {
	return &Transport{
		logger:     logger,
		lower:      lower,
		serverName: serverName,
		skipVerify: skipVerify,
		onState:    onState,
	}
}

func (t *Transport) Start() error {
	t.started.Store(true)
	t.tmb.Go(t.handshake)
	return nil
}

func (t *Transport) handshake() error {
	t.onState(transport.Connecting)

	rawConn := t.lower.Conn()
	if rawConn == nil {
		t.onState(transport.Failed)
		return fmt.Errorf("no underlying stream to secure")
	}

	if t.skipVerify {
		t.logger.Infof("Tls certificate verification is disabled")
	}

	conn := stdtls.Client(rawConn, &stdtls.Config{
		ServerName:         t.serverName,
		InsecureSkipVerify: t.skipVerify,
	})

	rawConn.SetDeadline(time.Now().Add(handshakeTimeout))
	err := conn.Handshake()
	rawConn.SetDeadline(time.Time{})

	if err != nil {
		if t.tmb.Alive() {
			t.logger.Errorf("tls handshake failed: %s", err)
			t.onState(transport.Failed)
		}
		return fmt.Errorf("tls handshake failed: %w", err)
	}

	t.conn.Store(conn)

	if !t.tmb.Alive() {
		conn.Close()
		return nil
	}

	t.logger.Infof("Tls session established with %s", t.serverName)
	t.onState(transport.Connected)

	<-t.tmb.Dying()
	return nil
}

func (t *Transport) Conn() net.Conn {
	if conn := t.conn.Load(); conn != nil {
		return conn
	}
	return nil
}

func (t *Transport) Stop() {
	if !t.started.Load() {
		return
	}

	if !t.tmb.Alive() {
		return
	}

	t.tmb.Kill(nil)
	if conn := t.conn.Load(); conn != nil {
		conn.Close()
	}
	t.tmb.Wait()
	t.logger.Info("Tls transport stopped")
}
