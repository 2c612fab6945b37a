/*
The tcp package is the stream layer at the bottom of the transport
stack. It owns the dial and nothing else: once connected, the socket is
read and written by whichever layer sits on top, so this layer never
consumes bytes itself.
*/
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/getlayered/layerconn/connection/transport"
	"github.com/getlayered/layerconn/logger"
	"gopkg.in/tomb.v2"
)

const dialTimeout = 15 * time.Second

type Transport struct {
	tmb    tomb.Tomb
	logger *logger.Logger

	hostname string
	service  string

	started atomic.Bool
	conn    atomic.Pointer[net.Conn]
	onState transport.StateHandler
}

func New(logger *logger.Logger, hostname string, service string, onState transport.StateHandler) *Transport {
	return &Transport{
		logger:   logger,
		hostname: hostname,
		service:  service,
		onState:  onState,
	}
}

func (t *Transport) Start() error {
	t.started.Store(true)
	t.tmb.Go(t.connect)
	return nil
}

func (t *Transport) connect() error {
	t.logger.Infof("Connecting to %s", net.JoinHostPort(t.hostname, t.service))
	t.onState(transport.Connecting)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	// Release the dial if we're stopped while still connecting
	go func() {
		select {
		case <-ctx.Done():
		case <-t.tmb.Dying():
			cancel()
		}
	}()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(t.hostname, t.service))
	if err != nil {
		if t.tmb.Alive() {
			t.logger.Errorf("failed to dial: %s", err)
			t.onState(transport.Failed)
		}
		return fmt.Errorf("tcp dial failed: %w", err)
	}

	t.conn.Store(&conn)

	if !t.tmb.Alive() {
		conn.Close()
		return nil
	}

	t.logger.Infof("Connected to %s", conn.RemoteAddr())
	t.onState(transport.Connected)

	// The socket now belongs to the layer above; hold it until we die
	<-t.tmb.Dying()
	return nil
}

func (t *Transport) Conn() net.Conn {
	if conn := t.conn.Load(); conn != nil {
		return *conn
	}
	return nil
}

func (t *Transport) Stop() {
	// A handle that was constructed but never started has no worker to
	// wait for
	if !t.started.Load() {
		return
	}

	if !t.tmb.Alive() {
		return
	}

	t.tmb.Kill(nil)
	if conn := t.conn.Load(); conn != nil {
		(*conn).Close()
	}
	t.tmb.Wait()
	t.logger.Info("Tcp transport stopped")
}
