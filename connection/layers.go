package connection

import (
	"github.com/getlayered/layerconn/connection/target"
	"github.com/getlayered/layerconn/connection/transport"
	"github.com/getlayered/layerconn/connection/transport/tcp"
	"github.com/getlayered/layerconn/connection/transport/tls"
	"github.com/getlayered/layerconn/connection/transport/ws"
	"github.com/getlayered/layerconn/logger"
)

// layerFactory builds the concrete transport layers. Production code
// uses the default factory below; tests substitute their own to drive
// the state machine with synthesized layer events.
type layerFactory interface {
	Stream(logger *logger.Logger, resolved *target.Resolved, onState transport.StateHandler) transport.StreamLayer
	Secure(logger *logger.Logger, lower transport.StreamLayer, resolved *target.Resolved, skipVerify bool, onState transport.StateHandler) transport.StreamLayer
	Protocol(logger *logger.Logger, lower transport.StreamLayer, config ws.Config, onData transport.DataHandler, onState transport.StateHandler) transport.ProtocolLayer
}

type defaultLayerFactory struct{}

func (defaultLayerFactory) Stream(logger *logger.Logger, resolved *target.Resolved, onState transport.StateHandler) transport.StreamLayer {
	return tcp.New(logger, resolved.Hostname, resolved.Service, onState)
}

func (defaultLayerFactory) Secure(logger *logger.Logger, lower transport.StreamLayer, resolved *target.Resolved, skipVerify bool, onState transport.StateHandler) transport.StreamLayer {
	return tls.New(logger, lower, resolved.Hostname, skipVerify, onState)
}

func (defaultLayerFactory) Protocol(logger *logger.Logger, lower transport.StreamLayer, config ws.Config, onData transport.DataHandler, onState transport.StateHandler) transport.ProtocolLayer {
	return ws.New(logger, lower, config, onData, onState)
}

// ensureStreamLayer lazily constructs and starts the stream layer. It's
// idempotent: a second call returns the existing handle untouched. The
// post-construction state check catches an Open racing a concurrent
// Close, in which case the fresh handle is discarded before Start.
func (c *Client) ensureStreamLayer() (transport.StreamLayer, error) {
	c.initLock.Lock()
	defer c.initLock.Unlock()

	if layer := c.streamLayer.Load(); layer != nil {
		return *layer, nil
	}

	layer := c.factory.Stream(c.logger.GetComponentLogger("Tcp"), c.resolved, func(state transport.State) {
		switch state {
		case transport.Connected:
			if c.resolved.Secure() {
				if _, err := c.ensureSecureLayer(); err != nil {
					c.asyncLayerFailure("tls", err)
				}
			} else {
				if _, err := c.ensureProtocolLayer(); err != nil {
					c.asyncLayerFailure("websocket", err)
				}
			}
		case transport.Failed:
			failure := &LayerError{Layer: "tcp"}
			c.events.fireError(failure.Error())
			c.shutdown(failure)
		case transport.Disconnected:
			c.shutdown(nil)
		}
	})

	c.streamLayer.Store(&layer)
	if c.state.Load() == Closed {
		c.streamLayer.Store(nil)
		return nil, ErrConnectionClosed
	}

	if err := layer.Start(); err != nil {
		return nil, err
	}
	return layer, nil
}

func (c *Client) ensureSecureLayer() (transport.StreamLayer, error) {
	c.initLock.Lock()
	defer c.initLock.Unlock()

	if layer := c.secureLayer.Load(); layer != nil {
		return *layer, nil
	}

	lower := c.streamLayer.Load()
	if lower == nil {
		return nil, ErrConnectionClosed
	}

	layer := c.factory.Secure(c.logger.GetComponentLogger("Tls"), *lower, c.resolved, c.config.DisableTLSVerification, func(state transport.State) {
		switch state {
		case transport.Connected:
			if _, err := c.ensureProtocolLayer(); err != nil {
				c.asyncLayerFailure("websocket", err)
			}
		case transport.Failed:
			failure := &LayerError{Layer: "tls"}
			c.events.fireError(failure.Error())
			c.shutdown(failure)
		case transport.Disconnected:
			c.shutdown(nil)
		}
	})

	c.secureLayer.Store(&layer)
	if c.state.Load() == Closed {
		c.secureLayer.Store(nil)
		return nil, ErrConnectionClosed
	}

	if err := layer.Start(); err != nil {
		return nil, err
	}
	return layer, nil
}

func (c *Client) ensureProtocolLayer() (transport.ProtocolLayer, error) {
	c.initLock.Lock()
	defer c.initLock.Unlock()

	if layer := c.protocolLayer.Load(); layer != nil {
		return *layer, nil
	}

	// The protocol layer sits on the secure layer when one exists,
	// otherwise directly on the stream layer
	lower := c.secureLayer.Load()
	if lower == nil {
		lower = c.streamLayer.Load()
	}
	if lower == nil {
		return nil, ErrConnectionClosed
	}

	config := ws.Config{
		Host:      c.resolved.Host,
		Path:      c.resolved.Path,
		Protocols: c.config.Protocols,
	}

	layer := c.factory.Protocol(c.logger.GetComponentLogger("Websocket"), *lower, config, c.incoming, func(state transport.State) {
		switch state {
		case transport.Connected:
			// Guards against a stray late event after closing: only a
			// Connecting client can open
			if c.state.CompareAndSwap(Connecting, Open) {
				c.logger.Info("Connection open")
				c.events.fireOpen()
			}
		case transport.Failed:
			failure := &LayerError{Layer: "websocket"}
			c.events.fireError(failure.Error())
			c.shutdown(failure)
		case transport.Disconnected:
			c.shutdown(nil)
		}
	})

	c.protocolLayer.Store(&layer)
	if c.state.Load() == Closed {
		c.protocolLayer.Store(nil)
		return nil, ErrConnectionClosed
	}

	if err := layer.Start(); err != nil {
		return nil, err
	}
	return layer, nil
}

// asyncLayerFailure converts a construction failure that surfaced on a
// layer's own goroutine, where no caller can receive it, into an error
// event plus forced closure.
func (c *Client) asyncLayerFailure(layer string, err error) {
	failure := &LayerError{Layer: layer, Err: err}
	c.logger.Errorf("failed to initialize %s layer: %s", layer, err)
	c.events.fireError(failure.Error())
	c.shutdown(failure)
}
