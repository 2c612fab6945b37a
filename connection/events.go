package connection

import (
	"sync/atomic"

	"github.com/getlayered/layerconn/connection/message"
)

// eventHandlers holds the consumer's registered callbacks. Each slot is
// an atomic pointer so handlers can be replaced at runtime and cleared
// in one shot during shutdown: a callback still in flight afterwards
// loads nil and performs no user-visible action.
type eventHandlers struct {
	onOpen    atomic.Pointer[func()]
	onClosed  atomic.Pointer[func()]
	onError   atomic.Pointer[func(reason string)]
	onMessage atomic.Pointer[func(m message.Message)]
}

func (e *eventHandlers) fireOpen() {
	if handler := e.onOpen.Load(); handler != nil {
		(*handler)()
	}
}

func (e *eventHandlers) fireClosed() {
	if handler := e.onClosed.Load(); handler != nil {
		(*handler)()
	}
}

func (e *eventHandlers) fireError(reason string) {
	if handler := e.onError.Load(); handler != nil {
		(*handler)(reason)
	}
}

// fireMessage reports whether a handler consumed the message.
func (e *eventHandlers) fireMessage(m message.Message) bool {
	if handler := e.onMessage.Load(); handler != nil {
		(*handler)(m)
		return true
	}
	return false
}

func (e *eventHandlers) clear() {
	e.onOpen.Store(nil)
	e.onClosed.Store(nil)
	e.onError.Store(nil)
	e.onMessage.Store(nil)
}
