/*
Test-only websocket echo servers. Whatever a client sends is replayed
back on the same connection, which is all the connection suites need to
prove the chain end to end.
*/
package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/getlayered/layerconn/logger"
	"github.com/gorilla/websocket"
)

type WebsocketServer struct {
	logger *logger.Logger
	server *httptest.Server
	conn   *websocket.Conn

	// Everything the server has read off the connection
	ReceivedBytes chan []byte

	// host:port of the listener, for building ws:// or wss:// targets
	Host string
}

func NewWebsocketServer(logger *logger.Logger) *WebsocketServer {
	w := &WebsocketServer{
		logger:        logger,
		ReceivedBytes: make(chan []byte, 50),
	}

	w.server = httptest.NewServer(http.HandlerFunc(w.Serve))
	w.Host = strings.TrimPrefix(w.server.URL, "http://")

	return w
}

// NewTLSWebsocketServer serves the same echo behavior behind a
// self-signed certificate, for exercising the secure layer.
func NewTLSWebsocketServer(logger *logger.Logger) *WebsocketServer {
	w := &WebsocketServer{
		logger:        logger,
		ReceivedBytes: make(chan []byte, 50),
	}

	w.server = httptest.NewTLSServer(http.HandlerFunc(w.Serve))
	w.Host = strings.TrimPrefix(w.server.URL, "https://")

	return w
}

func (w *WebsocketServer) Serve(writer http.ResponseWriter, request *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		w.logger.Errorf("failed to upgrade websocket: %s", err)
		return
	}
	w.conn = conn

	defer conn.Close()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				w.logger.Errorf("failed to read from websocket connection: %s", err)
			}
			return
		}

		select {
		case w.ReceivedBytes <- message:
		default:
		}

		if err := conn.WriteMessage(messageType, message); err != nil {
			w.logger.Errorf("failed to write to websocket connection: %s", err)
			return
		}
	}
}

// Ping sends a ping control frame to the connected client.
func (w *WebsocketServer) Ping(payload []byte) error {
	return w.conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(time.Second))
}

// Close performs an elegant close of the active connection.
func (w *WebsocketServer) Close() {
	if w.conn != nil {
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		w.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	}
}

// ForceClose drops the active connection without a close frame.
func (w *WebsocketServer) ForceClose() {
	if w.conn != nil {
		w.conn.Close()
	}
}

// Shutdown tears down the listener and any active connection.
func (w *WebsocketServer) Shutdown() {
	w.ForceClose()
	w.server.Close()
}
