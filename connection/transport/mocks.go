package transport

import (
	"net"

	"github.com/getlayered/layerconn/connection/message"
	"github.com/stretchr/testify/mock"
)

type MockStreamLayer struct {
	mock.Mock
}

func (m *MockStreamLayer) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStreamLayer) Stop() {
	m.Called()
}

func (m *MockStreamLayer) Conn() net.Conn {
	args := m.Called()
	if conn, ok := args.Get(0).(net.Conn); ok {
		return conn
	}
	return nil
}

type MockProtocolLayer struct {
	mock.Mock
}

func (m *MockProtocolLayer) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockProtocolLayer) Stop() {
	m.Called()
}

func (m *MockProtocolLayer) Close() {
	m.Called()
}

func (m *MockProtocolLayer) Send(msg message.Message) bool {
	args := m.Called()
	return args.Bool(0)
}
