/*
The message package defines the framed messages that travel between the
protocol layer and the connection. Data messages (text or binary) are
what the application consumes; control messages are protocol-internal
(pings, close bookkeeping) and never surface through Receive.
*/
package message

type Type int

const (
	Invalid Type = iota
	Text
	Binary
	Control
)

func (t Type) String() string {
	switch t {
	case Text:
		return "Text"
	case Binary:
		return "Binary"
	case Control:
		return "Control"
	default:
		return "Invalid"
	}
}

type Message struct {
	Type    Type
	Payload []byte
}

// IsData reports whether the message should be surfaced to the consumer.
func (m Message) IsData() bool {
	return m.Type == Text || m.Type == Binary
}

// SizeFunc computes the amount a message contributes to queue
// backpressure accounting.
type SizeFunc func(Message) int

// DefaultSize accounts by payload byte length.
func DefaultSize(m Message) int {
	return len(m.Payload)
}
