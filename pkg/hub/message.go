// Package hub provides a thread-safe websocket broadcast hub
// using the channel-based fan-out pattern. It carries pipeline events
// to dashboard clients.
package hub

// Message is a pre-encoded text frame to be broadcast to clients
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded JSON
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
