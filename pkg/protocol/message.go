// Package protocol defines the WebSocket messages exchanged with the
// capture collaborator: the process that records utterances and runs
// wake-word detection.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Capture → core
	TypeUtterance MessageType = "utterance" // Finished recording

	// Core → capture
	TypeAccepted        MessageType = "accepted"         // Utterance accepted, turn started
	TypeBusy            MessageType = "busy"             // Utterance rejected, turn in flight
	TypeResumeListening MessageType = "resume_listening" // Listen for the next utterance
	TypeDeactivate      MessageType = "deactivate"       // Conversation over, wait for wake word
	TypeError           MessageType = "error"            // Malformed or unusable message

	// Bidirectional
	TypePing MessageType = "ping"
	TypePong MessageType = "pong"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data any) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s data: %w", msgType, err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into v. A message without data
// leaves v untouched.
func (m *Message) ParseData(v any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("parse message: missing type")
	}
	return &msg, nil
}

// UtteranceData hands a finished recording to the core. Either Path names
// a file on storage shared with the core, or Audio carries the recording
// inline.
type UtteranceData struct {
	ID     string `json:"id,omitempty"`
	Path   string `json:"path,omitempty"`
	Audio  string `json:"audio,omitempty"`  // base64 encoded
	Format string `json:"format,omitempty"` // "wav" when Audio is set
}

// AcceptedData confirms that a turn has started.
type AcceptedData struct {
	TurnID string `json:"turn_id"`
}

// BusyData explains a rejected utterance.
type BusyData struct {
	ID string `json:"id,omitempty"`
}

// ErrorData reports a message the core could not use.
type ErrorData struct {
	Message string `json:"message"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
