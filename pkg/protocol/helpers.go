package protocol

import (
	"encoding/base64"
	"errors"
)

// ErrNoRecording is returned for an utterance with neither a path nor
// inline audio.
var ErrNoRecording = errors.New("protocol: utterance has no path or audio")

// NewUtteranceMessage creates an utterance message referencing a file.
func NewUtteranceMessage(id, path string) (*Message, error) {
	return NewMessage(TypeUtterance, UtteranceData{ID: id, Path: path})
}

// NewInlineUtteranceMessage creates an utterance message carrying WAV bytes.
func NewInlineUtteranceMessage(id string, wav []byte) (*Message, error) {
	return NewMessage(TypeUtterance, UtteranceData{
		ID:     id,
		Audio:  base64.StdEncoding.EncodeToString(wav),
		Format: "wav",
	})
}

// NewAcceptedMessage creates an accepted message
func NewAcceptedMessage(turnID string) (*Message, error) {
	return NewMessage(TypeAccepted, AcceptedData{TurnID: turnID})
}

// NewBusyMessage creates a busy message
func NewBusyMessage(id string) (*Message, error) {
	return NewMessage(TypeBusy, BusyData{ID: id})
}

// NewResumeListeningMessage creates a resume_listening message
func NewResumeListeningMessage() (*Message, error) {
	return NewMessage(TypeResumeListening, nil)
}

// NewDeactivateMessage creates a deactivate message
func NewDeactivateMessage() (*Message, error) {
	return NewMessage(TypeDeactivate, nil)
}

// NewErrorMessage creates an error message
func NewErrorMessage(text string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Message: text})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id})
}

// NewPongMessage answers a ping sent at pingTS.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	var latency int64
	if pingTS > 0 {
		latency = pongTS - pingTS
	}
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: latency,
	})
}

// GetUtteranceData extracts utterance data from a message
func (m *Message) GetUtteranceData() (*UtteranceData, error) {
	var data UtteranceData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	if data.Path == "" && data.Audio == "" {
		return nil, ErrNoRecording
	}
	return &data, nil
}

// Inline reports whether the recording travels in the message.
func (u *UtteranceData) Inline() bool {
	return u.Audio != ""
}

// DecodeAudio decodes the base64 recording
func (u *UtteranceData) DecodeAudio() ([]byte, error) {
	return base64.StdEncoding.DecodeString(u.Audio)
}

// GetAcceptedData extracts accepted data from a message
func (m *Message) GetAcceptedData() (*AcceptedData, error) {
	var data AcceptedData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
