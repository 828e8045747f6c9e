// Package protocol defines the WebSocket message types for device-bridge communication.
// This package is shared between the Wren firmware and the go-wren cloud bridge.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Bridge → Device messages
	TypeAuth       MessageType = "auth"       // Device settings snapshot, sent once after upgrade
	TypeServer     MessageType = "server"     // Session lifecycle signal
	TypeError      MessageType = "error"      // Fatal or session-level error
	TypeTranscript MessageType = "transcript" // What the user said
	TypeAssistant  MessageType = "assistant"  // What the assistant said, as text

	// Device → Bridge messages
	TypeAction      MessageType = "action"      // Device-originated command
	TypeInstruction MessageType = "instruction" // Alias some firmware revisions use for action
)

// Server lifecycle signals carried in ServerData.Msg.
const (
	SignalResponseCreated  = "response-created"
	SignalResponseComplete = "response-complete"
	SignalSessionCreated   = "session-created"
	SignalSessionEnd       = "session-end"
	SignalError            = "error"
)

// Device-originated actions carried in ActionData.Action.
const (
	ActionInterrupt  = "interrupt"
	ActionEndSession = "end-session"
	ActionPlayAsset  = "play-asset"
	ActionPause      = "pause"
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
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
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Bridge → Device Message Types
// =============================================================================

// AuthData is the settings snapshot sent once, immediately after upgrade,
// before any audio flows.
type AuthData struct {
	Volume          int     `json:"volume"`                 // 0-100
	OTAPending      bool    `json:"ota_pending"`            // Firmware update waiting
	ResetRequested  bool    `json:"reset_requested"`        // Device should factory-reset
	PitchFactor     float64 `json:"pitch_factor"`           // Playback pitch multiplier
	SelectedAssetID string  `json:"selected_asset_id"`      // Currently-selected asset
	PlaybackStatus  string  `json:"playback_status"`        // "idle", "playing", "paused"
	SessionID       string  `json:"session_id,omitempty"`   // Bridge session identifier
}

// ServerData carries one of the closed set of lifecycle signals.
type ServerData struct {
	Msg string `json:"msg"`
}

// ErrorData carries a machine code and a human-readable message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TranscriptData carries the user's transcribed speech.
type TranscriptData struct {
	Text string `json:"text"`
}

// AssistantData carries the assistant's response as text.
type AssistantData struct {
	Text string `json:"text"`
}

// =============================================================================
// Device → Bridge Message Types
// =============================================================================

// ActionData is a device-originated command.
type ActionData struct {
	Action  string `json:"action"`
	AssetID string `json:"asset_id,omitempty"` // For play-asset
}
