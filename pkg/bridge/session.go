package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/directory"
	"github.com/wrenlabs/go-wren/pkg/protocol"
)

// WebSocket frame opcodes (RFC 6455). Declared locally so the bridge does
// not depend on a specific websocket implementation.
const (
	textFrame   = 1
	binaryFrame = 2
)

// State is a session's lifecycle phase.
type State int32

const (
	// StateAwaitingProvider: device connected, upstream not yet ready.
	StateAwaitingProvider State = iota

	// StateBridging: audio and events flow in both directions.
	StateBridging

	// StateClosing: teardown in progress.
	StateClosing

	// StateClosed: all resources released.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingProvider:
		return "awaiting-provider"
	case StateBridging:
		return "bridging"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DeviceConn is the device-side WebSocket. Satisfied by *websocket.Conn
// from both the fiber and gorilla packages.
type DeviceConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one bridged device connection. All device writes go through
// the session so text messages and binary frames never interleave mid-write.
type Session struct {
	// ID is the bridge-assigned session identifier.
	ID string

	// User is the directory record resolved at authentication.
	User *directory.UserRecord

	conn    DeviceConn
	writeMu sync.Mutex
	state   atomic.Int32
}

func newSession(conn DeviceConn, user *directory.UserRecord) *Session {
	return &Session{
		ID:   uuid.NewString(),
		User: user,
		conn: conn,
	}
}

// State returns the current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// WriteMessage writes one WebSocket frame under the session write lock.
// This also satisfies registry.Socket, so out-of-band deliveries to a
// registered session serialize with the bridge's own writes.
func (s *Session) WriteMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

// WriteFrame sends one encoded audio frame as a binary frame.
// Satisfies playback.Sink.
func (s *Session) WriteFrame(packet []byte) error {
	return s.WriteMessage(binaryFrame, packet)
}

func (s *Session) sendMessage(m *protocol.Message) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}
	return s.WriteMessage(textFrame, data)
}

func (s *Session) sendAuth() error {
	dev := s.User.Device
	msg, err := protocol.NewAuthMessage(protocol.AuthData{
		Volume:          dev.Volume,
		OTAPending:      dev.OTAPending,
		ResetRequested:  dev.ResetRequested,
		PitchFactor:     dev.PitchFactor,
		SelectedAssetID: dev.SelectedAssetID,
		PlaybackStatus:  dev.PlaybackStatus,
		SessionID:       s.ID,
	})
	if err != nil {
		return err
	}
	return s.sendMessage(msg)
}

func (s *Session) sendSignal(signal string) {
	msg, err := protocol.NewServerMessage(signal)
	if err != nil {
		return
	}
	if err := s.sendMessage(msg); err != nil {
		log.Debug("send signal failed", "session", s.ID, "signal", signal, "error", err)
	}
}

func (s *Session) sendError(code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	if err != nil {
		return
	}
	if err := s.sendMessage(msg); err != nil {
		log.Debug("send error failed", "session", s.ID, "code", code, "error", err)
	}
}

func (s *Session) sendTranscript(text string) {
	if msg, err := protocol.NewTranscriptMessage(text); err == nil {
		s.sendMessage(msg)
	}
}

func (s *Session) sendAssistant(text string) {
	if msg, err := protocol.NewAssistantMessage(text); err == nil {
		s.sendMessage(msg)
	}
}
