// Package registry tracks live device sessions so other parts of the
// service can push messages to a connected device by identity.
package registry

import (
	"encoding/json"
	"sync"

	"github.com/wrenlabs/go-wren/internal/log"
)

// Channel distinguishes the concurrent sockets one device may hold.
type Channel string

const (
	// ChannelSession is the main conversational bridge socket.
	ChannelSession Channel = "session"

	// ChannelControl is the out-of-band control socket.
	ChannelControl Channel = "control"
)

// Key identifies one socket: a device may hold one socket per channel.
type Key struct {
	DeviceID string
	Channel  Channel
}

// Socket is the write half of a registered connection. Satisfied by
// *websocket.Conn from both the fiber and gorilla packages.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
}

// TextMessage is the WebSocket text frame opcode (RFC 6455).
const TextMessage = 1

// Registry is a concurrency-safe map of live sockets.
// The zero value is not usable; call New.
type Registry struct {
	mu    sync.RWMutex
	socks map[Key]Socket
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{socks: make(map[Key]Socket)}
}

// Register records the socket for a key. A second registration for the same
// key replaces the first; the newest connection wins.
func (r *Registry) Register(key Key, s Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.socks[key]; ok {
		log.Warn("replacing registered socket", "device", key.DeviceID, "channel", string(key.Channel))
	}
	r.socks[key] = s
}

// Unregister removes the socket for a key if it is the one registered.
// Removing an absent key or a superseded socket is a no-op, so a stale
// session's deferred cleanup never evicts its replacement.
func (r *Registry) Unregister(key Key, s Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.socks[key]; ok && cur == s {
		delete(r.socks, key)
	}
}

// Lookup returns the socket registered for a key.
func (r *Registry) Lookup(key Key) (Socket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.socks[key]
	return s, ok
}

// Len returns the number of registered sockets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.socks)
}

// Deliver marshals v and writes it as a text frame to the socket registered
// for key. Returns false when no socket is registered or the write fails;
// it never panics on a concurrently-closed connection.
func (r *Registry) Deliver(key Key, v any) bool {
	s, ok := r.Lookup(key)
	if !ok {
		return false
	}

	data, err := json.Marshal(v)
	if err != nil {
		log.Error("marshal delivery payload", "device", key.DeviceID, "error", err)
		return false
	}

	if err := s.WriteMessage(TextMessage, data); err != nil {
		log.Debug("deliver to device failed", "device", key.DeviceID, "channel", string(key.Channel), "error", err)
		return false
	}
	return true
}
