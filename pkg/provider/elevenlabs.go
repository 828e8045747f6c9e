package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wrenlabs/go-wren/internal/log"
)

const (
	elevenLabsConvaiURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	// Conversational AI agents are configured for PCM16 at 16 kHz here.
	elevenLabsSampleRate = 16000
)

// ElevenLabs implements Adapter using ElevenLabs Conversational AI.
// This provides custom cloned voices with a choice of LLM behind the agent.
type ElevenLabs struct {
	config Config

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	ready     bool
	closed    bool
	readyCh   chan struct{}
	cancel    context.CancelFunc

	turn turnTracker

	onEvent func(Event)
}

// NewElevenLabs creates a new ElevenLabs Conversational AI adapter.
func NewElevenLabs(cfg Config) (*ElevenLabs, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.AgentID == "" {
		return nil, fmt.Errorf("provider/elevenlabs: agent ID required")
	}
	return &ElevenLabs{
		config:  cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Connect establishes the WebSocket connection and waits for the
// conversation initiation metadata.
func (e *ElevenLabs) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		return fmt.Errorf("provider/elevenlabs: already connected")
	}
	e.mu.Unlock()

	ctx, e.cancel = context.WithCancel(ctx)

	url := fmt.Sprintf("%s?agent_id=%s", elevenLabsConvaiURL, e.config.AgentID)

	header := make(http.Header)
	header.Set("xi-api-key", e.config.APIKey)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var err error
	e.ws, _, err = dialer.DialContext(ctx, url, header)
	if err != nil {
		return connectErr(TagElevenLabs, err)
	}

	e.mu.Lock()
	e.connected = true
	e.closed = false
	e.mu.Unlock()

	if err := e.sendInitiation(); err != nil {
		e.Close()
		return connectErr(TagElevenLabs, err)
	}

	go e.handleMessages()

	select {
	case <-e.readyCh:
		return nil
	case <-ctx.Done():
		e.Close()
		return ctx.Err()
	case <-time.After(e.config.readyTimeout()):
		e.Close()
		return fmt.Errorf("provider/elevenlabs: %w", ErrReadyTimeout)
	}
}

// sendInitiation overrides agent defaults with our session parameters.
func (e *ElevenLabs) sendInitiation() error {
	agent := map[string]any{}
	if e.config.SystemPrompt != "" {
		agent["prompt"] = map[string]any{"prompt": e.config.SystemPrompt}
	}
	if e.config.InitialTurnText != "" {
		agent["first_message"] = e.config.InitialTurnText
	}

	msg := map[string]any{
		"type": "conversation_initiation_client_data",
	}
	if len(agent) > 0 {
		msg["conversation_config_override"] = map[string]any{"agent": agent}
	}
	return e.sendJSON(msg)
}

// Close releases upstream resources. Idempotent.
func (e *ElevenLabs) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.connected = false
	e.ready = false
	e.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	if e.ws != nil {
		return e.ws.Close()
	}
	return nil
}

// Ready reports whether the initiation metadata has arrived.
func (e *ElevenLabs) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready && !e.closed
}

// OutputSampleRate is the PCM rate of emitted audio chunks.
func (e *ElevenLabs) OutputSampleRate() int {
	return elevenLabsSampleRate
}

// SendAudio sends device PCM16 audio upstream.
func (e *ElevenLabs) SendAudio(pcm []byte) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	if !e.ready {
		e.mu.RUnlock()
		return ErrNotReady
	}
	e.mu.RUnlock()

	return e.sendJSON(map[string]any{
		"user_audio_chunk": base64.StdEncoding.EncodeToString(pcm),
	})
}

// OnEvent registers the normalized event handler.
func (e *ElevenLabs) OnEvent(fn func(Event)) {
	e.onEvent = fn
}

// Interrupt is driven by the agent's own VAD; speaking over the assistant
// interrupts it, so there is no explicit control message to send.
func (e *ElevenLabs) Interrupt() error {
	return nil
}

// handleMessages processes incoming WebSocket messages.
func (e *ElevenLabs) handleMessages() {
	for {
		e.mu.RLock()
		closed := e.closed
		e.mu.RUnlock()

		if closed {
			return
		}

		_, message, err := e.ws.ReadMessage()
		if err != nil {
			e.mu.RLock()
			closed := e.closed
			e.mu.RUnlock()

			if !closed {
				e.emit(Event{Kind: EventSessionEnded})
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		e.handleMessage(msg)
	}
}

// handleMessage normalizes a single Conversational AI message onto the
// Event set. ElevenLabs has no explicit turn boundary events: a turn opens
// on the first agent output and closes on interruption or the next user
// transcript, gated by the per-turn tracker.
func (e *ElevenLabs) handleMessage(msg map[string]any) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "conversation_initiation_metadata":
		e.mu.Lock()
		alreadyReady := e.ready
		e.ready = true
		e.mu.Unlock()
		if !alreadyReady {
			close(e.readyCh)
		}

	case "audio":
		if audioEvent, ok := msg["audio_event"].(map[string]any); ok {
			if data, ok := audioEvent["audio_base_64"].(string); ok {
				audio, err := base64.StdEncoding.DecodeString(data)
				if err == nil && len(audio) > 0 {
					if e.turn.begin() {
						e.emit(Event{Kind: EventTurnStarted})
					}
					e.emit(Event{Kind: EventAudioChunk, Audio: audio})
				}
			}
		}

	case "agent_response":
		if respEvent, ok := msg["agent_response_event"].(map[string]any); ok {
			if text, ok := respEvent["agent_response"].(string); ok && text != "" {
				if e.turn.begin() {
					e.emit(Event{Kind: EventTurnStarted})
				}
				e.emit(Event{Kind: EventAssistantText, Text: text})
			}
		}

	case "user_transcript":
		// A new user utterance implies the assistant turn is over.
		if e.turn.end() {
			e.emit(Event{Kind: EventTurnCompleted})
		}
		if transcriptEvent, ok := msg["user_transcription_event"].(map[string]any); ok {
			if text, ok := transcriptEvent["user_transcript"].(string); ok && text != "" {
				e.emit(Event{Kind: EventUserTranscript, Text: text})
			}
		}

	case "interruption":
		if e.turn.end() {
			e.emit(Event{Kind: EventTurnCompleted})
		}

	case "ping":
		if pingEvent, ok := msg["ping_event"].(map[string]any); ok {
			e.sendJSON(map[string]any{
				"type":     "pong",
				"event_id": pingEvent["event_id"],
			})
		}

	case "error":
		message, _ := msg["message"].(string)
		e.emit(Event{Kind: EventUpstreamError, Code: "upstream_error", Message: message})

	default:
		if e.config.Debug && msgType != "" {
			log.Debug("elevenlabs event ignored", "type", msgType)
		}
	}
}

// emit invokes the registered event handler.
func (e *ElevenLabs) emit(ev Event) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

// sendJSON sends a JSON message over WebSocket.
func (e *ElevenLabs) sendJSON(v any) error {
	e.wsMu.Lock()
	defer e.wsMu.Unlock()

	if e.ws == nil {
		return ErrClosed
	}
	return e.ws.WriteJSON(v)
}

// Ensure ElevenLabs implements Adapter at compile time.
var _ Adapter = (*ElevenLabs)(nil)

func init() {
	Register(TagElevenLabs, func(cfg Config) (Adapter, error) {
		return NewElevenLabs(cfg)
	})
}
