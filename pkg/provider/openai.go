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
	openAIRealtimeURL = "wss://api.openai.com/v1/realtime"
	openAIModel       = "gpt-4o-realtime-preview-2024-12-17"

	// OpenAI Realtime speaks PCM16 at 24 kHz in both directions.
	openAISampleRate = 24000
)

// OpenAI implements Adapter using OpenAI's Realtime API.
// A single WebSocket carries audio, VAD, transcription and responses.
// The same wire grammar serves OpenAI-compatible upstreams (see Qwen).
type OpenAI struct {
	config Config

	// Wire identity; overridden by OpenAI-compatible upstreams.
	tag          Tag
	baseURL      string
	defaultModel string

	// WebSocket connection
	ws   *websocket.Conn
	wsMu sync.Mutex

	// Session state
	mu        sync.RWMutex
	connected bool
	ready     bool
	closed    bool
	readyCh   chan struct{}
	cancel    context.CancelFunc

	turn turnTracker

	onEvent func(Event)
}

// NewOpenAI creates a new OpenAI Realtime adapter.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &OpenAI{
		config:       cfg,
		tag:          TagOpenAI,
		baseURL:      openAIRealtimeURL,
		defaultModel: openAIModel,
		readyCh:      make(chan struct{}),
	}, nil
}

// Connect establishes the WebSocket connection and waits for readiness.
func (o *OpenAI) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.connected {
		o.mu.Unlock()
		return fmt.Errorf("provider/%s: already connected", o.tag)
	}
	o.mu.Unlock()

	ctx, o.cancel = context.WithCancel(ctx)

	model := o.config.Model
	if model == "" {
		model = o.defaultModel
	}
	url := fmt.Sprintf("%s?model=%s", o.baseURL, model)

	header := make(http.Header)
	header.Set("Authorization", "Bearer "+o.config.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var err error
	o.ws, _, err = dialer.DialContext(ctx, url, header)
	if err != nil {
		return connectErr(o.tag, err)
	}

	o.mu.Lock()
	o.connected = true
	o.closed = false
	o.mu.Unlock()

	if err := o.configureSession(); err != nil {
		o.Close()
		return connectErr(o.tag, err)
	}

	go o.handleMessages()

	select {
	case <-o.readyCh:
		return nil
	case <-ctx.Done():
		o.Close()
		return ctx.Err()
	case <-time.After(o.config.readyTimeout()):
		o.Close()
		return fmt.Errorf("provider/%s: %w", o.tag, ErrReadyTimeout)
	}
}

// Close releases upstream resources. Idempotent.
func (o *OpenAI) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.connected = false
	o.ready = false
	o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	if o.ws != nil {
		return o.ws.Close()
	}
	return nil
}

// Ready reports whether the session acknowledgment has arrived.
func (o *OpenAI) Ready() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ready && !o.closed
}

// OutputSampleRate is the PCM rate of emitted audio chunks.
func (o *OpenAI) OutputSampleRate() int {
	return openAISampleRate
}

// SendAudio sends device PCM16 audio upstream.
func (o *OpenAI) SendAudio(pcm []byte) error {
	o.mu.RLock()
	if o.closed {
		o.mu.RUnlock()
		return ErrClosed
	}
	if !o.ready {
		o.mu.RUnlock()
		return ErrNotReady
	}
	o.mu.RUnlock()

	return o.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// OnEvent registers the normalized event handler.
func (o *OpenAI) OnEvent(fn func(Event)) {
	o.onEvent = fn
}

// Interrupt cancels the current assistant response.
func (o *OpenAI) Interrupt() error {
	return o.sendJSON(map[string]string{
		"type": "response.cancel",
	})
}

// configureSession sets up the OpenAI session with current config.
func (o *OpenAI) configureSession() error {
	voice := o.config.Voice
	if voice == "" {
		voice = "alloy"
	}

	msg := map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          []string{"text", "audio"},
			"instructions":        o.config.SystemPrompt,
			"voice":               voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type": "server_vad",
			},
		},
	}
	if err := o.sendJSON(msg); err != nil {
		return err
	}

	if o.config.InitialTurnText != "" {
		if err := o.sendJSON(map[string]any{
			"type": "response.create",
			"response": map[string]any{
				"instructions": o.config.InitialTurnText,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

// handleMessages processes incoming WebSocket messages.
func (o *OpenAI) handleMessages() {
	for {
		o.mu.RLock()
		closed := o.closed
		o.mu.RUnlock()

		if closed {
			return
		}

		_, message, err := o.ws.ReadMessage()
		if err != nil {
			o.mu.RLock()
			closed := o.closed
			o.mu.RUnlock()

			if !closed {
				o.emit(Event{Kind: EventSessionEnded})
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		o.handleMessage(msg)
	}
}

// handleMessage normalizes a single upstream message onto the Event set.
func (o *OpenAI) handleMessage(msg map[string]any) {
	msgType, _ := msg["type"].(string)

	switch msgType {
	case "session.created":
		o.mu.Lock()
		alreadyReady := o.ready
		o.ready = true
		o.mu.Unlock()
		if !alreadyReady {
			close(o.readyCh)
		}
		if o.config.Debug {
			log.Debug("realtime session created", "provider", string(o.tag))
		}

	case "session.updated":
		// Configuration acknowledged, nothing to surface.

	case "response.created":
		if o.turn.begin() {
			o.emit(Event{Kind: EventTurnStarted})
		}

	case "response.output_item.added", "response.content_part.added":
		// Redundant per-turn progress events; the turn is already signaled.
		if o.turn.begin() {
			o.emit(Event{Kind: EventTurnStarted})
		}

	case "conversation.item.input_audio_transcription.completed":
		if transcript, ok := msg["transcript"].(string); ok {
			o.emit(Event{Kind: EventUserTranscript, Text: transcript})
		}

	case "response.audio.delta":
		if delta, ok := msg["delta"].(string); ok {
			audio, err := base64.StdEncoding.DecodeString(delta)
			if err == nil && len(audio) > 0 {
				o.emit(Event{Kind: EventAudioChunk, Audio: audio})
			}
		}

	case "response.audio_transcript.done":
		if transcript, ok := msg["transcript"].(string); ok {
			o.emit(Event{Kind: EventAssistantText, Text: transcript})
		}

	case "response.done":
		if o.turn.end() {
			o.emit(Event{Kind: EventTurnCompleted})
		}

	case "error":
		code, message := "upstream_error", "unknown error"
		if errData, ok := msg["error"].(map[string]any); ok {
			if c, ok := errData["code"].(string); ok {
				code = c
			}
			if m, ok := errData["message"].(string); ok {
				message = m
			}
		}
		o.emit(Event{Kind: EventUpstreamError, Code: code, Message: message})

	default:
		if o.config.Debug && msgType != "" {
			log.Debug("realtime event ignored", "provider", string(o.tag), "type", msgType)
		}
	}
}

// emit invokes the registered event handler.
func (o *OpenAI) emit(ev Event) {
	if o.onEvent != nil {
		o.onEvent(ev)
	}
}

// sendJSON sends a JSON message over WebSocket.
func (o *OpenAI) sendJSON(v any) error {
	o.wsMu.Lock()
	defer o.wsMu.Unlock()

	if o.ws == nil {
		return ErrClosed
	}
	return o.ws.WriteJSON(v)
}

// Ensure OpenAI implements Adapter at compile time.
var _ Adapter = (*OpenAI)(nil)

func init() {
	Register(TagOpenAI, func(cfg Config) (Adapter, error) {
		return NewOpenAI(cfg)
	})
}
