package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wrenlabs/go-wren/internal/log"
)

const (
	geminiLiveURL      = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	geminiDefaultModel = "models/gemini-2.0-flash-exp"

	// Gemini Live accepts 16 kHz input and emits 24 kHz output.
	geminiOutputRate = 24000
)

// Gemini implements Adapter using Google's Gemini Live API.
type Gemini struct {
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

// NewGemini creates a new Gemini Live adapter.
func NewGemini(cfg Config) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	return &Gemini{
		config:  cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Connect establishes the WebSocket connection and waits for setupComplete.
func (g *Gemini) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.connected {
		g.mu.Unlock()
		return fmt.Errorf("provider/gemini: already connected")
	}
	g.mu.Unlock()

	ctx, g.cancel = context.WithCancel(ctx)

	model := g.config.Model
	if model == "" {
		model = geminiDefaultModel
	}

	url := fmt.Sprintf("%s?key=%s", geminiLiveURL, g.config.APIKey)

	header := make(http.Header)
	header.Set("Content-Type", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	var err error
	g.ws, _, err = dialer.DialContext(ctx, url, header)
	if err != nil {
		return connectErr(TagGemini, err)
	}

	g.mu.Lock()
	g.connected = true
	g.closed = false
	g.mu.Unlock()

	if err := g.sendSetup(model); err != nil {
		g.Close()
		return connectErr(TagGemini, err)
	}

	go g.handleMessages()

	select {
	case <-g.readyCh:
		return nil
	case <-ctx.Done():
		g.Close()
		return ctx.Err()
	case <-time.After(g.config.readyTimeout()):
		g.Close()
		return fmt.Errorf("provider/gemini: %w", ErrReadyTimeout)
	}
}

// sendSetup sends the initial configuration to Gemini Live.
func (g *Gemini) sendSetup(model string) error {
	voiceName := g.config.Voice
	if voiceName == "" {
		voiceName = "Puck"
	}

	prompt := g.config.SystemPrompt
	if g.config.InitialTurnText != "" {
		prompt = strings.TrimSpace(prompt + "\n\nOpen the conversation by saying: " + g.config.InitialTurnText)
	}

	setup := map[string]any{
		"setup": map[string]any{
			"model": model,
			"generation_config": map[string]any{
				"response_modalities": []string{"AUDIO"},
				"speech_config": map[string]any{
					"voice_config": map[string]any{
						"prebuilt_voice_config": map[string]any{
							"voice_name": voiceName,
						},
					},
				},
			},
			"system_instruction": map[string]any{
				"parts": []map[string]any{
					{"text": prompt},
				},
			},
		},
	}

	return g.sendJSON(setup)
}

// Close releases upstream resources. Idempotent.
func (g *Gemini) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.connected = false
	g.ready = false
	g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}
	if g.ws != nil {
		return g.ws.Close()
	}
	return nil
}

// Ready reports whether setupComplete has arrived.
func (g *Gemini) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready && !g.closed
}

// OutputSampleRate is the PCM rate of emitted audio chunks.
func (g *Gemini) OutputSampleRate() int {
	return geminiOutputRate
}

// SendAudio sends device PCM16 audio upstream.
func (g *Gemini) SendAudio(pcm []byte) error {
	g.mu.RLock()
	if g.closed {
		g.mu.RUnlock()
		return ErrClosed
	}
	if !g.ready {
		g.mu.RUnlock()
		return ErrNotReady
	}
	g.mu.RUnlock()

	return g.sendJSON(map[string]any{
		"realtime_input": map[string]any{
			"media_chunks": []map[string]any{
				{
					"data":      base64.StdEncoding.EncodeToString(pcm),
					"mime_type": "audio/pcm",
				},
			},
		},
	})
}

// OnEvent registers the normalized event handler.
func (g *Gemini) OnEvent(fn func(Event)) {
	g.onEvent = fn
}

// Interrupt is a no-op: Gemini Live interrupts on its own VAD when the user
// speaks over the assistant.
func (g *Gemini) Interrupt() error {
	return nil
}

// handleMessages processes incoming WebSocket messages.
func (g *Gemini) handleMessages() {
	for {
		g.mu.RLock()
		closed := g.closed
		g.mu.RUnlock()

		if closed {
			return
		}

		_, message, err := g.ws.ReadMessage()
		if err != nil {
			g.mu.RLock()
			closed := g.closed
			g.mu.RUnlock()

			if !closed {
				g.emit(Event{Kind: EventSessionEnded})
			}
			return
		}

		var msg map[string]any
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		g.handleMessage(msg)
	}
}

// handleMessage normalizes a single Gemini Live message onto the Event set.
func (g *Gemini) handleMessage(msg map[string]any) {
	if _, ok := msg["setupComplete"]; ok {
		g.mu.Lock()
		alreadyReady := g.ready
		g.ready = true
		g.mu.Unlock()
		if !alreadyReady {
			close(g.readyCh)
		}
		return
	}

	if serverContent, ok := msg["serverContent"].(map[string]any); ok {
		g.handleServerContent(serverContent)
		return
	}

	if errData, ok := msg["error"].(map[string]any); ok {
		code, message := "upstream_error", "unknown error"
		if c, ok := errData["status"].(string); ok {
			code = c
		}
		if m, ok := errData["message"].(string); ok {
			message = m
		}
		g.emit(Event{Kind: EventUpstreamError, Code: code, Message: message})
		return
	}

	if g.config.Debug {
		log.Debug("gemini event ignored", "keys", fmt.Sprintf("%v", msg))
	}
}

// handleServerContent processes audio/text from Gemini.
func (g *Gemini) handleServerContent(content map[string]any) {
	if turnComplete, ok := content["turnComplete"].(bool); ok && turnComplete {
		if g.turn.end() {
			g.emit(Event{Kind: EventTurnCompleted})
		}
		return
	}

	// An interruption cuts the assistant turn short.
	if interrupted, ok := content["interrupted"].(bool); ok && interrupted {
		if g.turn.end() {
			g.emit(Event{Kind: EventTurnCompleted})
		}
		return
	}

	if modelTurn, ok := content["modelTurn"].(map[string]any); ok {
		if g.turn.begin() {
			g.emit(Event{Kind: EventTurnStarted})
		}
		if parts, ok := modelTurn["parts"].([]any); ok {
			for _, part := range parts {
				partMap, ok := part.(map[string]any)
				if !ok {
					continue
				}

				if inlineData, ok := partMap["inlineData"].(map[string]any); ok {
					mimeType, _ := inlineData["mimeType"].(string)
					if strings.HasPrefix(mimeType, "audio/pcm") {
						if data, ok := inlineData["data"].(string); ok {
							audio, err := base64.StdEncoding.DecodeString(data)
							if err == nil && len(audio) > 0 {
								g.emit(Event{Kind: EventAudioChunk, Audio: audio})
							}
						}
					}
				}

				if text, ok := partMap["text"].(string); ok && text != "" {
					g.emit(Event{Kind: EventAssistantText, Text: text})
				}
			}
		}
	}

	if inputTranscript, ok := content["inputTranscription"].(map[string]any); ok {
		if text, ok := inputTranscript["text"].(string); ok && text != "" {
			g.emit(Event{Kind: EventUserTranscript, Text: text})
		}
	}

	if outputTranscript, ok := content["outputTranscription"].(map[string]any); ok {
		if text, ok := outputTranscript["text"].(string); ok && text != "" {
			g.emit(Event{Kind: EventAssistantText, Text: text})
		}
	}
}

// emit invokes the registered event handler.
func (g *Gemini) emit(ev Event) {
	if g.onEvent != nil {
		g.onEvent(ev)
	}
}

// sendJSON sends a JSON message over WebSocket.
func (g *Gemini) sendJSON(v any) error {
	g.wsMu.Lock()
	defer g.wsMu.Unlock()

	if g.ws == nil {
		return ErrClosed
	}
	return g.ws.WriteJSON(v)
}

// Ensure Gemini implements Adapter at compile time.
var _ Adapter = (*Gemini)(nil)

func init() {
	Register(TagGemini, func(cfg Config) (Adapter, error) {
		return NewGemini(cfg)
	})
}
