// Package provider presents each upstream realtime voice service as a
// symmetric bidirectional audio+event channel with an explicit readiness
// transition. Every upstream's native event vocabulary is normalized onto
// one closed Event set; unrecognized upstream events are logged and ignored.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Common errors returned by adapters.
var (
	// ErrUnknownProvider is returned when no adapter is registered for a tag.
	ErrUnknownProvider = errors.New("provider: unknown provider tag")

	// ErrUpstreamUnavailable is returned when the upstream cannot be reached
	// or rejects our credentials.
	ErrUpstreamUnavailable = errors.New("provider: upstream unavailable")

	// ErrReadyTimeout is returned when no readiness acknowledgment arrives
	// within the bounded wait.
	ErrReadyTimeout = errors.New("provider: timed out waiting for readiness")

	// ErrNotReady is returned when audio is sent before readiness.
	ErrNotReady = errors.New("provider: adapter not ready")

	// ErrClosed is returned when using an adapter after Close.
	ErrClosed = errors.New("provider: adapter closed")

	// ErrMissingAPIKey is returned when the credential is missing.
	ErrMissingAPIKey = errors.New("provider: missing API key")
)

// Tag identifies a provider variant.
type Tag string

const (
	// TagOpenAI uses OpenAI's Realtime API.
	TagOpenAI Tag = "openai"

	// TagGemini uses Google's Gemini Live API.
	TagGemini Tag = "gemini"

	// TagElevenLabs uses ElevenLabs Conversational AI.
	TagElevenLabs Tag = "elevenlabs"

	// TagQwen uses Alibaba's Qwen Omni realtime API.
	TagQwen Tag = "qwen"
)

// EventKind identifies a normalized upstream event.
type EventKind string

const (
	EventAudioChunk     EventKind = "audio-chunk"
	EventUserTranscript EventKind = "user-transcript"
	EventAssistantText  EventKind = "assistant-text"
	EventTurnStarted    EventKind = "turn-started"
	EventTurnCompleted  EventKind = "turn-completed"
	EventSessionEnded   EventKind = "session-ended"
	EventUpstreamError  EventKind = "upstream-error"
)

// Event is one normalized upstream event.
type Event struct {
	Kind EventKind

	// Audio is set for EventAudioChunk: linear PCM16 at the adapter's
	// output sample rate.
	Audio []byte

	// Text is set for transcript and assistant-text events.
	Text string

	// Code and Message are set for EventUpstreamError.
	Code    string
	Message string
}

// Config holds credentials and session parameters for an adapter.
type Config struct {
	APIKey  string
	AgentID string // ElevenLabs conversational agent
	Model   string
	Voice   string

	// SystemPrompt is the system context for the conversation.
	SystemPrompt string

	// InitialTurnText, when set, asks the assistant to open the
	// conversation with this turn.
	InitialTurnText string

	// ReadyTimeout bounds Connect's wait for the readiness acknowledgment.
	ReadyTimeout time.Duration

	Debug bool
}

// DefaultReadyTimeout is used when Config.ReadyTimeout is zero.
const DefaultReadyTimeout = 10 * time.Second

func (c Config) readyTimeout() time.Duration {
	if c.ReadyTimeout > 0 {
		return c.ReadyTimeout
	}
	return DefaultReadyTimeout
}

// Adapter is the contract every upstream binding implements.
//
// Lifecycle: Connecting -> Ready -> (active turns...) -> Closing -> Closed,
// with a direct transition to Closed on upstream error.
type Adapter interface {
	// Connect establishes the upstream connection and blocks until the
	// readiness acknowledgment arrives or the bounded wait expires.
	// Returns ErrUpstreamUnavailable on network/auth failure and
	// ErrReadyTimeout when no acknowledgment arrives in time.
	Connect(ctx context.Context) error

	// SendAudio forwards one chunk of device PCM16 audio upstream.
	// Only valid after readiness; callers buffer earlier frames themselves.
	SendAudio(pcm []byte) error

	// OnEvent registers the handler invoked for each normalized event.
	// Must be called before Connect.
	OnEvent(fn func(Event))

	// Interrupt stops the current assistant response (barge-in).
	Interrupt() error

	// Close releases upstream resources. Idempotent.
	Close() error

	// Ready reports whether the readiness transition has happened.
	Ready() bool

	// OutputSampleRate is the PCM rate of EventAudioChunk payloads.
	OutputSampleRate() int
}

// Factory creates an Adapter from a Config.
type Factory func(cfg Config) (Adapter, error)

var factories = map[Tag]Factory{}

// Register sets the factory for a provider tag.
// Called by each adapter implementation in init().
func Register(tag Tag, f Factory) {
	factories[tag] = f
}

// New creates an adapter for the given tag.
// An unrecognized tag is an error, never a silent default.
func New(tag Tag, cfg Config) (Adapter, error) {
	f, ok := factories[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}
	return f(cfg)
}

// Registered returns the registered provider tags, sorted.
func Registered() []Tag {
	tags := make([]Tag, 0, len(factories))
	for tag := range factories {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// connectErr maps a dial/auth failure onto the adapter error taxonomy.
func connectErr(tag Tag, err error) error {
	return fmt.Errorf("provider/%s: %w: %v", tag, ErrUpstreamUnavailable, err)
}
