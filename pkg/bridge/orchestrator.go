// Package bridge wires a device WebSocket to a realtime voice provider:
// it authenticates the device, relays audio both ways, meters connected
// time and serves playback commands.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/audio"
	"github.com/wrenlabs/go-wren/pkg/directory"
	"github.com/wrenlabs/go-wren/pkg/playback"
	"github.com/wrenlabs/go-wren/pkg/protocol"
	"github.com/wrenlabs/go-wren/pkg/provider"
	"github.com/wrenlabs/go-wren/pkg/registry"
	"github.com/wrenlabs/go-wren/pkg/usage"
)

// Error codes sent to the device in protocol error messages.
const (
	CodeQuotaExhausted      = "quota_exhausted"
	CodeProviderUnavailable = "provider_unavailable"
	CodeAssetNotFound       = "asset_not_found"
	CodeAssetInvalid        = "asset_invalid"
)

// ProviderKeys holds the upstream credentials the orchestrator hands to
// adapters.
type ProviderKeys struct {
	OpenAI            string
	Gemini            string
	ElevenLabs        string
	ElevenLabsAgentID string
	Qwen              string
}

// Config parameterizes the orchestrator.
type Config struct {
	Keys ProviderKeys

	// DefaultProvider is used when the device record names none.
	DefaultProvider provider.Tag

	// UsageInterval is how often connected seconds are persisted.
	UsageInterval time.Duration

	// ReadyTimeout bounds the wait for provider readiness.
	ReadyTimeout time.Duration

	// PlaybackGainDB is applied to stored assets before streaming.
	PlaybackGainDB float64
}

// Orchestrator owns the per-session lifecycle.
type Orchestrator struct {
	dir     directory.Directory
	reg     *registry.Registry
	assets  AssetStore
	metrics *Metrics
	cfg     Config

	// Factories, replaced in tests.
	newAdapter func(tag provider.Tag, cfg provider.Config) (provider.Adapter, error)
	newEncoder func() (audio.FrameEncoder, error)
}

// NewOrchestrator creates an orchestrator with production factories.
func NewOrchestrator(dir directory.Directory, reg *registry.Registry, assets AssetStore, metrics *Metrics, cfg Config) *Orchestrator {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = provider.TagOpenAI
	}
	return &Orchestrator{
		dir:        dir,
		reg:        reg,
		assets:     assets,
		metrics:    metrics,
		cfg:        cfg,
		newAdapter: provider.New,
		newEncoder: func() (audio.FrameEncoder, error) {
			return audio.NewEncoder(audio.DeviceSampleRate, audio.DeviceChannels)
		},
	}
}

// Authenticate resolves a device session token against the directory.
func (o *Orchestrator) Authenticate(ctx context.Context, token string) (*directory.UserRecord, error) {
	return o.dir.ResolveUser(ctx, token)
}

// providerConfig selects the adapter tag and credentials for a user.
func (o *Orchestrator) providerConfig(user *directory.UserRecord) (provider.Tag, provider.Config, error) {
	tag := provider.Tag(user.Device.ProviderTag)
	if tag == "" {
		tag = o.cfg.DefaultProvider
	}

	cfg := provider.Config{
		SystemPrompt: user.SystemPrompt,
		ReadyTimeout: o.cfg.ReadyTimeout,
	}

	switch tag {
	case provider.TagOpenAI:
		cfg.APIKey = o.cfg.Keys.OpenAI
	case provider.TagGemini:
		cfg.APIKey = o.cfg.Keys.Gemini
	case provider.TagElevenLabs:
		cfg.APIKey = o.cfg.Keys.ElevenLabs
		cfg.AgentID = o.cfg.Keys.ElevenLabsAgentID
	case provider.TagQwen:
		cfg.APIKey = o.cfg.Keys.Qwen
	default:
		return tag, cfg, provider.ErrUnknownProvider
	}

	if cfg.APIKey == "" {
		return tag, cfg, provider.ErrMissingAPIKey
	}
	return tag, cfg, nil
}

// Handle runs one device session until the device disconnects, the quota is
// spent, or the upstream ends. It owns the connection and closes it.
func (o *Orchestrator) Handle(ctx context.Context, conn DeviceConn, user *directory.UserRecord) {
	sess := newSession(conn, user)
	logger := log.With("session", sess.ID, "device", user.Device.DeviceID, "user", user.UserID)

	// Quota pre-check before any upstream cost is incurred.
	if user.QuotaSeconds > 0 && user.RemainingSeconds() == 0 {
		o.metrics.QuotaRejections.Inc()
		sess.sendError(CodeQuotaExhausted, "listening time for this period is used up")
		sess.sendSignal(protocol.SignalSessionEnd)
		conn.Close()
		logger.Info("session refused, quota spent")
		return
	}

	key := registry.Key{DeviceID: user.Device.DeviceID, Channel: registry.ChannelSession}
	o.reg.Register(key, sess)
	defer o.reg.Unregister(key, sess)

	o.metrics.ActiveSessions.Inc()
	defer o.metrics.ActiveSessions.Dec()

	// The settings snapshot is the first thing on the wire, before any audio.
	if err := sess.sendAuth(); err != nil {
		logger.Warn("send settings snapshot failed", "error", err)
		conn.Close()
		return
	}

	tag, pcfg, err := o.providerConfig(user)
	if err != nil {
		logger.Error("provider selection failed", "provider", string(tag), "error", err)
		sess.sendError(CodeProviderUnavailable, "voice backend is not configured")
		sess.sendSignal(protocol.SignalSessionEnd)
		conn.Close()
		return
	}

	adapter, err := o.newAdapter(tag, pcfg)
	if err != nil {
		logger.Error("adapter create failed", "provider", string(tag), "error", err)
		sess.sendError(CodeProviderUnavailable, "voice backend is not configured")
		sess.sendSignal(protocol.SignalSessionEnd)
		conn.Close()
		return
	}

	voiceEnc, err := o.newEncoder()
	if err != nil {
		logger.Error("create voice encoder failed", "error", err)
		sess.sendError(CodeProviderUnavailable, "audio pipeline unavailable")
		conn.Close()
		return
	}

	// Playback uses its own encoder so interleaved streams do not share
	// opus prediction state with the assistant's voice.
	playEnc, err := o.newEncoder()
	if err != nil {
		logger.Error("create playback encoder failed", "error", err)
		sess.sendError(CodeProviderUnavailable, "audio pipeline unavailable")
		conn.Close()
		return
	}
	ctrl := playback.NewController(playback.Config{
		Sink:    sess,
		Encoder: playEnc,
		GainDB:  o.cfg.PlaybackGainDB,
	})

	meter := usage.NewMeter(o.dir, user.UserID, user.UsedSeconds, user.QuotaSeconds, o.cfg.UsageInterval, func() {
		logger.Info("quota crossed mid-session")
		sess.sendError(CodeQuotaExhausted, "listening time for this period is used up")
		sess.sendSignal(protocol.SignalSessionEnd)
		conn.Close()
	})

	outBuf := audio.NewFrameBuffer(audio.FrameBytes)

	adapter.OnEvent(func(ev provider.Event) {
		switch ev.Kind {
		case provider.EventTurnStarted:
			sess.sendSignal(protocol.SignalResponseCreated)

		case provider.EventAudioChunk:
			samples := audio.BytesToPCM16(ev.Audio)
			samples = audio.Resample(samples, adapter.OutputSampleRate(), audio.DeviceSampleRate)
			o.sendVoiceFrames(sess, voiceEnc, outBuf.Push(audio.PCM16ToBytes(samples)))

		case provider.EventTurnCompleted:
			if tail := outBuf.Flush(); tail != nil {
				o.sendVoiceFrames(sess, voiceEnc, [][]byte{tail})
			}
			sess.sendSignal(protocol.SignalResponseComplete)

		case provider.EventUserTranscript:
			sess.sendTranscript(ev.Text)

		case provider.EventAssistantText:
			sess.sendAssistant(ev.Text)

		case provider.EventUpstreamError:
			o.metrics.ProviderErrors.WithLabelValues(string(tag)).Inc()
			sess.sendError(ev.Code, ev.Message)

		case provider.EventSessionEnded:
			logger.Info("upstream ended the session")
			sess.sendSignal(protocol.SignalSessionEnd)
			conn.Close()
		}
	})

	// Device audio that arrives before readiness is buffered, then replayed
	// in order exactly once; afterwards frames forward directly. The mutex
	// makes the drain-to-direct handoff atomic so order is preserved.
	pending := provider.NewPendingQueue(0)
	var fwdMu sync.Mutex
	direct := false

	forward := func(frame []byte) {
		fwdMu.Lock()
		defer fwdMu.Unlock()

		if direct {
			if err := adapter.SendAudio(frame); err == nil {
				o.metrics.FramesToProvider.Inc()
			}
			return
		}
		if !pending.Enqueue(frame) {
			logger.Debug("pre-ready frame dropped, buffer full")
		}
	}

	sess.setState(StateAwaitingProvider)
	o.metrics.SessionsStarted.WithLabelValues(string(tag)).Inc()

	go func() {
		if err := adapter.Connect(ctx); err != nil {
			logger.Error("provider connect failed", "provider", string(tag), "error", err)
			o.metrics.ProviderErrors.WithLabelValues(string(tag)).Inc()
			sess.sendError(CodeProviderUnavailable, connectFailureMessage(err))
			sess.sendSignal(protocol.SignalSessionEnd)
			conn.Close()
			return
		}

		fwdMu.Lock()
		for _, frame := range pending.DrainOnce() {
			if err := adapter.SendAudio(frame); err == nil {
				o.metrics.FramesToProvider.Inc()
			}
		}
		direct = true
		fwdMu.Unlock()

		sess.setState(StateBridging)
		sess.sendSignal(protocol.SignalSessionCreated)
		logger.Info("session bridged", "provider", string(tag))
	}()

	meter.Start(ctx)

readLoop:
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		switch mt {
		case binaryFrame:
			forward(data)

		case textFrame:
			msg, err := protocol.ParseMessage(data)
			if err != nil {
				logger.Debug("unparseable device message", "error", err)
				continue
			}
			if !msg.IsAction() {
				continue
			}
			act, err := msg.GetActionData()
			if err != nil {
				continue
			}

			switch act.Action {
			case protocol.ActionInterrupt:
				if err := adapter.Interrupt(); err != nil {
					logger.Debug("interrupt failed", "error", err)
				}
				ctrl.Cancel()

			case protocol.ActionPause:
				ctrl.Cancel()

			case protocol.ActionPlayAsset:
				o.playAsset(ctx, sess, ctrl, act.AssetID, logger)

			case protocol.ActionEndSession:
				logger.Info("device ended the session")
				break readLoop

			default:
				logger.Debug("unknown device action", "action", act.Action)
			}
		}
	}

	sess.setState(StateClosing)
	ctrl.Cancel()
	if err := adapter.Close(); err != nil {
		logger.Debug("adapter close", "error", err)
	}
	meter.Stop(context.Background())
	conn.Close()
	sess.setState(StateClosed)
	logger.Info("session closed", "connected_seconds", meter.ElapsedSeconds())
}

// sendVoiceFrames encodes device-format PCM frames and writes them as
// binary frames. Encode failures skip the frame, never the stream.
func (o *Orchestrator) sendVoiceFrames(sess *Session, enc audio.FrameEncoder, frames [][]byte) {
	for _, frame := range frames {
		packet, err := enc.Encode(frame)
		if err != nil {
			o.metrics.TranscodeFailures.Inc()
			continue
		}
		if err := sess.WriteFrame(packet); err != nil {
			return
		}
		o.metrics.FramesToDevice.Inc()
	}
}

// playAsset loads and streams a stored asset. An empty ID falls back to the
// device's selected asset.
func (o *Orchestrator) playAsset(ctx context.Context, sess *Session, ctrl *playback.Controller, assetID string, logger *slog.Logger) {
	id := assetID
	if id == "" {
		id = sess.User.Device.SelectedAssetID
	}
	if id == "" {
		sess.sendError(CodeAssetNotFound, "no asset selected")
		return
	}

	asset, err := o.assets.Load(ctx, id)
	if err != nil {
		logger.Warn("asset load failed", "asset", id, "error", err)
		sess.sendError(CodeAssetNotFound, "asset not available")
		return
	}

	if err := ctrl.Play(asset); err != nil {
		o.metrics.TranscodeFailures.Inc()
		logger.Warn("asset transcode failed", "asset", id, "error", err)
		sess.sendError(CodeAssetInvalid, "asset could not be played")
	}
}

func connectFailureMessage(err error) string {
	if errors.Is(err, provider.ErrReadyTimeout) {
		return "voice backend took too long to answer"
	}
	return "voice backend is unreachable"
}
