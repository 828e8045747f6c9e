package playback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wrenlabs/go-wren/internal/log"
	"github.com/wrenlabs/go-wren/pkg/audio"
)

// SafetyMargin is subtracted from the frame duration when pacing so the
// device buffer stays ahead of real time.
const SafetyMargin = 5 * time.Millisecond

// Sink receives encoded playback frames, one packet per frame interval.
type Sink interface {
	WriteFrame(packet []byte) error
}

// Config parameterizes a Controller.
type Config struct {
	Sink    Sink
	Encoder audio.FrameEncoder

	// GainDB is applied to every transcoded asset.
	GainDB float64

	// Pace overrides the per-frame send interval. Zero means the device
	// frame duration minus SafetyMargin.
	Pace time.Duration

	// OnFinished, when set, is invoked as each stream ends; completed is
	// false when the stream was superseded or cancelled mid-way.
	OnFinished func(completed bool)
}

// Controller streams transcoded assets to a sink at device pace. At most one
// stream is audible: starting a new one or cancelling bumps a generation
// token that the running stream checks before every frame, so it falls
// silent within one frame interval.
type Controller struct {
	cfg  Config
	pace time.Duration

	token atomic.Int64
	live  atomic.Int64

	// encMu serializes encoder access across a superseded stream's last
	// frame and its replacement's first.
	encMu sync.Mutex
}

// NewController creates a playback controller.
func NewController(cfg Config) *Controller {
	pace := cfg.Pace
	if pace <= 0 {
		pace = audio.FrameDuration - SafetyMargin
	}
	return &Controller{cfg: cfg, pace: pace}
}

// Play transcodes the asset and starts streaming it, superseding any stream
// in progress. Transcode errors are returned synchronously; the streaming
// itself happens on a background goroutine and Play does not wait for it.
func (c *Controller) Play(asset []byte) error {
	frames, err := Transcode(asset, c.cfg.GainDB)
	if err != nil {
		return err
	}

	tok := c.token.Add(1)
	go c.stream(frames, tok)
	return nil
}

// Cancel stops the current stream, if any, within one frame interval.
func (c *Controller) Cancel() {
	c.token.Add(1)
}

// Playing reports whether a stream generation is active. It is advisory:
// the stream may finish between the check and any action taken on it.
func (c *Controller) Playing() bool {
	return c.token.Load() != 0 && c.live.Load() > 0
}

func (c *Controller) stream(frames [][]byte, tok int64) {
	c.live.Add(1)
	defer c.live.Add(-1)

	completed := true
	for _, frame := range frames {
		if c.token.Load() != tok {
			completed = false
			break
		}

		c.encMu.Lock()
		packet, err := c.cfg.Encoder.Encode(frame)
		c.encMu.Unlock()
		if err != nil {
			// Per-frame failure: skip and keep the stream running.
			log.Warn("playback frame encode failed", "error", err)
			continue
		}

		if err := c.cfg.Sink.WriteFrame(packet); err != nil {
			log.Debug("playback sink write failed", "error", err)
			completed = false
			break
		}

		time.Sleep(c.pace)
	}

	if c.cfg.OnFinished != nil {
		c.cfg.OnFinished(completed)
	}
}
