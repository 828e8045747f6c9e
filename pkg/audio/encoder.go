package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// maxPacketBytes is large enough for any opus frame at the rates we use.
const maxPacketBytes = 4000

// FrameEncoder encodes fixed-size linear PCM frames.
// audio.Encoder is the production implementation; tests substitute fakes.
type FrameEncoder interface {
	Encode(pcmFrame []byte) ([]byte, error)
}

// Encoder is a streaming opus encoder front-end. One Encoder is reused across
// consecutive frames so libopus keeps its inter-frame prediction state.
type Encoder struct {
	enc *opus.Encoder
	buf []byte
}

// NewEncoder creates an opus encoder for the device frame format.
func NewEncoder(sampleRate, channels int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &Encoder{
		enc: enc,
		buf: make([]byte, maxPacketBytes),
	}, nil
}

// Encode encodes one fixed-size PCM16LE frame and returns the opus packet.
// Failures are per-frame: the caller skips the frame and continues.
func (e *Encoder) Encode(pcmFrame []byte) ([]byte, error) {
	n, err := e.enc.Encode(BytesToPCM16(pcmFrame), e.buf)
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	packet := make([]byte, n)
	copy(packet, e.buf[:n])
	return packet, nil
}

var _ FrameEncoder = (*Encoder)(nil)
