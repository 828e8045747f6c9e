// Package playback streams stored audio assets to the device in its native
// frame format, with cooperative cancellation so a newer command supersedes
// the current stream within one frame interval.
package playback

import (
	"fmt"

	"github.com/wrenlabs/go-wren/pkg/audio"
)

// OutputCeiling is the limiter ceiling applied after gain, as a fraction of
// full scale. Leaves headroom so the device amp does not clip.
const OutputCeiling = 0.95

// Transcode converts a stored WAV asset into device playback frames:
// mono PCM16 at the device rate, gain-adjusted and limited, sliced into
// fixed-size frames with the tail zero-padded.
func Transcode(asset []byte, gainDB float64) ([][]byte, error) {
	info, payload, err := audio.ParseWAV(asset)
	if err != nil {
		return nil, fmt.Errorf("playback: %w", err)
	}

	var samples []int16
	switch info.Codec {
	case audio.CodecMuLaw:
		samples = audio.DecodeMuLaw(payload)
	case audio.CodecALaw:
		samples = audio.DecodeALaw(payload)
	default:
		if info.BitsPerSample != 16 {
			return nil, fmt.Errorf("playback: unsupported PCM depth %d bits", info.BitsPerSample)
		}
		samples = audio.BytesToPCM16(payload)
	}

	samples = audio.Downmix(samples, info.Channels)
	samples = audio.Resample(samples, info.SampleRate, audio.DeviceSampleRate)
	samples = audio.ApplyGain(samples, gainDB, OutputCeiling)

	frames := audio.SliceFrames(audio.PCM16ToBytes(samples), audio.FrameBytes)
	if len(frames) == 0 {
		return nil, fmt.Errorf("playback: asset contains no audio")
	}
	return frames, nil
}
