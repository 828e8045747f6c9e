// Package audio implements the transcoding pipeline between device audio and
// provider audio: WAV container parsing, G.711 expansion, rational resampling,
// gain limiting, fixed-frame slicing and a streaming opus encoder front-end.
//
// All transforms are pure functions over PCM16 little-endian mono samples
// except Encoder, which keeps libopus prediction state across frames.
package audio

import "time"

// Device frame format. Every binary frame on the device socket is one
// fixed-size slice of mono PCM16 at DeviceSampleRate, opus-encoded outbound.
const (
	DeviceSampleRate = 16000
	DeviceChannels   = 1

	// FrameDuration is the playback time of one device frame.
	FrameDuration = 60 * time.Millisecond

	// FrameSamples is samples per frame: 16000 Hz * 60 ms.
	FrameSamples = DeviceSampleRate * 60 / 1000

	// FrameBytes is the fixed byte length of one linear PCM frame.
	FrameBytes = FrameSamples * 2
)

// BytesToPCM16 converts little-endian bytes to int16 samples.
// An odd trailing byte is ignored.
func BytesToPCM16(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(uint16(b[2*i]) | uint16(b[2*i+1])<<8)
	}
	return samples
}

// PCM16ToBytes converts int16 samples to little-endian bytes.
func PCM16ToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		b[2*i] = byte(uint16(s))
		b[2*i+1] = byte(uint16(s) >> 8)
	}
	return b
}
