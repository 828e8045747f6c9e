package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/wrenlabs/go-wren/internal/log"
)

// WAV codec tags from the fmt chunk.
const (
	CodecPCM   = 1
	CodecALaw  = 6
	CodecMuLaw = 7
)

// ErrNotWAV is returned when the buffer does not start with a RIFF/WAVE header.
var ErrNotWAV = errors.New("audio: not a WAV container")

// WAVInfo describes the format read from a WAV header.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	Codec         int
}

// ParseWAV reads the RIFF header of buf and returns the format parameters
// plus the payload bytes of the data chunk. An unknown codec tag is tolerated:
// the payload is treated as raw linear PCM and a warning is logged.
func ParseWAV(buf []byte) (WAVInfo, []byte, error) {
	var info WAVInfo

	if len(buf) < 12 || !bytes.Equal(buf[0:4], []byte("RIFF")) || !bytes.Equal(buf[8:12], []byte("WAVE")) {
		return info, nil, ErrNotWAV
	}

	var payload []byte
	sawFmt := false

	// Walk the chunk list. Chunks are word-aligned.
	off := 12
	for off+8 <= len(buf) {
		id := string(buf[off : off+4])
		size := int(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		body := off + 8
		if body+size > len(buf) {
			size = len(buf) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return info, nil, fmt.Errorf("audio: fmt chunk too short: %d bytes", size)
			}
			info.Codec = int(binary.LittleEndian.Uint16(buf[body : body+2]))
			info.Channels = int(binary.LittleEndian.Uint16(buf[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(buf[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(buf[body+14 : body+16]))
			sawFmt = true
		case "data":
			payload = buf[body : body+size]
		}

		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !sawFmt || payload == nil {
		return info, nil, errors.New("audio: missing fmt or data chunk")
	}

	switch info.Codec {
	case CodecPCM, CodecALaw, CodecMuLaw:
	default:
		log.Warn("unknown WAV codec tag, treating payload as linear PCM", "codec", info.Codec)
		info.Codec = CodecPCM
	}

	return info, payload, nil
}

// EncodeWAV wraps raw PCM16LE audio bytes in a WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16

	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * bitsPerSample / 8)
	blockAlign := uint16(channels * bitsPerSample / 8)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36)+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(CodecPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, byteRate)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}
