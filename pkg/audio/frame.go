package audio

// SliceFrames splits a linear-PCM byte buffer into frames of frameBytes each.
// A final partial frame is zero-padded to the full length rather than dropped
// or emitted short.
func SliceFrames(pcm []byte, frameBytes int) [][]byte {
	if frameBytes <= 0 || len(pcm) == 0 {
		return nil
	}

	n := (len(pcm) + frameBytes - 1) / frameBytes
	frames := make([][]byte, 0, n)
	for off := 0; off < len(pcm); off += frameBytes {
		frame := make([]byte, frameBytes)
		copy(frame, pcm[off:])
		frames = append(frames, frame)
	}
	return frames
}

// FrameBuffer accumulates streamed PCM bytes and yields full fixed-size
// frames as they become available. Unlike SliceFrames it carries the
// remainder between pushes; Flush zero-pads whatever is left.
type FrameBuffer struct {
	frameBytes int
	rest       []byte
}

// NewFrameBuffer creates a FrameBuffer producing frames of frameBytes each.
func NewFrameBuffer(frameBytes int) *FrameBuffer {
	return &FrameBuffer{frameBytes: frameBytes}
}

// Push appends pcm and returns every completed frame, in order.
func (b *FrameBuffer) Push(pcm []byte) [][]byte {
	b.rest = append(b.rest, pcm...)

	var frames [][]byte
	for len(b.rest) >= b.frameBytes {
		frame := make([]byte, b.frameBytes)
		copy(frame, b.rest[:b.frameBytes])
		frames = append(frames, frame)
		b.rest = b.rest[b.frameBytes:]
	}
	return frames
}

// Flush returns the zero-padded remainder as a final frame, or nil if the
// buffer is empty on a frame boundary.
func (b *FrameBuffer) Flush() []byte {
	if len(b.rest) == 0 {
		return nil
	}
	frame := make([]byte, b.frameBytes)
	copy(frame, b.rest)
	b.rest = b.rest[:0]
	return frame
}
