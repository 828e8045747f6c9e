package audio

// Downmix folds interleaved multi-channel samples to mono by averaging the
// channels of each sample frame. Mono input is returned as a copy.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}

	n := len(samples) / channels
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		sum := 0
		for ch := 0; ch < channels; ch++ {
			sum += int(samples[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
