package audio

import "math"

// Resample converts 16-bit linear samples from srcRate to dstRate using
// linear interpolation between neighboring source samples. The output length
// is round(len(in) * dstRate / srcRate); integer ratios are exact.
func Resample(in []int16, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || len(in) == 0 || srcRate <= 0 || dstRate <= 0 {
		out := make([]int16, len(in))
		copy(out, in)
		return out
	}

	outLen := int(math.Round(float64(len(in)) * float64(dstRate) / float64(srcRate)))
	out := make([]int16, outLen)
	step := float64(srcRate) / float64(dstRate)

	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(math.Round(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac))
	}
	return out
}
