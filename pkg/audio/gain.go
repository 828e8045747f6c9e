package audio

import "math"

// ApplyGain multiplies every sample by a decibel gain factor, then clips to
// ceiling (a fraction of full scale, 0 < ceiling <= 1). The input slice is
// not mutated.
func ApplyGain(in []int16, gainDB, ceiling float64) []int16 {
	if ceiling <= 0 || ceiling > 1 {
		ceiling = 1
	}
	factor := math.Pow(10, gainDB/20)
	limit := ceiling * math.MaxInt16

	out := make([]int16, len(in))
	for i, s := range in {
		v := float64(s) * factor
		if v > limit {
			v = limit
		} else if v < -limit {
			v = -limit
		}
		out[i] = int16(v)
	}
	return out
}
