package audio

// ITU-T G.711 companded codec expansion. Arithmetic form of the standard
// CCITT reference decode; matches the published reference tables for every
// 8-bit input.

const (
	ulawBias  = 0x84
	quantMask = 0x0F
	segMask   = 0x70
	segShift  = 4
	signBit   = 0x80
)

// DecodeMuLawSample expands one 8-bit mu-law sample to 16-bit linear PCM.
func DecodeMuLawSample(u byte) int16 {
	u = ^u
	t := int32(u&quantMask)<<3 + ulawBias
	t <<= int32(u&segMask) >> segShift
	if u&signBit != 0 {
		return int16(ulawBias - t)
	}
	return int16(t - ulawBias)
}

// DecodeALawSample expands one 8-bit A-law sample to 16-bit linear PCM.
func DecodeALawSample(a byte) int16 {
	a ^= 0x55
	t := int32(a&quantMask) << 4
	seg := int32(a&segMask) >> segShift
	switch seg {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= seg - 1
	}
	if a&signBit != 0 {
		return int16(t)
	}
	return int16(-t)
}

// DecodeMuLaw expands a mu-law byte sequence to 16-bit linear samples.
func DecodeMuLaw(in []byte) []int16 {
	out := make([]int16, len(in))
	for i, u := range in {
		out[i] = DecodeMuLawSample(u)
	}
	return out
}

// DecodeALaw expands an A-law byte sequence to 16-bit linear samples.
func DecodeALaw(in []byte) []int16 {
	out := make([]int16, len(in))
	for i, a := range in {
		out[i] = DecodeALawSample(a)
	}
	return out
}
