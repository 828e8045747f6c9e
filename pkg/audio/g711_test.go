package audio

import "testing"

func TestDecodeMuLawReferencePoints(t *testing.T) {
	tests := []struct {
		name string
		in   byte
		want int16
	}{
		{"positive silence", 0xFF, 0},
		{"negative silence", 0x7F, 0},
		{"maximum negative", 0x00, -32124},
		{"maximum positive", 0x80, 32124},
		{"second negative step", 0x01, -31100},
		{"second positive step", 0x81, 31100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeMuLawSample(tt.in); got != tt.want {
				t.Errorf("DecodeMuLawSample(%#02x) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeMuLawSymmetry(t *testing.T) {
	// Each positive code mirrors its negative counterpart exactly.
	for code := 0; code < 128; code++ {
		neg := DecodeMuLawSample(byte(code))
		pos := DecodeMuLawSample(byte(code | 0x80))
		if neg != -pos {
			t.Errorf("code %#02x: negative %d does not mirror positive %d", code, neg, pos)
		}
	}
}

func TestDecodeMuLawMonotonic(t *testing.T) {
	// Within the negative half, increasing code means increasing linear value.
	prev := DecodeMuLawSample(0x00)
	for code := 1; code < 128; code++ {
		cur := DecodeMuLawSample(byte(code))
		if cur < prev {
			t.Fatalf("code %#02x: decoded %d below previous %d", code, cur, prev)
		}
		prev = cur
	}
}

func TestDecodeALawReferencePoints(t *testing.T) {
	tests := []struct {
		name string
		in   byte
		want int16
	}{
		{"smallest negative", 0x55, -8},
		{"smallest positive", 0xD5, 8},
		{"maximum negative", 0x2A, -32256},
		{"maximum positive", 0xAA, 32256},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeALawSample(tt.in); got != tt.want {
				t.Errorf("DecodeALawSample(%#02x) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeALawSymmetry(t *testing.T) {
	for code := 0; code < 128; code++ {
		neg := DecodeALawSample(byte(code))
		pos := DecodeALawSample(byte(code | 0x80))
		if neg != -pos {
			t.Errorf("code %#02x: negative %d does not mirror positive %d", code, neg, pos)
		}
	}
}

func TestDecodeBuffers(t *testing.T) {
	mu := DecodeMuLaw([]byte{0xFF, 0x00, 0x80})
	if len(mu) != 3 || mu[0] != 0 || mu[1] != -32124 || mu[2] != 32124 {
		t.Errorf("DecodeMuLaw = %v", mu)
	}

	al := DecodeALaw([]byte{0x55, 0xD5})
	if len(al) != 2 || al[0] != -8 || al[1] != 8 {
		t.Errorf("DecodeALaw = %v", al)
	}
}
