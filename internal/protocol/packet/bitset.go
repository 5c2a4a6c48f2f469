package packet

// BitSet is an ordered set of flags encoded as a bit count plus packed bytes.
type BitSet []bool

// NewBitSet returns a cleared set of n bits.
func NewBitSet(n int) BitSet {
	return make(BitSet, n)
}

// Get reports bit i; out-of-range bits read as false.
func (s BitSet) Get(i int) bool {
	if i < 0 || i >= len(s) {
		return false
	}
	return s[i]
}

func (s BitSet) Set(i int, v bool) {
	s[i] = v
}

func (s BitSet) pack() []byte {
	out := make([]byte, (len(s)+7)/8)
	for i, v := range s {
		if v {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackBits(p []byte, n int) BitSet {
	out := make(BitSet, n)
	for i := 0; i < n; i++ {
		out[i] = p[i/8]&(1<<(i%8)) != 0
	}
	return out
}
