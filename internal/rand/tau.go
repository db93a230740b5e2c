package rand

// Tau is the combined Tausworthe generator used by UMAP neighbour search
// implementations. It is much cheaper to seed than the Mersenne Twisters, which
// matters when every neighbour-search worker needs its own stream.
type Tau struct {
	s [3]int64
}

// NewTau seeds a Tausworthe generator. The three components are derived from
// the seed with an LCG and warmed up before use.
func NewTau(seed int64) *Tau {
	t := &Tau{}
	t.s[0] = seed
	if t.s[0] == 0 {
		t.s[0] = 1
	}
	t.s[1] = t.s[0]*6364136223846793005 + 1442695040888963407
	t.s[2] = t.s[1]*6364136223846793005 + 1442695040888963407
	for i := 0; i < 10; i++ {
		t.Int32()
	}
	return t
}

// Int32 advances the generator, matching tau_rand_int.
func (t *Tau) Int32() int32 {
	s := &t.s
	s[0] = (((s[0] & 4294967294) << 12) & 0xFFFFFFFF) ^
		((((s[0] << 13) & 0xFFFFFFFF) ^ s[0]) >> 19)
	s[1] = (((s[1] & 4294967288) << 4) & 0xFFFFFFFF) ^
		((((s[1] << 2) & 0xFFFFFFFF) ^ s[1]) >> 25)
	s[2] = (((s[2] & 4294967280) << 17) & 0xFFFFFFFF) ^
		((((s[2] << 3) & 0xFFFFFFFF) ^ s[2]) >> 11)
	return int32(s[0] ^ s[1] ^ s[2])
}

// Next implements Engine.
func (t *Tau) Next() uint64 { return uint64(uint32(t.Int32())) }

// Min implements Engine.
func (t *Tau) Min() uint64 { return 0 }

// Max implements Engine.
func (t *Tau) Max() uint64 { return 0xffffffff }

// Intn returns a non-negative int in [0, n), or 0 when n <= 0. The modulo
// bias is accepted here; use DiscreteUniform where it matters.
func (t *Tau) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(uint32(t.Int32())>>1) % n
}

// Float32 returns a float32 in [0, 1].
func (t *Tau) Float32() float32 {
	return float32(uint32(t.Int32())>>1) / float32(0x7FFFFFFF)
}
