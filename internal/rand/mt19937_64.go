package rand

const (
	mt64N         = 312
	mt64M         = 156
	mt64MatrixA   = 0xb5026f5aa96619e9
	mt64UpperMask = 0xffffffff80000000
	mt64LowerMask = 0x7fffffff
)

// DefaultSeed64 is the default seed of std::mt19937_64.
const DefaultSeed64 = 5489

// MT19937_64 is the 64-bit Mersenne Twister, bit-compatible with
// std::mt19937_64.
type MT19937_64 struct {
	mt  [mt64N]uint64
	mti int
}

// NewMT19937_64 creates a 64-bit Mersenne Twister seeded with seed.
func NewMT19937_64(seed uint64) *MT19937_64 {
	mt := &MT19937_64{}
	mt.Seed(seed)
	return mt
}

// Seed reinitializes the generator state.
func (mt *MT19937_64) Seed(seed uint64) {
	mt.mt[0] = seed
	for i := 1; i < mt64N; i++ {
		mt.mt[i] = 6364136223846793005*(mt.mt[i-1]^(mt.mt[i-1]>>62)) + uint64(i)
	}
	mt.mti = mt64N
}

func (mt *MT19937_64) twist() {
	mag01 := [2]uint64{0, mt64MatrixA}
	var x uint64
	var i int
	for i = 0; i < mt64N-mt64M; i++ {
		x = (mt.mt[i] & mt64UpperMask) | (mt.mt[i+1] & mt64LowerMask)
		mt.mt[i] = mt.mt[i+mt64M] ^ (x >> 1) ^ mag01[x&1]
	}
	for ; i < mt64N-1; i++ {
		x = (mt.mt[i] & mt64UpperMask) | (mt.mt[i+1] & mt64LowerMask)
		mt.mt[i] = mt.mt[i+(mt64M-mt64N)] ^ (x >> 1) ^ mag01[x&1]
	}
	x = (mt.mt[mt64N-1] & mt64UpperMask) | (mt.mt[0] & mt64LowerMask)
	mt.mt[mt64N-1] = mt.mt[mt64M-1] ^ (x >> 1) ^ mag01[x&1]
	mt.mti = 0
}

// Uint64 generates the next tempered 64-bit output.
func (mt *MT19937_64) Uint64() uint64 {
	if mt.mti >= mt64N {
		mt.twist()
	}

	x := mt.mt[mt.mti]
	mt.mti++

	x ^= (x >> 29) & 0x5555555555555555
	x ^= (x << 17) & 0x71d67fffeda60000
	x ^= (x << 37) & 0xfff7eee000000000
	x ^= x >> 43

	return x
}

// Next implements Engine.
func (mt *MT19937_64) Next() uint64 { return mt.Uint64() }

// Min implements Engine.
func (mt *MT19937_64) Min() uint64 { return 0 }

// Max implements Engine.
func (mt *MT19937_64) Max() uint64 { return ^uint64(0) }
